package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/reglet-dev/finguard/host"
	"github.com/reglet-dev/finguard/matchpattern"
)

// ErrInvalidConfig is wrapped by every error returned for a configuration
// that fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Issue is a single validation finding.
type Issue struct {
	Path    string
	Message string
}

func (i Issue) String() string {
	return i.Path + ": " + i.Message
}

// Result holds the outcome of validating a configuration. Errors make the
// configuration unusable; warnings describe entries that will be ignored.
type Result struct {
	Errors   []Issue
	Warnings []Issue
}

// Valid reports whether there are no errors.
func (r *Result) Valid() bool {
	return len(r.Errors) == 0
}

// Err returns nil for a valid result, otherwise an error wrapping
// ErrInvalidConfig that lists every issue.
func (r *Result) Err() error {
	if r.Valid() {
		return nil
	}
	msgs := make([]string, len(r.Errors))
	for i, issue := range r.Errors {
		msgs[i] = issue.String()
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}

func (r *Result) errorf(path, format string, args ...any) {
	r.Errors = append(r.Errors, Issue{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (r *Result) warnf(path, format string, args ...any) {
	r.Warnings = append(r.Warnings, Issue{Path: path, Message: fmt.Sprintf(format, args...)})
}

// Validate runs the semantic checks the schema cannot express.
//
// A malformed site pattern is only a warning: matching skips it, so the
// rest of the list keeps working. Examples of such a pattern are not
// checked. An example that does not match its valid pattern is an error.
func Validate(cfg *Config) *Result {
	r := &Result{}

	for i, site := range cfg.FinancialSites {
		path := fmt.Sprintf("financial_sites[%d]", i)
		p, err := matchpattern.Parse(site.Match)
		if err != nil {
			r.warnf(path+".match", "%v; pattern will be ignored", err)
			continue
		}
		for j, example := range site.Examples {
			if !p.Match(example) {
				r.errorf(fmt.Sprintf("%s.examples[%d]", path, j), "%q does not match %q", example, site.Match)
			}
		}
	}

	seen := make(map[string]string)
	for i, w := range cfg.Whitelist {
		path := fmt.Sprintf("whitelist[%d].id", i)
		if err := host.ValidateExtensionID(w.ID); err != nil {
			r.errorf(path, "%v", err)
			continue
		}
		if prev, dup := seen[w.ID]; dup {
			r.warnf(path, "duplicate of %s", prev)
		}
		seen[w.ID] = path
	}

	for i, sig := range cfg.DangerousExtensions {
		path := fmt.Sprintf("dangerous_extensions[%d]", i)
		if err := host.ValidateExtensionID(sig.ID); err != nil {
			r.errorf(path+".id", "%v", err)
		}
		if _, whitelisted := seen[sig.ID]; whitelisted {
			r.warnf(path+".id", "extension is also whitelisted")
		}
		if sig.Versions != "" {
			if _, err := semver.NewConstraint(sig.Versions); err != nil {
				r.errorf(path+".versions", "invalid version constraint %q: %v", sig.Versions, err)
			}
		}
	}

	if cfg.OwnID != "" {
		if err := host.ValidateExtensionID(cfg.OwnID); err != nil {
			r.errorf("own_id", "%v", err)
		}
	}

	if cfg.Suppression.Retries < 0 {
		r.errorf("suppression.retries", "must not be negative")
	}
	if cfg.Suppression.MaxConcurrency < 0 {
		r.errorf("suppression.max_concurrency", "must not be negative")
	}
	if cfg.Suppression.RetryInterval < 0 {
		r.errorf("suppression.retry_interval", "must not be negative")
	}

	if p := cfg.Quarantine.PopupPath; p != "" && !strings.HasPrefix(p, "/") {
		r.errorf("quarantine.popup_path", "must be an absolute extension path, got %q", p)
	}

	return r
}
