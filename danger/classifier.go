// Package danger classifies newly installed extensions against a list of
// known-dangerous signatures. The extension id is the authoritative signal;
// names are attacker-controlled and only ever produce a low-risk hint.
package danger

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/reglet-dev/finguard/host"
)

// Signature identifies a known-malicious extension. Versions optionally
// restricts the match to a semver range, for extensions that were only
// compromised in some releases.
type Signature struct {
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	ID       string `json:"id" yaml:"id"`
	Versions string `json:"versions,omitempty" yaml:"versions,omitempty"`
}

type compiledSignature struct {
	constraint *semver.Constraints
	Signature
}

// Classifier matches extension metadata against signatures. It is
// immutable after construction and safe for concurrent use.
type Classifier struct {
	byID   map[string][]compiledSignature
	byName map[string]Signature
}

// NewClassifier compiles signatures. It fails if a version constraint
// cannot be parsed.
func NewClassifier(signatures []Signature) (*Classifier, error) {
	c := &Classifier{
		byID:   make(map[string][]compiledSignature, len(signatures)),
		byName: make(map[string]Signature, len(signatures)),
	}
	for _, sig := range signatures {
		cs := compiledSignature{Signature: sig}
		if sig.Versions != "" {
			constraint, err := semver.NewConstraint(sig.Versions)
			if err != nil {
				return nil, fmt.Errorf("signature %s: invalid versions %q: %w", sig.ID, sig.Versions, err)
			}
			cs.constraint = constraint
		}
		c.byID[sig.ID] = append(c.byID[sig.ID], cs)
		if name := normalizeName(sig.Name); name != "" {
			c.byName[name] = sig
		}
	}
	return c, nil
}

// IsDangerous reports whether info should be quarantined.
func (c *Classifier) IsDangerous(info host.ExtensionInfo) bool {
	return c.Classify(info).Dangerous()
}

// Classify evaluates info and returns the risk report behind the decision.
func (c *Classifier) Classify(info host.ExtensionInfo) Report {
	report := Report{Level: RiskNone}
	if c == nil {
		return report
	}

	if sigs, ok := c.byID[info.ID]; ok {
		for _, sig := range sigs {
			report.add(classifyVersion(sig, info.Version))
		}
		return report
	}

	if sig, ok := c.byName[normalizeName(info.Name)]; ok {
		report.add(RiskFactor{
			Level:       RiskLow,
			Description: "name matches a known-dangerous extension",
			Signature:   sig.ID,
		})
	}
	return report
}

func classifyVersion(sig compiledSignature, version string) RiskFactor {
	if sig.constraint == nil {
		return RiskFactor{Level: RiskCritical, Description: "known-dangerous extension id", Signature: sig.ID}
	}

	v, err := semver.NewVersion(version)
	if err != nil {
		// The id alone is authoritative; an unreadable version must not let it through.
		return RiskFactor{Level: RiskHigh, Description: "known-dangerous extension id, version unknown", Signature: sig.ID}
	}
	if sig.constraint.Check(v) {
		return RiskFactor{
			Level:       RiskCritical,
			Description: fmt.Sprintf("known-dangerous extension id at version %s (%s)", v, sig.Versions),
			Signature:   sig.ID,
		}
	}
	return RiskFactor{
		Level:       RiskLow,
		Description: fmt.Sprintf("extension id is listed for versions %s, installed %s", sig.Versions, v),
		Signature:   sig.ID,
	}
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
