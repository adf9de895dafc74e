package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
)

// Load reads the configuration at path. The document is checked against
// the config schema, include globs are resolved relative to the file's
// directory, and the merged result is run through Validate.
//
// The returned Result is non-nil whenever the files could be read, so
// callers can report warnings even for an invalid configuration. The
// error wraps ErrInvalidConfig when the Result has errors.
func Load(path string) (*Config, *Result, error) {
	cfg, result, err := loadFile(path, "")
	if err != nil {
		return nil, nil, err
	}

	dir := filepath.Dir(path)
	self, _ := filepath.Abs(path)
	for _, pattern := range cfg.Include {
		if !doublestar.ValidatePattern(pattern) || filepath.IsAbs(pattern) {
			result.errorf("include", "invalid include pattern %q", pattern)
			continue
		}
		matches, err := doublestar.Glob(os.DirFS(dir), filepath.ToSlash(pattern), doublestar.WithFilesOnly())
		if err != nil {
			return nil, nil, fmt.Errorf("resolving include %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			result.warnf("include", "pattern %q matched no files", pattern)
			continue
		}
		slices.Sort(matches)
		for _, m := range matches {
			full := filepath.Join(dir, filepath.FromSlash(m))
			if abs, _ := filepath.Abs(full); abs == self {
				continue
			}
			inc, incResult, err := loadFile(full, m+": ")
			if err != nil {
				return nil, nil, err
			}
			if len(inc.Include) > 0 {
				incResult.warnf(m+": include", "nested includes are ignored")
			}
			result.Errors = append(result.Errors, incResult.Errors...)
			result.Warnings = append(result.Warnings, incResult.Warnings...)
			cfg.merge(inc)
		}
	}

	semantic := Validate(cfg)
	result.Errors = append(result.Errors, semantic.Errors...)
	result.Warnings = append(result.Warnings, semantic.Warnings...)

	if err := result.Err(); err != nil {
		return nil, result, err
	}
	return cfg, result, nil
}

// loadFile reads, schema-checks and decodes one file. Schema violations
// are recorded in the Result with prefix prepended to their paths.
func loadFile(path, prefix string) (*Config, *Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config %q: %w", path, err)
	}
	return decode(ParserFor(path), data, prefix)
}

// Decode parses data with parser after checking it against the schema.
func Decode(parser Parser, data []byte) (*Config, *Result, error) {
	cfg, result, err := decode(parser, data, "")
	if err != nil {
		return nil, nil, err
	}
	semantic := Validate(cfg)
	result.Errors = append(result.Errors, semantic.Errors...)
	result.Warnings = append(result.Warnings, semantic.Warnings...)
	if err := result.Err(); err != nil {
		return nil, result, err
	}
	return cfg, result, nil
}

func decode(parser Parser, data []byte, prefix string) (*Config, *Result, error) {
	result := &Result{}

	doc, err := parser.ToJSON(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s%v", ErrInvalidConfig, prefix, err)
	}
	issues, err := ValidateDocument(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s%v", ErrInvalidConfig, prefix, err)
	}
	for _, issue := range issues {
		issue.Path = prefix + issue.Path
		result.Errors = append(result.Errors, issue)
	}
	if len(issues) > 0 {
		// Decoding a document that violates the schema would only add
		// noise to the report.
		return &Config{}, result, nil
	}

	cfg, err := parser.Parse(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s%v", ErrInvalidConfig, prefix, err)
	}
	return cfg, result, nil
}
