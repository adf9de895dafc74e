package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	validator "github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaURL = "finguard-config.schema.json"

var (
	compileOnce    sync.Once
	compiledSchema *validator.Schema
	errCompile     error
)

// Schema returns the JSON Schema of Config, reflected from its Go type.
func Schema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.ExpandedStruct = true
	r.DoNotReference = true
	r.Anonymous = true

	s := r.Reflect(&Config{})
	s.Title = "finguard configuration"
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal generated schema: %w", err)
	}
	return b, nil
}

func compiled() (*validator.Schema, error) {
	compileOnce.Do(func() {
		raw, err := Schema()
		if err != nil {
			errCompile = err
			return
		}
		c := validator.NewCompiler()
		if err := c.AddResource(schemaURL, bytes.NewReader(raw)); err != nil {
			errCompile = fmt.Errorf("adding config schema: %w", err)
			return
		}
		compiledSchema, errCompile = c.Compile(schemaURL)
	})
	return compiledSchema, errCompile
}

// ValidateDocument checks a JSON document against the config schema. The
// returned issues are empty when the document conforms.
func ValidateDocument(doc []byte) ([]Issue, error) {
	schema, err := compiled()
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decoding config document: %w", err)
	}

	err = schema.Validate(v)
	if err == nil {
		return nil, nil
	}
	var verr *validator.ValidationError
	if !errors.As(err, &verr) {
		return nil, err
	}

	return leafIssues(verr, nil), nil
}

// leafIssues collects the innermost causes of ve, which carry the
// actionable messages.
func leafIssues(ve *validator.ValidationError, issues []Issue) []Issue {
	if len(ve.Causes) == 0 {
		return append(issues, Issue{Path: pointerPath(ve.InstanceLocation), Message: ve.Message})
	}
	for _, c := range ve.Causes {
		issues = leafIssues(c, issues)
	}
	return issues
}

// pointerPath renders a JSON pointer such as /financial_sites/0/match as
// financial_sites[0].match.
func pointerPath(ptr string) string {
	ptr = strings.TrimPrefix(ptr, "/")
	if ptr == "" {
		return "$"
	}
	var b strings.Builder
	for i, part := range strings.Split(ptr, "/") {
		if isIndex(part) {
			b.WriteString("[" + part + "]")
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(part)
	}
	return b.String()
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
