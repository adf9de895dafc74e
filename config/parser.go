package config

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

// Parser decodes raw configuration bytes.
type Parser interface {
	// Parse unmarshals data into a Config.
	Parse(data []byte) (*Config, error)
	// ToJSON converts data to JSON for schema validation.
	ToJSON(data []byte) ([]byte, error)
}

// YAMLParser implements Parser for YAML.
type YAMLParser struct{}

// NewYAMLParser creates a new YAMLParser.
func NewYAMLParser() Parser {
	return &YAMLParser{}
}

// Parse unmarshals YAML bytes into a Config.
func (p *YAMLParser) Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ToJSON converts a YAML document to JSON. An empty document becomes an
// empty object.
func (p *YAMLParser) ToJSON(data []byte) ([]byte, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []byte("{}"), nil
	}
	return yaml.YAMLToJSON(data)
}

// JSONParser implements Parser for JSON.
type JSONParser struct{}

// NewJSONParser creates a new JSONParser.
func NewJSONParser() Parser {
	return &JSONParser{}
}

// Parse unmarshals JSON bytes into a Config.
func (p *JSONParser) Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ToJSON returns data unchanged.
func (p *JSONParser) ToJSON(data []byte) ([]byte, error) {
	return data, nil
}

// ParserFor picks a parser from the file extension. Anything that is not
// .json is treated as YAML.
func ParserFor(path string) Parser {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return NewJSONParser()
	}
	return NewYAMLParser()
}
