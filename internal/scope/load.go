package scope

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a scope document from a YAML or JSON file (JSON is valid YAML)
// and compiles it. A document without an include key loads successfully and
// matches nothing.
func Load(path string) (*Scope, error) {
	doc, err := LoadDocument(path)
	if err != nil {
		return nil, err
	}
	return New(doc)
}

// LoadDocument reads a scope document without compiling it, so that callers
// can add patterns from other sources first.
func LoadDocument(path string) (Document, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided scope path is intentional
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Document{}, fmt.Errorf("%w: %s", ErrScopeNotFound, path)
		}
		return Document{}, err
	}
	return Decode(data)
}

// Decode parses a scope document. An empty input is an empty document.
func Decode(data []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("failed to parse scope document: %w", err)
	}
	return doc, nil
}
