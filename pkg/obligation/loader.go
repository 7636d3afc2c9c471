package obligation

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// LoadDir loads every *.yaml obligation file in dir into a registry.
// Validation is eager: a SchemaError or DuplicateIDError from any file
// aborts the whole load.
func LoadDir(dir string) (*Registry, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("scan obligations dir %s: %w", dir, err)
	}
	if ymls, err := filepath.Glob(filepath.Join(dir, "*.yml")); err == nil {
		matches = append(matches, ymls...)
	}
	sort.Strings(matches)
	return LoadFiles(matches...)
}

// LoadFiles loads the given obligation YAML files into a registry.
func LoadFiles(paths ...string) (*Registry, error) {
	reg := NewRegistry()
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read obligation %s: %w", path, err)
		}
		ob, err := Parse(data, path)
		if err != nil {
			return nil, err
		}
		if err := reg.add(ob, path); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Parse validates a single obligation document against the schema and
// decodes it into a typed record. source is used in error messages only.
func Parse(data []byte, source string) (*Obligation, error) {
	schema, err := compiledObligationSchema()
	if err != nil {
		return nil, err
	}

	// Decode to a generic value first so the schema sees the raw shape.
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &SchemaError{Source: source, Detail: fmt.Sprintf("invalid YAML: %v", err)}
	}
	if err := schema.Validate(raw); err != nil {
		return nil, &SchemaError{Source: source, Detail: err.Error()}
	}

	var ob Obligation
	if err := yaml.Unmarshal(data, &ob); err != nil {
		return nil, &SchemaError{Source: source, Detail: fmt.Sprintf("decode failed: %v", err)}
	}
	if !ob.Risk.Valid() {
		return nil, &SchemaError{Source: source, Detail: fmt.Sprintf("unknown risk %q", ob.Risk)}
	}
	return &ob, nil
}
