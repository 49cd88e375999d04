package workflow

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// FileName is the file name the loader discovers workflow definitions under.
const FileName = "workflow.yaml"

// Parse decodes a workflow definition from YAML. Unknown fields are
// rejected so typos in optional keys surface at load time instead of being
// silently dropped.
func Parse(data []byte) (*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var def Definition
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("workflow: decoding definition: %w", err)
	}
	return &def, nil
}

// LoadFile reads and parses one workflow.yaml. Dir is set to the absolute
// directory containing the file so steps can resolve skills relative to it.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("workflow: reading %s: %w", path, err)
	}

	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("workflow: %s: %w", path, err)
	}

	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("workflow: resolving %s: %w", path, err)
	}
	def.Dir = dir
	return def, nil
}

// LoadDir discovers workflow.yaml files recursively under baseDir and
// registers each one. File order is sorted for deterministic registration.
// Individual failures do not abort the sweep: valid files still register,
// and all failures come back joined. Re-running LoadDir over an unchanged
// tree reports every definition as a duplicate, which hot-reload callers
// treat as expected noise.
//
// The returned count is the number of definitions registered by this call.
func (r *Registry) LoadDir(baseDir string) (int, error) {
	pattern := filepath.Join(baseDir, "**", FileName)
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return 0, fmt.Errorf("workflow: globbing %s: %w", pattern, err)
	}
	sort.Strings(matches)

	var errs []error
	loaded := 0
	for _, path := range matches {
		def, err := LoadFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := r.Register(def); err != nil {
			errs = append(errs, fmt.Errorf("workflow: %s: %w", path, err))
			continue
		}
		loaded++
	}
	return loaded, errors.Join(errs...)
}
