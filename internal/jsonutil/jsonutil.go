// Package jsonutil provides JSON helpers shared across the runtime: canonical
// serialization for content hashing, dotted-path lookup into decoded JSON
// trees, and extraction of JSON embedded in freeform model output.
//
// Extraction lives in extract.go (Extract, ExtractInto). This file
// holds Canonical and Lookup.
package jsonutil

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Canonical serializes v to JSON with a stable key order, suitable for
// content hashing. The value is round-tripped through encoding/json so that
// structs collapse to maps; encoding/json emits map keys sorted, which makes
// the output deterministic regardless of the source type's field order.
func Canonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("jsonutil: canonical marshal: %w", err)
	}
	var norm any
	if err := json.Unmarshal(raw, &norm); err != nil {
		return nil, fmt.Errorf("jsonutil: canonical normalize: %w", err)
	}
	out, err := json.Marshal(norm)
	if err != nil {
		return nil, fmt.Errorf("jsonutil: canonical re-marshal: %w", err)
	}
	return out, nil
}

// Lookup resolves a dotted path ("args.report.path") against a tree of nested
// map[string]any values. It returns the value and true on a full match, or
// (nil, false) when any segment is missing or a non-map value is traversed.
// An empty path returns the root itself.
func Lookup(root map[string]any, path string) (any, bool) {
	if path == "" {
		return root, true
	}
	cur := any(root)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Stringify renders a looked-up JSON value the way it should appear inside
// rendered text: strings verbatim, numbers without a trailing ".0" when
// integral, booleans as true/false, and composite values as compact JSON.
// Nil renders as the empty string.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	case int:
		return fmt.Sprintf("%d", t)
	case int64:
		return fmt.Sprintf("%d", t)
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(raw)
	}
}
