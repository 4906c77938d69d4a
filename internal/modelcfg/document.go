// Package modelcfg implements the nested key-value document format shared
// between this orchestrator and the external trainer process. A Document is
// the in-memory form of one trainer configuration file: it supports deep
// copying, pure recursive merging and JSON round-tripping, which is all the
// grid expansion needs to stamp out isolated per-run configurations.
package modelcfg

import (
	"encoding/json"
	"fmt"
	"os"
)

// Document is a nested trainer configuration. Values are the usual JSON
// shapes: string, float64, bool, nil, []any and map[string]any.
type Document map[string]any

// Load reads and parses a JSON configuration document from disk.
func Load(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config document %s: %w", path, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse config document %s: %w", path, err)
	}
	return doc, nil
}

// Save serializes the document to an indented JSON file at path.
func (d Document) Save(path string) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize config document: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config document %s: %w", path, err)
	}
	return nil
}

// Copy returns a deep copy of the document. Nested maps and slices are
// duplicated, so mutating the copy never leaks into the original.
func (d Document) Copy() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = copyValue(v)
	}
	return out
}

// Merge returns a new document holding base with override applied on top.
// Mapping values merge recursively; scalar and sequence values replace.
// Neither input is mutated.
func Merge(base, override Document) Document {
	out := base.Copy()
	for k, v := range override {
		bm, baseIsMap := asMap(out[k])
		om, overrideIsMap := asMap(v)
		if baseIsMap && overrideIsMap {
			out[k] = map[string]any(Merge(bm, om))
			continue
		}
		out[k] = copyValue(v)
	}
	return out
}

// Lookup walks the given key path and returns the value at its end.
func (d Document) Lookup(path ...string) (any, bool) {
	var cur any = map[string]any(d)
	for _, key := range path {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// SetPath writes value at the given key path, creating intermediate maps as
// needed. An existing non-map value along the path is replaced.
func (d Document) SetPath(value any, path ...string) {
	if len(path) == 0 {
		return
	}
	cur := map[string]any(d)
	for _, key := range path[:len(path)-1] {
		next, ok := asMap(cur[key])
		if !ok {
			next = make(map[string]any)
			cur[key] = next
		}
		cur = next
	}
	cur[path[len(path)-1]] = value
}

// StringAt is a typed convenience wrapper around Lookup.
func (d Document) StringAt(path ...string) (string, bool) {
	v, ok := d.Lookup(path...)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// StringSliceAt resolves the value at path as a slice of strings. JSON
// arrays decode as []any, so both representations are accepted.
func (d Document) StringSliceAt(path ...string) ([]string, bool) {
	v, ok := d.Lookup(path...)
	if !ok {
		return nil, false
	}
	switch vv := v.(type) {
	case []string:
		return append([]string(nil), vv...), true
	case []any:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

func copyValue(v any) any {
	switch vv := v.(type) {
	case Document:
		return map[string]any(vv.Copy())
	case map[string]any:
		return map[string]any(Document(vv).Copy())
	case []any:
		out := make([]any, len(vv))
		for i, e := range vv {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}

// asMap unifies the two mapping representations that occur in practice:
// Document for programmatically built values and map[string]any for values
// that came through encoding/json or HCL decoding.
func asMap(v any) (Document, bool) {
	switch vv := v.(type) {
	case Document:
		return vv, true
	case map[string]any:
		return Document(vv), true
	}
	return nil, false
}
