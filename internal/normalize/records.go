package normalize

import (
	"encoding/json"
	"sort"
)

// envelopeKeys are the wrapper fields list endpoints have used.
var envelopeKeys = []string{"devices", "data", "items", "records", "credentials", "groups", "results", "result"}

// Records unwraps a list payload into its objects. It accepts a bare array,
// an envelope object ({"devices": [...]}) or a keyed collection whose every
// value is an object. A lone record object yields a one-element slice.
func Records(v any) []Raw {
	switch t := v.(type) {
	case nil:
		return nil
	case []any, []map[string]any:
		return objects(t, "")
	}
	m, ok := asRaw(v)
	if !ok {
		return nil
	}
	for _, k := range envelopeKeys {
		if inner, ok := m[k]; ok && inner != nil {
			return Records(inner)
		}
	}
	if len(m) > 0 && allObjects(m) {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]Raw, 0, len(keys))
		for _, k := range keys {
			item, _ := asRaw(m[k])
			out = append(out, item)
		}
		return out
	}
	if len(m) == 0 {
		return nil
	}
	return []Raw{m}
}

// Record unwraps a single-object payload: a bare object, an envelope
// ({"device": {...}}) or a list whose first object is taken.
func Record(v any) (Raw, bool) {
	if items, ok := v.([]any); ok {
		for _, item := range items {
			if m, ok := asRaw(item); ok {
				return m, true
			}
		}
		return nil, false
	}
	m, ok := asRaw(v)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for _, k := range []string{"device", "record", "data", "result", "credential", "group"} {
		if inner, ok := m[k]; ok {
			if rec, ok := Record(inner); ok {
				return rec, true
			}
		}
	}
	return m, true
}

// Decode parses a JSON body into a generic value. Invalid JSON yields nil,
// which every normalizer treats as an empty payload.
func Decode(body []byte) any {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil
	}
	return v
}

func hasEnvelope(m Raw) bool {
	for _, k := range envelopeKeys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

func allObjects(m Raw) bool {
	for _, v := range m {
		if _, ok := asRaw(v); !ok {
			return false
		}
	}
	return true
}
