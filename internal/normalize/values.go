// Package normalize converts loosely shaped backend payloads into the
// canonical records of pkg/models. It is the single ingestion boundary:
// nothing past this package sees an unchecked map. Functions never panic
// and never return an error; malformed input degrades to placeholders.
package normalize

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Raw is one decoded backend object of unknown shape.
type Raw = map[string]any

// nestedValue walks a dotted path ("device.hostname") through nested maps.
func nestedValue(m Raw, path string) (any, bool) {
	var current any = m
	for _, k := range strings.Split(path, ".") {
		asMap, ok := asRaw(current)
		if !ok {
			return nil, false
		}
		next, ok := asMap[k]
		if !ok || next == nil {
			return nil, false
		}
		current = next
	}
	return current, true
}

// pickValue returns the first non-nil value found under any of the paths.
func pickValue(m Raw, paths ...string) (any, bool) {
	for _, p := range paths {
		if v, ok := nestedValue(m, p); ok {
			return v, true
		}
	}
	return nil, false
}

// pickString returns the first non-blank string found under any of the paths.
func pickString(m Raw, paths ...string) string {
	for _, p := range paths {
		v, ok := nestedValue(m, p)
		if !ok {
			continue
		}
		if s, ok := v.(string); ok {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

// String returns the first non-blank string found under any of the dotted
// paths. It is the exported form of the lookup the normalizers use.
func String(m Raw, paths ...string) string {
	return pickString(m, paths...)
}

// pickNumber returns the first value under any of the paths that converts
// to a finite number. Values that do not convert are skipped, so a nil
// result means "not reported" rather than zero.
func pickNumber(m Raw, paths ...string) *float64 {
	for _, p := range paths {
		v, ok := nestedValue(m, p)
		if !ok {
			continue
		}
		if f, ok := toNumber(v); ok {
			return &f
		}
	}
	return nil
}

// toNumber converts numbers, numeric strings and booleans. Blank strings,
// objects and non-finite results do not convert.
func toNumber(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case int32:
		f = float64(t)
	case uint64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case bool:
		if t {
			f = 1
		}
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func asRaw(v any) (Raw, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case map[any]any:
		out := make(Raw, len(t))
		for k, val := range t {
			if ks, ok := k.(string); ok {
				out[ks] = val
			}
		}
		return out, true
	}
	return nil, false
}

// objects returns the map entries of a list, or the values of a keyed map
// in sorted key order with the key exposed under keyField when the entry
// does not carry one. Non-object entries are skipped individually.
func objects(v any, keyField string) []Raw {
	switch t := v.(type) {
	case []any:
		out := make([]Raw, 0, len(t))
		for _, item := range t {
			if m, ok := asRaw(item); ok {
				out = append(out, m)
			}
		}
		return out
	case []map[string]any:
		return t
	}
	m, ok := asRaw(v)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Raw, 0, len(keys))
	for _, k := range keys {
		item, ok := asRaw(m[k])
		if !ok {
			continue
		}
		if keyField != "" {
			if _, has := item[keyField]; !has {
				copied := make(Raw, len(item)+1)
				for ik, iv := range item {
					copied[ik] = iv
				}
				copied[keyField] = k
				item = copied
			}
		}
		out = append(out, item)
	}
	return out
}
