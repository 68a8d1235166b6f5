package docstore

import (
	"time"
)

// String returns d[key] when it is a string.
func String(d Document, key string) string {
	s, _ := d[key].(string)
	return s
}

// Float returns d[key] as float64 for any numeric representation.
func Float(d Document, key string) float64 {
	f, _ := toFloat(d[key])
	return f
}

func Int(d Document, key string) int {
	f, _ := toFloat(d[key])
	return int(f)
}

func Bool(d Document, key string) bool {
	b, _ := d[key].(bool)
	return b
}

// Time accepts native times and RFC 3339 strings.
func Time(d Document, key string) time.Time {
	switch t := d[key].(type) {
	case time.Time:
		return t
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err == nil {
			return parsed
		}
	}
	return time.Time{}
}

// Documents returns the nested documents stored in the array at d[key].
func Documents(d Document, key string) []Document {
	var out []Document
	switch arr := d[key].(type) {
	case []any:
		for _, v := range arr {
			if m, ok := asDocument(v); ok {
				out = append(out, m)
			}
		}
	case []map[string]any:
		for _, m := range arr {
			out = append(out, Document(m))
		}
	case []Document:
		out = append(out, arr...)
	}
	return out
}

func asDocument(v any) (Document, bool) {
	switch m := v.(type) {
	case Document:
		return m, true
	case map[string]any:
		return Document(m), true
	}
	return nil, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// equalValues compares scalar values the way document databases do:
// numbers by value regardless of width.
func equalValues(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	switch ta := a.(type) {
	case time.Time:
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	case string, bool:
		return a == b
	}
	return false
}

// clone deep-copies maps and slices so callers never share state with a backend.
func clone(v any) any {
	switch t := v.(type) {
	case Document:
		return cloneDocument(t)
	case map[string]any:
		return map[string]any(cloneDocument(t))
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = clone(x)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = clone(x)
		}
		return out
	case []Document:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = map[string]any(cloneDocument(x))
		}
		return out
	}
	return v
}

func cloneDocument(d Document) Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = clone(v)
	}
	return out
}
