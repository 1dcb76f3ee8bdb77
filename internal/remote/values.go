package remote

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Normalize converts v into the generic JSON shape every backend stores:
// map[string]any, []any, float64, string, bool or nil.
func Normalize(v any) (any, error) {
	switch v.(type) {
	case nil:
		return nil, nil
	case string, bool, float64:
		return v, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeScalar(v any) any {
	n, err := Normalize(v)
	if err != nil {
		return v
	}
	return n
}

// Clone deep copies a normalized value.
func Clone(v any) any {
	switch x := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, val := range x {
			m[k] = Clone(val)
		}
		return m
	case []any:
		s := make([]any, len(x))
		for i, val := range x {
			s[i] = Clone(val)
		}
		return s
	default:
		return v
	}
}

// AsString renders scalar values as strings. The second result is false for
// missing values and for maps or slices.
func AsString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case bool:
		return strconv.FormatBool(x), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case int:
		return strconv.Itoa(x), true
	case json.Number:
		return x.String(), true
	default:
		return "", false
	}
}

// AsInt64 accepts numbers and numeric strings, which is how timestamps are
// commonly stored.
func AsInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case float64:
		return int64(x), true
	case int64:
		return x, true
	case int:
		return int64(x), true
	case json.Number:
		n, err := x.Int64()
		return n, err == nil
	case string:
		s := strings.TrimSpace(x)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f), true
		}
		return 0, false
	default:
		return 0, false
	}
}

// AsBool accepts booleans and the strings "true"/"false".
func AsBool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		return b, err == nil
	default:
		return false, false
	}
}
