package model

import (
	"encoding/json"
	"strconv"
)

// ParamString returns params[key] when it is a string.
func ParamString(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return s
}

// ParamInt accepts the numeric shapes produced by Go callers and by JSON
// decoding.
func ParamInt(params map[string]any, key string) (int, bool) {
	switch v := params[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	}
	return 0, false
}

// ParamFloat is ParamInt for floating point values.
func ParamFloat(params map[string]any, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// ParamStrings returns a string list from []string or a decoded []any.
func ParamStrings(params map[string]any, key string) []string {
	switch v := params[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
