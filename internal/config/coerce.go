package config

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// coerceBool accepts the boolean spellings found in stored settings:
// booleans, 0/1 numbers and strings parseable by strconv.ParseBool.
// nil and "" are false.
func coerceBool(v any) (bool, bool) {
	switch val := v.(type) {
	case nil:
		return false, true
	case bool:
		return val, true
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return false, true
		}
		b, err := strconv.ParseBool(s)
		if err != nil {
			return false, false
		}
		return b, true
	default:
		n, ok := coerceInt(v)
		if !ok || (n != 0 && n != 1) {
			return false, false
		}
		return n == 1, true
	}
}

// coerceInt accepts integer kinds, integral floats, json.Number and numeric
// strings.
func coerceInt(v any) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case int32:
		return int(val), true
	case uint64:
		return int(val), true
	case float64:
		if val != math.Trunc(val) {
			return 0, false
		}
		return int(val), true
	case json.Number:
		n, err := val.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(val))
		return n, err == nil
	default:
		return 0, false
	}
}

// coerceString renders scalar settings as strings. Numbers are common for
// project references.
func coerceString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		if val == math.Trunc(val) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

// coerceStringList accepts a list or a single scalar. A scalar is treated
// as a one-element list, as happens when a plain setting is later moved
// into a repeatable one.
func coerceStringList(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, elem := range val {
			if s := coerceString(elem); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		if s := coerceString(val); s != "" {
			return []string{s}
		}
		return nil
	}
}

// coerceObjectList accepts a list of objects or a single object.
func coerceObjectList(v any) ([]map[string]any, bool) {
	switch val := v.(type) {
	case nil:
		return nil, true
	case map[string]any:
		return []map[string]any{val}, true
	case []map[string]any:
		return val, true
	case []any:
		out := make([]map[string]any, 0, len(val))
		for _, elem := range val {
			m, ok := elem.(map[string]any)
			if !ok {
				return nil, false
			}
			out = append(out, m)
		}
		return out, true
	default:
		return nil, false
	}
}

// coerceEnum resolves a numeric code or a configuration name.
func coerceEnum[T ~int](v any, names map[string]T, last T) (T, bool) {
	if s, ok := v.(string); ok {
		if named, ok := names[strings.ToLower(strings.TrimSpace(s))]; ok {
			return named, true
		}
	}
	n, ok := coerceInt(v)
	if !ok || n < 0 || T(n) > last {
		return 0, false
	}
	return T(n), true
}
