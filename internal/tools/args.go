package tools

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// number reads a numeric argument, accepting JSON numbers and numeric
// strings. A missing key yields def.
func number(args map[string]any, key string, def float64) (float64, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s must be a number", ErrInvalidArgs, key)
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s must be a number", ErrInvalidArgs, key)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: %s must be a number", ErrInvalidArgs, key)
	}
}

// truthy mirrors loose boolean flags: false, 0, "" and missing are false.
func truthy(args map[string]any, key string) bool {
	switch v := args[key].(type) {
	case nil:
		return false
	case bool:
		return v
	case float64:
		return v != 0
	case int:
		return v != 0
	case string:
		return v != "" && v != "false" && v != "0"
	default:
		return true
	}
}

func str(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

func object(args map[string]any, key string) map[string]any {
	m, _ := args[key].(map[string]any)
	if m == nil {
		return map[string]any{}
	}
	return m
}
