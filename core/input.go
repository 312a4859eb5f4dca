package core

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Tool inputs arrive as decoded JSON. Missing or mistyped fields are
// replaced by defaults instead of rejected, so the model-facing contract
// stays forgiving.

// DecodeInput turns a raw tool_use input into a map. Invalid JSON yields an
// empty map.
func DecodeInput(raw json.RawMessage) map[string]interface{} {
	input := map[string]interface{}{}
	if len(raw) == 0 {
		return input
	}
	if err := json.Unmarshal(raw, &input); err != nil {
		return map[string]interface{}{}
	}
	return input
}

// StringArg returns input[key] as a string, or def when absent.
func StringArg(input map[string]interface{}, key, def string) string {
	v, ok := input[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// IntArg returns input[key] as an int, or def when absent or not numeric.
func IntArg(input map[string]interface{}, key string, def int) int {
	v, ok := input[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case int64:
		return int(t)
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return int(n)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n
		}
	}
	return def
}
