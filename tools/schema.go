package tools

import "fmt"

// ObjectSchema creates an object schema with the given properties.
func ObjectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// StringProperty creates a string property.
func StringProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

// LimitProperty creates an integer result-count property advertising def as
// its default. Handlers still fall back to def themselves; the model is free
// to omit the argument.
func LimitProperty(description string, def int) map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": fmt.Sprintf("%s (default: %d)", description, def),
		"default":     def,
	}
}

// searchSchema is shared by the retrieval tools: a required free-text query
// plus an optional result limit.
func searchSchema(queryDesc, limitKey, limitDesc string, def int) map[string]interface{} {
	return ObjectSchema(map[string]interface{}{
		"query":  StringProperty(queryDesc),
		limitKey: LimitProperty(limitDesc, def),
	}, "query")
}

const preferenceKeyHint = "(e.g., 'name', 'profession', 'location', 'interests')"
