package core

import (
	"context"
	"encoding/json"
)

// ToolName enumerates the tools the assistant knows about.
type ToolName string

const (
	ToolWebSearch           ToolName = "web_search"
	ToolCalculator          ToolName = "calculator"
	ToolSearchKnowledgeBase ToolName = "search_knowledge_base"
	ToolGetPreference       ToolName = "get_preference"
	ToolSavePreference      ToolName = "save_preference"
)

// KnownToolNames returns every enumerated tool name in advertisement order.
func KnownToolNames() []ToolName {
	return []ToolName{
		ToolWebSearch,
		ToolCalculator,
		ToolSearchKnowledgeBase,
		ToolGetPreference,
		ToolSavePreference,
	}
}

// ToolDefinition is the capability advertisement sent to the model.
type ToolDefinition struct {
	ToolName        ToolName               `json:"name"`
	ToolDescription string                 `json:"description"`
	InputSchema     map[string]interface{} `json:"input_schema"`
}

// ToolResult is the structured outcome of a tool call. Failures are
// reported through the "error" key, never as a Go error.
type ToolResult map[string]interface{}

// Err returns the error message carried by the result, if any.
func (r ToolResult) Err() string {
	msg, _ := r["error"].(string)
	return msg
}

// JSON serializes the result for the follow-up model prompt.
func (r ToolResult) JSON() string {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return `{"error": "unserializable tool result"}`
	}
	return string(b)
}

// ToolParams carries a single invocation's input and the identity of the
// turn it belongs to.
type ToolParams struct {
	UserID         string
	ConversationID string
	RequestID      string
	Input          map[string]interface{}
}

// Tool is implemented by every assistant tool.
type Tool interface {
	Definition() ToolDefinition

	// Execute runs the tool. It must not panic or return partial results
	// without an "error" key when something went wrong.
	Execute(ctx context.Context, params *ToolParams) ToolResult
}
