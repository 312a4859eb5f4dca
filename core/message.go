package core

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a turn or message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType tags a content block.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// ContentBlock is one segment of a model message. Which fields are set
// depends on Type:
//   - text: Text
//   - tool_use: ID, Name, Input
//   - tool_result: ToolUseID, Content, IsError
type ContentBlock struct {
	Type BlockType `json:"type"`

	Text string `json:"text,omitempty"`

	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

// NewTextBlock creates a text block.
func NewTextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// NewToolUseBlock creates a tool request block as emitted by the model.
func NewToolUseBlock(id, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{Type: BlockToolUse, ID: id, Name: name, Input: input}
}

// NewToolResultBlock creates a tool result block answering the tool_use block with toolUseID.
func NewToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolUseID: toolUseID, Content: content, IsError: isError}
}

// Message is a role-tagged list of content blocks sent to or received from the model.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// NewUserText creates a user message with a single text block.
func NewUserText(text string) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{NewTextBlock(text)}}
}

// NewAssistantText creates an assistant message with a single text block.
func NewAssistantText(text string) Message {
	return Message{Role: RoleAssistant, Content: []ContentBlock{NewTextBlock(text)}}
}

// ToolInvocation records one tool call made while answering a turn.
// It is attached to the assistant turn and never mutated afterwards.
type ToolInvocation struct {
	ID     string                 `json:"tool_use_id"`
	Tool   string                 `json:"tool"`
	Input  map[string]interface{} `json:"input"`
	Result ToolResult             `json:"result"`
}

// Turn is one persisted conversational message. SequenceNumber is the only
// ordering that matters when rebuilding history.
type Turn struct {
	Role           Role             `json:"role"`
	Content        string           `json:"content"`
	SequenceNumber int              `json:"sequence_number"`
	ToolCalls      []ToolInvocation `json:"tool_calls,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// TokenUsage tracks model token consumption.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
