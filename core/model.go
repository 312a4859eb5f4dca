package core

import "context"

// ModelRequest is one synchronous model invocation.
type ModelRequest struct {
	System   string
	Messages []Message

	// Tools is nil when the model must answer in text only.
	Tools []ToolDefinition
}

// ModelResponse holds the ordered content blocks returned by the model.
type ModelResponse struct {
	Content    []ContentBlock
	StopReason string
	Usage      TokenUsage
}

// TextBlocks returns the text segments in emission order.
func (r *ModelResponse) TextBlocks() []string {
	var out []string
	for _, b := range r.Content {
		if b.Type == BlockText {
			out = append(out, b.Text)
		}
	}
	return out
}

// ToolUses returns the tool requests in emission order.
func (r *ModelResponse) ToolUses() []ContentBlock {
	var out []ContentBlock
	for _, b := range r.Content {
		if b.Type == BlockToolUse {
			out = append(out, b)
		}
	}
	return out
}

// ModelClient invokes a large language model.
type ModelClient interface {
	CreateMessage(ctx context.Context, req *ModelRequest) (*ModelResponse, error)
}
