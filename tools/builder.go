package tools

import (
	"context"
	"fmt"
	"log"

	"github.com/becomeliminal/nim-assistant/core"
)

// HandlerFunc executes a tool invocation.
type HandlerFunc func(ctx context.Context, params *core.ToolParams) core.ToolResult

// Builder assembles a core.Tool from a name, description, schema and handler.
//
//	tools.New(core.ToolCalculator).
//		Description("...").
//		Schema(tools.ObjectSchema(...)).
//		Handler(fn)
type Builder struct {
	def core.ToolDefinition
}

// New starts building a tool.
func New(name core.ToolName) *Builder {
	return &Builder{def: core.ToolDefinition{
		ToolName:    name,
		InputSchema: ObjectSchema(map[string]interface{}{}),
	}}
}

// Description sets the model-facing description.
func (b *Builder) Description(desc string) *Builder {
	b.def.ToolDescription = desc
	return b
}

// Schema sets the JSON input schema.
func (b *Builder) Schema(schema map[string]interface{}) *Builder {
	b.def.InputSchema = schema
	return b
}

// Handler finishes the tool.
func (b *Builder) Handler(fn HandlerFunc) core.Tool {
	return &builtTool{def: b.def, fn: fn}
}

type builtTool struct {
	def core.ToolDefinition
	fn  HandlerFunc
}

func (t *builtTool) Definition() core.ToolDefinition {
	return t.def
}

// Execute runs the handler. A panicking handler is converted into an error
// result so a single tool cannot abort the turn.
func (t *builtTool) Execute(ctx context.Context, params *core.ToolParams) (result core.ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[TOOLS] %s panicked (request %s): %v", t.def.ToolName, params.RequestID, r)
			result = core.ToolResult{"error": fmt.Sprintf("%s failed: %v", t.def.ToolName, r)}
		}
	}()
	if params == nil {
		params = &core.ToolParams{}
	}
	if params.Input == nil {
		params.Input = map[string]interface{}{}
	}
	result = t.fn(ctx, params)
	if result == nil {
		result = core.ToolResult{}
	}
	return result
}
