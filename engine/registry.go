package engine

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/becomeliminal/nim-assistant/core"
)

// ToolRegistry maps tool names to implementations. Definitions are
// advertised in registration order.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[core.ToolName]core.Tool
	order []core.ToolName
}

// NewToolRegistry creates a registry holding tools.
func NewToolRegistry(tools ...core.Tool) *ToolRegistry {
	r := &ToolRegistry{tools: make(map[core.ToolName]core.Tool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds or replaces a tool. A replaced tool keeps its position.
func (r *ToolRegistry) Register(t core.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Definition().ToolName
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
}

// Get returns the tool registered under name.
func (r *ToolRegistry) Get(name core.ToolName) (core.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns every registered tool descriptor.
func (r *ToolRegistry) Definitions() []core.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]core.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// Names returns the registered tool names in registration order.
func (r *ToolRegistry) Names() []core.ToolName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.ToolName, len(r.order))
	copy(out, r.order)
	return out
}

// Missing returns the known tool names that have no registered implementation.
func (r *ToolRegistry) Missing() []core.ToolName {
	var missing []core.ToolName
	for _, name := range core.KnownToolNames() {
		if _, ok := r.Get(name); !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Dispatch executes the named tool. Unknown names produce an error result
// rather than a Go error so the remaining calls of a turn still run.
func (r *ToolRegistry) Dispatch(ctx context.Context, name string, params *core.ToolParams) core.ToolResult {
	t, ok := r.Get(core.ToolName(name))
	if !ok {
		log.Printf("[ENGINE] Model requested unknown tool %q", name)
		return core.ToolResult{"error": fmt.Sprintf("Unknown tool: %s", name)}
	}
	return t.Execute(ctx, params)
}
