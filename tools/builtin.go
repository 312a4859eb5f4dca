package tools

import (
	"github.com/becomeliminal/nim-assistant/core"
	"github.com/becomeliminal/nim-assistant/search"
	"github.com/becomeliminal/nim-assistant/store"
)

// Deps holds shared dependencies for the assistant's tools.
type Deps struct {
	Searcher      search.Searcher
	KnowledgeBase *KnowledgeBase
	Preferences   store.PreferenceStore
}

// Builtin returns the assistant's tools in advertisement order.
// Read operations first, then the single write (save_preference).
func Builtin(deps *Deps) []core.Tool {
	return []core.Tool{
		NewWebSearchTool(deps.Searcher),
		NewCalculatorTool(),
		NewKnowledgeBaseTool(deps.KnowledgeBase),
		NewGetPreferenceTool(deps.Preferences),
		NewSavePreferenceTool(deps.Preferences),
	}
}

// Definitions returns the descriptors of tools in order.
func Definitions(ts []core.Tool) []core.ToolDefinition {
	defs := make([]core.ToolDefinition, 0, len(ts))
	for _, t := range ts {
		defs = append(defs, t.Definition())
	}
	return defs
}
