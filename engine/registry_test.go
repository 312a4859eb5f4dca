package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-assistant/core"
	"github.com/becomeliminal/nim-assistant/engine"
	"github.com/becomeliminal/nim-assistant/memory/embedder/mock"
	"github.com/becomeliminal/nim-assistant/memory/store/chromem"
	"github.com/becomeliminal/nim-assistant/search"
	"github.com/becomeliminal/nim-assistant/store/memstore"
	"github.com/becomeliminal/nim-assistant/tools"
)

type nopSearcher struct{}

func (nopSearcher) Search(context.Context, string, int) (*search.Response, error) {
	return &search.Response{}, nil
}

func TestRegistry_AllKnownToolsRegistered(t *testing.T) {
	index, err := chromem.New()
	require.NoError(t, err)
	kb := tools.NewKnowledgeBase(context.Background(), index, mock.New(), "kb")

	r := engine.NewToolRegistry(tools.Builtin(&tools.Deps{
		Searcher:      nopSearcher{},
		KnowledgeBase: kb,
		Preferences:   memstore.New(),
	})...)

	assert.Empty(t, r.Missing())
	assert.Equal(t, core.KnownToolNames(), r.Names())

	defs := r.Definitions()
	require.Len(t, defs, len(core.KnownToolNames()))
	assert.Equal(t, core.ToolWebSearch, defs[0].ToolName)
}

func TestRegistry_Missing(t *testing.T) {
	r := engine.NewToolRegistry(tools.NewCalculatorTool())
	missing := r.Missing()
	assert.Len(t, missing, 4)
	assert.NotContains(t, missing, core.ToolCalculator)
}

func TestRegistry_RegisterReplacesInPlace(t *testing.T) {
	r := engine.NewToolRegistry(tools.NewCalculatorTool())
	replacement := tools.New(core.ToolCalculator).
		Description("stub").
		Handler(func(ctx context.Context, params *core.ToolParams) core.ToolResult {
			return core.ToolResult{"result": 42}
		})
	r.Register(replacement)

	assert.Len(t, r.Definitions(), 1)
	res := r.Dispatch(context.Background(), "calculator", &core.ToolParams{})
	assert.Equal(t, 42, res["result"])
}

func TestRegistry_DispatchUnknown(t *testing.T) {
	r := engine.NewToolRegistry()
	res := r.Dispatch(context.Background(), "teleport", &core.ToolParams{})
	assert.Equal(t, core.ToolResult{"error": "Unknown tool: teleport"}, res)
}
