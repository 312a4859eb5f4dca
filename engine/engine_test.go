package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-assistant/core"
	"github.com/becomeliminal/nim-assistant/engine"
	"github.com/becomeliminal/nim-assistant/memory"
	"github.com/becomeliminal/nim-assistant/tools"
)

// scriptedModel replays canned responses and records every request.
type scriptedModel struct {
	responses []*core.ModelResponse
	errs      []error
	requests  []*core.ModelRequest
}

func (m *scriptedModel) CreateMessage(_ context.Context, req *core.ModelRequest) (*core.ModelResponse, error) {
	i := len(m.requests)
	m.requests = append(m.requests, req)
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i >= len(m.responses) {
		return nil, fmt.Errorf("unexpected model call %d", i+1)
	}
	return m.responses[i], nil
}

type fakeMemory struct {
	results   []memory.SearchResult
	stored    []string
	meta      []map[string]string
	failStore bool
}

func (f *fakeMemory) Store(_ context.Context, _ string, text string, metadata map[string]string) bool {
	f.stored = append(f.stored, text)
	f.meta = append(f.meta, metadata)
	return !f.failStore
}

func (f *fakeMemory) Search(_ context.Context, _ string, _ string, topK int) []memory.SearchResult {
	if len(f.results) > topK {
		return f.results[:topK]
	}
	return f.results
}

type countingRecorder struct {
	mu     sync.Mutex
	rounds []int
	tools  []string
	turns  []string
}

func (r *countingRecorder) ObserveModelCall(round int, _ time.Duration, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rounds = append(r.rounds, round)
}

func (r *countingRecorder) ObserveToolCall(tool string, _ time.Duration, _ bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools = append(r.tools, tool)
}

func (r *countingRecorder) ObserveTurn(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, outcome)
}

func text(s string) *core.ModelResponse {
	return &core.ModelResponse{Content: []core.ContentBlock{core.NewTextBlock(s)}, StopReason: "end_turn"}
}

func toolUse(id, name string, input string) core.ContentBlock {
	return core.NewToolUseBlock(id, name, json.RawMessage(input))
}

func newRegistry() *engine.ToolRegistry {
	return engine.NewToolRegistry(tools.NewCalculatorTool())
}

func TestProcess_TextOnly(t *testing.T) {
	model := &scriptedModel{responses: []*core.ModelResponse{{
		Content: []core.ContentBlock{core.NewTextBlock("Hello!"), core.NewTextBlock("ignored")},
	}}}
	rec := &countingRecorder{}
	e := engine.NewEngine(model, newRegistry(), engine.WithRecorder(rec))

	out := e.Process(context.Background(), &engine.Input{Message: "hi", ConversationID: "c1", OwnerID: "u1"})

	assert.Equal(t, "Hello!", out.Response)
	assert.Equal(t, "c1", out.ConversationID)
	assert.Empty(t, out.Error)
	assert.Empty(t, out.ToolCalls)
	require.Len(t, model.requests, 1)
	assert.Equal(t, engine.DefaultSystemPrompt, model.requests[0].System)
	assert.Len(t, model.requests[0].Tools, 1)
	assert.Equal(t, []int{1}, rec.rounds)
	assert.Equal(t, []string{engine.OutcomeSuccess}, rec.turns)
}

func TestProcess_HistoryWindow(t *testing.T) {
	var history []core.Turn
	for i := 1; i <= 15; i++ {
		role := core.RoleUser
		if i%2 == 0 {
			role = core.RoleAssistant
		}
		history = append(history, core.Turn{Role: role, Content: fmt.Sprintf("turn %d", i), SequenceNumber: i})
	}
	model := &scriptedModel{responses: []*core.ModelResponse{text("ok")}}
	e := engine.NewEngine(model, newRegistry())

	e.Process(context.Background(), &engine.Input{Message: "latest", History: history})

	msgs := model.requests[0].Messages
	require.Len(t, msgs, 11)
	for i := 0; i < 10; i++ {
		assert.Equal(t, fmt.Sprintf("turn %d", 6+i), msgs[i].Content[0].Text)
		assert.Equal(t, history[5+i].Role, msgs[i].Role)
	}
	assert.Equal(t, core.RoleUser, msgs[10].Role)
	assert.Equal(t, "latest", msgs[10].Content[0].Text)
}

func TestProcess_MemoryGate(t *testing.T) {
	mem := &fakeMemory{results: []memory.SearchResult{
		{Text: "User: I love hiking\nAssistant: Noted!", Score: 0.92},
		{Text: "User: my dog is Rex\nAssistant: Cute!", Score: 0.75},
		{Text: "exactly at the gate", Score: 0.7},
		{Text: "never reached", Score: 0.99},
	}}
	model := &scriptedModel{responses: []*core.ModelResponse{text("Sure")}}
	e := engine.NewEngine(model, newRegistry(), engine.WithMemory(mem))

	out := e.Process(context.Background(), &engine.Input{Message: "plan a weekend", ConversationID: "c9", OwnerID: "u1"})
	require.Equal(t, "Sure", out.Response)

	msgs := model.requests[0].Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, core.RoleUser, msgs[0].Role)
	assert.Equal(t,
		"\n\nRelevant past conversations:\n- User: I love hiking\nAssistant: Noted!\n- User: my dog is Rex\nAssistant: Cute!",
		msgs[0].Content[0].Text)

	require.Len(t, mem.stored, 1)
	assert.Equal(t, "User: plan a weekend\nAssistant: Sure", mem.stored[0])
	assert.Equal(t, "c9", mem.meta[0]["conversation_id"])
}

func TestProcess_WriteBackFailureIsNotSurfaced(t *testing.T) {
	mem := &fakeMemory{failStore: true}
	model := &scriptedModel{responses: []*core.ModelResponse{text("Paris is the capital of France.")}}
	rec := &countingRecorder{}
	e := engine.NewEngine(model, newRegistry(), engine.WithMemory(mem), engine.WithRecorder(rec))

	out := e.Process(context.Background(), &engine.Input{Message: "capital of France?", ConversationID: "c2", OwnerID: "u1"})

	assert.Equal(t, "Paris is the capital of France.", out.Response)
	assert.Empty(t, out.Error)
	assert.Equal(t, "c2", out.ConversationID)
	require.Len(t, mem.stored, 1)
	assert.Equal(t, []string{engine.OutcomeSuccess}, rec.turns)
}

func TestProcess_NoMemoryTurnBelowGate(t *testing.T) {
	mem := &fakeMemory{results: []memory.SearchResult{{Text: "weak", Score: 0.4}}}
	model := &scriptedModel{responses: []*core.ModelResponse{text("ok")}}
	e := engine.NewEngine(model, newRegistry(), engine.WithMemory(mem))

	e.Process(context.Background(), &engine.Input{Message: "hello"})
	require.Len(t, model.requests[0].Messages, 1)
}

func TestProcess_SkipMemory(t *testing.T) {
	mem := &fakeMemory{results: []memory.SearchResult{{Text: "strong", Score: 0.95}}}
	model := &scriptedModel{responses: []*core.ModelResponse{text("ok")}}
	e := engine.NewEngine(model, newRegistry(), engine.WithMemory(mem))

	e.Process(context.Background(), &engine.Input{Message: "hello", SkipMemory: true})
	assert.Len(t, model.requests[0].Messages, 1)
	assert.Empty(t, mem.stored)
}

func TestProcess_ToolRound(t *testing.T) {
	first := &core.ModelResponse{
		Content: []core.ContentBlock{
			core.NewTextBlock("Let me work that out."),
			toolUse("toolu_1", "calculator", `{"expression": "25 * 84"}`),
			toolUse("toolu_2", "stock_price", `{"ticker": "ACME"}`),
			toolUse("toolu_3", "calculator", `{"expression": "10/0"}`),
		},
		StopReason: "tool_use",
		Usage:      core.TokenUsage{InputTokens: 100, OutputTokens: 20},
	}
	second := &core.ModelResponse{
		Content: []core.ContentBlock{core.NewTextBlock("25 × 84 is 2,100.")},
		Usage:   core.TokenUsage{InputTokens: 200, OutputTokens: 10},
	}
	model := &scriptedModel{responses: []*core.ModelResponse{first, second}}
	rec := &countingRecorder{}
	e := engine.NewEngine(model, newRegistry(), engine.WithRecorder(rec))

	out := e.Process(context.Background(), &engine.Input{Message: "what is 25*84?", ConversationID: "c1", OwnerID: "u1"})

	assert.Equal(t, "25 × 84 is 2,100.", out.Response)
	assert.Empty(t, out.Error)
	assert.Equal(t, 300, out.Usage.InputTokens)
	assert.Equal(t, 30, out.Usage.OutputTokens)

	require.Len(t, out.ToolCalls, 3)
	assert.Equal(t, "toolu_1", out.ToolCalls[0].ID)
	assert.Equal(t, "calculator", out.ToolCalls[0].Tool)
	assert.Equal(t, "25 * 84", out.ToolCalls[0].Input["expression"])
	assert.Equal(t, "2100", out.ToolCalls[0].Result["formatted"])
	assert.Equal(t, "Unknown tool: stock_price", out.ToolCalls[1].Result.Err())
	assert.Equal(t, "Division by zero", out.ToolCalls[2].Result.Err())

	// Exactly one follow-up call, without tools.
	require.Len(t, model.requests, 2)
	followUp := model.requests[1]
	assert.Nil(t, followUp.Tools)
	assert.Equal(t, engine.DefaultSystemPrompt, followUp.System)

	msgs := followUp.Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, core.RoleAssistant, msgs[1].Role)
	assert.Equal(t, first.Content, msgs[1].Content)

	results := msgs[2]
	assert.Equal(t, core.RoleUser, results.Role)
	require.Len(t, results.Content, 3)
	for i, id := range []string{"toolu_1", "toolu_2", "toolu_3"} {
		assert.Equal(t, core.BlockToolResult, results.Content[i].Type)
		assert.Equal(t, id, results.Content[i].ToolUseID)
	}
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(results.Content[0].Content), &decoded))
	assert.Equal(t, float64(2100), decoded["result"])
	assert.Contains(t, results.Content[0].Content, "\n  \"expression\"")
	assert.False(t, results.Content[0].IsError)
	assert.True(t, results.Content[1].IsError)

	assert.Equal(t, []int{1, 2}, rec.rounds)
	assert.Equal(t, []string{"calculator", "stock_price", "calculator"}, rec.tools)
}

func TestProcess_EmptyFinalAnswerFallsBack(t *testing.T) {
	first := &core.ModelResponse{Content: []core.ContentBlock{toolUse("toolu_1", "calculator", `{"expression": "1+1"}`)}}
	second := &core.ModelResponse{}
	mem := &fakeMemory{}
	model := &scriptedModel{responses: []*core.ModelResponse{first, second}}
	e := engine.NewEngine(model, newRegistry(), engine.WithMemory(mem))

	out := e.Process(context.Background(), &engine.Input{Message: "1+1?"})
	assert.Equal(t, engine.FallbackResponse, out.Response)
	assert.Len(t, out.ToolCalls, 1)
	assert.Empty(t, mem.stored)
}

func TestProcess_ModelFailure(t *testing.T) {
	model := &scriptedModel{errs: []error{errors.New("overloaded")}}
	mem := &fakeMemory{}
	rec := &countingRecorder{}
	e := engine.NewEngine(model, newRegistry(), engine.WithMemory(mem), engine.WithRecorder(rec))

	out := e.Process(context.Background(), &engine.Input{Message: "hi", ConversationID: "c7"})

	assert.Equal(t, engine.ApologyResponse, out.Response)
	assert.Equal(t, "c7", out.ConversationID)
	assert.Contains(t, out.Error, "Error processing message:")
	assert.Contains(t, out.Error, "overloaded")
	assert.Empty(t, mem.stored)
	assert.Equal(t, []string{engine.OutcomeError}, rec.turns)
}

func TestProcess_FollowUpFailure(t *testing.T) {
	first := &core.ModelResponse{Content: []core.ContentBlock{toolUse("toolu_1", "calculator", `{"expression": "2**10"}`)}}
	model := &scriptedModel{
		responses: []*core.ModelResponse{first},
		errs:      []error{nil, errors.New("connection reset")},
	}
	e := engine.NewEngine(model, newRegistry())

	out := e.Process(context.Background(), &engine.Input{Message: "2^10", ConversationID: "c2"})
	assert.Equal(t, engine.ApologyResponse, out.Response)
	assert.Contains(t, out.Error, "connection reset")
	require.Len(t, out.ToolCalls, 1)
	assert.Equal(t, "1024", out.ToolCalls[0].Result["formatted"])
}

func TestProcess_ToolsShareRequestID(t *testing.T) {
	var seen []string
	echo := tools.New(core.ToolGetPreference).
		Description("records the request id").
		Handler(func(_ context.Context, params *core.ToolParams) core.ToolResult {
			seen = append(seen, params.RequestID)
			return core.ToolResult{"ok": true}
		})
	first := &core.ModelResponse{Content: []core.ContentBlock{
		toolUse("toolu_1", "get_preference", `{}`),
		toolUse("toolu_2", "get_preference", `{}`),
	}}
	model := &scriptedModel{responses: []*core.ModelResponse{first, text("done"), first, text("done")}}
	e := engine.NewEngine(model, engine.NewToolRegistry(echo))

	e.Process(context.Background(), &engine.Input{Message: "one"})
	e.Process(context.Background(), &engine.Input{Message: "two"})

	require.Len(t, seen, 4)
	assert.NotEmpty(t, seen[0])
	assert.Equal(t, seen[0], seen[1])
	assert.Equal(t, seen[2], seen[3])
	assert.NotEqual(t, seen[0], seen[2])
}
