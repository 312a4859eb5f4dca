package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/becomeliminal/nim-assistant/core"
	"github.com/becomeliminal/nim-assistant/memory"
)

const (
	historyWindow  = 10
	memoryTopK     = 3
	memoryMinScore = 0.7
)

// Outcome labels reported to the Recorder.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Recorder receives per-turn measurements. observability.Metrics implements it.
type Recorder interface {
	ObserveModelCall(round int, latency time.Duration, err error)
	ObserveToolCall(tool string, latency time.Duration, failed bool)
	ObserveTurn(outcome string)
}

// Engine runs one user message through the two-round tool protocol:
// a model call with tools, sequential tool dispatch, and a final model
// call without tools.
type Engine struct {
	client       core.ModelClient
	registry     *ToolRegistry
	memory       memory.Manager // Optional: long-term conversational memory
	recorder     Recorder       // Optional
	systemPrompt string
}

// Option configures the engine.
type Option func(*Engine)

// WithMemory enables long-term memory retrieval and write-back.
func WithMemory(m memory.Manager) Option {
	return func(e *Engine) {
		e.memory = m
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithSystemPrompt overrides DefaultSystemPrompt.
func WithSystemPrompt(prompt string) Option {
	return func(e *Engine) {
		e.systemPrompt = prompt
	}
}

// NewEngine creates a new engine with the given model client and registry.
func NewEngine(client core.ModelClient, registry *ToolRegistry, opts ...Option) *Engine {
	e := &Engine{
		client:       client,
		registry:     registry,
		systemPrompt: DefaultSystemPrompt,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Input is one user message plus its conversational context.
type Input struct {
	Message        string
	ConversationID string
	OwnerID        string

	// History is the conversation so far in sequence order. Only the last
	// 10 turns reach the model.
	History []core.Turn

	// SkipMemory disables long-term memory retrieval and write-back.
	SkipMemory bool
}

// Output is the result of a turn. Process never returns a Go error:
// failures produce ApologyResponse and set Error.
type Output struct {
	Response       string                `json:"response"`
	ToolCalls      []core.ToolInvocation `json:"tool_calls"`
	ConversationID string                `json:"conversation_id"`
	Error          string                `json:"error,omitempty"`
	Usage          core.TokenUsage       `json:"-"`
}

// Process answers input.Message.
func (e *Engine) Process(ctx context.Context, input *Input) *Output {
	requestID := uuid.NewString()
	out := &Output{
		ToolCalls:      []core.ToolInvocation{},
		ConversationID: input.ConversationID,
	}

	useMemory := e.memory != nil && !input.SkipMemory

	// === PHASE 0: RETRIEVE MEMORIES ===
	var memories []string
	if useMemory {
		memories = e.relevantMemories(ctx, input.OwnerID, input.Message)
	}

	messages := buildMessages(memories, input.History, input.Message)

	// === PHASE 1: FIRST MODEL CALL ===
	resp, err := e.callModel(ctx, 1, &core.ModelRequest{
		System:   e.systemPrompt,
		Messages: messages,
		Tools:    e.registry.Definitions(),
	})
	if err != nil {
		return e.fail(out, requestID, err)
	}
	addUsage(&out.Usage, resp.Usage)

	answer := firstText(resp)
	toolUses := resp.ToolUses()

	if len(toolUses) > 0 {
		// === PHASE 2: DISPATCH TOOLS ===
		results := make([]core.ContentBlock, 0, len(toolUses))
		for _, block := range toolUses {
			inv := e.dispatch(ctx, input, requestID, block)
			out.ToolCalls = append(out.ToolCalls, inv)
			results = append(results, core.NewToolResultBlock(block.ID, inv.Result.JSON(), inv.Result.Err() != ""))
		}

		messages = append(messages,
			core.Message{Role: core.RoleAssistant, Content: resp.Content},
			core.Message{Role: core.RoleUser, Content: results},
		)

		// === PHASE 3: FINAL MODEL CALL (no tools) ===
		final, err := e.callModel(ctx, 2, &core.ModelRequest{
			System:   e.systemPrompt,
			Messages: messages,
		})
		if err != nil {
			return e.fail(out, requestID, err)
		}
		addUsage(&out.Usage, final.Usage)
		answer = firstText(final)
	}

	// === PHASE 4: WRITE BACK ===
	if useMemory && answer != "" {
		text := fmt.Sprintf("User: %s\nAssistant: %s", input.Message, answer)
		if !e.memory.Store(ctx, input.OwnerID, text, map[string]string{"conversation_id": input.ConversationID}) {
			log.Printf("[ENGINE] Memory write-back failed: request=%s conversation=%s", requestID, input.ConversationID)
		}
	}

	if answer == "" {
		answer = FallbackResponse
	}
	out.Response = answer

	if e.recorder != nil {
		e.recorder.ObserveTurn(OutcomeSuccess)
	}
	log.Printf("[ENGINE] Turn complete: request=%s conversation=%s tools=%d tokens_in=%d tokens_out=%d",
		requestID, input.ConversationID, len(out.ToolCalls), out.Usage.InputTokens, out.Usage.OutputTokens)
	return out
}

// relevantMemories returns the texts of up to three memories scoring above
// the similarity gate, most relevant first.
func (e *Engine) relevantMemories(ctx context.Context, ownerID, query string) []string {
	results := e.memory.Search(ctx, ownerID, query, memoryTopK)
	var texts []string
	for _, r := range results {
		if r.Score > memoryMinScore {
			texts = append(texts, r.Text)
		}
	}
	if len(texts) > 0 {
		log.Printf("[MEMORY] Using %d of %d retrieved memories", len(texts), len(results))
	}
	return texts
}

func (e *Engine) dispatch(ctx context.Context, input *Input, requestID string, block core.ContentBlock) core.ToolInvocation {
	args := core.DecodeInput(block.Input)

	start := time.Now()
	result := e.registry.Dispatch(ctx, block.Name, &core.ToolParams{
		UserID:         input.OwnerID,
		ConversationID: input.ConversationID,
		RequestID:      requestID,
		Input:          args,
	})
	latency := time.Since(start)

	failed := result.Err() != ""
	if failed {
		log.Printf("[ENGINE] Tool %s returned error (request %s): %s", block.Name, requestID, result.Err())
	}
	if e.recorder != nil {
		e.recorder.ObserveToolCall(block.Name, latency, failed)
	}

	return core.ToolInvocation{
		ID:     block.ID,
		Tool:   block.Name,
		Input:  args,
		Result: result,
	}
}

func (e *Engine) callModel(ctx context.Context, round int, req *core.ModelRequest) (*core.ModelResponse, error) {
	start := time.Now()
	resp, err := e.client.CreateMessage(ctx, req)
	if e.recorder != nil {
		e.recorder.ObserveModelCall(round, time.Since(start), err)
	}
	if err != nil {
		return nil, fmt.Errorf("model call %d: %w", round, err)
	}
	return resp, nil
}

func (e *Engine) fail(out *Output, requestID string, err error) *Output {
	log.Printf("[ENGINE] Turn failed: request=%s conversation=%s: %v", requestID, out.ConversationID, err)
	out.Response = ApologyResponse
	out.Error = fmt.Sprintf("Error processing message: %v", err)
	if e.recorder != nil {
		e.recorder.ObserveTurn(OutcomeError)
	}
	return out
}

// buildMessages assembles the prompt: an optional memory turn, the last
// historyWindow turns, then the new user message.
func buildMessages(memories []string, history []core.Turn, message string) []core.Message {
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	messages := make([]core.Message, 0, len(history)+2)
	if len(memories) > 0 {
		var b strings.Builder
		b.WriteString(memoryPreamble)
		for i, m := range memories {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString("- ")
			b.WriteString(m)
		}
		messages = append(messages, core.NewUserText(b.String()))
	}

	for _, turn := range history {
		// Empty text blocks are rejected by the API.
		if turn.Content == "" {
			continue
		}
		messages = append(messages, core.Message{
			Role:    turn.Role,
			Content: []core.ContentBlock{core.NewTextBlock(turn.Content)},
		})
	}

	return append(messages, core.NewUserText(message))
}

func firstText(resp *core.ModelResponse) string {
	texts := resp.TextBlocks()
	if len(texts) == 0 {
		return ""
	}
	return texts[0]
}

func addUsage(total *core.TokenUsage, u core.TokenUsage) {
	total.InputTokens += u.InputTokens
	total.OutputTokens += u.OutputTokens
}
