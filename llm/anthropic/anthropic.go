// Package anthropic adapts the Anthropic Messages API to core.ModelClient.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/becomeliminal/nim-assistant/core"
)

const (
	DefaultModel     = "claude-3-5-sonnet-20241022"
	DefaultMaxTokens = 4096
)

// Config configures the client.
type Config struct {
	APIKey    string
	Model     string
	MaxTokens int64

	// BaseURL overrides the API endpoint (tests, proxies).
	BaseURL string

	// MaxRetries is passed to the SDK. Negative keeps the SDK default.
	MaxRetries int

	// Timeout bounds each request. Zero leaves it to the caller's context.
	Timeout time.Duration
}

// Client calls Claude through the official SDK.
type Client struct {
	client    sdk.Client
	model     string
	maxTokens int64
}

var _ core.ModelClient = (*Client)(nil)

// New creates a new client.
func New(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries >= 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &Client{
		client:    sdk.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// CreateMessage sends one Messages API request.
func (c *Client) CreateMessage(ctx context.Context, req *core.ModelRequest) (*core.ModelResponse, error) {
	messages, err := toMessageParams(req.Messages)
	if err != nil {
		return nil, err
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages:  messages,
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = toToolParams(req.Tools)
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("claude API error: %w", err)
	}
	return fromMessage(resp), nil
}

func toMessageParams(msgs []core.Message) ([]sdk.MessageParam, error) {
	out := make([]sdk.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.Content))
		for _, b := range m.Content {
			switch b.Type {
			case core.BlockText:
				blocks = append(blocks, sdk.NewTextBlock(b.Text))
			case core.BlockToolUse:
				input := b.Input
				if len(input) == 0 {
					input = json.RawMessage(`{}`)
				}
				blocks = append(blocks, sdk.NewToolUseBlock(b.ID, input, b.Name))
			case core.BlockToolResult:
				blocks = append(blocks, sdk.NewToolResultBlock(b.ToolUseID, b.Content, b.IsError))
			default:
				return nil, fmt.Errorf("unsupported content block type %q", b.Type)
			}
		}

		switch m.Role {
		case core.RoleUser:
			out = append(out, sdk.NewUserMessage(blocks...))
		case core.RoleAssistant:
			out = append(out, sdk.NewAssistantMessage(blocks...))
		default:
			return nil, fmt.Errorf("unsupported message role %q", m.Role)
		}
	}
	return out, nil
}

func toToolParams(defs []core.ToolDefinition) []sdk.ToolUnionParam {
	out := make([]sdk.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		schema := sdk.ToolInputSchemaParam{
			Properties: d.InputSchema["properties"],
		}
		if required, ok := d.InputSchema["required"].([]string); ok {
			schema.Required = required
		}
		out = append(out, sdk.ToolUnionParam{OfTool: &sdk.ToolParam{
			Name:        string(d.ToolName),
			Description: sdk.String(d.ToolDescription),
			InputSchema: schema,
		}})
	}
	return out
}

func fromMessage(msg *sdk.Message) *core.ModelResponse {
	resp := &core.ModelResponse{
		StopReason: string(msg.StopReason),
		Usage: core.TokenUsage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Content = append(resp.Content, core.NewTextBlock(block.Text))
		case "tool_use":
			resp.Content = append(resp.Content, core.NewToolUseBlock(block.ID, block.Name, block.Input))
		}
	}
	return resp
}
