// Package anthropic adapts github.com/anthropics/anthropic-sdk-go to the
// modelgateway.Client interface: a MessagesClient seam for testability,
// rate-limit wrapping, and text/tool_use block translation, narrowed to the
// single Generate round-trip modelgateway needs (no streaming, no thinking
// budget, no provider-side cache checkpoints).
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/sharingan/marketpulse/modelgateway"
	"github.com/sharingan/marketpulse/toolregistry"
)

// MessagesClient captures the subset of the Anthropic SDK used by the
// adapter, satisfied by *sdk.MessageService in production and a scripted fake
// in tests.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Options configures the adapter's model selection and defaults.
type Options struct {
	// DefaultModel backs modelgateway.ModelClassDefault and
	// ModelClassFast when FastModel is unset.
	DefaultModel string
	// HighReasoningModel backs modelgateway.ModelClassHighReasoning.
	HighReasoningModel string
	// FastModel backs modelgateway.ModelClassFast.
	FastModel string
	// MaxTokens is the completion cap applied when GenConfig.MaxTokens is
	// zero.
	MaxTokens int
	// Temperature is applied when GenConfig.Temperature is zero.
	Temperature float64
}

// Client implements modelgateway.Client on top of Anthropic Messages.
type Client struct {
	msg  MessagesClient
	opts Options
}

// New builds an adapter from an injected MessagesClient and Options.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("anthropic: default model is required")
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4096
	}
	return &Client{msg: msg, opts: opts}, nil
}

// NewFromAPIKey constructs a Client using the default Anthropic HTTP
// transport, reading additional configuration (proxy, base URL, retries)
// from the environment the way sdk.NewClient does.
func NewFromAPIKey(apiKey string, opts Options) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	c := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&c.Messages, opts)
}

func (c *Client) resolveModel(class modelgateway.ModelClass) string {
	switch class {
	case modelgateway.ModelClassHighReasoning:
		if c.opts.HighReasoningModel != "" {
			return c.opts.HighReasoningModel
		}
	case modelgateway.ModelClassFast:
		if c.opts.FastModel != "" {
			return c.opts.FastModel
		}
	}
	return c.opts.DefaultModel
}

// Generate issues one Messages.New round-trip.
func (c *Client) Generate(ctx context.Context, system string, messages []modelgateway.Message, cfg modelgateway.GenConfig) (modelgateway.Response, error) {
	if len(messages) == 0 {
		return modelgateway.Response{}, errors.New("anthropic: at least one message is required")
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.opts.MaxTokens
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = c.opts.Temperature
	}

	msgs, err := encodeMessages(messages)
	if err != nil {
		return modelgateway.Response{}, err
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.resolveModel(cfg.ModelClass)),
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	if temperature > 0 {
		params.Temperature = sdk.Float(temperature)
	}
	if len(cfg.Tools) > 0 {
		params.Tools = encodeTools(cfg.Tools)
	}

	msg, err := c.msg.New(ctx, params)
	if err != nil {
		if isRateLimited(err) {
			return modelgateway.Response{}, fmt.Errorf("%w: %w", modelgateway.ErrRateLimited, err)
		}
		return modelgateway.Response{}, fmt.Errorf("anthropic: messages.new: %w", err)
	}
	return translateResponse(msg), nil
}

func encodeMessages(messages []modelgateway.Message) ([]sdk.MessageParam, error) {
	out := make([]sdk.MessageParam, 0, len(messages))
	for _, m := range messages {
		blocks := make([]sdk.ContentBlockParamUnion, 0, 1+len(m.ToolResults))
		if m.Text != "" {
			blocks = append(blocks, sdk.NewTextBlock(m.Text))
		}
		for _, tr := range m.ToolResults {
			blocks = append(blocks, sdk.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
		}
		for _, tc := range m.ToolCalls {
			var input any
			if len(tc.Args) > 0 {
				if err := json.Unmarshal(tc.Args, &input); err != nil {
					return nil, fmt.Errorf("anthropic: decode tool call args for %q: %w", tc.Name, err)
				}
			}
			blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, input, tc.Name))
		}
		if len(blocks) == 0 {
			continue
		}
		switch m.Role {
		case modelgateway.RoleAssistant:
			out = append(out, sdk.NewAssistantMessage(blocks...))
		default:
			out = append(out, sdk.NewUserMessage(blocks...))
		}
	}
	if len(out) == 0 {
		return nil, errors.New("anthropic: no encodable user/assistant messages")
	}
	return out, nil
}

func encodeTools(decls []toolregistry.ToolDeclaration) []sdk.ToolUnionParam {
	out := make([]sdk.ToolUnionParam, 0, len(decls))
	for _, d := range decls {
		schema := sdk.ToolInputSchemaParam{}
		if m, ok := d.Parameters.(map[string]any); ok {
			schema.ExtraFields = m
		} else if d.Parameters != nil {
			if b, err := json.Marshal(d.Parameters); err == nil {
				var m map[string]any
				if json.Unmarshal(b, &m) == nil {
					schema.ExtraFields = m
				}
			}
		}
		u := sdk.ToolUnionParamOfTool(schema, d.Name)
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(d.Description)
		}
		out = append(out, u)
	}
	return out
}

func translateResponse(msg *sdk.Message) modelgateway.Response {
	out := modelgateway.Response{StopReason: string(msg.StopReason)}
	var text string
	var calls []modelgateway.ToolCall
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text += block.Text
		case "tool_use":
			args, err := json.Marshal(block.Input)
			if err != nil {
				args = json.RawMessage("{}")
			}
			calls = append(calls, modelgateway.ToolCall{
				ID:   block.ID,
				Name: block.Name,
				Args: args,
			})
		}
	}
	out.Message = modelgateway.Message{Role: modelgateway.RoleAssistant, Text: text, ToolCalls: calls}
	u := msg.Usage
	out.Usage = modelgateway.TokenUsage{
		InputTokens:  int(u.InputTokens),
		OutputTokens: int(u.OutputTokens),
		TotalTokens:  int(u.InputTokens + u.OutputTokens),
	}
	return out
}

func isRateLimited(err error) bool {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}
