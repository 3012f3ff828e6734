// Package openai adapts github.com/openai/openai-go's Chat Completions API
// to the modelgateway.Client interface, the provider used instead of the
// anthropic adapter when no Anthropic key is configured: a ChatClient seam
// for testability,
// Options/New/NewFromAPIKey construction, tool encoding, and errors.As
// classification on *openai.Error.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/sharingan/marketpulse/modelgateway"
	"github.com/sharingan/marketpulse/toolregistry"
)

// ChatClient captures the subset of the openai-go client used by the
// adapter, satisfied by the real SDK's Chat.Completions service and by a
// scripted fake in tests.
type ChatClient interface {
	New(ctx context.Context, body sdk.ChatCompletionNewParams, opts ...option.RequestOption) (*sdk.ChatCompletion, error)
}

// Options configures the adapter's model selection.
type Options struct {
	// DefaultModel backs ModelClassDefault and ModelClassFast when
	// FastModel is unset.
	DefaultModel string
	// FastModel backs modelgateway.ModelClassFast, normally a cheaper/
	// lower-latency model than DefaultModel.
	FastModel string
	MaxTokens int
}

// Client implements modelgateway.Client via OpenAI Chat Completions.
type Client struct {
	chat ChatClient
	opts Options
}

// New builds an adapter from an injected ChatClient and Options.
func New(chat ChatClient, opts Options) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai: chat client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("openai: default model is required")
	}
	return &Client{chat: chat, opts: opts}, nil
}

// NewFromAPIKey constructs a Client using the default openai-go HTTP
// transport.
func NewFromAPIKey(apiKey string, opts Options) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	c := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&completionsAdapter{svc: c.Chat.Completions}, opts)
}

// completionsAdapter narrows sdk.ChatCompletionService to the ChatClient
// seam so production wiring matches the same interface as tests.
type completionsAdapter struct {
	svc sdk.ChatCompletionService
}

func (a *completionsAdapter) New(ctx context.Context, body sdk.ChatCompletionNewParams, opts ...option.RequestOption) (*sdk.ChatCompletion, error) {
	return a.svc.New(ctx, body, opts...)
}

func (c *Client) resolveModel(class modelgateway.ModelClass) string {
	if class == modelgateway.ModelClassFast && c.opts.FastModel != "" {
		return c.opts.FastModel
	}
	return c.opts.DefaultModel
}

// Generate issues one Chat Completions round-trip. When this adapter is the
// selected provider it serves every agent; ModelClassHighReasoning resolves
// to DefaultModel here.
func (c *Client) Generate(ctx context.Context, system string, messages []modelgateway.Message, cfg modelgateway.GenConfig) (modelgateway.Response, error) {
	if len(messages) == 0 {
		return modelgateway.Response{}, errors.New("openai: at least one message is required")
	}
	chatMsgs := make([]sdk.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	if system != "" {
		chatMsgs = append(chatMsgs, sdk.SystemMessage(system))
	}
	for _, m := range messages {
		msgs, err := encodeMessage(m)
		if err != nil {
			return modelgateway.Response{}, err
		}
		chatMsgs = append(chatMsgs, msgs...)
	}

	params := sdk.ChatCompletionNewParams{
		Model:    c.resolveModel(cfg.ModelClass),
		Messages: chatMsgs,
	}
	if cfg.MaxTokens > 0 {
		params.MaxTokens = sdk.Int(int64(cfg.MaxTokens))
	} else if c.opts.MaxTokens > 0 {
		params.MaxTokens = sdk.Int(int64(c.opts.MaxTokens))
	}
	if cfg.Temperature > 0 {
		params.Temperature = sdk.Float(cfg.Temperature)
	}
	if len(cfg.Tools) > 0 {
		params.Tools = encodeTools(cfg.Tools)
	}

	resp, err := c.chat.New(ctx, params)
	if err != nil {
		if isRateLimited(err) {
			return modelgateway.Response{}, fmt.Errorf("%w: %w", modelgateway.ErrRateLimited, err)
		}
		return modelgateway.Response{}, fmt.Errorf("openai: chat completions: %w", err)
	}
	return translateResponse(resp), nil
}

func encodeMessage(m modelgateway.Message) ([]sdk.ChatCompletionMessageParamUnion, error) {
	if len(m.ToolResults) > 0 {
		out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(m.ToolResults))
		for _, tr := range m.ToolResults {
			out = append(out, sdk.ToolMessage(tr.Content, tr.ToolCallID))
		}
		return out, nil
	}
	if len(m.ToolCalls) > 0 {
		calls := make([]sdk.ChatCompletionMessageToolCallParam, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			calls[i] = sdk.ChatCompletionMessageToolCallParam{
				ID: tc.ID,
				Function: sdk.ChatCompletionMessageToolCallFunctionParam{
					Name:      tc.Name,
					Arguments: string(tc.Args),
				},
			}
		}
		msg := sdk.ChatCompletionAssistantMessageParam{ToolCalls: calls}
		if m.Text != "" {
			msg.Content = sdk.ChatCompletionAssistantMessageParamContentUnion{OfString: sdk.String(m.Text)}
		}
		return []sdk.ChatCompletionMessageParamUnion{{OfAssistant: &msg}}, nil
	}
	switch m.Role {
	case modelgateway.RoleAssistant:
		return []sdk.ChatCompletionMessageParamUnion{sdk.AssistantMessage(m.Text)}, nil
	default:
		return []sdk.ChatCompletionMessageParamUnion{sdk.UserMessage(m.Text)}, nil
	}
}

func encodeTools(decls []toolregistry.ToolDeclaration) []sdk.ChatCompletionToolParam {
	out := make([]sdk.ChatCompletionToolParam, 0, len(decls))
	for _, d := range decls {
		params, err := json.Marshal(d.Parameters)
		if err != nil {
			continue
		}
		var schema map[string]any
		_ = json.Unmarshal(params, &schema)
		out = append(out, sdk.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        d.Name,
				Description: sdk.String(d.Description),
				Parameters:  schema,
			},
		})
	}
	return out
}

func translateResponse(resp *sdk.ChatCompletion) modelgateway.Response {
	out := modelgateway.Response{}
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		out.StopReason = string(choice.FinishReason)
		calls := make([]modelgateway.ToolCall, 0, len(choice.Message.ToolCalls))
		for _, tc := range choice.Message.ToolCalls {
			calls = append(calls, modelgateway.ToolCall{
				ID:   tc.ID,
				Name: tc.Function.Name,
				Args: json.RawMessage(tc.Function.Arguments),
			})
		}
		out.Message = modelgateway.Message{
			Role:      modelgateway.RoleAssistant,
			Text:      choice.Message.Content,
			ToolCalls: calls,
		}
	}
	out.Usage = modelgateway.TokenUsage{
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:  int(resp.Usage.TotalTokens),
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
