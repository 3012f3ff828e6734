// Package modelgateway defines a provider-agnostic language model client and
// a tool-calling loop driver on top of it: a generic Request/Response/Client
// vocabulary plus a thin provider-agnostic wrapper, with one small interface
// here and concrete adapters in the anthropic and openai subpackages.
package modelgateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/sharingan/marketpulse/toolregistry"
)

// Role is the conversational role of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ModelClass lets a caller ask the gateway for "the high-reasoning model" or
// "the fast model" without naming a concrete provider identifier: Market
// Intelligence and Portfolio Insight use the high-reasoning class, Summary
// Generation uses the default class, and no agent requests the fast class.
type ModelClass string

const (
	ModelClassDefault       ModelClass = ""
	ModelClassHighReasoning ModelClass = "high_reasoning"
	ModelClassFast          ModelClass = "fast"
)

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args json.RawMessage
}

// Message is one turn of the conversation. Exactly one of Text or ToolCalls/
// ToolResults is normally populated; Text may co-occur with ToolCalls when a
// provider returns both a narration and a tool request in the same turn.
type Message struct {
	Role        Role
	Text        string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// ToolResult carries a tool's outcome back to the model, keyed by the
// ToolCall.ID it answers.
type ToolResult struct {
	ToolCallID string
	Content    string
	IsError    bool
}

// TokenUsage reports token accounting for a single Generate call.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// GenConfig configures a single Generate/ChatWithTools call.
type GenConfig struct {
	ModelClass  ModelClass
	Tools       []toolregistry.ToolDeclaration
	Temperature float64
	MaxTokens   int
}

// Response is the result of a single provider round-trip.
type Response struct {
	Message    Message
	Usage      TokenUsage
	StopReason string
}

// Client is the provider-agnostic surface every modelgateway adapter
// implements. Generate performs exactly one round-trip; ChatWithTools (below,
// built on top of Generate) drives the turn-by-turn tool loop.
type Client interface {
	Generate(ctx context.Context, system string, messages []Message, cfg GenConfig) (Response, error)
}

// ErrRateLimited is wrapped into a returned error by adapters when the
// underlying provider reports rate limiting, so callers can distinguish it
// from other failures via errors.Is.
var ErrRateLimited = errors.New("modelgateway: rate limited")

// ErrMaxTurnsExceeded is returned by ChatWithTools when the tool loop runs
// DefaultMaxToolTurns (or the configured override) without the model
// producing a final text-only response.
var ErrMaxTurnsExceeded = errors.New("modelgateway: tool loop exceeded max turns")

// DefaultMaxToolTurns bounds the tool-calling loop so a model that never
// stops calling tools cannot hang an agent run indefinitely: a bounded tool
// loop, not an open-ended agent.
const DefaultMaxToolTurns = 10

// ChatWithTools drives a multi-turn tool-calling conversation: it calls
// Generate, and for as long as the model's response carries tool calls, it
// invokes them against reg and feeds the results back as the next user turn,
// until the model returns a turn with no tool calls or maxTurns is reached.
// reg may be nil, in which case a response carrying tool calls is itself a
// ReasoningError-worthy condition the caller must handle (no tools were
// advertised, so the model should not have used any).
func ChatWithTools(ctx context.Context, c Client, system string, messages []Message, cfg GenConfig, reg *toolregistry.Registry, maxTurns int) (Response, []Message, error) {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxToolTurns
	}
	history := append([]Message(nil), messages...)

	for turn := 0; turn < maxTurns; turn++ {
		resp, err := c.Generate(ctx, system, history, cfg)
		if err != nil {
			return Response{}, history, err
		}
		history = append(history, resp.Message)
		if len(resp.Message.ToolCalls) == 0 {
			return resp, history, nil
		}
		if reg == nil {
			return resp, history, fmt.Errorf("modelgateway: model issued tool calls but no registry was provided")
		}

		calls := make([]toolregistry.Call, len(resp.Message.ToolCalls))
		for i, tc := range resp.Message.ToolCalls {
			calls[i] = toolregistry.Call{ID: tc.ID, Name: tc.Name, Args: tc.Args}
		}
		results, err := reg.InvokeBatch(ctx, calls)
		if err != nil {
			return Response{}, history, err
		}
		toolResults := make([]ToolResult, len(results))
		for i, r := range results {
			content := r.Result.Error
			isError := content != ""
			if !isError {
				b, mErr := json.Marshal(r.Result.Result)
				if mErr != nil {
					content = fmt.Sprintf("failed to encode tool result: %v", mErr)
					isError = true
				} else {
					content = string(b)
				}
			}
			toolResults[i] = ToolResult{ToolCallID: r.ID, Content: content, IsError: isError}
		}
		history = append(history, Message{Role: RoleUser, ToolResults: toolResults})
	}
	return Response{}, history, ErrMaxTurnsExceeded
}

// ParseStructured extracts a JSON object or array from raw model text and
// unmarshals it into out. Models routinely wrap structured output in prose or
// markdown code fences, so this first looks for a fenced ```json block, then
// falls back to the first balanced {...} or [...] span in the text.
//
// When schema is non-nil, the decoded document is validated against it before
// out is populated, so a well-formed but off-contract response (missing
// field, wrong type) surfaces as a schema error rather than silently
// producing a zero-valued out.
func ParseStructured(raw string, schema *jsonschema.Schema, out any) error {
	candidate := extractJSONCandidate(raw)
	if candidate == "" {
		return fmt.Errorf("modelgateway: no JSON object found in model output")
	}
	if schema != nil {
		var doc any
		if err := json.Unmarshal([]byte(candidate), &doc); err != nil {
			return fmt.Errorf("modelgateway: unmarshal model output: %w", err)
		}
		if err := schema.Validate(doc); err != nil {
			return fmt.Errorf("modelgateway: model output failed schema validation: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(candidate), out); err != nil {
		return fmt.Errorf("modelgateway: unmarshal model output: %w", err)
	}
	return nil
}

func extractJSONCandidate(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if fenced, ok := extractFenced(trimmed); ok {
		return fenced
	}
	return extractBalancedSpan(trimmed)
}

func extractFenced(s string) (string, bool) {
	const fenceJSON = "```json"
	const fence = "```"
	start := strings.Index(s, fenceJSON)
	skip := len(fenceJSON)
	if start < 0 {
		start = strings.Index(s, fence)
		skip = len(fence)
		if start < 0 {
			return "", false
		}
	}
	rest := s[start+skip:]
	end := strings.Index(rest, fence)
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

func extractBalancedSpan(s string) string {
	openers := map[byte]byte{'{': '}', '[': ']'}
	for i := 0; i < len(s); i++ {
		closer, ok := openers[s[i]]
		if !ok {
			continue
		}
		depth := 0
		inString := false
		escaped := false
		for j := i; j < len(s); j++ {
			ch := s[j]
			if inString {
				switch {
				case escaped:
					escaped = false
				case ch == '\\':
					escaped = true
				case ch == '"':
					inString = false
				}
				continue
			}
			switch ch {
			case '"':
				inString = true
			case s[i]:
				depth++
			case closer:
				depth--
				if depth == 0 {
					return s[i : j+1]
				}
			}
		}
	}
	return ""
}
