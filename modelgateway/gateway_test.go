package modelgateway_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharingan/marketpulse/modelgateway"
	"github.com/sharingan/marketpulse/toolregistry"
)

type scriptedClient struct {
	turns []modelgateway.Response
	calls int
}

func (s *scriptedClient) Generate(ctx context.Context, system string, messages []modelgateway.Message, cfg modelgateway.GenConfig) (modelgateway.Response, error) {
	if s.calls >= len(s.turns) {
		return modelgateway.Response{}, assertNoMoreTurns{}
	}
	r := s.turns[s.calls]
	s.calls++
	return r, nil
}

type assertNoMoreTurns struct{}

func (assertNoMoreTurns) Error() string { return "scriptedClient: no more turns" }

func TestChatWithToolsStopsOnTextOnlyResponse(t *testing.T) {
	client := &scriptedClient{turns: []modelgateway.Response{
		{Message: modelgateway.Message{Role: modelgateway.RoleAssistant, Text: "done"}},
	}}
	resp, history, err := modelgateway.ChatWithTools(context.Background(), client, "sys", []modelgateway.Message{{Role: modelgateway.RoleUser, Text: "hi"}}, modelgateway.GenConfig{}, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Message.Text)
	assert.Len(t, history, 2)
}

func TestChatWithToolsInvokesRegisteredToolAndFeedsBackResult(t *testing.T) {
	reg := toolregistry.New()
	require.NoError(t, reg.Register("lookup", "looks things up", nil, func(ctx context.Context, args json.RawMessage) (any, error) {
		return map[string]string{"found": "yes"}, nil
	}))

	client := &scriptedClient{turns: []modelgateway.Response{
		{Message: modelgateway.Message{
			Role: modelgateway.RoleAssistant,
			ToolCalls: []modelgateway.ToolCall{
				{ID: "call-1", Name: "lookup", Args: json.RawMessage(`{}`)},
			},
		}},
		{Message: modelgateway.Message{Role: modelgateway.RoleAssistant, Text: "final answer"}},
	}}

	resp, history, err := modelgateway.ChatWithTools(context.Background(), client, "sys", []modelgateway.Message{{Role: modelgateway.RoleUser, Text: "hi"}}, modelgateway.GenConfig{}, reg, 0)
	require.NoError(t, err)
	assert.Equal(t, "final answer", resp.Message.Text)

	var sawToolResult bool
	for _, m := range history {
		for _, tr := range m.ToolResults {
			if tr.ToolCallID == "call-1" {
				sawToolResult = true
				assert.Contains(t, tr.Content, "found")
			}
		}
	}
	assert.True(t, sawToolResult, "expected a tool result turn in history")
}

func TestChatWithToolsReturnsErrorWhenToolCalledWithNoRegistry(t *testing.T) {
	client := &scriptedClient{turns: []modelgateway.Response{
		{Message: modelgateway.Message{
			Role:      modelgateway.RoleAssistant,
			ToolCalls: []modelgateway.ToolCall{{ID: "call-1", Name: "lookup"}},
		}},
	}}
	_, _, err := modelgateway.ChatWithTools(context.Background(), client, "sys", []modelgateway.Message{{Role: modelgateway.RoleUser, Text: "hi"}}, modelgateway.GenConfig{}, nil, 0)
	require.Error(t, err)
}

func TestChatWithToolsMaxTurnsExceeded(t *testing.T) {
	reg := toolregistry.New()
	require.NoError(t, reg.Register("loop", "never stops", nil, func(ctx context.Context, args json.RawMessage) (any, error) {
		return "again", nil
	}))
	turn := modelgateway.Response{Message: modelgateway.Message{
		Role:      modelgateway.RoleAssistant,
		ToolCalls: []modelgateway.ToolCall{{ID: "call-1", Name: "loop"}},
	}}
	turns := make([]modelgateway.Response, 3)
	for i := range turns {
		turns[i] = turn
	}
	client := &scriptedClient{turns: turns}
	_, _, err := modelgateway.ChatWithTools(context.Background(), client, "sys", []modelgateway.Message{{Role: modelgateway.RoleUser, Text: "hi"}}, modelgateway.GenConfig{}, reg, 3)
	require.ErrorIs(t, err, modelgateway.ErrMaxTurnsExceeded)
}

func TestParseStructuredExtractsFencedJSON(t *testing.T) {
	raw := "Here is the result:\n```json\n{\"a\": 1, \"b\": [1,2,3]}\n```\nThanks."
	var out struct {
		A int   `json:"a"`
		B []int `json:"b"`
	}
	require.NoError(t, modelgateway.ParseStructured(raw, nil, &out))
	assert.Equal(t, 1, out.A)
	assert.Equal(t, []int{1, 2, 3}, out.B)
}

func TestParseStructuredExtractsBareObject(t *testing.T) {
	raw := `sure, here you go: {"a": 1} ok?`
	var out struct {
		A int `json:"a"`
	}
	require.NoError(t, modelgateway.ParseStructured(raw, nil, &out))
	assert.Equal(t, 1, out.A)
}

func TestParseStructuredNoCandidateErrors(t *testing.T) {
	var out map[string]any
	err := modelgateway.ParseStructured("no json here", nil, &out)
	require.Error(t, err)
}

func TestParseStructuredValidatesAgainstSchema(t *testing.T) {
	schemaDoc := map[string]any{
		"type":     "object",
		"required": []any{"a"},
		"properties": map[string]any{
			"a": map[string]any{"type": "string"},
		},
	}
	b, err := json.Marshal(schemaDoc)
	require.NoError(t, err)
	var doc any
	require.NoError(t, json.Unmarshal(b, &doc))
	c := jsonschema.NewCompiler()
	require.NoError(t, c.AddResource("test.schema.json", doc))
	schema, err := c.Compile("test.schema.json")
	require.NoError(t, err)

	var out struct {
		A string `json:"a"`
	}
	require.Error(t, modelgateway.ParseStructured(`{"a": 1}`, schema, &out))
	require.NoError(t, modelgateway.ParseStructured(`{"a": "ok"}`, schema, &out))
	assert.Equal(t, "ok", out.A)
}
