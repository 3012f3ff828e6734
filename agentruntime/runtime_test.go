package agentruntime_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharingan/marketpulse/agenterrors"
	"github.com/sharingan/marketpulse/agentruntime"
	"github.com/sharingan/marketpulse/cache"
	"github.com/sharingan/marketpulse/modelgateway"
)

type scriptedGenClient struct {
	responses []modelgateway.Response
	errs      []error
	calls     int
}

func (s *scriptedGenClient) Generate(ctx context.Context, system string, messages []modelgateway.Message, cfg modelgateway.GenConfig) (modelgateway.Response, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return modelgateway.Response{}, s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return modelgateway.Response{}, errors.New("scriptedGenClient: ran out of script")
}

type testOutput struct {
	Phase string `json:"phase"`
}

func textResponse(text string) modelgateway.Response {
	return modelgateway.Response{Message: modelgateway.Message{Role: modelgateway.RoleAssistant, Text: text}}
}

func TestExecuteSucceedsOnFirstAttempt(t *testing.T) {
	client := &scriptedGenClient{responses: []modelgateway.Response{textResponse(`{"phase":"mid"}`)}}
	rt := agentruntime.New(client, cache.NewMemoryCache(), nil)

	res, err := rt.Execute(context.Background(), agentruntime.Spec{
		Name:          "market_intelligence",
		RetryAttempts: 1,
		NewOutput:     func() any { return &testOutput{} },
	}, map[string]any{"indices": []string{"NIFTY"}})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.False(t, res.CacheHit)
	assert.Equal(t, "mid", res.Output.(*testOutput).Phase)
}

func TestExecuteRetriesReasoningErrorThenSucceeds(t *testing.T) {
	client := &scriptedGenClient{responses: []modelgateway.Response{
		textResponse("not json at all"),
		textResponse(`{"phase":"pre"}`),
	}}
	rt := agentruntime.New(client, nil, nil)

	res, err := rt.Execute(context.Background(), agentruntime.Spec{
		Name:          "market_intelligence",
		RetryAttempts: 2,
		NewOutput:     func() any { return &testOutput{} },
	}, map[string]any{})

	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, "pre", res.Output.(*testOutput).Phase)
}

func TestExecuteDoesNotRetryValidationError(t *testing.T) {
	client := &scriptedGenClient{responses: []modelgateway.Response{textResponse(`{"phase":"mid"}`)}}
	rt := agentruntime.New(client, nil, nil)

	_, err := rt.Execute(context.Background(), agentruntime.Spec{
		Name:          "summary_generation",
		RetryAttempts: 3,
		NewOutput:     func() any { return &testOutput{} },
		PostProcess: func(ctx context.Context, output any) error {
			return &agenterrors.ValidationError{Message: "bullet missing causal language"}
		},
	}, map[string]any{})

	require.Error(t, err)
	var verr *agenterrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 1, client.calls, "validation error must not be retried")
}

func TestExecuteUsesCacheOnSecondCall(t *testing.T) {
	client := &scriptedGenClient{responses: []modelgateway.Response{textResponse(`{"phase":"post"}`)}}
	c := cache.NewMemoryCache()
	rt := agentruntime.New(client, c, nil)
	spec := agentruntime.Spec{
		Name:          "portfolio_insight",
		RetryAttempts: 1,
		Cacheable:     true,
		CacheTTL:      time.Minute,
		NewOutput:     func() any { return &testOutput{} },
	}
	input := map[string]any{"user_id": "u1"}

	_, err := rt.Execute(context.Background(), spec, input)
	require.NoError(t, err)

	res2, err := rt.Execute(context.Background(), spec, input)
	require.NoError(t, err)
	assert.True(t, res2.CacheHit)
	assert.Equal(t, 1, client.calls, "second call must be served from cache")
}

func TestExecuteExhaustsRetriesAndReturnsLastError(t *testing.T) {
	client := &scriptedGenClient{responses: []modelgateway.Response{
		textResponse("nope"), textResponse("still nope"),
	}}
	rt := agentruntime.New(client, nil, nil)

	_, err := rt.Execute(context.Background(), agentruntime.Spec{
		Name:          "summary_generation",
		RetryAttempts: 1,
		NewOutput:     func() any { return &testOutput{} },
	}, map[string]any{})

	require.Error(t, err)
	var rerr *agenterrors.ReasoningError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, 2, client.calls)
}

func TestExecuteRejectsInputViolatingInputSchema(t *testing.T) {
	client := &scriptedGenClient{}
	rt := agentruntime.New(client, nil, nil)
	_, err := rt.Execute(context.Background(), agentruntime.Spec{
		Name:      "market_intelligence",
		NewOutput: func() any { return &testOutput{} },
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"user_id"},
		},
	}, map[string]any{"indices": []string{"NIFTY"}})

	var verr *agenterrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 0, client.calls, "model must never be called when input fails schema validation")
}

func TestExecuteRejectsOutputViolatingOutputSchema(t *testing.T) {
	client := &scriptedGenClient{responses: []modelgateway.Response{textResponse(`{"phase":123}`)}}
	rt := agentruntime.New(client, nil, nil)

	_, err := rt.Execute(context.Background(), agentruntime.Spec{
		Name:          "market_intelligence",
		RetryAttempts: 1,
		NewOutput:     func() any { return &testOutput{} },
		OutputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"phase": map[string]any{"type": "string"},
			},
		},
	}, map[string]any{})

	require.Error(t, err)
	var rerr *agenterrors.ReasoningError
	require.ErrorAs(t, err, &rerr)
}

func TestExecuteRejectsNonSerializableInput(t *testing.T) {
	rt := agentruntime.New(&scriptedGenClient{}, nil, nil)
	_, err := rt.Execute(context.Background(), agentruntime.Spec{
		Name:      "market_intelligence",
		NewOutput: func() any { return &testOutput{} },
	}, map[string]any{"bad": make(chan int)})

	var verr *agenterrors.ValidationError
	require.ErrorAs(t, err, &verr)
}
