package openai_test

import (
	"context"
	"testing"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharingan/marketpulse/modelgateway"
	mpopenai "github.com/sharingan/marketpulse/modelgateway/openai"
)

type fakeChatClient struct {
	captured sdk.ChatCompletionNewParams
	response *sdk.ChatCompletion
	err      error
}

func (f *fakeChatClient) New(ctx context.Context, body sdk.ChatCompletionNewParams, opts ...option.RequestOption) (*sdk.ChatCompletion, error) {
	f.captured = body
	return f.response, f.err
}

func TestGenerateTranslatesChatCompletion(t *testing.T) {
	fake := &fakeChatClient{
		response: &sdk.ChatCompletion{
			Choices: []sdk.ChatCompletionChoice{
				{
					FinishReason: "stop",
					Message:      sdk.ChatCompletionMessage{Content: "hi there"},
				},
			},
			Usage: sdk.CompletionUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		},
	}
	client, err := mpopenai.New(fake, mpopenai.Options{DefaultModel: "gpt-test"})
	require.NoError(t, err)

	resp, err := client.Generate(context.Background(), "be terse", []modelgateway.Message{
		{Role: modelgateway.RoleUser, Text: "ping"},
	}, modelgateway.GenConfig{})
	require.NoError(t, err)

	assert.Equal(t, "hi there", resp.Message.Text)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
	assert.Equal(t, "gpt-test", fake.captured.Model)
}

func TestGenerateUsesFastModelForFastClass(t *testing.T) {
	fake := &fakeChatClient{response: &sdk.ChatCompletion{}}
	client, err := mpopenai.New(fake, mpopenai.Options{DefaultModel: "gpt-default", FastModel: "gpt-fast"})
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "", []modelgateway.Message{{Role: modelgateway.RoleUser, Text: "ping"}}, modelgateway.GenConfig{ModelClass: modelgateway.ModelClassFast})
	require.NoError(t, err)
	assert.Equal(t, "gpt-fast", fake.captured.Model)
}

func TestGenerateRequiresAtLeastOneMessage(t *testing.T) {
	fake := &fakeChatClient{response: &sdk.ChatCompletion{}}
	client, err := mpopenai.New(fake, mpopenai.Options{DefaultModel: "gpt-default"})
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "", nil, modelgateway.GenConfig{})
	require.Error(t, err)
}
