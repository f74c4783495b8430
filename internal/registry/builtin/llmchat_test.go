package builtin

import (
	"context"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChatCompleter struct {
	reply string
	err   error
}

func (f *fakeChatCompleter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.reply}},
		},
		Usage: openai.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

func TestLLMChat_SubstitutesPromptAndSetsOutput(t *testing.T) {
	fake := &fakeChatCompleter{reply: "hi there"}
	l := &LLMChat{NewClient: func(string) chatCompleter { return fake }}
	execCtx := newTestExecCtx(map[string]any{"name": "Ada"}, nil)
	out, err := l.Execute(context.Background(), map[string]any{
		"prompt": "Hello ${name}",
		"apiKey": "test-key",
	}, nil, execCtx)
	require.NoError(t, err)
	assert.Equal(t, "hi there", out["output"])
	usage := out["_usage"].(map[string]any)
	assert.Equal(t, 15, usage["totalTokens"])
}

func TestLLMChat_RequiresAPIKeySource(t *testing.T) {
	fake := &fakeChatCompleter{reply: "x"}
	l := &LLMChat{NewClient: func(string) chatCompleter { return fake }}
	_, err := l.Execute(context.Background(), map[string]any{"prompt": "hi"}, nil, newTestExecCtx(nil, nil))
	assert.Error(t, err)
}
