package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	openai       "github.com/sashabaranov/go-openai"
	domainerrors "github.com/tolgayilmaz86/nervemind/internal/domain/errors"
	"github.com/tolgayilmaz86/nervemind/internal/execctx"
	"github.com/tolgayilmaz86/nervemind/internal/expr"
	"github.com/tolgayilmaz86/nervemind/internal/registry"
)

// LLMChatConfig is the llmChat node's configuration.
type LLMChatConfig struct {
	Prompt       string  `json:"prompt"`
	Model        string  `json:"model"`
	APIKey       string  `json:"apiKey"`
	MaxTokens    int     `json:"maxTokens"`
	Temperature  float64 `json:"temperature"`
	OutputKey    string  `json:"outputKey"`
	CredentialID string  `json:"credentialId"`
}

// chatCompleter abstracts go-openai's client so tests can substitute a
// fake without making real network calls.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// LLMChat executes a single-turn chat completion: prompt variable
// substitution, usage/latency metadata, and an API-key resolution order
// that checks config, then CredentialStore, then an execution-context
// variable.
type LLMChat struct {
	NewClient func(apiKey string) chatCompleter
}

func NewLLMChat() *LLMChat {
	return &LLMChat{
		NewClient: func(apiKey string) chatCompleter {
			return openai.NewClient(apiKey)
		},
	}
}

func (LLMChat) Identity() registry.Handle {
	return registry.Handle{
		TypeID:      "llmChat",
		DisplayName: "LLM Chat",
		Category:    "ai",
		Description: "Sends a prompt to a chat-completion model and returns its reply",
	}
}

func (LLMChat) Validate(config map[string]any) map[string]string {
	cfg, err := parseConfig[LLMChatConfig](config)
	if err != nil {
		return map[string]string{"_": err.Error()}
	}
	if cfg.Prompt == "" {
		return map[string]string{"prompt": "prompt must not be blank"}
	}
	return nil
}

func (l *LLMChat) Execute(ctx context.Context, config, input map[string]any, execCtx *execctx.Context) (map[string]any, error) {
	cfg, err := parseConfig[LLMChatConfig](config)
	if err != nil {
		return nil, err
	}
	if cfg.Prompt == "" {
		return nil, domainerrors.NewConfigurationError("llmChat", "prompt must not be blank")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.OutputKey == "" {
		cfg.OutputKey = "output"
	}

	apiKey, err := l.resolveAPIKey(ctx, cfg, execCtx)
	if err != nil {
		return nil, err
	}

	scope := mergedScope(input, execCtx)
	prompt := expr.Evaluate(cfg.Prompt, scope)

	client := l.NewClient(apiKey)
	req := openai.ChatCompletionRequest{
		Model:       cfg.Model,
		Temperature: float32(cfg.Temperature),
		Messages:    []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if cfg.MaxTokens > 0 {
		req.MaxCompletionTokens = cfg.MaxTokens
	}

	start := time.Now()
	resp, err := client.CreateChatCompletion(ctx, req)
	latency := time.Since(start)
	if err != nil {
		return nil, &domainerrors.ExternalAPIError{APIName: "llmChat", Transient: true, Message: err.Error(), Cause: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &domainerrors.ExternalAPIError{APIName: "llmChat", Message: "no completion choices returned"}
	}

	reply := resp.Choices[0].Message.Content

	out := mergeInput(input)
	out[cfg.OutputKey] = reply
	out["_usage"] = map[string]any{
		"promptTokens": resp.Usage.PromptTokens,
		"completionTokens": resp.Usage.CompletionTokens,
		"totalTokens": resp.Usage.TotalTokens,
		"latencyMs": latency.Milliseconds(),
	}
	if execCtx != nil {
		execCtx.SetVariable(cfg.OutputKey, reply)
	}
	return out, nil
}

// resolveAPIKey checks an inline config value first, then an explicit
// CredentialStore lookup, then falls back to an execution-context variable.
func (l *LLMChat) resolveAPIKey(ctx context.Context, cfg *LLMChatConfig, execCtx *execctx.Context) (string, error) {
	if cfg.APIKey != "" {
		return cfg.APIKey, nil
	}
	if cfg.CredentialID != "" && execCtx != nil {
		if id, err := uuid.Parse(cfg.CredentialID); err == nil {
			if _, secret, err := execCtx.ResolveCredential(ctx, id); err == nil {
				return string(secret), nil
			}
		}
	}
	if execCtx != nil {
		if v, ok := execCtx.GetVariable("openai_api_key"); ok {
			if s, ok := v.(string); ok && s != "" {
				return s, nil
			}
		}
		if v, ok := execCtx.GetVariable("OPENAI_API_KEY"); ok {
			if s, ok := v.(string); ok && s != "" {
				return s, nil
			}
		}
	}
	return "", domainerrors.NewConfigurationError("llmChat", "no API key available from config, credential or execution variables")
}
