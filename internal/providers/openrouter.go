package providers

import (
	"context"
	"errors"
	"time"

	openrouter "github.com/revrost/go-openrouter"

	"github.com/entrepeneur4lyf/llmrouter/internal/adapter"
)

// OpenRouterAdapter implements adapter.Adapter against the OpenRouter SDK.
// Reduced to a single non-streaming CreateChatCompletion call. OpenRouter aggregates
// many upstream vendors behind one OpenAI-compatible API, the same wire
// shape GenericCompatAdapter (compat.go) speaks with its own request and
// response structs.
type OpenRouterAdapter struct {
	client *openrouter.Client
	models map[string]struct{}
	maxCtx map[string]int
}

func NewOpenRouterAdapter(apiKey string, models []string) *OpenRouterAdapter {
	modelSet := make(map[string]struct{}, len(models))
	maxCtx := make(map[string]int, len(models))
	for _, m := range models {
		modelSet[m] = struct{}{}
		maxCtx[m] = 128000
	}
	return &OpenRouterAdapter{client: openrouter.NewClient(apiKey), models: modelSet, maxCtx: maxCtx}
}

func (a *OpenRouterAdapter) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{
		Models:            a.models,
		Tags:              tagSet("chat"),
		SupportsStreaming: true,
		MaxContext:        a.maxCtx,
	}
}

func (a *OpenRouterAdapter) HealthProbe(ctx context.Context) (adapter.HealthResult, error) {
	ctx, cancel := adapter.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	start := time.Now()
	_, err := a.client.ListModels(ctx)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return adapter.HealthResult{Healthy: false, LatencyMs: latency, Reason: err.Error()}, nil
	}
	return adapter.HealthResult{Healthy: true, LatencyMs: latency}, nil
}

func (a *OpenRouterAdapter) Chat(ctx context.Context, req adapter.ChatRequest) (adapter.ChatResponse, error) {
	messages := toOpenRouterMessages(req)

	request := openrouter.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		request.MaxTokens = req.MaxTokens
	}
	if req.Temperature != nil {
		request.Temperature = float32(*req.Temperature)
	}

	resp, err := a.client.CreateChatCompletion(ctx, request)
	if err != nil {
		if kind, ok := adapter.ClassifyContext(err); ok {
			return adapter.ChatResponse{}, &adapter.ClassifiedError{Kind: kind, Err: err}
		}
		return adapter.ChatResponse{}, &adapter.ClassifiedError{Kind: adapter.ErrOther, Err: err}
	}
	if len(resp.Choices) == 0 {
		return adapter.ChatResponse{}, &adapter.ClassifiedError{Kind: adapter.ErrOther, Err: errors.New("openrouter: empty choices")}
	}

	choice := resp.Choices[0]
	return adapter.ChatResponse{
		Content:      choice.Message.Content.Text,
		Model:        resp.Model,
		FinishReason: string(choice.FinishReason),
		Usage: adapter.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}, nil
}

func toOpenRouterMessages(req adapter.ChatRequest) []openrouter.ChatCompletionMessage {
	messages := make([]openrouter.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openrouter.ChatCompletionMessage{
			Role:    openrouter.ChatMessageRoleSystem,
			Content: openrouter.Content{Text: req.System},
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, openrouter.ChatCompletionMessage{
			Role:    convertRoleToOpenRouter(m.Role),
			Content: openrouter.Content{Text: m.Content},
		})
	}
	return messages
}

func convertRoleToOpenRouter(role string) string {
	switch role {
	case "assistant":
		return openrouter.ChatMessageRoleAssistant
	case "system":
		return openrouter.ChatMessageRoleSystem
	default:
		return openrouter.ChatMessageRoleUser
	}
}
