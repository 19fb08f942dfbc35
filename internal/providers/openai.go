package providers

import (
	"context"
	"errors"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/entrepeneur4lyf/llmrouter/internal/adapter"
)

// OpenAIAdapter implements adapter.Adapter against the official OpenAI SDK.
// Reduced to the non-streaming completion the router needs.
type OpenAIAdapter struct {
	client *openai.Client
	models map[string]struct{}
	maxCtx map[string]int
}

func NewOpenAIAdapter(apiKey, baseURL string, models []string) *OpenAIAdapter {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	modelSet := make(map[string]struct{}, len(models))
	maxCtx := make(map[string]int, len(models))
	for _, m := range models {
		modelSet[m] = struct{}{}
		maxCtx[m] = 128000
	}
	return &OpenAIAdapter{client: &client, models: modelSet, maxCtx: maxCtx}
}

func (a *OpenAIAdapter) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{
		Models:            a.models,
		Tags:              tagSet("chat", "vision"),
		SupportsStreaming: true,
		MaxContext:        a.maxCtx,
	}
}

func (a *OpenAIAdapter) HealthProbe(ctx context.Context) (adapter.HealthResult, error) {
	ctx, cancel := adapter.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	start := time.Now()
	_, err := a.client.Models.List(ctx)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return adapter.HealthResult{Healthy: false, LatencyMs: latency, Reason: err.Error()}, nil
	}
	return adapter.HealthResult{Healthy: true, LatencyMs: latency}, nil
}

func (a *OpenAIAdapter) Chat(ctx context.Context, req adapter.ChatRequest) (adapter.ChatResponse, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case "assistant":
			messages = append(messages, openai.AssistantMessage(m.Content))
		case "system":
			messages = append(messages, openai.SystemMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    req.Model,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}

	resp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return adapter.ChatResponse{}, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return adapter.ChatResponse{}, &adapter.ClassifiedError{Kind: adapter.ErrOther, Err: errors.New("openai: empty choices")}
	}

	choice := resp.Choices[0]
	return adapter.ChatResponse{
		Content:      choice.Message.Content,
		Model:        resp.Model,
		FinishReason: string(choice.FinishReason),
		Usage: adapter.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
	}, nil
}

func classifyOpenAIError(err error) error {
	if kind, ok := adapter.ClassifyContext(err); ok {
		return &adapter.ClassifiedError{Kind: kind, Err: err}
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return classifyHTTPStatus(apiErr.StatusCode, err)
	}
	return &adapter.ClassifiedError{Kind: adapter.ErrOther, Err: err}
}
