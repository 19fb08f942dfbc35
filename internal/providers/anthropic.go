package providers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/entrepeneur4lyf/llmrouter/internal/adapter"
)

// AnthropicAdapter implements adapter.Adapter against the official Anthropic
// SDK, reduced to the non-streaming Chat shape the router contract needs.
type AnthropicAdapter struct {
	client *anthropic.Client
	models map[string]struct{}
	maxCtx map[string]int
}

// NewAnthropicAdapter constructs an adapter bound to apiKey, advertising
// models.
func NewAnthropicAdapter(apiKey string, models []string) *AnthropicAdapter {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	modelSet := make(map[string]struct{}, len(models))
	maxCtx := make(map[string]int, len(models))
	for _, m := range models {
		modelSet[m] = struct{}{}
		maxCtx[m] = 200000
	}
	return &AnthropicAdapter{client: &client, models: modelSet, maxCtx: maxCtx}
}

func (a *AnthropicAdapter) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{
		Models:            a.models,
		Tags:              tagSet("chat", "vision", "long-context"),
		SupportsStreaming: true,
		MaxContext:        a.maxCtx,
	}
}

func (a *AnthropicAdapter) HealthProbe(ctx context.Context) (adapter.HealthResult, error) {
	ctx, cancel := adapter.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	start := time.Now()
	_, err := a.client.Models.List(ctx, anthropic.ModelListParams{})
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return adapter.HealthResult{Healthy: false, LatencyMs: latency, Reason: err.Error()}, nil
	}
	return adapter.HealthResult{Healthy: true, LatencyMs: latency}, nil
}

func (a *AnthropicAdapter) Chat(ctx context.Context, req adapter.ChatRequest) (adapter.ChatResponse, error) {
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case "assistant":
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return adapter.ChatResponse{}, classifyAnthropicError(err)
	}

	var content string
	for _, block := range msg.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	return adapter.ChatResponse{
		Content:      content,
		Model:        string(msg.Model),
		FinishReason: string(msg.StopReason),
		Usage: adapter.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
			TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}, nil
}

func classifyAnthropicError(err error) error {
	if kind, ok := adapter.ClassifyContext(err); ok {
		return &adapter.ClassifiedError{Kind: kind, Err: err}
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return classifyHTTPStatus(apiErr.StatusCode, err)
	}
	return &adapter.ClassifiedError{Kind: adapter.ErrOther, Err: err}
}

// classifyHTTPStatus maps an HTTP status code to the shared error-kind
// tags. Shared by the Anthropic, OpenAI, Bedrock and compat adapters; the
// Gemini and OpenRouter adapters classify only context timeouts and report
// every other failure as ErrOther.
func classifyHTTPStatus(status int, err error) *adapter.ClassifiedError {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &adapter.ClassifiedError{Kind: adapter.ErrAuth, StatusCode: status, Err: err}
	case status == http.StatusTooManyRequests:
		return &adapter.ClassifiedError{Kind: adapter.ErrRateLimit, StatusCode: status, Err: err}
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return &adapter.ClassifiedError{Kind: adapter.ErrTimeout, StatusCode: status, Err: err}
	case status >= 500:
		return &adapter.ClassifiedError{Kind: adapter.ErrServer5xx, StatusCode: status, Err: err}
	case status >= 400:
		return &adapter.ClassifiedError{Kind: adapter.ErrBadRequest, StatusCode: status, Err: err}
	default:
		return &adapter.ClassifiedError{Kind: adapter.ErrOther, StatusCode: status, Err: err}
	}
}

func tagSet(tags ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
	}
	return set
}
