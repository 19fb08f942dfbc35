package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/entrepeneur4lyf/llmrouter/internal/adapter"
)

// GenericCompatAdapter speaks the OpenAI-compatible chat-completions wire
// format over plain HTTP, covering Ollama, LM Studio, Together, Fireworks,
// Groq, Mistral, DeepSeek, and any other self-hosted or aggregator backend
// that exposes the same REST shape, parameterized by baseURL so a new
// backend is a ProviderDescriptor away rather than a new Go file.
type GenericCompatAdapter struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	selfHosted bool
	models     map[string]struct{}
	maxCtx     map[string]int
}

func NewGenericCompatAdapter(baseURL, apiKey string, selfHosted bool, models []string) *GenericCompatAdapter {
	modelSet := make(map[string]struct{}, len(models))
	maxCtx := make(map[string]int, len(models))
	for _, m := range models {
		modelSet[m] = struct{}{}
		maxCtx[m] = 32000
	}
	return &GenericCompatAdapter{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
		selfHosted: selfHosted,
		models:     modelSet,
		maxCtx:     maxCtx,
	}
}

func (a *GenericCompatAdapter) Capabilities() adapter.Capabilities {
	tags := []string{"chat"}
	if a.selfHosted {
		tags = append(tags, "self_hosted")
	}
	return adapter.Capabilities{
		Models:            a.models,
		Tags:              tagSet(tags...),
		SupportsStreaming: true,
		MaxContext:        a.maxCtx,
	}
}

type compatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type compatRequest struct {
	Model       string          `json:"model"`
	Messages    []compatMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
}

type compatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      compatMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (a *GenericCompatAdapter) HealthProbe(ctx context.Context) (adapter.HealthResult, error) {
	ctx, cancel := adapter.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/models", nil)
	if err != nil {
		return adapter.HealthResult{}, err
	}
	a.authorize(httpReq)

	resp, err := a.httpClient.Do(httpReq)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return adapter.HealthResult{Healthy: false, LatencyMs: latency, Reason: err.Error()}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return adapter.HealthResult{Healthy: false, LatencyMs: latency, Reason: resp.Status}, nil
	}
	return adapter.HealthResult{Healthy: true, LatencyMs: latency}, nil
}

func (a *GenericCompatAdapter) Chat(ctx context.Context, req adapter.ChatRequest) (adapter.ChatResponse, error) {
	messages := make([]compatMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, compatMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, compatMessage{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(compatRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	})
	if err != nil {
		return adapter.ChatResponse{}, &adapter.ClassifiedError{Kind: adapter.ErrOther, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return adapter.ChatResponse{}, &adapter.ClassifiedError{Kind: adapter.ErrOther, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	a.authorize(httpReq)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return adapter.ChatResponse{}, classifyTransportError(err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return adapter.ChatResponse{}, &adapter.ClassifiedError{Kind: adapter.ErrOther, Err: err}
	}

	if resp.StatusCode >= 400 {
		return adapter.ChatResponse{}, classifyHTTPStatus(resp.StatusCode, fmt.Errorf("compat: %s: %s", resp.Status, payload))
	}

	var parsed compatResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return adapter.ChatResponse{}, &adapter.ClassifiedError{Kind: adapter.ErrOther, Err: err}
	}
	if len(parsed.Choices) == 0 {
		return adapter.ChatResponse{}, &adapter.ClassifiedError{Kind: adapter.ErrOther, Err: fmt.Errorf("compat: empty choices")}
	}

	choice := parsed.Choices[0]
	return adapter.ChatResponse{
		Content:      choice.Message.Content,
		Model:        parsed.Model,
		FinishReason: choice.FinishReason,
		Usage: adapter.Usage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
			TotalTokens:  parsed.Usage.TotalTokens,
		},
	}, nil
}

func (a *GenericCompatAdapter) authorize(req *http.Request) {
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}
}

func classifyTransportError(err error) error {
	// http.Client.Do wraps the cause (including a context deadline) in its
	// own *url.Error, so a direct equality check against
	// context.DeadlineExceeded never matches; errors.Is unwraps it.
	if kind, ok := adapter.ClassifyContext(err); ok {
		return &adapter.ClassifiedError{Kind: kind, Err: err}
	}
	return &adapter.ClassifiedError{Kind: adapter.ErrOther, Err: err}
}
