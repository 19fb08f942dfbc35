package providers

import (
	"context"
	"errors"
	"time"

	"google.golang.org/genai"

	"github.com/entrepeneur4lyf/llmrouter/internal/adapter"
)

var errGeminiEmpty = errors.New("gemini: empty candidates")

// GeminiAdapter implements adapter.Adapter against Google's genai SDK.
// Reduced to a single non-streaming GenerateContent call.
type GeminiAdapter struct {
	client *genai.Client
	models map[string]struct{}
	maxCtx map[string]int
}

func NewGeminiAdapter(ctx context.Context, apiKey string, models []string) (*GeminiAdapter, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}

	modelSet := make(map[string]struct{}, len(models))
	maxCtx := make(map[string]int, len(models))
	for _, m := range models {
		modelSet[m] = struct{}{}
		maxCtx[m] = 1000000
	}
	return &GeminiAdapter{client: client, models: modelSet, maxCtx: maxCtx}, nil
}

func (a *GeminiAdapter) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{
		Models:            a.models,
		Tags:              tagSet("chat", "vision", "long-context"),
		SupportsStreaming: true,
		MaxContext:        a.maxCtx,
	}
}

func (a *GeminiAdapter) HealthProbe(ctx context.Context) (adapter.HealthResult, error) {
	ctx, cancel := adapter.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	start := time.Now()
	pager := a.client.Models.List(ctx, &genai.ListModelsConfig{})
	_, err := pager.Next(ctx)
	latency := time.Since(start).Milliseconds()
	if err != nil && err.Error() != "no more items" {
		return adapter.HealthResult{Healthy: false, LatencyMs: latency, Reason: err.Error()}, nil
	}
	return adapter.HealthResult{Healthy: true, LatencyMs: latency}, nil
}

func (a *GeminiAdapter) Chat(ctx context.Context, req adapter.ChatRequest) (adapter.ChatResponse, error) {
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}

	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		cfg.Temperature = &t
	}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}

	resp, err := a.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		if kind, ok := adapter.ClassifyContext(err); ok {
			return adapter.ChatResponse{}, &adapter.ClassifiedError{Kind: kind, Err: err}
		}
		return adapter.ChatResponse{}, &adapter.ClassifiedError{Kind: adapter.ErrOther, Err: err}
	}
	if len(resp.Candidates) == 0 {
		return adapter.ChatResponse{}, &adapter.ClassifiedError{Kind: adapter.ErrOther, Err: errGeminiEmpty}
	}

	var content string
	for _, part := range resp.Candidates[0].Content.Parts {
		content += part.Text
	}

	return adapter.ChatResponse{
		Content:      content,
		Model:        req.Model,
		FinishReason: string(resp.Candidates[0].FinishReason),
		Usage: adapter.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int(resp.UsageMetadata.TotalTokenCount),
		},
	}, nil
}
