package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/entrepeneur4lyf/llmrouter/internal/adapter"
)

// bedrockAnthropicBody is the Anthropic-on-Bedrock InvokeModel wire shape.
type bedrockAnthropicBody struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
	Temperature      *float64         `json:"temperature,omitempty"`
}

type bedrockMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bedrockAnthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// BedrockAdapter implements adapter.Adapter over AWS Bedrock's InvokeModel
// API, reduced to a single non-streaming InvokeModel call carrying the Anthropic-on-Bedrock
// body format, the most common Bedrock-hosted chat shape.
type BedrockAdapter struct {
	client *bedrockruntime.Client
	region string
	models map[string]struct{}
	maxCtx map[string]int
}

// NewBedrockAdapter loads the default AWS config for region and constructs
// the adapter. region defaults to us-east-1 when empty.
func NewBedrockAdapter(ctx context.Context, region string, models []string) (*BedrockAdapter, error) {
	if region == "" {
		region = "us-east-1"
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("bedrock: load aws config: %w", err)
	}

	modelSet := make(map[string]struct{}, len(models))
	maxCtx := make(map[string]int, len(models))
	for _, m := range models {
		modelSet[m] = struct{}{}
		maxCtx[m] = 200000
	}

	return &BedrockAdapter{
		client: bedrockruntime.NewFromConfig(cfg),
		region: region,
		models: modelSet,
		maxCtx: maxCtx,
	}, nil
}

func (a *BedrockAdapter) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{
		Models:            a.models,
		Tags:              tagSet("chat", "long-context"),
		SupportsStreaming: true,
		MaxContext:        a.maxCtx,
	}
}

func (a *BedrockAdapter) HealthProbe(ctx context.Context) (adapter.HealthResult, error) {
	ctx, cancel := adapter.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	start := time.Now()
	body, _ := json.Marshal(bedrockAnthropicBody{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        1,
		Messages:         []bedrockMessage{{Role: "user", Content: "ping"}},
	})
	modelID := pickAny(a.models)
	_, err := a.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		Body:        body,
		ContentType: aws.String("application/json"),
	})
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return adapter.HealthResult{Healthy: false, LatencyMs: latency, Reason: err.Error()}, nil
	}
	return adapter.HealthResult{Healthy: true, LatencyMs: latency}, nil
}

func (a *BedrockAdapter) Chat(ctx context.Context, req adapter.ChatRequest) (adapter.ChatResponse, error) {
	messages := make([]bedrockMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := "user"
		if m.Role == "assistant" {
			role = "assistant"
		}
		messages = append(messages, bedrockMessage{Role: role, Content: m.Content})
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	body, err := json.Marshal(bedrockAnthropicBody{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        maxTokens,
		System:           req.System,
		Messages:         messages,
		Temperature:      req.Temperature,
	})
	if err != nil {
		return adapter.ChatResponse{}, &adapter.ClassifiedError{Kind: adapter.ErrOther, Err: err}
	}

	out, err := a.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(req.Model),
		Body:        body,
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return adapter.ChatResponse{}, classifyBedrockError(err)
	}

	var parsed bedrockAnthropicResponse
	if err := json.Unmarshal(out.Body, &parsed); err != nil {
		return adapter.ChatResponse{}, &adapter.ClassifiedError{Kind: adapter.ErrOther, Err: err}
	}

	var content string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	return adapter.ChatResponse{
		Content:      content,
		Model:        req.Model,
		FinishReason: parsed.StopReason,
		Usage: adapter.Usage{
			InputTokens:  parsed.Usage.InputTokens,
			OutputTokens: parsed.Usage.OutputTokens,
			TotalTokens:  parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		},
	}, nil
}

func classifyBedrockError(err error) error {
	if kind, ok := adapter.ClassifyContext(err); ok {
		return &adapter.ClassifiedError{Kind: kind, Err: err}
	}
	var respErr *smithyhttp.ResponseError
	if ok := asResponseError(err, &respErr); ok {
		return classifyHTTPStatus(respErr.HTTPStatusCode(), err)
	}
	return &adapter.ClassifiedError{Kind: adapter.ErrOther, Err: err}
}

func asResponseError(err error, target **smithyhttp.ResponseError) bool {
	for err != nil {
		if re, ok := err.(*smithyhttp.ResponseError); ok {
			*target = re
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func pickAny(set map[string]struct{}) string {
	for k := range set {
		return k
	}
	return ""
}
