package providers

import (
	"context"
	"fmt"

	"github.com/entrepeneur4lyf/llmrouter/internal/adapter"
)

// Kind names a provider integration family. A ProviderDescriptor in the
// registry package carries one of these to pick the right constructor.
type Kind string

const (
	KindAnthropic  Kind = "anthropic"
	KindOpenAI     Kind = "openai"
	KindBedrock    Kind = "bedrock"
	KindGemini     Kind = "gemini"
	KindOpenRouter Kind = "openrouter"
	KindCompat     Kind = "compat"
)

// Spec carries everything a constructor needs to build an Adapter. The
// registry fills this in from the loaded provider descriptor; factory.go
// itself stays agnostic of TOML/config shapes.
type Spec struct {
	Kind       Kind
	APIKey     string
	BaseURL    string
	Region     string
	SelfHosted bool
	Models     []string
}

// Build dispatches on vendor family, one constructor per kind, returning
// the shared adapter.Adapter contract instead of a concrete per-vendor
// handler type.
func Build(ctx context.Context, spec Spec) (adapter.Adapter, error) {
	switch spec.Kind {
	case KindAnthropic:
		return NewAnthropicAdapter(spec.APIKey, spec.Models), nil
	case KindOpenAI:
		return NewOpenAIAdapter(spec.APIKey, spec.BaseURL, spec.Models), nil
	case KindBedrock:
		return NewBedrockAdapter(ctx, spec.Region, spec.Models)
	case KindGemini:
		return NewGeminiAdapter(ctx, spec.APIKey, spec.Models)
	case KindOpenRouter:
		return NewOpenRouterAdapter(spec.APIKey, spec.Models), nil
	case KindCompat:
		baseURL := spec.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434/v1"
		}
		return NewGenericCompatAdapter(baseURL, spec.APIKey, spec.SelfHosted, spec.Models), nil
	default:
		return nil, fmt.Errorf("providers: unknown kind %q", spec.Kind)
	}
}
