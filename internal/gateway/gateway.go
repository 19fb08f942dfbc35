// Package gateway implements pre-admission request validation and the risk
// gate (C9): the first thing every RoutingRequest passes through, before
// rate limiting or routing ever see it.
package gateway

import (
	"fmt"
	"strings"

	"github.com/entrepeneur4lyf/llmrouter/internal/adapter"
	"github.com/entrepeneur4lyf/llmrouter/internal/telemetry"
)

const (
	maxMessageBytes      = 10 * 1024
	maxAggregateBytes    = 50 * 1024
	maxMessageCount      = 50
	maxTokensCeiling     = 4096
	defaultTokenCapTotal = 16384
)

var validRoles = map[string]struct{}{"user": {}, "assistant": {}, "system": {}}

// LatencyPriority is the enum the policy engine's latency-target derivation switches on.
type LatencyPriority string

const (
	PriorityUltraLow LatencyPriority = "ultra_low"
	PriorityLow      LatencyPriority = "low"
	PriorityMedium   LatencyPriority = "medium"
	PriorityHigh     LatencyPriority = "high"
)

var validPriorities = map[LatencyPriority]struct{}{
	PriorityUltraLow: {}, PriorityLow: {}, PriorityMedium: {}, PriorityHigh: {},
}

// Intent is the recognized set of request intents the risk heuristic and
// the policy engine both consult.
type Intent string

const (
	IntentGeneral   Intent = "general"
	IntentCode      Intent = "code"
	IntentCreative  Intent = "creative"
	IntentAnalysis  Intent = "analysis"
	IntentSensitive Intent = "sensitive"
)

var validIntents = map[Intent]struct{}{
	IntentGeneral: {}, IntentCode: {}, IntentCreative: {}, IntentAnalysis: {}, IntentSensitive: {},
}

// FieldError names one invalid field and why.
type FieldError struct {
	Field  string
	Reason string
}

// ValidationError is the structured rejection the gateway returns for any
// admission rule violation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "gateway: validation failed"
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = fmt.Sprintf("%s: %s", f.Field, f.Reason)
	}
	return "gateway: validation failed: " + strings.Join(parts, "; ")
}

// MaxTokensExceededError reports a token-budget violation, kept distinct
// from ValidationError so callers can surface a more specific status/code.
type MaxTokensExceededError struct {
	EstimatedPromptTokens int
	MaxTokens             int
	Cap                   int
}

func (e *MaxTokensExceededError) Error() string {
	return fmt.Sprintf("gateway: estimated prompt tokens (%d) + max_tokens (%d) exceeds cap %d",
		e.EstimatedPromptTokens, e.MaxTokens, e.Cap)
}

// GatewayDeniedError is returned when the risk heuristic's score crosses
// the deny threshold.
type GatewayDeniedError struct {
	RiskScore float64
	Reason    string
}

func (e *GatewayDeniedError) Error() string {
	return fmt.Sprintf("gateway: denied (risk_score=%.2f): %s", e.RiskScore, e.Reason)
}

// Request is the inbound shape the gateway validates, a thin pre-routing
// cousin of adapter.ChatRequest carrying the extra admission-relevant fields
// routing decisions need.
type Request struct {
	Messages             []adapter.Message
	Model                string
	MaxTokens            int
	Temperature          *float64
	TopP                 *float64
	LatencyPriority      LatencyPriority
	Intent               Intent
	RequiredCapabilities []string
	CostBudgetUSD        *float64
	UserID               string
	ClientIP             string
	SessionID            string
}

// Config tunes the cap values; zero fields fall back to the package
// defaults.
type Config struct {
	TokenBudgetCap int     // total estimated prompt+completion tokens allowed per request
	RiskDenyAt     float64 // risk score at/above which the gateway denies
}

var DefaultConfig = Config{TokenBudgetCap: defaultTokenCapTotal, RiskDenyAt: 0.85}

// Gateway validates and risk-scores inbound requests before they reach the
// rate limiter.
type Gateway struct {
	cfg Config
}

func New(cfg Config) *Gateway {
	if cfg.TokenBudgetCap <= 0 {
		cfg.TokenBudgetCap = DefaultConfig.TokenBudgetCap
	}
	if cfg.RiskDenyAt <= 0 {
		cfg.RiskDenyAt = DefaultConfig.RiskDenyAt
	}
	return &Gateway{cfg: cfg}
}

// Outcome is what a successful Admit call produces: the risk/intent
// classification the policy engine and telemetry both want to see.
type Outcome struct {
	RiskScore             float64
	ClassifiedIntent      Intent
	EstimatedPromptTokens int
}

// Admit runs every validation rule in order, then the risk heuristic.
// It returns *ValidationError, *MaxTokensExceededError, or
// *GatewayDeniedError on rejection.
func (g *Gateway) Admit(req Request) (Outcome, error) {
	if err := validateMessages(req.Messages); err != nil {
		return Outcome{}, err
	}
	if err := validateSizes(req.Messages); err != nil {
		return Outcome{}, err
	}
	if err := validateEnums(req); err != nil {
		return Outcome{}, err
	}

	estimated := estimatePromptTokens(req.Messages)
	if err := g.validateTokenBudget(estimated, req.MaxTokens); err != nil {
		return Outcome{}, err
	}

	risk, intent := g.classify(req)
	if risk >= g.cfg.RiskDenyAt {
		return Outcome{}, &GatewayDeniedError{RiskScore: risk, Reason: "risk heuristic threshold exceeded"}
	}

	return Outcome{RiskScore: risk, ClassifiedIntent: intent, EstimatedPromptTokens: estimated}, nil
}

func validateMessages(messages []adapter.Message) error {
	if len(messages) == 0 {
		return &ValidationError{Fields: []FieldError{{Field: "messages", Reason: "must contain at least one message"}}}
	}
	var fields []FieldError
	for i, m := range messages {
		if _, ok := validRoles[m.Role]; !ok {
			fields = append(fields, FieldError{
				Field:  fmt.Sprintf("messages[%d].role", i),
				Reason: fmt.Sprintf("must be one of user, assistant, system; got %q", m.Role),
			})
		}
		if strings.TrimSpace(m.Content) == "" {
			fields = append(fields, FieldError{
				Field:  fmt.Sprintf("messages[%d].content", i),
				Reason: "must be non-empty",
			})
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func validateSizes(messages []adapter.Message) error {
	var fields []FieldError
	if len(messages) > maxMessageCount {
		fields = append(fields, FieldError{
			Field:  "messages",
			Reason: fmt.Sprintf("count %d exceeds cap %d", len(messages), maxMessageCount),
		})
	}
	aggregate := 0
	for i, m := range messages {
		n := len(m.Content)
		aggregate += n
		if n > maxMessageBytes {
			fields = append(fields, FieldError{
				Field:  fmt.Sprintf("messages[%d].content", i),
				Reason: fmt.Sprintf("size %d bytes exceeds per-message cap %d", n, maxMessageBytes),
			})
		}
	}
	if aggregate > maxAggregateBytes {
		fields = append(fields, FieldError{
			Field:  "messages",
			Reason: fmt.Sprintf("aggregate size %d bytes exceeds cap %d", aggregate, maxAggregateBytes),
		})
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func validateEnums(req Request) error {
	var fields []FieldError
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 2) {
		fields = append(fields, FieldError{Field: "temperature", Reason: "must be in [0, 2]"})
	}
	if req.TopP != nil && (*req.TopP < 0 || *req.TopP > 1) {
		fields = append(fields, FieldError{Field: "top_p", Reason: "must be in [0, 1]"})
	}
	if req.MaxTokens != 0 && (req.MaxTokens < 1 || req.MaxTokens > maxTokensCeiling) {
		fields = append(fields, FieldError{
			Field:  "max_tokens",
			Reason: fmt.Sprintf("must be in [1, %d]", maxTokensCeiling),
		})
	}
	if req.LatencyPriority != "" {
		if _, ok := validPriorities[req.LatencyPriority]; !ok {
			fields = append(fields, FieldError{Field: "latency_priority", Reason: "not a recognized priority"})
		}
	}
	if req.Intent != "" {
		if _, ok := validIntents[req.Intent]; !ok {
			fields = append(fields, FieldError{Field: "intent", Reason: "not a recognized intent"})
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func estimatePromptTokens(messages []adapter.Message) int {
	chars := 0
	for _, m := range messages {
		chars += len(m.Content)
	}
	return telemetry.EstimateTokens(chars)
}

func (g *Gateway) validateTokenBudget(estimatedPrompt, maxTokens int) error {
	total := estimatedPrompt + maxTokens
	if total > g.cfg.TokenBudgetCap {
		return &MaxTokensExceededError{
			EstimatedPromptTokens: estimatedPrompt,
			MaxTokens:             maxTokens,
			Cap:                   g.cfg.TokenBudgetCap,
		}
	}
	return nil
}

// riskKeywords are cheap lexical signals, not a real classifier.
var riskKeywords = []string{"ignore previous instructions", "jailbreak", "bypass safety", "system prompt"}

// classify produces the advisory risk score and intent tag. Both are
// heuristic: risk rises with the presence of known prompt-injection phrases
// and with message volume; intent defaults to "general" unless the caller
// supplied one or a simple keyword match suggests "code".
func (g *Gateway) classify(req Request) (float64, Intent) {
	risk := 0.0
	lowerAll := strings.ToLower(joinContents(req.Messages))
	for _, kw := range riskKeywords {
		if strings.Contains(lowerAll, kw) {
			risk += 0.5
		}
	}
	if len(req.Messages) > maxMessageCount/2 {
		risk += 0.1
	}
	if risk > 1 {
		risk = 1
	}

	intent := req.Intent
	if intent == "" {
		intent = IntentGeneral
		if strings.Contains(lowerAll, "```") || strings.Contains(lowerAll, "func ") || strings.Contains(lowerAll, "def ") {
			intent = IntentCode
		}
	}
	return risk, intent
}

func joinContents(messages []adapter.Message) string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(m.Content)
		b.WriteByte(' ')
	}
	return b.String()
}
