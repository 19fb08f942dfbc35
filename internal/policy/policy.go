// Package policy implements the routing policy engine (C6): filters a
// snapshot of healthy provider runtimes down to the ones capable of serving
// a request, scores the survivors on three weighted axes, and truncates
// the sorted result to a fallback chain.
package policy

import (
	"math"
	"sort"

	"github.com/entrepeneur4lyf/llmrouter/internal/registry"
	"github.com/entrepeneur4lyf/llmrouter/internal/telemetry"
)

// Weights are the three axis weights for the composite routing score.
type Weights struct {
	Latency     float64
	Cost        float64
	Reliability float64
}

var (
	WeightsLatencyFirst = Weights{Latency: 0.6, Cost: 0.1, Reliability: 0.3}
	WeightsCostFirst    = Weights{Latency: 0.1, Cost: 0.6, Reliability: 0.3}
	WeightsBalanced     = Weights{Latency: 0.3, Cost: 0.4, Reliability: 0.3}
)

// Named resolves a policy name to its weight preset, falling back to
// balanced for an unrecognized or empty name.
func Named(name string) Weights {
	switch name {
	case "latency_first":
		return WeightsLatencyFirst
	case "cost_first":
		return WeightsCostFirst
	case "balanced", "":
		return WeightsBalanced
	default:
		return WeightsBalanced
	}
}

// latencyTargetMs maps a latency_priority to the target used to normalize
// latency_score.
func latencyTargetMs(priority string) float64 {
	switch priority {
	case "ultra_low":
		return 500
	case "low":
		return 1000
	case "high":
		return 5000
	case "medium", "":
		return 2000
	default:
		return 2000
	}
}

const defaultCostBudgetUSD = 0.10
const defaultFallbackChainDepth = 4

// Request is the subset of a RoutingRequest the policy engine needs: it
// never sees message content, only the fields that affect filtering and
// scoring.
type Request struct {
	RequiredCapabilities  []string
	Model                 string
	LatencyPriority       string
	CostBudgetUSD         *float64
	EstimatedPromptTokens int
	MaxTokens             int
	PolicyName            string
}

// Reason explains, for diagnostics, why a candidate was kept or dropped.
type Reason string

const (
	ReasonMissingCapability  Reason = "missing_capability"
	ReasonCircuitOpen        Reason = "circuit_open"
	ReasonAuthBlocked        Reason = "auth_blocked"
	ReasonNotActive          Reason = "not_active"
	ReasonUnhealthy          Reason = "recently_unhealthy"
	ReasonModelNotAdvertised Reason = "model_not_advertised"
	ReasonKept               Reason = "kept"
)

// Candidate is one provider's position in the ranked chain, plus the
// reason it was kept or dropped, for the caller's decision trace.
type Candidate struct {
	Runtime          *registry.ProviderRuntime
	Score            float64
	LatencyScore     float64
	CostScore        float64
	ReliabilityScore float64
	ExpectedCostUSD  float64
	Reason           Reason
}

// Chain is the ranked, depth-truncated output of Rank: the ordered list of
// providers to try, plus the full decision trace (including dropped
// candidates) for observability.
type Chain struct {
	Ordered []Candidate // survivors, sorted and truncated
	Dropped []Candidate // filtered-out candidates with their drop reason
}

// Engine holds the configured fallback chain depth plus the optional
// config-file policy defaults; everything else is request-scoped and passed
// to Rank explicitly.
type Engine struct {
	ChainDepth int

	// DefaultPolicyName is used to resolve weights when a request leaves
	// PolicyName empty. Empty falls back to Named's own default (balanced).
	DefaultPolicyName string

	// Weights, when non-nil, overrides the named-preset lookup entirely:
	// the [policy.weights] config table, when set, replaces whichever named
	// policy would otherwise apply.
	Weights *Weights
}

func New(chainDepth int) *Engine {
	if chainDepth <= 0 {
		chainDepth = defaultFallbackChainDepth
	}
	return &Engine{ChainDepth: chainDepth}
}

// NewFromConfig constructs an Engine honoring the configured default policy
// name and custom weight override from a decoded [policy] config table.
func NewFromConfig(chainDepth int, pc registry.FilePolicyConfig) *Engine {
	e := New(chainDepth)
	e.DefaultPolicyName = pc.Default
	if pc.Weights != (registry.FilePolicyWeights{}) {
		w := Weights{Latency: pc.Weights.Latency, Cost: pc.Weights.Cost, Reliability: pc.Weights.Reliability}
		e.Weights = &w
	}
	return e
}

// resolveWeights applies the engine's configured override and default policy
// name before falling back to Named's own built-in default.
func (e *Engine) resolveWeights(policyName string) Weights {
	if e.Weights != nil {
		return *e.Weights
	}
	if policyName == "" {
		policyName = e.DefaultPolicyName
	}
	return Named(policyName)
}

// Rank runs the full filter → score → sort → truncate pipeline over a
// pre-fetched set of healthy runtimes from the registry (callers are
// expected to have already called registry.HealthyProviders, since health
// probing is I/O and the policy engine itself never blocks).
func (e *Engine) Rank(req Request, healthy []*registry.ProviderRuntime) Chain {
	weights := e.resolveWeights(req.PolicyName)

	var kept, dropped []Candidate
	for _, rt := range healthy {
		if reason, ok := filterOne(req, rt); !ok {
			dropped = append(dropped, Candidate{Runtime: rt, Reason: reason})
			continue
		}
		kept = append(kept, scoreOne(req, rt, weights))
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Score != kept[j].Score {
			return kept[i].Score > kept[j].Score
		}
		if kept[i].ExpectedCostUSD != kept[j].ExpectedCostUSD {
			return kept[i].ExpectedCostUSD < kept[j].ExpectedCostUSD
		}
		return kept[i].Runtime.Descriptor.ID < kept[j].Runtime.Descriptor.ID
	})

	depth := e.ChainDepth
	if depth > len(kept) {
		depth = len(kept)
	}
	return Chain{Ordered: kept[:depth], Dropped: dropped}
}

func filterOne(req Request, rt *registry.ProviderRuntime) (Reason, bool) {
	for _, c := range req.RequiredCapabilities {
		if !rt.Descriptor.HasCapability(c) {
			return ReasonMissingCapability, false
		}
	}
	state, authBlocked := rt.Breaker.Snapshot()
	if state == "open" {
		return ReasonCircuitOpen, false
	}
	if authBlocked {
		return ReasonAuthBlocked, false
	}
	if rt.Descriptor.Status != registry.StatusActive {
		return ReasonNotActive, false
	}
	if req.Model != "" && !rt.Descriptor.HasModel(req.Model) {
		return ReasonModelNotAdvertised, false
	}
	return ReasonKept, true
}

func scoreOne(req Request, rt *registry.ProviderRuntime, weights Weights) Candidate {
	agg := rt.Metrics.Aggregates()

	target := latencyTargetMs(req.LatencyPriority)
	latencyScore := clamp01(1 - agg.P95LatencyMs/target)

	expectedCost := telemetry.EstimateCost(
		rt.Descriptor.CostInputPer1K, rt.Descriptor.CostOutputPer1K,
		req.EstimatedPromptTokens, req.MaxTokens,
	)
	budget := defaultCostBudgetUSD
	if req.CostBudgetUSD != nil && *req.CostBudgetUSD > 0 {
		budget = *req.CostBudgetUSD
	}
	costScore := clamp01(1 - expectedCost/budget)

	reliabilityScore := clamp01(1 - agg.ErrorRateRecent)

	composite := weights.Latency*latencyScore + weights.Cost*costScore + weights.Reliability*reliabilityScore

	return Candidate{
		Runtime:          rt,
		Score:            composite,
		LatencyScore:     latencyScore,
		CostScore:        costScore,
		ReliabilityScore: reliabilityScore,
		ExpectedCostUSD:  expectedCost,
		Reason:           ReasonKept,
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
