package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrepeneur4lyf/llmrouter/internal/breaker"
	"github.com/entrepeneur4lyf/llmrouter/internal/bulkhead"
	"github.com/entrepeneur4lyf/llmrouter/internal/registry"
	"github.com/entrepeneur4lyf/llmrouter/internal/telemetry"
)

func newRuntime(id string, status registry.Status, models []string) *registry.ProviderRuntime {
	caps := map[string]struct{}{"chat": {}}
	return &registry.ProviderRuntime{
		Descriptor: registry.ProviderDescriptor{
			ID:              id,
			Models:          models,
			Capabilities:    caps,
			Status:          status,
			CostInputPer1K:  0.001,
			CostOutputPer1K: 0.002,
		},
		Breaker:  breaker.New(breaker.Config{}),
		Bulkhead: bulkhead.New(5),
		Metrics:  telemetry.New(),
	}
}

func TestRank_FiltersOpenCircuit(t *testing.T) {
	rt := newRuntime("p1", registry.StatusActive, []string{"m"})
	rt.Breaker.RecordFailure()
	rt.Breaker.RecordFailure()
	rt.Breaker.RecordFailure()
	rt.Breaker.RecordFailure()
	rt.Breaker.RecordFailure()

	e := New(4)
	chain := e.Rank(Request{}, []*registry.ProviderRuntime{rt})
	assert.Empty(t, chain.Ordered)
	require.Len(t, chain.Dropped, 1)
	assert.Equal(t, ReasonCircuitOpen, chain.Dropped[0].Reason)
}

func TestRank_FiltersMissingCapability(t *testing.T) {
	rt := newRuntime("p1", registry.StatusActive, []string{"m"})
	e := New(4)
	chain := e.Rank(Request{RequiredCapabilities: []string{"vision"}}, []*registry.ProviderRuntime{rt})
	assert.Empty(t, chain.Ordered)
	assert.Equal(t, ReasonMissingCapability, chain.Dropped[0].Reason)
}

func TestRank_FiltersUnpinnedModel(t *testing.T) {
	rt := newRuntime("p1", registry.StatusActive, []string{"other-model"})
	e := New(4)
	chain := e.Rank(Request{Model: "m"}, []*registry.ProviderRuntime{rt})
	assert.Empty(t, chain.Ordered)
	assert.Equal(t, ReasonModelNotAdvertised, chain.Dropped[0].Reason)
}

func TestRank_SortsDescendingByScore(t *testing.T) {
	cheap := newRuntime("cheap", registry.StatusActive, []string{"m"})
	cheap.Descriptor.CostInputPer1K = 0.0001
	cheap.Descriptor.CostOutputPer1K = 0.0001

	pricey := newRuntime("pricey", registry.StatusActive, []string{"m"})
	pricey.Descriptor.CostInputPer1K = 0.05
	pricey.Descriptor.CostOutputPer1K = 0.05

	e := New(4)
	chain := e.Rank(Request{PolicyName: "cost_first", MaxTokens: 100}, []*registry.ProviderRuntime{pricey, cheap})
	require.Len(t, chain.Ordered, 2)
	assert.Equal(t, "cheap", chain.Ordered[0].Runtime.Descriptor.ID)
}

func TestRank_TieBreaksByProviderID(t *testing.T) {
	a := newRuntime("b-provider", registry.StatusActive, []string{"m"})
	b := newRuntime("a-provider", registry.StatusActive, []string{"m"})

	e := New(4)
	chain := e.Rank(Request{}, []*registry.ProviderRuntime{a, b})
	require.Len(t, chain.Ordered, 2)
	assert.Equal(t, "a-provider", chain.Ordered[0].Runtime.Descriptor.ID)
}

func TestRank_TruncatesToChainDepth(t *testing.T) {
	runtimes := make([]*registry.ProviderRuntime, 6)
	for i := range runtimes {
		runtimes[i] = newRuntime(string(rune('a'+i)), registry.StatusActive, []string{"m"})
	}
	e := New(4)
	chain := e.Rank(Request{}, runtimes)
	assert.Len(t, chain.Ordered, 4)
}

func TestRank_EmptyHealthySetYieldsEmptyChain(t *testing.T) {
	e := New(4)
	chain := e.Rank(Request{}, nil)
	assert.Empty(t, chain.Ordered)
	assert.Empty(t, chain.Dropped)
}

func TestNamed_UnknownFallsBackToBalanced(t *testing.T) {
	assert.Equal(t, WeightsBalanced, Named("nonsense"))
	assert.Equal(t, WeightsBalanced, Named(""))
}

func TestRank_FiltersDegradedProvider(t *testing.T) {
	rt := newRuntime("p1", registry.StatusDegraded, []string{"m"})
	e := New(4)
	chain := e.Rank(Request{}, []*registry.ProviderRuntime{rt})
	assert.Empty(t, chain.Ordered)
	require.Len(t, chain.Dropped, 1)
	assert.Equal(t, ReasonNotActive, chain.Dropped[0].Reason)
}

func TestNewFromConfig_DefaultPolicyNameAppliesWhenRequestOmitsOne(t *testing.T) {
	e := NewFromConfig(4, registry.FilePolicyConfig{Default: "cost_first"})
	assert.Equal(t, WeightsCostFirst, e.resolveWeights(""))
	assert.Equal(t, WeightsLatencyFirst, e.resolveWeights("latency_first"), "an explicit request policy still wins over the configured default")
}

func TestNewFromConfig_CustomWeightsOverrideNamedPresets(t *testing.T) {
	e := NewFromConfig(4, registry.FilePolicyConfig{
		Weights: registry.FilePolicyWeights{Latency: 0.5, Cost: 0.2, Reliability: 0.3},
	})
	want := Weights{Latency: 0.5, Cost: 0.2, Reliability: 0.3}
	assert.Equal(t, want, e.resolveWeights(""))
	assert.Equal(t, want, e.resolveWeights("latency_first"), "a configured weights override replaces every named preset")
}

func TestNewFromConfig_ZeroWeightsLeavesPresetsInEffect(t *testing.T) {
	e := NewFromConfig(4, registry.FilePolicyConfig{Default: "balanced"})
	assert.Nil(t, e.Weights)
}
