// Package registry owns the set of provider runtimes: it loads declarative
// configuration, instantiates adapters, and keeps per-provider health fresh
// with bounded cost. It is the only package that constructs adapter.Adapter
// values; every other component holds read-only references into the
// registry's current snapshot.
package registry

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/entrepeneur4lyf/llmrouter/internal/adapter"
	"github.com/entrepeneur4lyf/llmrouter/internal/breaker"
	"github.com/entrepeneur4lyf/llmrouter/internal/bulkhead"
	"github.com/entrepeneur4lyf/llmrouter/internal/providers"
	"github.com/entrepeneur4lyf/llmrouter/internal/telemetry"
)

// Status is the operator-facing lifecycle state of a provider, grounded on
// a small provider-status enum narrowed to the
// four recognized values.
type Status string

const (
	StatusActive      Status = "active"
	StatusDegraded    Status = "degraded"
	StatusMaintenance Status = "maintenance"
	StatusDisabled    Status = "disabled"
)

// ProviderDescriptor is the immutable configuration for one provider,
// produced by Load and never mutated afterward.
type ProviderDescriptor struct {
	ID                 string
	Endpoint           string
	Kind               providers.Kind
	Models             []string
	Capabilities       map[string]struct{}
	CostInputPer1K     float64
	CostOutputPer1K    float64
	DefaultTimeout     time.Duration
	MaxConcurrent      int
	LatencyThresholdMs int64
	Status             Status
	SelfHosted         bool
	DisabledReason     string
}

// HasCapability reports whether the descriptor advertises tag.
func (d ProviderDescriptor) HasCapability(tag string) bool {
	_, ok := d.Capabilities[tag]
	return ok
}

// HasModel reports whether the descriptor advertises model.
func (d ProviderDescriptor) HasModel(model string) bool {
	for _, m := range d.Models {
		if m == model {
			return true
		}
	}
	return false
}

// ProviderRuntime is the mutable per-provider state: the owning handle over
// the adapter instance plus its fault-isolation and telemetry state. It is
// created once at Load/Reload and bound to its descriptor for its lifetime;
// the registry is its sole owner.
type ProviderRuntime struct {
	Descriptor ProviderDescriptor
	Adapter    adapter.Adapter
	Breaker    *breaker.CircuitBreaker
	Bulkhead   *bulkhead.Bulkhead
	Metrics    *telemetry.Window

	healthMu     sync.Mutex
	healthCached adapter.HealthResult
	healthAt     time.Time
	probeGroup   singleflight.Group
}

// ProviderRuntimeStatus is the read-only snapshot exposed by Status() for
// operational endpoints.
type ProviderRuntimeStatus struct {
	ID              string
	Status          Status
	CircuitState    string
	AuthBlocked     bool
	AvailablePermit int
	MaxPermits      int
	P50LatencyMs    float64
	P95LatencyMs    float64
	ErrorRateRecent float64
	RequestCount    int64
	SuccessCount    int64
	FailCount       int64
}

// Snapshot returns the operator-facing status for one runtime. A disabled or
// failed-to-build runtime carries nil Breaker/Bulkhead/Metrics (see
// registry.Load), so each is guarded rather than dereferenced unconditionally.
func (r *ProviderRuntime) Snapshot() ProviderRuntimeStatus {
	status := ProviderRuntimeStatus{
		ID:     r.Descriptor.ID,
		Status: r.Descriptor.Status,
	}
	if r.Breaker != nil {
		breakerState, authBlocked := r.Breaker.Snapshot()
		status.CircuitState = string(breakerState)
		status.AuthBlocked = authBlocked
	}
	if r.Bulkhead != nil {
		available, max := r.Bulkhead.Snapshot()
		status.AvailablePermit = available
		status.MaxPermits = max
	}
	if r.Metrics != nil {
		agg := r.Metrics.Aggregates()
		status.P50LatencyMs = agg.P50LatencyMs
		status.P95LatencyMs = agg.P95LatencyMs
		status.ErrorRateRecent = agg.ErrorRateRecent
		status.RequestCount = agg.RequestCount
		status.SuccessCount = agg.SuccessCount
		status.FailCount = agg.FailCount
	}
	return status
}
