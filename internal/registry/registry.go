// Package registry implements the provider registry (C5): the declarative
// provider table, health sampling, and the runtime state (breaker, bulkhead,
// telemetry window) bound to each configured provider.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/entrepeneur4lyf/llmrouter/internal/breaker"
	"github.com/entrepeneur4lyf/llmrouter/internal/bulkhead"
	"github.com/entrepeneur4lyf/llmrouter/internal/providers"
	"github.com/entrepeneur4lyf/llmrouter/internal/telemetry"
)

// LoadResult reports which providers made it into the snapshot and which
// were rejected: a single bad
// provider table never blocks the rest of the fleet from loading.
type LoadResult struct {
	Loaded   []string
	Rejected map[string]string // provider id -> rejection reason
}

// snapshot is the immutable, atomically-swapped view of the provider fleet.
// Nothing outside Reload ever mutates a snapshot in place.
type snapshot struct {
	runtimes  map[string]*ProviderRuntime
	healthTTL time.Duration
	order     []string // stable iteration order, sorted by provider id
}

// Registry holds the current provider fleet behind an atomically-swapped
// snapshot pointer, swapped wholesale on reload rather than mutated in
// place. The only other mutable global state is the warm-up "last ran"
// timestamp below.
type Registry struct {
	configPath string

	cur atomic.Pointer[snapshot]

	warmUpMu      sync.Mutex
	warmUpLastRan time.Time
	warmUpEvery   time.Duration
}

// New constructs an empty Registry. Call Load before use.
func New() *Registry {
	return &Registry{warmUpEvery: 5 * time.Minute}
}

// Load reads configPath, builds adapters for every provider table that
// parses, and atomically installs the resulting snapshot. Providers whose
// table fails to resolve (missing kind, missing required api key, adapter
// construction error) are recorded in LoadResult.Rejected and installed as
// status=disabled runtimes carrying the reason in DisabledReason, with no
// adapter, breaker, bulkhead or metrics; they are not retried until the next
// Load/Reload.
func (r *Registry) Load(ctx context.Context, configPath string) (LoadResult, error) {
	r.configPath = configPath

	fc, err := LoadFileConfig(configPath)
	if err != nil {
		return LoadResult{}, err
	}
	applyEnvOverrides(fc)

	result := LoadResult{Rejected: make(map[string]string)}
	runtimes := make(map[string]*ProviderRuntime, len(fc.Providers))
	order := make([]string, 0, len(fc.Providers))

	ids := make([]string, 0, len(fc.Providers))
	for id := range fc.Providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	bcfg := breakerConfigFrom(fc.Breaker)

	for _, id := range ids {
		pc := fc.Providers[id]
		order = append(order, id)

		desc, err := toDescriptor(id, pc)
		if err != nil {
			result.Rejected[id] = err.Error()
			runtimes[id] = &ProviderRuntime{Descriptor: ProviderDescriptor{
				ID:             id,
				Status:         StatusDisabled,
				DisabledReason: err.Error(),
			}}
			continue
		}
		if desc.Status == StatusDisabled {
			runtimes[id] = &ProviderRuntime{Descriptor: desc}
			result.Loaded = append(result.Loaded, id)
			continue
		}

		spec := resolveSpec(pc)
		a, err := providers.Build(ctx, spec)
		if err != nil {
			desc.Status = StatusDisabled
			desc.DisabledReason = err.Error()
			result.Rejected[id] = err.Error()
			runtimes[id] = &ProviderRuntime{Descriptor: desc}
			continue
		}

		runtimes[id] = &ProviderRuntime{
			Descriptor: desc,
			Adapter:    a,
			Breaker:    breaker.New(bcfg),
			Bulkhead:   bulkhead.New(desc.MaxConcurrent),
			Metrics:    telemetry.New(),
		}
		result.Loaded = append(result.Loaded, id)
	}

	r.cur.Store(&snapshot{
		runtimes:  runtimes,
		healthTTL: healthTTL(fc.Health),
		order:     order,
	})
	return result, nil
}

// Reload re-reads the configuration file from disk and atomically replaces
// the snapshot, exactly like Load. Callers holding a *ProviderRuntime from
// before Reload keep using the old instance safely; they simply stop
// receiving new traffic once List/Get starts returning the new snapshot.
func (r *Registry) Reload(ctx context.Context) (LoadResult, error) {
	if r.configPath == "" {
		return LoadResult{}, fmt.Errorf("registry: Reload called before Load")
	}
	return r.Load(ctx, r.configPath)
}

func (r *Registry) snap() *snapshot {
	s := r.cur.Load()
	if s == nil {
		return &snapshot{runtimes: map[string]*ProviderRuntime{}}
	}
	return s
}

// Get returns the runtime for id, or (nil, false) if it is not configured.
func (r *Registry) Get(id string) (*ProviderRuntime, bool) {
	s := r.snap()
	rt, ok := s.runtimes[id]
	return rt, ok
}

// List returns every configured provider runtime, sorted by provider id.
func (r *Registry) List() []*ProviderRuntime {
	s := r.snap()
	out := make([]*ProviderRuntime, 0, len(s.order))
	for _, id := range s.order {
		if rt, ok := s.runtimes[id]; ok {
			out = append(out, rt)
		}
	}
	return out
}

// HealthyProviders returns the subset of List whose descriptor status is
// active and whose cached/fresh health probe reports healthy. This is the
// candidate set the policy engine's filter step starts from.
func (r *Registry) HealthyProviders(ctx context.Context) []*ProviderRuntime {
	s := r.snap()
	out := make([]*ProviderRuntime, 0, len(s.order))
	for _, id := range s.order {
		rt, ok := s.runtimes[id]
		if !ok || rt.Adapter == nil {
			continue
		}
		if rt.Descriptor.Status != StatusActive {
			continue
		}
		if !rt.Health(ctx, s.healthTTL).Healthy {
			continue
		}
		out = append(out, rt)
	}
	return out
}

// HealthTTL reports the configured probe cache lifetime, used by callers
// that want to invoke ProviderRuntime.Health directly (e.g. a status
// endpoint) with the registry's own setting.
func (r *Registry) HealthTTL() time.Duration {
	return r.snap().healthTTL
}

// WarmUp probes every self-hosted or maintenance-status provider once,
// concurrently, so a cold local model server gets loaded before the first
// real request lands on it. It is safe to call repeatedly; it no-ops if
// less than warmUpEvery has elapsed since the last run: the "last ran"
// timestamp being the one piece of global mutable state permitted besides
// the snapshot pointer.
func (r *Registry) WarmUp(ctx context.Context) error {
	r.warmUpMu.Lock()
	if time.Since(r.warmUpLastRan) < r.warmUpEvery {
		r.warmUpMu.Unlock()
		return nil
	}
	r.warmUpLastRan = time.Now()
	r.warmUpMu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, rt := range r.List() {
		rt := rt
		if rt.Adapter == nil {
			continue
		}
		if !rt.Descriptor.SelfHosted && rt.Descriptor.Status != StatusMaintenance {
			continue
		}
		g.Go(func() error {
			rt.Health(gctx, 0)
			return nil
		})
	}
	return g.Wait()
}
