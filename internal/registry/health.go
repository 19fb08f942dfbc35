package registry

import (
	"context"
	"time"

	"github.com/entrepeneur4lyf/llmrouter/internal/adapter"
)

// defaultHealthTTL is used when no [health] table is present in config.
const defaultHealthTTL = 15 * time.Second

// probeTimeout bounds a single HealthProbe call regardless of what the
// provider's own DefaultTimeout is: health probes are always cheap.
const probeTimeout = 3 * time.Second

// Health returns the cached health result for r, refreshing it with a
// single live probe if the cache is older than ttl. Concurrent callers that
// land on a stale cache at the same time share one in-flight probe via
// singleflight, so a burst of requests during a slow provider never fans
// out into a burst of health checks.
func (r *ProviderRuntime) Health(ctx context.Context, ttl time.Duration) adapter.HealthResult {
	if ttl <= 0 {
		ttl = defaultHealthTTL
	}

	r.healthMu.Lock()
	cached, at := r.healthCached, r.healthAt
	r.healthMu.Unlock()

	if time.Since(at) < ttl {
		return cached
	}

	v, _, _ := r.probeGroup.Do(r.Descriptor.ID, func() (interface{}, error) {
		probeCtx, cancel := adapter.WithTimeout(ctx, probeTimeout)
		defer cancel()

		result, err := r.Adapter.HealthProbe(probeCtx)
		if err != nil {
			result = adapter.HealthResult{Healthy: false, Reason: err.Error()}
		}

		r.healthMu.Lock()
		r.healthCached = result
		r.healthAt = time.Now()
		r.healthMu.Unlock()
		return result, nil
	})

	return v.(adapter.HealthResult)
}

// InvalidateHealth forces the next Health call to issue a fresh probe,
// regardless of ttl. Reload does not call it: it builds fresh runtimes,
// whose health cache starts empty.
func (r *ProviderRuntime) InvalidateHealth() {
	r.healthMu.Lock()
	r.healthAt = time.Time{}
	r.healthMu.Unlock()
}
