package bulkhead

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkhead_TryAcquireRespectsLimit(t *testing.T) {
	b := New(2)

	require.NoError(t, b.TryAcquire())
	require.NoError(t, b.TryAcquire())

	err := b.TryAcquire()
	require.Error(t, err)
	assert.IsType(t, ErrExhausted{}, err)

	available, max := b.Snapshot()
	assert.Equal(t, 0, available)
	assert.Equal(t, 2, max)
}

func TestBulkhead_ReleaseFreesPermit(t *testing.T) {
	b := New(1)
	require.NoError(t, b.TryAcquire())
	b.Release()
	require.NoError(t, b.TryAcquire())
}

func TestBulkhead_ReleaseWithoutAcquireIsNoop(t *testing.T) {
	b := New(1)
	b.Release()
	available, _ := b.Snapshot()
	assert.Equal(t, 1, available)
}

// Under concurrent acquire/release churn, the number of permits ever held
// simultaneously never exceeds max (P1: acquire count == release count
// invariant, observed via a never-exceeded high-water mark).
func TestBulkhead_ConcurrentNeverExceedsMax(t *testing.T) {
	const maxPermits = 4
	b := New(maxPermits)

	var inFlight int64
	var highWater int64
	var wg sync.WaitGroup

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.TryAcquire() != nil {
				return
			}
			defer b.Release()

			n := atomic.AddInt64(&inFlight, 1)
			for {
				old := atomic.LoadInt64(&highWater)
				if n <= old || atomic.CompareAndSwapInt64(&highWater, old, n) {
					break
				}
			}
			atomic.AddInt64(&inFlight, -1)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, highWater, int64(maxPermits))
	available, _ := b.Snapshot()
	assert.Equal(t, maxPermits, available, "every acquire must be matched by a release")
}
