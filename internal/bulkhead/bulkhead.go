// Package bulkhead implements the per-provider bounded concurrency permit
// pool (C3), grounded on the channel-based semaphore pattern from the
// example pack's concurrency package: a buffered channel of empty structs
// doubling as a non-blocking counting semaphore.
package bulkhead

// ErrExhausted is returned by TryAcquire when no permit is currently free.
type ErrExhausted struct{}

func (ErrExhausted) Error() string { return "bulkhead: no permits available" }

// Bulkhead is a non-blocking permit pool for exactly one provider.
// TryAcquire never blocks; Release must run on every exit path of the
// protected block, including panics, so callers should acquire and defer
// Release immediately.
type Bulkhead struct {
	permits chan struct{}
	max     int
}

func New(maxPermits int) *Bulkhead {
	if maxPermits <= 0 {
		maxPermits = 10
	}
	return &Bulkhead{permits: make(chan struct{}, maxPermits), max: maxPermits}
}

// TryAcquire succeeds and consumes a permit iff one is available.
func (b *Bulkhead) TryAcquire() error {
	select {
	case b.permits <- struct{}{}:
		return nil
	default:
		return ErrExhausted{}
	}
}

// Release returns a permit to the pool. Calling Release without a matching
// successful TryAcquire is a caller bug; it is a no-op rather than a panic
// so a defer placed before an early acquire failure stays harmless.
func (b *Bulkhead) Release() {
	select {
	case <-b.permits:
	default:
	}
}

// Snapshot returns (available, max) without mutating the pool.
func (b *Bulkhead) Snapshot() (available, max int) {
	inUse := len(b.permits)
	return b.max - inUse, b.max
}
