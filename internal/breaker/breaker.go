// Package breaker implements the per-provider circuit breaker (C2): a
// three-state failure-count state machine with an independent auth-block
// flag, narrowed to one provider per instance since the registry already
// keys breakers by provider id via ProviderRuntime.
package breaker

import (
	"math/rand"
	"sync"
	"time"
)

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Config tunes the state machine. Zero-value fields are replaced with
// defaults by New.
type Config struct {
	FailureThreshold         int
	RecoveryTimeout          time.Duration
	HalfOpenSuccessThreshold int
	AuthBlockCooldown        time.Duration
}

// DefaultConfig matches the routing policy's stated defaults.
var DefaultConfig = Config{
	FailureThreshold:         5,
	RecoveryTimeout:          30 * time.Second,
	HalfOpenSuccessThreshold: 2,
	AuthBlockCooldown:        10 * time.Minute,
}

// ErrOpen is returned by BeforeCall when the circuit is open or auth-blocked.
type ErrOpen struct {
	Reason string
}

func (e *ErrOpen) Error() string { return "breaker: circuit open: " + e.Reason }

// CircuitBreaker tracks the fault-isolation state for exactly one provider.
// All mutation happens under mu; the breaker is consulted and mutated
// exactly once per attempt, per the routing algorithm.
type CircuitBreaker struct {
	cfg Config

	mu            sync.Mutex
	state         State
	failureCount  int
	successCount  int
	lastFailureAt time.Time
	authBlocked   bool
	authBlockedAt time.Time
}

func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig.FailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultConfig.RecoveryTimeout
	}
	if cfg.HalfOpenSuccessThreshold <= 0 {
		cfg.HalfOpenSuccessThreshold = DefaultConfig.HalfOpenSuccessThreshold
	}
	if cfg.AuthBlockCooldown <= 0 {
		cfg.AuthBlockCooldown = DefaultConfig.AuthBlockCooldown
	}
	return &CircuitBreaker{cfg: cfg, state: StateClosed}
}

// BeforeCall must be consulted exactly once per attempt, before permit
// acquisition. It performs the open→half_open timer transition inline.
func (b *CircuitBreaker) BeforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.authBlocked {
		if time.Since(b.authBlockedAt) < b.cfg.AuthBlockCooldown {
			return &ErrOpen{Reason: "auth_blocked"}
		}
		b.authBlocked = false
	}

	switch b.state {
	case StateOpen:
		if time.Since(b.lastFailureAt) >= b.cfg.RecoveryTimeout {
			b.state = StateHalfOpen
			b.successCount = 0
			return nil
		}
		return &ErrOpen{Reason: "circuit_open"}
	default:
		return nil
	}
}

// RecordSuccess applies the closed/half_open success transitions from the
// routing policy's state table.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.HalfOpenSuccessThreshold {
			b.state = StateClosed
			b.failureCount = 0
			b.successCount = 0
		}
	default:
		if b.failureCount > 0 {
			b.failureCount--
		}
	}
}

// RecordFailure applies the closed/half_open failure transitions. It does
// not itself distinguish auth failures; callers route those through
// RecordAuthFailure instead.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailureAt = time.Now()

	switch b.state {
	case StateHalfOpen:
		b.state = StateOpen
		b.failureCount = 1
	default:
		b.failureCount++
		if b.failureCount >= b.cfg.FailureThreshold {
			b.state = StateOpen
		}
	}
}

// RecordAuthFailure sets the independent auth-block flag. Auth failures
// cannot be recovered by retrying, so they short-circuit the provider for a
// longer, separately tracked cooldown rather than feeding failure_count.
func (b *CircuitBreaker) RecordAuthFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.authBlocked = true
	b.authBlockedAt = time.Now()
}

// Snapshot returns the current state and auth-block flag for status
// reporting, without mutating anything.
func (b *CircuitBreaker) Snapshot() (State, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	authBlocked := b.authBlocked && time.Since(b.authBlockedAt) < b.cfg.AuthBlockCooldown
	return b.state, authBlocked
}

// Backoff computes the capped exponential backoff with jitter used for
// per-provider retries: delay = min(base*2^attempt + uniform(0,jitter), cap).
func Backoff(attempt int, base, jitter, capDelay time.Duration) time.Duration {
	delay := base << attempt
	if delay > capDelay || delay <= 0 {
		delay = capDelay
	}
	if jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(jitter)))
		if delay > capDelay {
			delay = capDelay
		}
	}
	return delay
}
