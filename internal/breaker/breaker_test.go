package breaker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_OpensAtThreshold(t *testing.T) {
	b := New(Config{FailureThreshold: 3, RecoveryTimeout: time.Hour, HalfOpenSuccessThreshold: 2})

	for i := 0; i < 2; i++ {
		require.NoError(t, b.BeforeCall())
		b.RecordFailure()
	}
	state, _ := b.Snapshot()
	assert.Equal(t, StateClosed, state)

	require.NoError(t, b.BeforeCall())
	b.RecordFailure()
	state, _ = b.Snapshot()
	assert.Equal(t, StateOpen, state)

	err := b.BeforeCall()
	require.Error(t, err)
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	b := New(Config{FailureThreshold: 1, RecoveryTimeout: 10 * time.Millisecond, HalfOpenSuccessThreshold: 2})

	require.NoError(t, b.BeforeCall())
	b.RecordFailure()
	state, _ := b.Snapshot()
	require.Equal(t, StateOpen, state)

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, b.BeforeCall())
	state, _ = b.Snapshot()
	assert.Equal(t, StateHalfOpen, state)

	b.RecordSuccess()
	state, _ = b.Snapshot()
	assert.Equal(t, StateHalfOpen, state, "one success below threshold stays half_open")

	b.RecordSuccess()
	state, _ = b.Snapshot()
	assert.Equal(t, StateClosed, state)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := New(Config{FailureThreshold: 1, RecoveryTimeout: 10 * time.Millisecond, HalfOpenSuccessThreshold: 2})

	require.NoError(t, b.BeforeCall())
	b.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, b.BeforeCall())

	b.RecordFailure()
	state, _ := b.Snapshot()
	assert.Equal(t, StateOpen, state)
}

func TestCircuitBreaker_RecordSuccessDecrementsFailureCountFloorZero(t *testing.T) {
	b := New(Config{FailureThreshold: 5})
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordSuccess()
	state, _ := b.Snapshot()
	assert.Equal(t, StateClosed, state)
}

func TestCircuitBreaker_AuthBlockIndependentOfFailureCount(t *testing.T) {
	b := New(Config{FailureThreshold: 100, AuthBlockCooldown: time.Hour})
	b.RecordAuthFailure()

	err := b.BeforeCall()
	require.Error(t, err)

	_, authBlocked := b.Snapshot()
	assert.True(t, authBlocked)
}

func TestCircuitBreaker_ConcurrentAccessIsRaceFree(t *testing.T) {
	b := New(Config{FailureThreshold: 1000, RecoveryTimeout: time.Millisecond})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				b.RecordFailure()
			} else {
				b.RecordSuccess()
			}
			_ = b.BeforeCall()
			b.Snapshot()
		}(i)
	}
	wg.Wait()
}

func TestBackoff_NeverExceedsCap(t *testing.T) {
	for attempt := 0; attempt < 10; attempt++ {
		d := Backoff(attempt, 200*time.Millisecond, 200*time.Millisecond, 2*time.Second)
		assert.LessOrEqual(t, d, 2*time.Second)
	}
}
