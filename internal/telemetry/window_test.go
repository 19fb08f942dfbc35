package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindow_AggregatesEmpty(t *testing.T) {
	w := New()
	agg := w.Aggregates()
	assert.Zero(t, agg.RequestCount)
	assert.Zero(t, agg.P50LatencyMs)
}

func TestWindow_RecordOutcomeUpdatesCounts(t *testing.T) {
	w := New()
	w.RecordOutcome(Entry{Timestamp: time.Now(), LatencyMs: 100, OK: true})
	w.RecordOutcome(Entry{Timestamp: time.Now(), LatencyMs: 200, OK: false, ErrorKind: "timeout"})

	agg := w.Aggregates()
	assert.EqualValues(t, 2, agg.RequestCount)
	assert.EqualValues(t, 1, agg.SuccessCount)
	assert.EqualValues(t, 1, agg.FailCount)
	assert.Equal(t, 0.5, agg.ErrorRateRecent)
}

func TestWindow_PercentilesOverKnownDistribution(t *testing.T) {
	w := New()
	for i := 1; i <= 100; i++ {
		w.RecordOutcome(Entry{Timestamp: time.Now(), LatencyMs: int64(i), OK: true})
	}
	agg := w.Aggregates()
	assert.InDelta(t, 50, agg.P50LatencyMs, 2)
	assert.InDelta(t, 95, agg.P95LatencyMs, 2)
}

func TestWindow_RingBufferWrapsAtCapacity(t *testing.T) {
	w := New()
	for i := 0; i < defaultCapacity+10; i++ {
		w.RecordOutcome(Entry{Timestamp: time.Now(), LatencyMs: 1, OK: true})
	}
	agg := w.Aggregates()
	// RequestCount is a lifetime counter; the buffer itself never exceeds capacity.
	assert.EqualValues(t, defaultCapacity+10, agg.RequestCount)
	assert.Len(t, w.entriesLocked(), defaultCapacity)
}

func TestWindow_EWMACostConverges(t *testing.T) {
	w := New()
	for i := 0; i < 200; i++ {
		w.RecordOutcome(Entry{Timestamp: time.Now(), LatencyMs: 1, OK: true, CostUSD: 0.02})
	}
	agg := w.Aggregates()
	assert.InDelta(t, 0.02, agg.EWMACostUSD, 0.001)
}

func TestEstimateCost(t *testing.T) {
	cost := EstimateCost(1.0, 2.0, 1000, 500)
	assert.InDelta(t, 1.0+1.0, cost, 1e-9)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 25, EstimateTokens(100))
	assert.Equal(t, 1, EstimateTokens(1))
}
