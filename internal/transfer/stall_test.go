package transfer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStallDetector_TripsAfterWindowOfZeroThroughput(t *testing.T) {
	// quarter of a 4000 B/s peak is 1000 B/s; each empty 500ms poll costs 0.5s of debt.
	d := NewStallDetector(500*time.Millisecond, 2*time.Second)

	require.False(t, d.Observe(0, 4000))
	require.False(t, d.Observe(2000, 4000))

	completed := int64(2000)
	trippedAt := 0

	for poll := 1; poll <= 10; poll++ {
		if d.Observe(completed, 0) {
			trippedAt = poll

			break
		}
	}

	assert.Equal(t, 5, trippedAt)
	assert.Less(t, d.Debt(), -2.0)
	assert.Equal(t, int64(4000), d.Peak())
}

func TestStallDetector_SteadyQuarterPeakNeverTrips(t *testing.T) {
	d := NewStallDetector(500*time.Millisecond, time.Second)

	completed := int64(0)
	d.Observe(completed, 8000)

	// 2000 B/s is exactly a quarter of the peak: 1000 bytes per 500ms poll.
	for range 100 {
		completed += 1000
		require.False(t, d.Observe(completed, 2000))
	}

	assert.InDelta(t, 0, d.Debt(), 1e-9)
}

func TestStallDetector_JitteryButProgressingTolerated(t *testing.T) {
	d := NewStallDetector(500*time.Millisecond, 2*time.Second)

	completed := int64(0)
	d.Observe(completed, 4000)

	for i := range 200 {
		if i%2 == 0 {
			completed += 1000
		}

		require.False(t, d.Observe(completed, 2000), "poll %d", i)
	}
}

func TestStallDetector_SlowTrickleTripsLater(t *testing.T) {
	// 12.5% of peak: each 500ms poll credits 0.25s and charges 0.5s.
	d := NewStallDetector(500*time.Millisecond, 3*time.Second)

	completed := int64(0)
	d.Observe(completed, 10000)

	polls := 0
	for !d.Stalled() && polls < 100 {
		completed += 625
		d.Observe(completed, 1250)
		polls++
	}

	assert.Equal(t, 13, polls)
	assert.Less(t, d.Debt(), -3.0)
}

func TestStallDetector_EarlyBurstDoesNotMaskStall(t *testing.T) {
	d := NewStallDetector(time.Second, 2*time.Second)

	d.Observe(0, 1000)
	d.Observe(10_000_000, 1000)
	assert.InDelta(t, 0, d.Debt(), 1e-9)

	assert.False(t, d.Observe(10_000_000, 0))
	assert.False(t, d.Observe(10_000_000, 0))
	assert.True(t, d.Observe(10_000_000, 0))
}

func TestStallDetector_NoPeakNoJudgement(t *testing.T) {
	d := NewStallDetector(500*time.Millisecond, 0)

	for range 10 {
		assert.False(t, d.Observe(0, 0))
	}

	assert.Zero(t, d.Debt())
}
