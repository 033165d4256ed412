package license

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimatorUnanchoredUsesWallClock(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	est := NewTimeEstimator(clock)

	assert.False(t, est.Anchored())
	assert.Equal(t, clock.Now(), est.EstimateNow())
}

func TestEstimatorFollowsTicksNotWallClock(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	est := NewTimeEstimator(clock)

	serverTime := time.Date(2026, 3, 1, 11, 58, 0, 0, time.UTC)
	est.Anchor(serverTime)
	require.True(t, est.Anchored())

	// Wall clock jumps a year back; ticks advance five minutes.
	clock.setWall(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	clock.setTick(clock.Tick() + (5 * time.Minute).Milliseconds())

	got := est.EstimateNow()
	assert.Equal(t, serverTime.Add(5*time.Minute), got)
}

func TestEstimatorNegativeElapsedFallsBackToWall(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	est := NewTimeEstimator(clock)

	// Anchor persisted by a previous process: its tick counter was far ahead
	// of ours, so elapsed ticks go negative on first estimate.
	serverTime := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	savedWall := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	est.Restore(serverTime, 1_000_000_000, savedWall)

	// One hour of wall time has passed since the save.
	got := est.EstimateNow()
	assert.Equal(t, serverTime.Add(time.Hour), got)
}

func TestEstimatorRestoredAnchorIgnoresForeignTicks(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC))
	est := NewTimeEstimator(clock)

	// The previous process anchored 30s after its launch; this process has
	// been up longer, so its tick counter reads past the persisted one and
	// the delta comes out positive. It still measures nothing: the counters
	// belong to different boots. Thirty days of downtime must not vanish.
	serverTime := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	savedWall := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	est.Restore(serverTime, 30_000, savedWall)
	clock.setTick(60_000)

	got := est.EstimateNow()
	assert.Equal(t, serverTime.Add(30*24*time.Hour), got)
}

func TestEstimatorLiveAnchorResumesTicks(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC))
	est := NewTimeEstimator(clock)

	est.Restore(time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC), 30_000, clock.Now())

	// A fresh server response re-anchors against our own counter; from then
	// on a wall-clock rollback no longer moves the estimate.
	serverTime := time.Date(2026, 3, 3, 10, 0, 5, 0, time.UTC)
	est.Anchor(serverTime)
	clock.setWall(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	clock.setTick(clock.Tick() + (2 * time.Minute).Milliseconds())

	assert.Equal(t, serverTime.Add(2*time.Minute), est.EstimateNow())
}

func TestEstimatorFallbackClampsBackwardWall(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	est := NewTimeEstimator(clock)

	// Wall clock now reads before the persisted save time: the user rolled it
	// back. The delta clamps to zero instead of rewinding the estimate.
	serverTime := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	savedWall := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	est.Restore(serverTime, 1_000_000_000, savedWall)

	assert.Equal(t, serverTime, est.EstimateNow())
}

func TestEstimatorMonotonicNonDecreasing(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	est := NewTimeEstimator(clock)

	est.Anchor(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	var prev time.Time
	for i := 0; i < 50; i++ {
		clock.advance(time.Second)
		if i == 25 {
			// Mid-sequence counter reset with a rolled-back wall clock.
			clock.setTick(-1)
			clock.setWall(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
		}
		got := est.EstimateNow()
		require.False(t, got.Before(prev), "estimate went backwards at step %d", i)
		prev = got
	}
}

func TestEstimatorSnapshotRoundTrip(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	clock.setTick(5000)
	est := NewTimeEstimator(clock)

	serverTime := time.Date(2026, 3, 1, 12, 0, 1, 0, time.UTC)
	est.Anchor(serverTime)

	gotServer, gotTick, gotWall := est.Snapshot()
	assert.Equal(t, serverTime, gotServer)
	assert.Equal(t, int64(5000), gotTick)
	assert.Equal(t, clock.Now(), gotWall)
}
