package license

import (
	"sync"
	"time"
)

// TimeEstimator computes a tamper-resistant estimate of current server time
// from a monotonic tick anchored to the last confirmed server timestamp.
// Once any anchor exists the wall clock is never trusted as a source of
// truth; it only serves as a clamped fallback when the monotonic counter has
// reset (process restart, platform quirk).
type TimeEstimator struct {
	mu    sync.Mutex
	clock Clock

	anchored       bool
	lastServerTime time.Time
	anchorTick     int64
	anchorWall     time.Time

	// crossProcess marks an anchor restored from disk. Its tick belongs to a
	// dead process's counter and is meaningless against ours, whatever its
	// sign, so estimates use the wall-clock delta until the next live Anchor.
	crossProcess bool

	// lastEstimate enforces that estimates never go backwards even across
	// fallback transitions.
	lastEstimate time.Time
}

// NewTimeEstimator creates an unanchored estimator. Until the first anchor it
// degrades to the wall clock.
func NewTimeEstimator(clock Clock) *TimeEstimator {
	return &TimeEstimator{clock: clock}
}

// Anchor records a confirmed server time against the current monotonic tick.
// Called after every successful server response carrying a timestamp, and
// only then.
func (te *TimeEstimator) Anchor(serverTime time.Time) {
	te.mu.Lock()
	defer te.mu.Unlock()
	te.lastServerTime = serverTime
	te.anchorTick = te.clock.Tick()
	te.anchorWall = te.clock.Now()
	te.anchored = true
	te.crossProcess = false
}

// Restore re-establishes an anchor persisted by a previous process. The
// persisted tick belongs to the dead process's counter and cannot be compared
// with ours, so EstimateNow measures against the persisted wall time until
// the next live Anchor.
func (te *TimeEstimator) Restore(serverTime time.Time, tick int64, wall time.Time) {
	te.mu.Lock()
	defer te.mu.Unlock()
	te.lastServerTime = serverTime
	te.anchorTick = tick
	te.anchorWall = wall
	te.anchored = true
	te.crossProcess = true
}

// Anchored reports whether any server time has been confirmed yet.
func (te *TimeEstimator) Anchored() bool {
	te.mu.Lock()
	defer te.mu.Unlock()
	return te.anchored
}

// EstimateNow returns the estimated current server time. Estimates are
// monotonically non-decreasing: a backward wall-clock jump contributes zero
// elapsed time, never negative.
func (te *TimeEstimator) EstimateNow() time.Time {
	te.mu.Lock()
	defer te.mu.Unlock()

	if !te.anchored {
		// First-run degraded mode.
		return te.clock.Now()
	}

	elapsed := te.clock.Tick() - te.anchorTick
	if te.crossProcess || elapsed < 0 {
		// Foreign or reset monotonic counter; fall back to wall-clock delta,
		// clamped non-negative.
		wallDelta := te.clock.Now().Sub(te.anchorWall)
		if wallDelta < 0 {
			wallDelta = 0
		}
		elapsed = wallDelta.Milliseconds()
	}

	estimate := te.lastServerTime.Add(time.Duration(elapsed) * time.Millisecond)
	if estimate.Before(te.lastEstimate) {
		estimate = te.lastEstimate
	}
	te.lastEstimate = estimate
	return estimate
}

// Snapshot returns the current anchor for persistence.
func (te *TimeEstimator) Snapshot() (serverTime time.Time, tick int64, wall time.Time) {
	te.mu.Lock()
	defer te.mu.Unlock()
	return te.lastServerTime, te.anchorTick, te.anchorWall
}
