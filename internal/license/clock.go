package license

import "time"

// Clock separates the two time sources the engine cares about: the wall
// clock, which the user can set freely, and a monotonic tick counter, which
// they cannot. Injected so tests can simulate offline gaps and clock
// rollback.
type Clock interface {
	// Now returns the wall-clock time.
	Now() time.Time
	// Tick returns a monotonic reading in milliseconds. Only differences
	// between readings from the same process are meaningful.
	Tick() int64
}

// systemClock is the production clock. Ticks come from Go's monotonic clock
// via a fixed base captured at construction.
type systemClock struct {
	base time.Time
}

// NewSystemClock returns a Clock backed by the OS.
func NewSystemClock() Clock {
	return &systemClock{base: time.Now()}
}

func (c *systemClock) Now() time.Time { return time.Now() }

func (c *systemClock) Tick() int64 { return time.Since(c.base).Milliseconds() }
