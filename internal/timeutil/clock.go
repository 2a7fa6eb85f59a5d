// Package timeutil holds the clocks behind case row stamps and request
// timing, so both can be pinned in tests.
package timeutil

import (
	"sync"
	"time"
)

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Unix returns the current time of c in whole seconds, the resolution of the
// created_at and updated_at columns.
func Unix(c Clock) int64 { return c.Now().Unix() }

// Stopwatch measures time elapsed on a Clock since it was started.
type Stopwatch struct {
	clock Clock
	start time.Time
}

// StartStopwatch starts timing on c.
func StartStopwatch(c Clock) Stopwatch {
	return Stopwatch{clock: c, start: c.Now()}
}

// Elapsed returns the time since the stopwatch started.
func (s Stopwatch) Elapsed() time.Duration { return s.clock.Now().Sub(s.start) }

// Millis returns Elapsed in fractional milliseconds.
func (s Stopwatch) Millis() float64 {
	return float64(s.Elapsed()) / float64(time.Millisecond)
}

// ManualClock stands still until Advance is called.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock returns a clock stopped at t.
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d. Negative durations are ignored.
func (c *ManualClock) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
