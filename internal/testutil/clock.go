package testutil

import (
	"sync"
	"time"
)

// Clock is a deterministic time source for tests.
//
// Each call to Now advances the clock by a fixed step, so artifacts named
// after second-granularity timestamps (backup files, reports) never collide
// within a test, and never repeat across reruns.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type Clock struct {
	mu   sync.Mutex
	base time.Time
	step time.Duration
	n    int
}

// NewClock creates a clock that returns base, base+step, base+2*step, ...
func NewClock(base time.Time, step time.Duration) *Clock {
	return &Clock{base: base, step: step}
}

// Now returns the next instant and advances the clock.
//
// Thread-safe: uses mutex to protect the tick count.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.base.Add(time.Duration(c.n) * c.step)
	c.n++
	return t
}

// Current returns the instant the next Now call will produce, without
// advancing the clock.
func (c *Clock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.base.Add(time.Duration(c.n) * c.step)
}

// Reset rewinds the clock to its base instant.
//
// Used for test reuse. After Reset(), the next call to Now() returns base.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n = 0
}
