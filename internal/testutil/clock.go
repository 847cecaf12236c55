package testutil

import (
	"sync"
	"time"
)

// DeterministicClock is a thread-safe logical clock for tests.
//
// Each call to Now advances time by a fixed step, so timestamps recorded
// during a test are unique, ordered, and reproducible across runs. The
// clock can be reset so the same scenario replays with identical
// timestamps, which keeps golden traces byte-stable.
type DeterministicClock struct {
	mu   sync.Mutex
	base time.Time
	step time.Duration
	n    int64
}

// NewDeterministicClock creates a clock starting at a fixed epoch,
// advancing one second per Now call.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{
		base: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		step: time.Second,
	}
}

// Now returns the next timestamp. Safe for concurrent use.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.base.Add(time.Duration(c.n) * c.step)
	c.n++
	return t
}

// Reset rewinds the clock to its base time.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n = 0
}
