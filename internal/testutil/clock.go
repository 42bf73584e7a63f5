package testutil

import (
	"sync"
	"time"
)

// Epoch is the default start time of a StepClock: 2024-01-01T00:00:00Z.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// StepClock is a thread-safe deterministic time source for tests.
//
// Each call to Now returns the current time and then advances it by step.
// A zero step gives a frozen clock, which is how tests force timestamp
// collisions.
type StepClock struct {
	mu    sync.Mutex
	start time.Time
	step  time.Duration
	cur   time.Time
}

// NewStepClock creates a clock starting at start.
func NewStepClock(start time.Time, step time.Duration) *StepClock {
	return &StepClock{start: start, step: step, cur: start}
}

// NewFrozenClock creates a clock that always returns t.
func NewFrozenClock(t time.Time) *StepClock {
	return NewStepClock(t, 0)
}

// Now returns the current time and advances the clock.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.cur
	c.cur = c.cur.Add(c.step)
	return t
}

// Current returns the time the next call to Now will return.
func (c *StepClock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

// Set moves the clock to t, backwards or forwards.
func (c *StepClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = t
}

// Reset moves the clock back to its start time.
func (c *StepClock) Reset() {
	c.Set(c.start)
}
