package testutil

import (
	"sync"
	"time"
)

// Epoch is the first instant returned by a fresh DeterministicClock.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// DeterministicClock is a thread-safe fake wall clock for tests.
//
// Every call to Now returns a strictly later instant than the previous call,
// advancing by Step. Two runs of the same scenario therefore stamp identical
// createdAt/updatedAt values and golden files stay byte-stable.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
	last time.Time
}

// NewDeterministicClock creates a clock whose first Now() returns Epoch and
// which advances one second per call.
func NewDeterministicClock() *DeterministicClock {
	return NewDeterministicClockAt(Epoch, time.Second)
}

// NewDeterministicClockAt creates a clock starting at start, advancing by step.
// A non-positive step is treated as one nanosecond so time never stands still.
func NewDeterministicClockAt(start time.Time, step time.Duration) *DeterministicClock {
	if step <= 0 {
		step = time.Nanosecond
	}
	return &DeterministicClock{next: start.UTC(), step: step}
}

// Now returns the next instant and advances the clock.
//
// Matches the func() time.Time shape expected by store.WithClock.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = c.next
	c.next = c.next.Add(c.step)
	return c.last
}

// Current returns the instant most recently handed out by Now, or the zero
// time if Now has not been called.
func (c *DeterministicClock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Reset rewinds the clock so the next Now() returns start again.
func (c *DeterministicClock) Reset(start time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = start.UTC()
	c.last = time.Time{}
}
