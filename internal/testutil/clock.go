package testutil

import (
	"sync"
	"time"
)

// StepClock is a journal clock for tests: sequence numbers count up from 1
// and every Now call advances a fixed step from a fixed epoch, so journal
// rows are identical across runs.
//
// Thread-safety: all methods are safe for concurrent use.
type StepClock struct {
	mu   sync.Mutex
	seq  int64
	now  time.Time
	step time.Duration
}

// NewStepClock creates a clock whose Now advances by step per call.
func NewStepClock(step time.Duration) *StepClock {
	return &StepClock{now: epoch, step: step}
}

// Next returns the next sequence number. The first call returns 1.
func (c *StepClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the last sequence number handed out.
func (c *StepClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Now returns the current instant and advances by one step.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Reset rewinds both the sequence and the time to their start.
func (c *StepClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
	c.now = epoch
}
