package engine

import "sync/atomic"

// Clock hands out frame IDs: a monotonic counter, one per tracker.
//
// IDs are logical, never derived from trace timestamps, so two runs over
// the same input assign the same IDs.
//
// Thread-safety: Clock is safe for concurrent use, though a Tracker only
// ever calls it from the goroutine that feeds it.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0. The first Next() is 1.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next ID.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last ID handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
