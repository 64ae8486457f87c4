package testutil

import (
	"sync"

	"github.com/roach88/screentrace/internal/trace"
)

// TraceClock is a wall clock for synthetic traces. It only moves when told
// to, so the same test builds the same trace every time.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type TraceClock struct {
	mu  sync.Mutex
	now trace.Timestamp
}

// NewTraceClock creates a clock reading start ("HH:MM:SS.mmm").
// Panics on a malformed start; it is a test constant.
func NewTraceClock(start string) *TraceClock {
	ts, err := trace.ParseTimestamp(start)
	if err != nil {
		panic(err)
	}
	return &TraceClock{now: ts}
}

// Now returns the current time.
func (c *TraceClock) Now() trace.Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by ms and returns the new time.
func (c *TraceClock) Advance(ms int64) trace.Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += trace.Timestamp(ms)
	return c.now
}

// Set moves the clock to an absolute time.
func (c *TraceClock) Set(ts trace.Timestamp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = ts
}
