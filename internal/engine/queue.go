package engine

import "sync"

// item is one unit of work for the Run loop: a raw line, or a request for a
// partial timeline.
type item struct {
	line  string
	reply chan *Timeline // non-nil for snapshot requests
}

// lineQueue is a thread-safe FIFO queue feeding the Run loop.
//
// The queue is unbounded so a producer tailing a file never blocks on the
// engine. The signal channel lets Run wait with a select on ctx.Done().
type lineQueue struct {
	mu     sync.Mutex
	items  []item
	closed bool
	signal chan struct{} // buffered, size 1
}

func newLineQueue() *lineQueue {
	return &lineQueue{
		items:  make([]item, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an item to the back of the queue.
// Returns false if the queue is closed.
func (q *lineQueue) Enqueue(it item) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, it)

	// Non-blocking; the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front item without blocking.
func (q *lineQueue) TryDequeue() (item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return item{}, false
	}
	it := q.items[0]
	q.items[0] = item{} // release the reply channel
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return it, true
}

// Wait returns a channel that signals when items may be available. It is
// closed when the queue is closed.
func (q *lineQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *lineQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting items and wakes waiters. Queued items stay
// available to TryDequeue.
func (q *lineQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

func (q *lineQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
