package queue

import "sync"

// Ring is a bounded FIFO. Producers that outrun the consumer get a false
// from TryPush and decide themselves whether to drop or overwrite; the ring
// never blocks and never grows.
type Ring[T any] struct {
	mu         sync.Mutex
	buf        []T
	head, tail int
}

func NewRing[T any](size int) *Ring[T] {
	if size < 2 {
		size = 2
	}
	return &Ring[T]{buf: make([]T, size+1)}
}

func (q *Ring[T]) TryPush(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	next := (q.head + 1) % len(q.buf)
	if next == q.tail { // full
		return false
	}
	q.buf[q.head] = v
	q.head = next
	return true
}

// PushDropOldest enqueues v, discarding the oldest element when full.
// It reports whether anything was dropped.
func (q *Ring[T]) PushDropOldest(v T) (dropped bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	next := (q.head + 1) % len(q.buf)
	if next == q.tail {
		var zero T
		q.buf[q.tail] = zero
		q.tail = (q.tail + 1) % len(q.buf)
		dropped = true
	}
	q.buf[q.head] = v
	q.head = next
	return dropped
}

func (q *Ring[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if q.head == q.tail {
		return zero, false
	}
	v := q.buf[q.tail]
	q.buf[q.tail] = zero
	q.tail = (q.tail + 1) % len(q.buf)
	return v, true
}

func (q *Ring[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return (q.head - q.tail + len(q.buf)) % len(q.buf)
}
