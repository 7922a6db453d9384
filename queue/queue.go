// Package queue provides the unbounded FIFO used for the event and command
// streams of a state machine cluster.
//
// Put never blocks. Take blocks until an element is available or the supplied
// context is cancelled. Every element is stamped with a sequence number so a
// caller can discard exactly the elements that were enqueued before a given
// point in time (see Mark and DiscardBefore).
package queue

import (
	"context"
	"sync"
)

type entry[T any] struct {
	seq   uint64
	value T
}

// Queue is a thread-safe, unbounded, blocking FIFO.
// The zero value is not usable; use New.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []entry[T]
	next   uint64
	notify chan struct{}
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		notify: make(chan struct{}, 1),
	}
}

// Put appends v to the tail of the queue.
func (q *Queue[T]) Put(v T) {
	q.mu.Lock()
	q.items = append(q.items, entry[T]{seq: q.next, value: v})
	q.next++
	q.mu.Unlock()
	q.signal()
}

// Take removes and returns the head of the queue, blocking until one is
// available. A cancelled context wins over an available element.
func (q *Queue[T]) Take(ctx context.Context) (T, error) {
	var zero T
	for {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		if v, ok := q.TryTake(); ok {
			return v, nil
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-q.notify:
		}
	}
}

// TryTake removes and returns the head of the queue without blocking.
func (q *Queue[T]) TryTake() (T, bool) {
	var zero T
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return zero, false
	}
	v := q.items[0].value
	q.items[0] = entry[T]{}
	q.items = q.items[1:]
	remaining := len(q.items)
	q.mu.Unlock()

	// Hand the wake-up on to another waiter.
	if remaining > 0 {
		q.signal()
	}
	return v, true
}

// Len returns the number of queued elements.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear removes every element and returns how many were dropped.
func (q *Queue[T]) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}

// Mark returns the sequence number the next Put will receive. Every element
// enqueued before the call has a smaller sequence number.
func (q *Queue[T]) Mark() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.next
}

// DiscardBefore removes all elements enqueued before mark was taken and keeps
// the rest in order. It returns how many were dropped.
func (q *Queue[T]) DiscardBefore(mark uint64) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.filterLocked(func(e entry[T]) bool { return e.seq < mark })
}

// DiscardIf removes every element for which drop returns true and keeps the
// rest in order. It returns how many were dropped.
func (q *Queue[T]) DiscardIf(drop func(T) bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.filterLocked(func(e entry[T]) bool { return drop(e.value) })
}

// Drain removes and returns every queued element in FIFO order.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]T, len(q.items))
	for i, e := range q.items {
		out[i] = e.value
	}
	q.items = nil
	return out
}

func (q *Queue[T]) filterLocked(drop func(entry[T]) bool) int {
	kept := q.items[:0]
	dropped := 0
	for _, e := range q.items {
		if drop(e) {
			dropped++
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = entry[T]{}
	}
	q.items = kept
	return dropped
}

func (q *Queue[T]) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
