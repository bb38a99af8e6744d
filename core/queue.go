package core

import (
	"sync"
)

const (
	// DefaultChildQueueCapacity bounds the number of unclaimed children a
	// single task may hold at once.
	DefaultChildQueueCapacity = 256

	// DefaultOrphanQueueCapacity bounds the pool-wide orphan queue.
	DefaultOrphanQueueCapacity = 4096
)

// =============================================================================
// BoundedQueue: fixed-capacity FIFO ring
// =============================================================================

// BoundedQueue is a fixed-capacity FIFO ring buffer safe for any number of
// concurrent producers and consumers. It never grows: TryPush reports false
// once the ring is full and the caller decides what an overflow means.
type BoundedQueue[T any] struct {
	mu    sync.Mutex
	items []T
	head  int
	count int
}

// NewBoundedQueue creates a queue holding at most capacity items.
// A capacity below 1 is raised to 1.
func NewBoundedQueue[T any](capacity int) *BoundedQueue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &BoundedQueue[T]{items: make([]T, capacity)}
}

// TryPush appends item to the tail. It returns false when the queue is full.
func (q *BoundedQueue[T]) TryPush(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == len(q.items) {
		return false
	}
	q.items[(q.head+q.count)%len(q.items)] = item
	q.count++
	return true
}

// Pop removes and returns the head item.
func (q *BoundedQueue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.count == 0 {
		return zero, false
	}

	item := q.items[q.head]
	// Zero out the slot so the ring does not pin finished tasks
	q.items[q.head] = zero
	q.head = (q.head + 1) % len(q.items)
	q.count--
	return item, true
}

// Len returns the number of queued items.
func (q *BoundedQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the fixed capacity.
func (q *BoundedQueue[T]) Cap() int {
	return len(q.items)
}

func (q *BoundedQueue[T]) IsEmpty() bool {
	return q.Len() == 0
}

// Clear removes all items and releases their references.
func (q *BoundedQueue[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	for i := range q.items {
		q.items[i] = zero
	}
	q.head = 0
	q.count = 0
}
