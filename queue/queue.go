package queue

import "sync"

// Queue is a generic FIFO queue that is safe for concurrent use. A positive
// capacity bounds the number of pending items.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
}

// New creates and returns an unbounded Queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{items: []T{}}
}

// NewBounded creates a Queue holding at most capacity items. A capacity of
// zero or less means unbounded.
func NewBounded[T any](capacity int) *Queue[T] {
	return &Queue[T]{items: []T{}, capacity: capacity}
}

// Enqueue adds an element to the end of the queue.
// It returns false without adding anything when the queue is full.
func (q *Queue[T]) Enqueue(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.capacity > 0 && len(q.items) >= q.capacity {
		return false
	}
	q.items = append(q.items, item)
	return true
}

// Dequeue removes and returns the front element of the queue.
// The boolean indicates whether an element was dequeued (false if the queue was empty).
func (q *Queue[T]) Dequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	item := q.items[0]
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]
	return item, true
}

// Peek returns the front element without removing it from the queue.
func (q *Queue[T]) Peek() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	return q.items[0], true
}

// Drain removes and returns every pending element.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = []T{}
	return items
}

// Len returns the number of elements in the queue.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// IsEmpty returns true if the queue is empty.
func (q *Queue[T]) IsEmpty() bool {
	return q.Len() == 0
}
