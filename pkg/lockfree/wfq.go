package lockfree

import (
	"runtime"
	"sync/atomic"
)

// WFQ is an intrusive multi-producer, single-consumer FIFO queue.
//
// Enqueue exchanges the tail and then links the predecessor. Between those
// two steps the queue is in a transient state where the tail has moved but
// the link is not yet visible; Dequeue spins on that link instead of
// reporting the queue empty.
type WFQ[T any, E Element[T]] struct {
	head atomic.Pointer[T]
	tail atomic.Pointer[T]
}

// Enqueue appends e. Safe for concurrent producers.
func (q *WFQ[T, E]) Enqueue(e *T) {
	setNext[T, E](e, nil)
	prev := q.tail.Swap(e)
	if prev == nil {
		q.head.Store(e)
		return
	}
	setNext[T, E](prev, e)
}

// Dequeue removes and returns the oldest element, or nil if the queue is
// empty. Only one goroutine may dequeue at a time.
func (q *WFQ[T, E]) Dequeue() *T {
	for {
		h := q.head.Load()
		if h == nil {
			if q.tail.Load() == nil {
				return nil
			}
			// First enqueue has swapped the tail but not yet stored the head.
			runtime.Gosched()
			continue
		}

		n := next[T, E](h)
		if n == nil {
			if q.tail.CompareAndSwap(h, nil) {
				q.head.CompareAndSwap(h, nil)
				return h
			}
			for n = next[T, E](h); n == nil; n = next[T, E](h) {
				runtime.Gosched()
			}
		}
		q.head.Store(n)
		setNext[T, E](h, nil)
		return h
	}
}

// Empty reports whether the queue was empty at the time of the load.
func (q *WFQ[T, E]) Empty() bool {
	return q.tail.Load() == nil
}

// Drain dequeues until the queue is empty, passing each element to fn in
// FIFO order, and returns the count.
func (q *WFQ[T, E]) Drain(fn func(*T)) int {
	n := 0
	for e := q.Dequeue(); e != nil; e = q.Dequeue() {
		fn(e)
		n++
	}
	return n
}
