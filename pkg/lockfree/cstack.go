package lockfree

import "sync/atomic"

// CStack is a concurrent intrusive LIFO stack. Any number of goroutines may
// push. Pop and Steal must be called by one consumer at a time; with a
// single consumer the popped element cannot reappear under the CAS, so the
// stack is free of ABA.
type CStack[T any, E Element[T]] struct {
	head atomic.Pointer[T]
}

// Empty reports whether the stack was empty at the time of the load.
func (s *CStack[T, E]) Empty() bool {
	return s.head.Load() == nil
}

// Push places the single element e on top of the stack.
func (s *CStack[T, E]) Push(e *T) {
	for {
		head := s.head.Load()
		setNext[T, E](e, head)
		if s.head.CompareAndSwap(head, e) {
			return
		}
	}
}

// PushChain splices the pre-linked chain starting at first onto the stack
// in one step. The chain keeps its order: first becomes the new top.
func (s *CStack[T, E]) PushChain(first *T) {
	if first == nil {
		return
	}
	last := first
	for n := next[T, E](last); n != nil; n = next[T, E](last) {
		last = n
	}
	for {
		head := s.head.Load()
		setNext[T, E](last, head)
		if s.head.CompareAndSwap(head, first) {
			return
		}
	}
}

// Pop removes and returns the top element, or nil if the stack is empty.
func (s *CStack[T, E]) Pop() *T {
	for {
		head := s.head.Load()
		if head == nil {
			return nil
		}
		if s.head.CompareAndSwap(head, next[T, E](head)) {
			setNext[T, E](head, nil)
			return head
		}
	}
}

// Steal atomically detaches the whole chain and returns its top.
func (s *CStack[T, E]) Steal() *T {
	return s.head.Swap(nil)
}

// ForAll calls fn on every element from top to bottom. It is only
// meaningful while no producer is pushing.
func (s *CStack[T, E]) ForAll(fn func(*T)) {
	for e := s.head.Load(); e != nil; e = next[T, E](e) {
		fn(e)
	}
}
