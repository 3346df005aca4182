package lockfree

// SStack is a sequential intrusive stack. It is not safe for concurrent use
// and is meant for consumer-local reordering after a steal.
type SStack[T any, E Element[T]] struct {
	head *T
}

// Empty reports whether the stack holds no elements.
func (s *SStack[T, E]) Empty() bool {
	return s.head == nil
}

// Head returns the top element without removing it.
func (s *SStack[T, E]) Head() *T {
	return s.head
}

// Push places e on top of the stack.
func (s *SStack[T, E]) Push(e *T) {
	setNext[T, E](e, s.head)
	s.head = e
}

// Pop removes and returns the top element, or nil if the stack is empty.
func (s *SStack[T, E]) Pop() *T {
	e := s.head
	if e == nil {
		return nil
	}
	s.head = next[T, E](e)
	setNext[T, E](e, nil)
	return e
}

// Steal detaches and returns the whole chain, leaving the stack empty.
func (s *SStack[T, E]) Steal() *T {
	e := s.head
	s.head = nil
	return e
}

// Set replaces the contents with the chain starting at first. Elements
// previously held are dropped from the stack.
func (s *SStack[T, E]) Set(first *T) {
	s.head = first
}

// Reverse reverses the stack in place.
func (s *SStack[T, E]) Reverse() {
	var prev *T
	for e := s.head; e != nil; {
		n := next[T, E](e)
		setNext[T, E](e, prev)
		prev = e
		e = n
	}
	s.head = prev
}

// ForAll calls fn on every element from top to bottom.
func (s *SStack[T, E]) ForAll(fn func(*T)) {
	for e := s.head; e != nil; e = next[T, E](e) {
		fn(e)
	}
}

// Len counts the elements. O(n).
func (s *SStack[T, E]) Len() int {
	return ChainLen[T, E](s.head)
}
