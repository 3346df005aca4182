// Package lockfree provides intrusive stacks and queues for handing items
// from producer goroutines to a single consumer without locks.
//
// Elements carry their own next pointer by embedding Link:
//
//	type record struct {
//		lockfree.Link[record]
//		id uint64
//	}
//
// None of the containers allocate. Element memory belongs to whoever
// allocated it; a container only borrows the link.
package lockfree

import "sync/atomic"

// Link is the intrusive next slot embedded by stack and queue elements.
type Link[T any] struct {
	next atomic.Pointer[T]
}

// Next returns the element's next slot.
func (l *Link[T]) Next() *atomic.Pointer[T] {
	return &l.next
}

// Element is satisfied by pointers to types embedding Link.
type Element[T any] interface {
	*T
	Next() *atomic.Pointer[T]
}

func next[T any, E Element[T]](e *T) *T {
	return E(e).Next().Load()
}

func setNext[T any, E Element[T]](e, n *T) {
	E(e).Next().Store(n)
}

// ChainLen counts the elements of a chain starting at first.
func ChainLen[T any, E Element[T]](first *T) int {
	n := 0
	for e := first; e != nil; e = next[T, E](e) {
		n++
	}
	return n
}
