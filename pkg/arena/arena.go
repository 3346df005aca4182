// Package arena provides a grow-only slab allocator for fixed-type items.
//
// An Arena hands out items from slabs that are allocated a whole slab at a
// time and never released. Items are addressed by pointer or by a compact
// Handle; Handle 0 is reserved as nil. Freed items are recycled by the
// caller (see the channel package), never returned to the arena.
package arena

import (
	"github.com/cockroachdb/errors"
)

// DefaultSlabSize is the number of items per slab when none is configured.
const DefaultSlabSize = 256

// Handle is a compact reference to an arena item. The zero Handle is nil.
type Handle uint32

// Arena is a slab allocator owned by a single goroutine. It is not safe for
// concurrent use.
type Arena[T any] struct {
	n        int
	slabSize int
	maxItems int
	slabs    [][]T
}

// New returns an arena allocating slabSize items at a time. A positive
// maxItems bounds the arena; allocating past it is fatal.
func New[T any](slabSize, maxItems int) *Arena[T] {
	if slabSize <= 0 {
		slabSize = DefaultSlabSize
	}
	return &Arena[T]{slabSize: slabSize, maxItems: maxItems}
}

// Alloc returns a zeroed item and its handle. It never returns nil; it
// panics with an assertion failure once the arena is exhausted.
func (a *Arena[T]) Alloc() (*T, Handle) {
	if a.maxItems > 0 && a.n >= a.maxItems {
		panic(errors.AssertionFailedf("arena exhausted after %d items", a.maxItems))
	}
	if a.n >= int(^uint32(0))-1 {
		panic(errors.AssertionFailedf("arena handle space exhausted"))
	}
	s, i := a.index(a.n)
	if s >= len(a.slabs) {
		a.slabs = append(a.slabs, make([]T, a.slabSize))
	}
	a.n++
	return &a.slabs[s][i], Handle(a.n)
}

// At returns the item for h, or nil for the zero handle.
func (a *Arena[T]) At(h Handle) *T {
	if h == 0 {
		return nil
	}
	if int(h) > a.n {
		panic(errors.AssertionFailedf("arena handle %d out of range (%d allocated)", h, a.n))
	}
	s, i := a.index(int(h) - 1)
	return &a.slabs[s][i]
}

// Len returns the number of items allocated so far.
func (a *Arena[T]) Len() int {
	return a.n
}

// Cap returns the number of items the current slabs can hold.
func (a *Arena[T]) Cap() int {
	return len(a.slabs) * a.slabSize
}

// Slabs returns the number of slabs allocated.
func (a *Arena[T]) Slabs() int {
	return len(a.slabs)
}

func (a *Arena[T]) index(i int) (int, int) {
	return i / a.slabSize, i % a.slabSize
}
