package channel

import (
	"sync/atomic"

	"github.com/callpath-core/pkg/arena"
	"github.com/callpath-core/pkg/lockfree"
)

// ItemAllocator hands channel items to a producer and takes them back from
// the consumer. Items travel back on the Backward lane of the bichannel they
// were sent on; memory is drawn from a never-free arena only when no
// recycled item is available.
//
// Alloc may only be called by the producer and Free only by the consumer.
type ItemAllocator[T any, E lockfree.Element[T]] struct {
	ch    *lockfree.Bichannel[T, E]
	arena *arena.Arena[T]

	recycled atomic.Int64
	fresh    atomic.Int64
	counters *channelCounters
}

// NewItemAllocator returns an allocator recycling through ch and falling
// back to a.
func NewItemAllocator[T any, E lockfree.Element[T]](ch *lockfree.Bichannel[T, E], a *arena.Arena[T]) *ItemAllocator[T, E] {
	return &ItemAllocator[T, E]{ch: ch, arena: a}
}

// Alloc returns an item for the producer to fill. It never returns nil. A
// recycled item keeps whatever payload it carried; the caller overwrites it.
func (a *ItemAllocator[T, E]) Alloc() *T {
	if e := a.ch.Pop(lockfree.Backward); e != nil {
		a.noteRecycled()
		return e
	}
	a.ch.Steal(lockfree.Backward)
	if e := a.ch.Pop(lockfree.Backward); e != nil {
		a.noteRecycled()
		return e
	}
	e, _ := a.arena.Alloc()
	a.fresh.Add(1)
	if a.counters != nil {
		a.counters.fresh.Inc()
	}
	return e
}

func (a *ItemAllocator[T, E]) noteRecycled() {
	a.recycled.Add(1)
	if a.counters != nil {
		a.counters.recycled.Inc()
	}
}

// Free returns e to the producer side. O(1).
func (a *ItemAllocator[T, E]) Free(e *T) {
	a.ch.Push(lockfree.Backward, e)
}

// Recycled returns how many allocations were served by freed items.
func (a *ItemAllocator[T, E]) Recycled() int64 {
	return a.recycled.Load()
}

// Fresh returns how many allocations came from the arena.
func (a *ItemAllocator[T, E]) Fresh() int64 {
	return a.fresh.Load()
}
