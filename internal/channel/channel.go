// Package channel carries records from producer goroutines to the single
// monitor goroutine without locks on the producer path.
//
// Every Channel has exactly one producer and is drained by exactly one
// consumer. Records flow forward on a lock-free bichannel and are recycled
// back to the producer once handled, so a steady-state producer never
// allocates.
package channel

import (
	"sync/atomic"

	"github.com/callpath-core/pkg/arena"
	"github.com/callpath-core/pkg/lockfree"
)

// Options configures a channel's backing arena and instrumentation.
type Options struct {
	// SlabSize is the number of records allocated at a time.
	SlabSize int
	// MaxItems bounds the number of distinct records; 0 is unbounded.
	MaxItems int
	Metrics  *Metrics
	// Notify is called after every Produce. It must not block.
	Notify func()
}

// Channel is a single-producer single-consumer record channel.
type Channel[T any, E lockfree.Element[T]] struct {
	name     string
	ch       lockfree.Bichannel[T, E]
	alloc    *ItemAllocator[T, E]
	counters *channelCounters
	notify   func()

	produced atomic.Int64
	consumed atomic.Int64
}

// New returns an empty channel.
func New[T any, E lockfree.Element[T]](name string, opts Options) *Channel[T, E] {
	c := &Channel[T, E]{
		name:     name,
		counters: opts.Metrics.forChannel(name),
		notify:   opts.Notify,
	}
	c.alloc = NewItemAllocator(&c.ch, arena.New[T](opts.SlabSize, opts.MaxItems))
	c.alloc.counters = c.counters
	return c
}

// Name returns the channel's label.
func (c *Channel[T, E]) Name() string {
	return c.name
}

// Produce allocates a record, lets fill populate every field, and publishes
// it. Producer only.
func (c *Channel[T, E]) Produce(fill func(*T)) {
	e := c.alloc.Alloc()
	fill(e)
	c.ch.Push(lockfree.Forward, e)
	c.produced.Add(1)
	if c.counters != nil {
		c.counters.produced.Inc()
	}
	if c.notify != nil {
		c.notify()
	}
}

// Consume takes every record published so far, hands them to fn in
// production order and frees them. fn must not retain the record. Returns
// the number of records handled. Consumer only.
func (c *Channel[T, E]) Consume(fn func(*T)) int {
	c.ch.Steal(lockfree.Forward)
	c.ch.Reverse(lockfree.Forward)
	n := 0
	for e := c.ch.Pop(lockfree.Forward); e != nil; e = c.ch.Pop(lockfree.Forward) {
		fn(e)
		c.alloc.Free(e)
		n++
	}
	if n > 0 {
		c.consumed.Add(int64(n))
		if c.counters != nil {
			c.counters.consumed.Add(float64(n))
		}
	}
	return n
}

// Pending reports whether records are waiting to be consumed.
func (c *Channel[T, E]) Pending() bool {
	return c.ch.Lane(lockfree.Forward).Pending()
}

// Stats is a point-in-time view of a channel's counters.
type Stats struct {
	Name     string `json:"name"`
	Produced int64  `json:"produced"`
	Consumed int64  `json:"consumed"`
	Recycled int64  `json:"recycled"`
	Fresh    int64  `json:"fresh"`
}

// Stats returns the channel's counters.
func (c *Channel[T, E]) Stats() Stats {
	return Stats{
		Name:     c.name,
		Produced: c.produced.Load(),
		Consumed: c.consumed.Load(),
		Recycled: c.alloc.Recycled(),
		Fresh:    c.alloc.Fresh(),
	}
}
