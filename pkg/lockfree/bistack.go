package lockfree

// Bistack couples a producer-facing concurrent stack with a consumer-owned
// sequential stack. Producers Push; the single consumer Steals the produced
// chain and then Pops it.
//
// Steal overwrites whatever the consumer side still holds, so the consumer
// must drain it with Pop before stealing again.
type Bistack[T any, E Element[T]] struct {
	produced  CStack[T, E]
	toConsume SStack[T, E]
}

// Push publishes e to the consumer. Safe for concurrent producers.
func (b *Bistack[T, E]) Push(e *T) {
	b.produced.Push(e)
}

// Pop returns the next stolen element, or nil when the consumer side is
// drained.
func (b *Bistack[T, E]) Pop() *T {
	return b.toConsume.Pop()
}

// Steal moves every produced element to the consumer side.
func (b *Bistack[T, E]) Steal() {
	b.toConsume.Set(b.produced.Steal())
}

// Reverse restores push order on the consumer side.
func (b *Bistack[T, E]) Reverse() {
	b.toConsume.Reverse()
}

// ForAll calls fn on every element waiting on the consumer side.
func (b *Bistack[T, E]) ForAll(fn func(*T)) {
	b.toConsume.ForAll(fn)
}

// Drained reports whether the consumer side is empty.
func (b *Bistack[T, E]) Drained() bool {
	return b.toConsume.Empty()
}

// Pending reports whether producers have pushed elements not yet stolen.
func (b *Bistack[T, E]) Pending() bool {
	return !b.produced.Empty()
}

// Direction selects a lane of a Bichannel.
type Direction int

const (
	// Forward carries new work from producer to consumer.
	Forward Direction = iota
	// Backward carries recycled items from consumer back to producer.
	Backward
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	default:
		return "unknown"
	}
}

// Bichannel is a pair of independent bistacks. On the forward lane the
// producer pushes and the consumer pops; on the backward lane the roles
// are swapped.
type Bichannel[T any, E Element[T]] struct {
	lanes [2]Bistack[T, E]
}

// Lane returns the bistack for direction d.
func (c *Bichannel[T, E]) Lane(d Direction) *Bistack[T, E] {
	return &c.lanes[d]
}

// Push publishes e on lane d.
func (c *Bichannel[T, E]) Push(d Direction, e *T) {
	c.lanes[d].Push(e)
}

// Pop takes the next stolen element from lane d.
func (c *Bichannel[T, E]) Pop(d Direction) *T {
	return c.lanes[d].Pop()
}

// Steal moves lane d's produced elements to its consumer side.
func (c *Bichannel[T, E]) Steal(d Direction) {
	c.lanes[d].Steal()
}

// Reverse restores push order on lane d's consumer side.
func (c *Bichannel[T, E]) Reverse(d Direction) {
	c.lanes[d].Reverse()
}
