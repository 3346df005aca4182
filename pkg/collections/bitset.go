// Package collections provides small generic containers used by the tree
// algorithms.
package collections

import (
	"iter"
	"math/bits"
)

// Bitset is a growable set of small non-negative integers, typically dense
// node ids.
type Bitset struct {
	bits []uint64
	size int
}

// NewBitset creates a bitset sized for ids below size.
func NewBitset(size int) *Bitset {
	if size <= 0 {
		size = 64
	}
	return &Bitset{
		bits: make([]uint64, (size+63)/64),
		size: size,
	}
}

// Set adds i. Negative indices are ignored.
func (b *Bitset) Set(i int) {
	if i < 0 {
		return
	}
	w := i / 64
	if w >= len(b.bits) {
		b.grow(w + 1)
	}
	b.bits[w] |= 1 << (i % 64)
	if i >= b.size {
		b.size = i + 1
	}
}

// Clear removes i.
func (b *Bitset) Clear(i int) {
	if i < 0 || i/64 >= len(b.bits) {
		return
	}
	b.bits[i/64] &^= 1 << (i % 64)
}

// Test reports whether i is in the set.
func (b *Bitset) Test(i int) bool {
	if i < 0 || i/64 >= len(b.bits) {
		return false
	}
	return b.bits[i/64]&(1<<(i%64)) != 0
}

// Count returns the number of members.
func (b *Bitset) Count() int {
	n := 0
	for _, w := range b.bits {
		n += bits.OnesCount64(w)
	}
	return n
}

// Size returns one past the largest index the set has been sized for.
func (b *Bitset) Size() int {
	return b.size
}

// Or adds every member of other.
func (b *Bitset) Or(other *Bitset) {
	if other == nil {
		return
	}
	if len(other.bits) > len(b.bits) {
		b.grow(len(other.bits))
	}
	for i, w := range other.bits {
		b.bits[i] |= w
	}
	b.size = max(b.size, other.size)
}

// All iterates the members in increasing order.
func (b *Bitset) All() iter.Seq[int] {
	return func(yield func(int) bool) {
		for wi, w := range b.bits {
			for w != 0 {
				tz := bits.TrailingZeros64(w)
				if !yield(wi*64 + tz) {
					return
				}
				w &= w - 1
			}
		}
	}
}

// grow makes room for at least words words, doubling to amortize.
func (b *Bitset) grow(words int) {
	n := max(len(b.bits)*2, words)
	nb := make([]uint64, n)
	copy(nb, b.bits)
	b.bits = nb
}
