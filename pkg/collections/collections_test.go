package collections

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBitset(t *testing.T) {
	b := NewBitset(10)
	assert.Equal(t, 10, b.Size())
	assert.Zero(t, b.Count())

	for _, i := range []int{0, 3, 63, 64, 9} {
		b.Set(i)
	}
	b.Set(-1)
	assert.True(t, b.Test(63))
	assert.True(t, b.Test(64))
	assert.False(t, b.Test(5))
	assert.False(t, b.Test(-1))
	assert.False(t, b.Test(1000))
	assert.Equal(t, 5, b.Count())
	assert.Equal(t, 65, b.Size())

	b.Clear(3)
	b.Clear(5000)
	assert.False(t, b.Test(3))
	assert.Equal(t, []int{0, 9, 63, 64}, slices.Collect(b.All()))
}

func TestBitset_Grow(t *testing.T) {
	b := NewBitset(0)
	b.Set(1 << 12)
	assert.True(t, b.Test(1<<12))
	assert.Equal(t, 1, b.Count())
}

func TestBitset_Or(t *testing.T) {
	a := NewBitset(8)
	a.Set(1)
	other := NewBitset(200)
	other.Set(2)
	other.Set(150)

	a.Or(other)
	a.Or(nil)
	assert.Equal(t, []int{1, 2, 150}, slices.Collect(a.All()))
	assert.Equal(t, 200, a.Size())
}

func TestBitset_AllStopsEarly(t *testing.T) {
	b := NewBitset(128)
	for i := 0; i < 128; i += 2 {
		b.Set(i)
	}
	var got []int
	for i := range b.All() {
		if i > 6 {
			break
		}
		got = append(got, i)
	}
	assert.Equal(t, []int{0, 2, 4, 6}, got)
}

func TestStack(t *testing.T) {
	s := NewStack[string](2)
	assert.True(t, s.IsEmpty())
	_, ok := s.Pop()
	assert.False(t, ok)

	s.Push("a")
	s.Push("b")
	s.Push("c")
	assert.Equal(t, 3, s.Len())

	top, ok := s.Peek()
	assert.True(t, ok)
	assert.Equal(t, "c", top)

	for _, want := range []string{"c", "b", "a"} {
		v, ok := s.Pop()
		assert.True(t, ok)
		assert.Equal(t, want, v)
	}
	assert.True(t, s.IsEmpty())
	_, ok = s.Peek()
	assert.False(t, ok)
}
