// Package interval provides a set of disjoint closed address intervals.
package interval

import (
	"fmt"
	"iter"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Interval is a closed range [Beg, End] of addresses or ids.
type Interval struct {
	Beg uint64
	End uint64
}

// New returns the interval [beg, end].
func New(beg, end uint64) Interval {
	return Interval{Beg: beg, End: end}
}

// Contains reports whether addr lies within the interval.
func (x Interval) Contains(addr uint64) bool {
	return x.Beg <= addr && addr <= x.End
}

// Covers reports whether y lies entirely within x.
func (x Interval) Covers(y Interval) bool {
	return x.Beg <= y.Beg && y.End <= x.End
}

// Overlaps reports whether x and y share at least one point.
func (x Interval) Overlaps(y Interval) bool {
	return x.Beg <= y.End && y.Beg <= x.End
}

// Less orders intervals by start, then end.
func (x Interval) Less(y Interval) bool {
	if x.Beg != y.Beg {
		return x.Beg < y.Beg
	}
	return x.End < y.End
}

// Len returns the number of points in the interval.
func (x Interval) Len() uint64 {
	return x.End - x.Beg + 1
}

func (x Interval) String() string {
	return fmt.Sprintf("[0x%x-0x%x]", x.Beg, x.End)
}

// ParseInterval parses the form produced by String. Decimal bounds are
// accepted as well.
func ParseInterval(s string) (Interval, error) {
	s = strings.TrimSpace(s)
	if len(s) < 5 || s[0] != '[' || s[len(s)-1] != ']' {
		return Interval{}, fmt.Errorf("malformed interval %q", s)
	}
	lo, hi, ok := strings.Cut(s[1:len(s)-1], "-")
	if !ok {
		return Interval{}, fmt.Errorf("malformed interval %q", s)
	}
	beg, err := strconv.ParseUint(strings.TrimSpace(lo), 0, 64)
	if err != nil {
		return Interval{}, fmt.Errorf("malformed interval %q: %w", s, err)
	}
	end, err := strconv.ParseUint(strings.TrimSpace(hi), 0, 64)
	if err != nil {
		return Interval{}, fmt.Errorf("malformed interval %q: %w", s, err)
	}
	return Interval{Beg: beg, End: end}, nil
}

// mergeableBefore reports whether a ends strictly before x with at least one
// integer gap between them.
func mergeableBefore(a, x Interval) bool {
	return x.Beg > 0 && a.End < x.Beg-1
}

// mergeableAfter reports whether a starts strictly after x with at least one
// integer gap between them.
func mergeableAfter(a, x Interval) bool {
	return x.End < math.MaxUint64 && a.Beg > x.End+1
}

// ============================================================================
// Set
// ============================================================================

// Set is an ordered collection of disjoint intervals. Insert coalesces
// overlapping and adjacent intervals; Erase carves gaps out of them.
//
// A Set is not safe for concurrent use.
type Set struct {
	ivs []Interval
}

// NewSet returns a set holding the given intervals.
func NewSet(ivs ...Interval) *Set {
	s := &Set{}
	for _, x := range ivs {
		s.Insert(x)
	}
	return s
}

// Len returns the number of disjoint intervals in the set.
func (s *Set) Len() int {
	return len(s.ivs)
}

// Empty reports whether the set holds no intervals.
func (s *Set) Empty() bool {
	return len(s.ivs) == 0
}

// Intervals returns a copy of the intervals in ascending order.
func (s *Set) Intervals() []Interval {
	out := make([]Interval, len(s.ivs))
	copy(out, s.ivs)
	return out
}

// All iterates the intervals in ascending order.
func (s *Set) All() iter.Seq[Interval] {
	return func(yield func(Interval) bool) {
		for _, x := range s.ivs {
			if !yield(x) {
				return
			}
		}
	}
}

// Points iterates every integer covered by the set in ascending order.
func (s *Set) Points() iter.Seq[uint64] {
	return func(yield func(uint64) bool) {
		for _, x := range s.ivs {
			for p := x.Beg; ; p++ {
				if !yield(p) {
					return
				}
				if p == x.End {
					break
				}
			}
		}
	}
}

// Clear removes every interval.
func (s *Set) Clear() {
	s.ivs = s.ivs[:0]
}

// Clone returns an independent copy of the set.
func (s *Set) Clone() *Set {
	return &Set{ivs: s.Intervals()}
}

// Insert adds x to the set, coalescing it with every interval it overlaps
// or abuts. It returns false if x was already covered by a single interval.
func (s *Set) Insert(x Interval) bool {
	lo := sort.Search(len(s.ivs), func(i int) bool {
		return !mergeableBefore(s.ivs[i], x)
	})
	hi := lo + sort.Search(len(s.ivs)-lo, func(i int) bool {
		return mergeableAfter(s.ivs[lo+i], x)
	})

	switch {
	case lo == hi:
		// Touches neither neighbor.
		s.ivs = append(s.ivs, Interval{})
		copy(s.ivs[lo+1:], s.ivs[lo:])
		s.ivs[lo] = x
		return true
	case hi-lo == 1 && s.ivs[lo].Covers(x):
		return false
	}

	merged := x
	if s.ivs[lo].Beg < merged.Beg {
		merged.Beg = s.ivs[lo].Beg
	}
	if s.ivs[hi-1].End > merged.End {
		merged.End = s.ivs[hi-1].End
	}
	s.ivs[lo] = merged
	s.ivs = append(s.ivs[:lo+1], s.ivs[hi:]...)
	return true
}

// Erase removes every point of x from the set. Intervals partially covered
// by x are trimmed, and an interval strictly containing x is split in two.
// It returns the number of structural changes: intervals removed plus
// residual intervals added.
func (s *Set) Erase(x Interval) int {
	lo := sort.Search(len(s.ivs), func(i int) bool {
		return s.ivs[i].End >= x.Beg
	})
	hi := lo + sort.Search(len(s.ivs)-lo, func(i int) bool {
		return s.ivs[lo+i].Beg > x.End
	})
	if lo == hi {
		return 0
	}

	var residual [2]Interval
	n := 0
	if first := s.ivs[lo]; first.Beg < x.Beg {
		residual[n] = Interval{Beg: first.Beg, End: x.Beg - 1}
		n++
	}
	if last := s.ivs[hi-1]; last.End > x.End {
		residual[n] = Interval{Beg: x.End + 1, End: last.End}
		n++
	}
	changes := (hi - lo) + n

	tail := append([]Interval(nil), s.ivs[hi:]...)
	s.ivs = append(append(s.ivs[:lo], residual[:n]...), tail...)
	return changes
}

// Merge inserts every interval of other into s.
func (s *Set) Merge(other *Set) {
	for _, x := range other.ivs {
		s.Insert(x)
	}
}

// Find returns the interval containing addr.
func (s *Set) Find(addr uint64) (Interval, bool) {
	i := sort.Search(len(s.ivs), func(i int) bool {
		return s.ivs[i].End >= addr
	})
	if i < len(s.ivs) && s.ivs[i].Beg <= addr {
		return s.ivs[i], true
	}
	return Interval{}, false
}

// Contains reports whether addr is covered by the set.
func (s *Set) Contains(addr uint64) bool {
	_, ok := s.Find(addr)
	return ok
}

// Equal reports whether both sets hold the same intervals.
func (s *Set) Equal(other *Set) bool {
	if len(s.ivs) != len(other.ivs) {
		return false
	}
	for i := range s.ivs {
		if s.ivs[i] != other.ivs[i] {
			return false
		}
	}
	return true
}

// String renders the set as {[lb1-ub1] [lb2-ub2] ...}.
func (s *Set) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, x := range s.ivs {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(x.String())
	}
	sb.WriteByte('}')
	return sb.String()
}

// ParseSet parses the form produced by String.
func ParseSet(str string) (*Set, error) {
	str = strings.TrimSpace(str)
	if len(str) < 2 || str[0] != '{' || str[len(str)-1] != '}' {
		return nil, fmt.Errorf("malformed interval set %q", str)
	}
	s := &Set{}
	for _, tok := range strings.Fields(str[1 : len(str)-1]) {
		x, err := ParseInterval(tok)
		if err != nil {
			return nil, err
		}
		s.Insert(x)
	}
	return s, nil
}
