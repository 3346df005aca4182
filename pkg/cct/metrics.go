package cct

import (
	"slices"

	"github.com/callpath-core/pkg/interval"
)

// NumMetrics returns the length of the node's metric vector.
func (n *Node) NumMetrics() int { return len(n.metrics) }

// Metrics returns the metric vector. The slice must not be modified.
func (n *Node) Metrics() []float64 { return n.metrics }

// Metric returns metric i, or 0 if the vector is shorter.
func (n *Node) Metric(i int) float64 {
	if i < 0 || i >= len(n.metrics) {
		return 0
	}
	return n.metrics[i]
}

// SetMetric stores v in slot i, growing the vector as needed.
func (n *Node) SetMetric(i int, v float64) {
	n.EnsureMetricsSize(i + 1)
	n.metrics[i] = v
}

// AddMetric adds v to slot i, growing the vector as needed.
func (n *Node) AddMetric(i int, v float64) {
	n.EnsureMetricsSize(i + 1)
	n.metrics[i] += v
}

// demandMetric returns a pointer to slot i, growing the vector to at least
// size slots.
func (n *Node) demandMetric(i, size int) *float64 {
	if size < i+1 {
		size = i + 1
	}
	n.EnsureMetricsSize(size)
	return &n.metrics[i]
}

// EnsureMetricsSize grows the metric vector to at least size zeroed slots.
func (n *Node) EnsureMetricsSize(size int) {
	if old := len(n.metrics); size > old {
		n.metrics = slices.Grow(n.metrics, size-old)[:size]
		clear(n.metrics[old:])
	}
}

// InsertMetricsBefore shifts every metric up by count slots, zeroing the
// vacated prefix.
func (n *Node) InsertMetricsBefore(count int) {
	if count <= 0 {
		return
	}
	n.metrics = slices.Insert(n.metrics, 0, make([]float64, count)...)
}

// ZeroMetrics zeroes slots [beg, end) that exist.
func (n *Node) ZeroMetrics(beg, end int) {
	end = min(end, len(n.metrics))
	for i := beg; i < end; i++ {
		n.metrics[i] = 0
	}
}

// HasMetrics reports whether any slot in [beg, end) is non-zero.
func (n *Node) HasMetrics(beg, end int) bool {
	end = min(end, len(n.metrics))
	for i := beg; i < end; i++ {
		if n.metrics[i] != 0 {
			return true
		}
	}
	return false
}

// ZeroMetricsDeep zeroes slots [beg, end) on every node of the subtree.
func (n *Node) ZeroMetricsDeep(beg, end int) {
	if beg >= end {
		return
	}
	for x := range n.PreOrder() {
		x.ZeroMetrics(beg, end)
	}
}

// RangeSet returns the metric-id set [beg, end).
func RangeSet(beg, end int) *interval.Set {
	s := interval.NewSet()
	if beg < end {
		s.Insert(interval.New(uint64(beg), uint64(end-1)))
	}
	return s
}

// AggregateMetricsIncl turns per-node values into inclusive values for the
// metric ids in set: every node's value is added into its parent in post
// order, so each node ends up holding itself plus all descendants.
func (n *Node) AggregateMetricsIncl(set *interval.Set) {
	if set.Empty() {
		return
	}
	root := n
	for x := range n.PostOrder() {
		if x == root {
			continue
		}
		p := x.parent
		for iv := range set.All() {
			size := int(iv.End) + 1
			for id := int(iv.Beg); id < size; id++ {
				v := *x.demandMetric(id, size)
				*p.demandMetric(id, size) += v
			}
		}
	}
}

// AggregateMetricsInclRange is AggregateMetricsIncl over [beg, end).
func (n *Node) AggregateMetricsInclRange(beg, end int) {
	n.AggregateMetricsIncl(RangeSet(beg, end))
}

// AggregateMetricsExcl attributes statement costs for the metric ids in set
// to their enclosing scopes: each Stmt adds its value into its parent and
// into the nearest enclosing procedure frame when that is not the parent.
// Loops and calls only pass costs through.
func (n *Node) AggregateMetricsExcl(set *interval.Set) {
	if set.Empty() {
		return
	}
	n.aggregateMetricsExcl(nil, set)
}

// AggregateMetricsExclRange is AggregateMetricsExcl over [beg, end).
func (n *Node) AggregateMetricsExclRange(beg, end int) {
	n.AggregateMetricsExcl(RangeSet(beg, end))
}

func (n *Node) aggregateMetricsExcl(frame *Node, set *interval.Set) {
	frameNext := frame
	if n.isLogicalProc() {
		frameNext = n
	}
	for _, c := range n.children {
		c.aggregateMetricsExcl(frameNext, set)
	}

	if n.kind != KindStmt || n.parent == nil {
		return
	}
	p := n.parent
	for iv := range set.All() {
		size := int(iv.End) + 1
		for id := int(iv.Beg); id < size; id++ {
			v := *n.demandMetric(id, size)
			*p.demandMetric(id, size) += v
			if frame != nil && frame != p {
				*frame.demandMetric(id, size) += v
			}
		}
	}
}
