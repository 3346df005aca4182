package cct

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/callpath-core/pkg/interval"
)

func TestNode_MetricVector(t *testing.T) {
	n := NewRoot("m")
	assert.Equal(t, 0.0, n.Metric(3))
	assert.Equal(t, 0, n.NumMetrics())

	n.SetMetric(2, 4)
	assert.Equal(t, []float64{0, 0, 4}, n.Metrics())
	n.AddMetric(2, 1)
	n.AddMetric(0, 1)
	assert.Equal(t, []float64{1, 0, 5}, n.Metrics())

	n.EnsureMetricsSize(2)
	assert.Equal(t, 3, n.NumMetrics())
	n.EnsureMetricsSize(5)
	assert.Equal(t, []float64{1, 0, 5, 0, 0}, n.Metrics())

	n.InsertMetricsBefore(2)
	assert.Equal(t, []float64{0, 0, 1, 0, 5, 0, 0}, n.Metrics())
	n.InsertMetricsBefore(0)
	assert.Equal(t, 7, n.NumMetrics())

	assert.True(t, n.HasMetrics(0, 3))
	assert.False(t, n.HasMetrics(5, 100))
	n.ZeroMetrics(0, 100)
	assert.False(t, n.HasMetrics(0, 7))
}

func TestNode_ZeroMetricsDeep(t *testing.T) {
	root, frame, stmt := chain(1, 2)
	for _, n := range []*Node{root, frame, stmt} {
		n.SetMetric(0, 1)
		n.SetMetric(1, 2)
	}
	root.ZeroMetricsDeep(1, 2)
	for _, n := range []*Node{root, frame, stmt} {
		assert.Equal(t, []float64{1, 0}, n.Metrics())
	}
	root.ZeroMetricsDeep(1, 1)
	assert.Equal(t, 1.0, stmt.Metric(0))
}

func TestNode_AggregateMetricsIncl(t *testing.T) {
	root := NewRoot("r")
	f := NewNode(KindProcFrame, root)
	s1 := NewNode(KindStmt, f)
	s2 := NewNode(KindStmt, f)
	s1.SetMetric(0, 3)
	s2.SetMetric(0, 4)
	f.SetMetric(0, 1)
	s1.SetMetric(1, 10)

	root.AggregateMetricsIncl(interval.NewSet(interval.New(0, 0)))

	assert.Equal(t, 3.0, s1.Metric(0))
	assert.Equal(t, 4.0, s2.Metric(0))
	assert.Equal(t, 8.0, f.Metric(0))
	assert.Equal(t, 8.0, root.Metric(0))
	// Slot 1 is outside the set.
	assert.Equal(t, 0.0, f.Metric(1))

	root.AggregateMetricsIncl(interval.NewSet())
	assert.Equal(t, 8.0, root.Metric(0))
}

func TestNode_AggregateMetricsExcl(t *testing.T) {
	root := NewRoot("r")
	main := NewNode(KindProcFrame, root)
	loop := NewNode(KindLoop, main)
	inLoop := NewNode(KindStmt, loop)
	direct := NewNode(KindStmt, main)
	call := NewNode(KindCall, loop)
	callee := NewNode(KindProcFrame, call)
	calleeStmt := NewNode(KindStmt, callee)

	inLoop.SetMetric(0, 5)
	direct.SetMetric(0, 2)
	calleeStmt.SetMetric(0, 7)

	root.AggregateMetricsExclRange(0, 1)

	// Statement costs go to the parent scope and the enclosing frame.
	assert.Equal(t, 5.0, loop.Metric(0))
	assert.Equal(t, 7.0, main.Metric(0))
	assert.Equal(t, 7.0, callee.Metric(0))
	// Calls and roots only pass through.
	assert.Equal(t, 0.0, call.Metric(0))
	assert.Equal(t, 0.0, root.Metric(0))
}

func TestNode_AggregateMetricsExcl_AlienFrame(t *testing.T) {
	root := NewRoot("r")
	main := NewNode(KindProcFrame, root)
	inlined := NewNode(KindProcFrame, main)
	inlined.Alien = true
	loop := NewNode(KindLoop, inlined)
	s := NewNode(KindStmt, loop)
	s.SetMetric(0, 4)

	root.AggregateMetricsExclRange(0, 1)

	assert.Equal(t, 4.0, loop.Metric(0))
	assert.Equal(t, 0.0, inlined.Metric(0))
	assert.Equal(t, 4.0, main.Metric(0))
}

func TestRangeSet(t *testing.T) {
	assert.Equal(t, "{[0x2-0x4]}", RangeSet(2, 5).String())
	assert.True(t, RangeSet(3, 3).Empty())
}
