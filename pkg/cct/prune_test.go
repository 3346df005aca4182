package cct

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/callpath-core/pkg/collections"
	"github.com/callpath-core/pkg/interval"
)

func TestTree_PruneByMetrics(t *testing.T) {
	tr := NewRootTree("p")
	root := tr.Root()
	a := NewNode(KindCall, root)
	a1 := NewNode(KindStmt, a)
	b := NewNode(KindCall, root)
	b1 := NewNode(KindStmt, b)
	d := NewNode(KindCall, root)
	kept := NewDynNode(KindStmt, d, DynInfo{IP: 9, CPID: 3})

	a1.SetMetric(0, 80)
	b1.SetMetric(0, 5)
	kept.SetMetric(0, 3)
	root.AggregateMetricsInclRange(0, 1)
	assert.Equal(t, 88.0, root.Metric(0))

	table := &stubTable{size: 1, incl: map[int]bool{0: true}}
	deleted := collections.NewBitset(64)
	tr.PruneByMetrics(table, interval.NewSet(interval.New(0, 0)), 10, deleted)

	assert.Equal(t, []*Node{a, d}, root.Children())
	assert.Same(t, a, a1.Parent())
	assert.Same(t, d, kept.Parent())
	assert.True(t, deleted.Test(int(b.ID())))
	assert.True(t, deleted.Test(int(b1.ID())))
	assert.False(t, deleted.Test(int(d.ID())))
	assert.Nil(t, tr.FindNode(b.ID()))
}

func TestTree_PruneByMetrics_NoInclusiveMetrics(t *testing.T) {
	tr := NewRootTree("p")
	NewNode(KindStmt, tr.Root()).SetMetric(0, 1)
	table := &stubTable{size: 1}
	tr.PruneByMetrics(table, interval.NewSet(interval.New(0, 0)), 50, nil)
	assert.Equal(t, 2, tr.NodeCount())
}

func TestTree_PruneByNodeID(t *testing.T) {
	tr := NewRootTree("p")
	a := NewNode(KindCall, tr.Root())
	a1 := NewNode(KindStmt, a)
	a2 := NewNode(KindStmt, a)
	tr.MakeDensePreorderIds()

	marks := collections.NewBitset(16)
	marks.Set(int(a1.ID()))
	tr.PruneByNodeID(marks)
	assert.Equal(t, []*Node{a2}, a.Children())

	marks.Set(int(tr.Root().ID()))
	assert.Panics(t, func() { tr.PruneByNodeID(marks) })
}

func TestRetainCPID(t *testing.T) {
	assert.True(t, RetainCPID(3))
	assert.False(t, RetainCPID(4))
	assert.False(t, RetainCPID(0))
}
