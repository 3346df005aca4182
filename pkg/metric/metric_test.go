package metric

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callpath-core/pkg/cct"
)

func node(vals ...float64) *cct.Node {
	n := cct.NewNode(cct.KindStmt, nil)
	for i, v := range vals {
		n.SetMetric(i, v)
	}
	return n
}

func TestMgr(t *testing.T) {
	m := NewMgr()
	samples := m.AddRaw("samples", "count", TypeIncl)
	excl := m.AddRaw("samples (E)", "count", TypeExcl)
	ratio := m.AddDerived("ratio", Ratio{Num: Var(1), Den: Var(0)})
	stat := m.AddDerivedIncr("max", MaxIncr{Dst: 3, Src: 0})

	assert.Equal(t, 4, m.Size())
	assert.Equal(t, 0, samples.ID)
	assert.Equal(t, 2, ratio.ID)
	assert.Same(t, excl, m.Metric(1))
	assert.Nil(t, m.Metric(9))

	d, ok := m.Find("max")
	require.True(t, ok)
	assert.Same(t, stat, d)
	_, ok = m.Find("missing")
	assert.False(t, ok)

	assert.NotNil(t, m.DerivedExpr(2))
	assert.Nil(t, m.DerivedExpr(0))
	assert.NotNil(t, m.DerivedIncrExpr(3))
	assert.Nil(t, m.DerivedIncrExpr(2))
	assert.True(t, m.IsInclusive(0))
	assert.False(t, m.IsInclusive(1))

	assert.Equal(t, "{[0x0-0x1]}", m.RawSet().String())
	assert.Equal(t, "{[0x0-0x0]}", m.InclusiveSet().String())
	assert.Equal(t, "{[0x1-0x1]}", m.ExclusiveSet().String())
	assert.Equal(t, "derived-incr", stat.Kind.String())
	assert.Equal(t, "inclusive", samples.Type.String())
}

func TestBatchExprs(t *testing.T) {
	n := node(2, 4, 9)

	assert.Equal(t, 3.5, Const(3.5).Eval(n))
	assert.Equal(t, 15.0, Sum(Vars(0, 1, 2)).Eval(n))
	assert.Equal(t, 2.0, Min(Vars(1, 0, 2)).Eval(n))
	assert.Equal(t, 9.0, Max(Vars(0, 2, 1)).Eval(n))
	assert.Equal(t, 5.0, Mean(Vars(0, 1, 2)).Eval(n))
	assert.Equal(t, 200.0, Ratio{Num: Var(1), Den: Var(0), Scale: 100}.Eval(n))
	assert.Equal(t, 0.0, Ratio{Num: Var(1), Den: Var(7)}.Eval(n))
	assert.InDelta(t, math.Sqrt(26.0/3), StdDev(Vars(0, 1, 2)).Eval(n), 1e-9)

	assert.Equal(t, 0.0, Min(nil).Eval(n))
	assert.Equal(t, 0.0, Max(nil).Eval(n))
	assert.Equal(t, 0.0, Mean(nil).Eval(n))
	assert.Equal(t, 0.0, StdDev(nil).Eval(n))
}

func TestIncrExprs_Accumulate(t *testing.T) {
	// Slot 0 is the sample source.
	exprs := []cct.IncrExpr{
		MinIncr{Dst: 1, Src: 0},
		MaxIncr{Dst: 2, Src: 0},
		SumIncr{Dst: 3, Src: 0},
		StdDevIncr{Dst: 4, Src: 0, Sum: 5, SumSq: 6, Count: 7},
	}
	n := node()
	for _, e := range exprs {
		e.Initialize(n)
	}
	for _, v := range []float64{4, 2, 6} {
		for _, e := range exprs {
			e.InitializeSrc(n)
		}
		n.SetMetric(0, v)
		for _, e := range exprs {
			e.Accumulate(n)
		}
	}
	for _, e := range exprs {
		e.Finalize(n)
	}

	assert.Equal(t, 2.0, n.Metric(1))
	assert.Equal(t, 6.0, n.Metric(2))
	assert.Equal(t, 12.0, n.Metric(3))
	assert.InDelta(t, math.Sqrt(8.0/3), n.Metric(4), 1e-9)
	assert.Equal(t, 3.0, n.Metric(7))
}

func TestIncrExprs_FinalizeUntouched(t *testing.T) {
	n := node()
	MinIncr{Dst: 0, Src: 3}.Initialize(n)
	MaxIncr{Dst: 1, Src: 3}.Initialize(n)
	assert.True(t, math.IsInf(n.Metric(0), 1))

	MinIncr{Dst: 0, Src: 3}.Finalize(n)
	MaxIncr{Dst: 1, Src: 3}.Finalize(n)
	StdDevIncr{Dst: 2, Src: 3, Sum: 4, SumSq: 5, Count: 6}.Finalize(n)
	assert.Equal(t, 0.0, n.Metric(0))
	assert.Equal(t, 0.0, n.Metric(1))
	assert.Equal(t, 0.0, n.Metric(2))
}

func TestStdDevIncr_Combine(t *testing.T) {
	e := StdDevIncr{Dst: 0, Src: 1, Sum: 2, SumSq: 3, Count: 4, SrcSq: 5, SrcCount: 6}
	n := node()
	e.Initialize(n)
	// Partner saw 2 and 4; this side sees 6.
	n.SetMetric(1, 6)
	e.Accumulate(n)
	n.SetMetric(1, 6)
	n.SetMetric(5, 20)
	n.SetMetric(6, 2)
	e.Combine(n)
	e.Finalize(n)

	assert.Equal(t, 3.0, n.Metric(4))
	assert.InDelta(t, math.Sqrt(8.0/3), n.Metric(0), 1e-9)
}

func TestMgr_DrivesTreeComputation(t *testing.T) {
	m := NewMgr()
	m.AddRaw("a", "", TypeIncl)
	m.AddRaw("b", "", TypeIncl)
	m.AddDerived("a+b", Sum(Vars(0, 1)))

	tr := cct.NewRootTree("t")
	leaf := tr.InsertBacktrace([]cct.Frame{{IP: 1}, {IP: 2}}, 0, 3)
	leaf.AddMetric(1, 4)
	tr.Root().AggregateMetricsIncl(m.InclusiveSet())
	tr.Root().ComputeMetrics(m, 0, m.Size(), true)

	assert.Equal(t, 7.0, leaf.Metric(2))
	assert.Equal(t, 7.0, tr.Root().Metric(2))
}
