package cct

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type sumExpr struct {
	a, b int
	nf   int
}

func (e *sumExpr) Eval(n *Node) float64 { return n.Metric(e.a) + n.Metric(e.b) }
func (e *sumExpr) EvalNF(*Node)         { e.nf++ }

type phaseRecorder struct {
	calls map[Phase]int
}

func (r *phaseRecorder) Initialize(*Node)    { r.calls[PhaseInit]++ }
func (r *phaseRecorder) InitializeSrc(*Node) { r.calls[PhaseInitSrc]++ }
func (r *phaseRecorder) Accumulate(*Node)    { r.calls[PhaseAccum]++ }
func (r *phaseRecorder) Combine(*Node)       { r.calls[PhaseCombine]++ }
func (r *phaseRecorder) Finalize(*Node)      { r.calls[PhaseFinalize]++ }

type stubTable struct {
	size  int
	exprs map[int]Expr
	incr  map[int]IncrExpr
	incl  map[int]bool
}

func (s *stubTable) Size() int                       { return s.size }
func (s *stubTable) DerivedExpr(id int) Expr         { return s.exprs[id] }
func (s *stubTable) DerivedIncrExpr(id int) IncrExpr { return s.incr[id] }
func (s *stubTable) IsInclusive(id int) bool         { return s.incl[id] }

func TestNode_ComputeMetrics(t *testing.T) {
	root, frame, stmt := chain(1, 2)
	stmt.SetMetric(0, 2)
	stmt.SetMetric(1, 3)
	frame.SetMetric(0, 1)

	sum := &sumExpr{a: 0, b: 1}
	table := &stubTable{size: 3, exprs: map[int]Expr{2: sum}}

	root.ComputeMetrics(table, 0, 3, false)
	assert.Equal(t, 3, sum.nf)
	assert.Equal(t, 0.0, stmt.Metric(2))

	root.ComputeMetrics(table, 0, 3, true)
	assert.Equal(t, 5.0, stmt.Metric(2))
	assert.Equal(t, 1.0, frame.Metric(2))
	assert.Equal(t, 3, root.NumMetrics())

	root.ComputeMetrics(table, 3, 3, true)
	assert.Equal(t, 6, sum.nf)
}

func TestNode_ComputeMetricsIncr(t *testing.T) {
	root, _, _ := chain(1, 2)
	rec := &phaseRecorder{calls: make(map[Phase]int)}
	table := &stubTable{size: 2, incr: map[int]IncrExpr{1: rec}}

	for _, p := range []Phase{PhaseInit, PhaseInitSrc, PhaseAccum, PhaseCombine, PhaseFinalize} {
		root.ComputeMetricsIncr(table, 0, 2, p)
	}
	for _, p := range []Phase{PhaseInit, PhaseInitSrc, PhaseAccum, PhaseCombine, PhaseFinalize} {
		assert.Equal(t, 3, rec.calls[p], "phase %s", p)
	}
	assert.Panics(t, func() { root.ComputeMetricsIncr(table, 0, 2, Phase(99)) })
	assert.Equal(t, "combine", PhaseCombine.String())
}
