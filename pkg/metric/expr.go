package metric

import (
	"math"

	"github.com/callpath-core/pkg/cct"
)

// ============================================================================
// Batch expressions
// ============================================================================

// Const evaluates to a fixed value.
type Const float64

// Eval implements cct.Expr.
func (c Const) Eval(*cct.Node) float64 { return float64(c) }

// Var reads metric slot ID of the node.
type Var int

// Eval implements cct.Expr.
func (v Var) Eval(n *cct.Node) float64 { return n.Metric(int(v)) }

// Vars returns a Var per id.
func Vars(ids ...int) []cct.Expr {
	out := make([]cct.Expr, len(ids))
	for i, id := range ids {
		out[i] = Var(id)
	}
	return out
}

// Sum adds its operands.
type Sum []cct.Expr

// Eval implements cct.Expr.
func (s Sum) Eval(n *cct.Node) float64 {
	total := 0.0
	for _, e := range s {
		total += e.Eval(n)
	}
	return total
}

// Ratio divides Num by Den, yielding 0 for a zero denominator.
type Ratio struct {
	Num, Den cct.Expr
	// Scale multiplies the result; 0 means 1.
	Scale float64
}

// Eval implements cct.Expr.
func (r Ratio) Eval(n *cct.Node) float64 {
	den := r.Den.Eval(n)
	if den == 0 {
		return 0
	}
	v := r.Num.Eval(n) / den
	if r.Scale != 0 {
		v *= r.Scale
	}
	return v
}

// Min returns the smallest operand.
type Min []cct.Expr

// Eval implements cct.Expr.
func (m Min) Eval(n *cct.Node) float64 {
	if len(m) == 0 {
		return 0
	}
	v := m[0].Eval(n)
	for _, e := range m[1:] {
		v = math.Min(v, e.Eval(n))
	}
	return v
}

// Max returns the largest operand.
type Max []cct.Expr

// Eval implements cct.Expr.
func (m Max) Eval(n *cct.Node) float64 {
	if len(m) == 0 {
		return 0
	}
	v := m[0].Eval(n)
	for _, e := range m[1:] {
		v = math.Max(v, e.Eval(n))
	}
	return v
}

// Mean averages its operands.
type Mean []cct.Expr

// Eval implements cct.Expr.
func (m Mean) Eval(n *cct.Node) float64 {
	if len(m) == 0 {
		return 0
	}
	return Sum(m).Eval(n) / float64(len(m))
}

// StdDev is the population standard deviation of its operands.
type StdDev []cct.Expr

// Eval implements cct.Expr.
func (s StdDev) Eval(n *cct.Node) float64 {
	if len(s) == 0 {
		return 0
	}
	mean := Mean(s).Eval(n)
	acc := 0.0
	for _, e := range s {
		d := e.Eval(n) - mean
		acc += d * d
	}
	return math.Sqrt(acc / float64(len(s)))
}

// ============================================================================
// Incremental expressions
// ============================================================================
//
// Incremental expressions keep accumulators in metric slots. Src holds the
// value being folded: a fresh sample during Accumulate, or the accumulator
// of another partial result during Combine.

// MinIncr tracks the minimum of Src in Dst.
type MinIncr struct{ Dst, Src int }

func (e MinIncr) Initialize(n *cct.Node)    { n.SetMetric(e.Dst, math.Inf(1)) }
func (e MinIncr) InitializeSrc(n *cct.Node) { n.SetMetric(e.Src, 0) }
func (e MinIncr) Accumulate(n *cct.Node) {
	n.SetMetric(e.Dst, math.Min(n.Metric(e.Dst), n.Metric(e.Src)))
}
func (e MinIncr) Combine(n *cct.Node) { e.Accumulate(n) }

// Finalize clears accumulators that never saw a value.
func (e MinIncr) Finalize(n *cct.Node) {
	if math.IsInf(n.Metric(e.Dst), 1) {
		n.SetMetric(e.Dst, 0)
	}
}

// MaxIncr tracks the maximum of Src in Dst.
type MaxIncr struct{ Dst, Src int }

func (e MaxIncr) Initialize(n *cct.Node)    { n.SetMetric(e.Dst, math.Inf(-1)) }
func (e MaxIncr) InitializeSrc(n *cct.Node) { n.SetMetric(e.Src, 0) }
func (e MaxIncr) Accumulate(n *cct.Node) {
	n.SetMetric(e.Dst, math.Max(n.Metric(e.Dst), n.Metric(e.Src)))
}
func (e MaxIncr) Combine(n *cct.Node) { e.Accumulate(n) }

// Finalize clears accumulators that never saw a value.
func (e MaxIncr) Finalize(n *cct.Node) {
	if math.IsInf(n.Metric(e.Dst), -1) {
		n.SetMetric(e.Dst, 0)
	}
}

// SumIncr adds Src into Dst.
type SumIncr struct{ Dst, Src int }

func (e SumIncr) Initialize(n *cct.Node)    { n.SetMetric(e.Dst, 0) }
func (e SumIncr) InitializeSrc(n *cct.Node) { n.SetMetric(e.Src, 0) }
func (e SumIncr) Accumulate(n *cct.Node)    { n.AddMetric(e.Dst, n.Metric(e.Src)) }
func (e SumIncr) Combine(n *cct.Node)       { e.Accumulate(n) }
func (e SumIncr) Finalize(*cct.Node)        {}

// StdDevIncr computes the standard deviation of the values passed through
// Src. Sum, SumSq and Count are accumulator slots; Dst receives the result
// at Finalize. During Combine the partner's accumulators are expected in
// Src (sum), SrcSq and SrcCount.
type StdDevIncr struct {
	Dst, Src          int
	Sum, SumSq, Count int
	SrcSq, SrcCount   int
}

func (e StdDevIncr) Initialize(n *cct.Node) {
	n.SetMetric(e.Sum, 0)
	n.SetMetric(e.SumSq, 0)
	n.SetMetric(e.Count, 0)
	n.SetMetric(e.Dst, 0)
}

func (e StdDevIncr) InitializeSrc(n *cct.Node) { n.SetMetric(e.Src, 0) }

func (e StdDevIncr) Accumulate(n *cct.Node) {
	v := n.Metric(e.Src)
	n.AddMetric(e.Sum, v)
	n.AddMetric(e.SumSq, v*v)
	n.AddMetric(e.Count, 1)
}

func (e StdDevIncr) Combine(n *cct.Node) {
	n.AddMetric(e.Sum, n.Metric(e.Src))
	n.AddMetric(e.SumSq, n.Metric(e.SrcSq))
	n.AddMetric(e.Count, n.Metric(e.SrcCount))
}

func (e StdDevIncr) Finalize(n *cct.Node) {
	cnt := n.Metric(e.Count)
	if cnt == 0 {
		n.SetMetric(e.Dst, 0)
		return
	}
	mean := n.Metric(e.Sum) / cnt
	variance := n.Metric(e.SumSq)/cnt - mean*mean
	if variance < 0 {
		variance = 0
	}
	n.SetMetric(e.Dst, math.Sqrt(variance))
}
