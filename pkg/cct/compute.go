package cct

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Expr is a derived metric evaluated once per node.
type Expr interface {
	Eval(n *Node) float64
}

// NonFinalEvaluator is implemented by expressions that need a pass over a
// node before the final evaluation.
type NonFinalEvaluator interface {
	EvalNF(n *Node)
}

// Phase is a step of the incremental derived-metric protocol.
type Phase int

// Incremental evaluation phases.
const (
	// PhaseInit prepares the accumulator slots of a node.
	PhaseInit Phase = iota
	// PhaseInitSrc prepares the source slots of a node.
	PhaseInitSrc
	// PhaseAccum folds one source sample into the accumulators.
	PhaseAccum
	// PhaseCombine folds accumulators from another thread or tree.
	PhaseCombine
	// PhaseFinalize produces the final derived value.
	PhaseFinalize
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseInitSrc:
		return "init-src"
	case PhaseAccum:
		return "accumulate"
	case PhaseCombine:
		return "combine"
	case PhaseFinalize:
		return "finalize"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// IncrExpr is a derived metric computed incrementally through the phases.
type IncrExpr interface {
	Initialize(n *Node)
	InitializeSrc(n *Node)
	Accumulate(n *Node)
	Combine(n *Node)
	Finalize(n *Node)
}

// MetricTable describes the metrics stored in node vectors.
type MetricTable interface {
	// Size returns the number of metrics.
	Size() int
	// DerivedExpr returns the batch expression of metric id, or nil.
	DerivedExpr(id int) Expr
	// DerivedIncrExpr returns the incremental expression of metric id, or nil.
	DerivedIncrExpr(id int) IncrExpr
	// IsInclusive reports whether metric id holds inclusive values.
	IsInclusive(id int) bool
}

// ComputeMetrics evaluates batch derived metrics [beg, end) on every node
// in pre-order. Results are stored only when final is set.
func (n *Node) ComputeMetrics(table MetricTable, beg, end int, final bool) {
	if beg >= end {
		return
	}
	size := table.Size()
	for x := range n.PreOrder() {
		for id := beg; id < end; id++ {
			e := table.DerivedExpr(id)
			if e == nil {
				continue
			}
			if nf, ok := e.(NonFinalEvaluator); ok {
				nf.EvalNF(x)
			}
			if final {
				*x.demandMetric(id, size) = e.Eval(x)
			}
		}
	}
}

// ComputeMetricsIncr runs phase p of the incremental derived metrics
// [beg, end) on every node in pre-order.
func (n *Node) ComputeMetricsIncr(table MetricTable, beg, end int, p Phase) {
	if beg >= end {
		return
	}
	for x := range n.PreOrder() {
		for id := beg; id < end; id++ {
			e := table.DerivedIncrExpr(id)
			if e == nil {
				continue
			}
			switch p {
			case PhaseInit:
				e.Initialize(x)
			case PhaseInitSrc:
				e.InitializeSrc(x)
			case PhaseAccum:
				e.Accumulate(x)
			case PhaseCombine:
				e.Combine(x)
			case PhaseFinalize:
				e.Finalize(x)
			default:
				panic(errors.AssertionFailedf("cct: unexpected phase %v", p))
			}
		}
	}
}
