// Package profile builds per-thread calling-context trees from samples and
// reduces many of them into one tree with per-thread metric blocks.
package profile

import (
	"github.com/callpath-core/pkg/cct"
	"github.com/callpath-core/pkg/metric"
)

// Slots of a thread profile's metric block.
const (
	SlotValue  = iota // sum of sample values, inclusive after reduction
	SlotCount         // number of samples, inclusive after reduction
	SlotSrc           // scratch source for the streaming statistics
	SlotMin           // smallest single sample at the context
	SlotMax           // largest single sample at the context
	SlotStdDev        // standard deviation of samples at the context
	slotSum
	slotSumSq
	slotN

	// BlockSize is the number of metric slots owned by one thread.
	BlockSize
)

// NewThreadLayout returns the metric table of one thread profile. unit
// names the unit of sample values.
func NewThreadLayout(unit string) *metric.Mgr {
	m := metric.NewMgr()
	m.AddRaw("value", unit, metric.TypeIncl)
	m.AddRaw("count", "samples", metric.TypeIncl)
	m.Add(metric.Desc{Name: "value.src", Kind: metric.KindRaw})
	m.Add(metric.Desc{
		Name: "value.min", Unit: unit, Kind: metric.KindDerivedIncr, Visible: true,
		IncrExpr: metric.MinIncr{Dst: SlotMin, Src: SlotSrc},
	})
	m.Add(metric.Desc{
		Name: "value.max", Unit: unit, Kind: metric.KindDerivedIncr, Visible: true,
		IncrExpr: metric.MaxIncr{Dst: SlotMax, Src: SlotSrc},
	})
	m.Add(metric.Desc{
		Name: "value.stddev", Unit: unit, Kind: metric.KindDerivedIncr, Visible: true,
		IncrExpr: metric.StdDevIncr{Dst: SlotStdDev, Src: SlotSrc, Sum: slotSum, SumSq: slotSumSq, Count: slotN},
	})
	m.Add(metric.Desc{Name: "value.sum", Kind: metric.KindRaw})
	m.Add(metric.Desc{Name: "value.sumsq", Kind: metric.KindRaw})
	m.Add(metric.Desc{Name: "value.n", Kind: metric.KindRaw})
	return m
}

// Source is a sealed tree ready for reduction. Layout describes the metric
// slots of every node, starting at 0.
type Source struct {
	Name   string
	Tree   *cct.Tree
	Layout *metric.Mgr
}

// Width returns the number of metric slots the source occupies.
func (s Source) Width() int {
	return s.Layout.Size()
}
