package cct

import (
	"fmt"
	"slices"

	"github.com/cockroachdb/errors"
)

// MergeFlags alter how unmatched donor subtrees are handled.
type MergeFlags uint8

const (
	// MergeOnly merges matched nodes and leaves unmatched donor subtrees
	// in the donor tree.
	MergeOnly MergeFlags = 1 << iota
	// AssertMergeOnly treats an unmatched donor subtree as a fatal error.
	AssertMergeOnly
)

// EffectKind classifies a merge side effect.
type EffectKind uint8

const (
	// EffectCPIDConflict: two matched nodes carried different non-zero
	// call-path ids. The destination id was kept.
	EffectCPIDConflict EffectKind = iota + 1
	// EffectCPIDDuplicate: a transplanted node carries a call-path id
	// already present in the destination tree.
	EffectCPIDDuplicate
)

// MergeEffect records a call-path id the merge could not reconcile.
// Resolving these is left to the caller; the merge never renumbers ids.
type MergeEffect struct {
	Kind    EffectKind
	NodeID  uint32
	OldCPID uint32
	NewCPID uint32
}

func (e MergeEffect) String() string {
	switch e.Kind {
	case EffectCPIDConflict:
		return fmt.Sprintf("node %d: cpid %d kept over %d", e.NodeID, e.NewCPID, e.OldCPID)
	case EffectCPIDDuplicate:
		return fmt.Sprintf("node %d: duplicate cpid %d", e.NodeID, e.OldCPID)
	default:
		return "noop"
	}
}

// IsNoop reports whether the effect is empty.
func (e MergeEffect) IsNoop() bool { return e.Kind == 0 }

// MergeContext carries state across one merge.
type MergeContext struct {
	Flags MergeFlags
	cpIDs map[uint32]bool
}

// NewMergeContext returns a context for merging into the subtree at dst.
func NewMergeContext(dst *Node, flags MergeFlags) *MergeContext {
	ctx := &MergeContext{Flags: flags, cpIDs: make(map[uint32]bool)}
	for n := range dst.Walk(WalkOptions{Filter: IsDynamicFilter}) {
		if n.dyn.CPID != 0 {
			ctx.cpIDs[n.dyn.CPID] = true
		}
	}
	return ctx
}

func (ctx *MergeContext) noteCPID(cp uint32) bool {
	if cp == 0 || ctx == nil {
		return true
	}
	if ctx.cpIDs[cp] {
		return false
	}
	ctx.cpIDs[cp] = true
	return true
}

// Mergeable reports whether the roots of two trees may be merged: both are
// Root nodes, or both are dynamic nodes for the same call site.
func Mergeable(x, y *Node) bool {
	if x.kind == KindRoot && y.kind == KindRoot {
		return true
	}
	return x.dyn != nil && y.dyn != nil && x.dyn.Mergeable(y.dyn)
}

// Merge merges y into t. Metrics of y land at [newMetricBegIdx,
// newMetricBegIdx+n) in t's vectors. Unmatched subtrees of y are moved, not
// copied, so y must not be used afterwards.
//
// The roots must be Mergeable; anything else is a programming error and
// panics.
func (t *Tree) Merge(y *Tree, newMetricBegIdx int, flags MergeFlags) []MergeEffect {
	x, yr := t.root, y.root
	if !Mergeable(x, yr) {
		panic(errors.AssertionFailedf("cct: merge precondition fails: %s vs %s", x, yr))
	}
	ctx := NewMergeContext(x, flags)

	var effects []MergeEffect
	if e := x.mergeMe(yr, newMetricBegIdx, ctx); !e.IsNoop() {
		effects = append(effects, e)
	}
	effects = append(effects, x.MergeDeep(yr, newMetricBegIdx, ctx)...)

	t.InvalidateIndex()
	y.InvalidateIndex()
	return effects
}

// MergeDeep merges the children of y into x recursively. A child of y with
// a matching node under x is merged into it; otherwise the child's subtree
// is moved under x with its metrics shifted by newMetricBegIdx.
func (x *Node) MergeDeep(y *Node, newMetricBegIdx int, ctx *MergeContext) []MergeEffect {
	if y.IsLeaf() {
		return nil
	}
	if ctx == nil {
		ctx = NewMergeContext(x, 0)
	}

	var effects []MergeEffect
	for _, yc := range slices.Clone(y.children) {
		xc := x.findMergeableChild(yc)
		if xc == nil {
			if ctx.Flags&AssertMergeOnly != 0 {
				panic(errors.AssertionFailedf("cct: adding %s not permitted", yc))
			}
			if ctx.Flags&MergeOnly != 0 {
				continue
			}
			yc.Unlink()
			effects = append(effects, yc.mergeDeepFixup(newMetricBegIdx, ctx)...)
			yc.Link(x)
			continue
		}

		if e := xc.mergeMe(yc, newMetricBegIdx, ctx); !e.IsNoop() {
			effects = append(effects, e)
		}
		effects = append(effects, xc.MergeDeep(yc, newMetricBegIdx, ctx)...)
	}
	return effects
}

// Merge folds y into x one level deep: y's metrics are added to x, all of
// y's children are re-parented to x without matching, and y is unlinked.
// The caller guarantees that the children do not collide.
func (x *Node) Merge(y *Node) MergeEffect {
	e := x.mergeMe(y, 0, nil)
	for _, yc := range slices.Clone(y.children) {
		yc.Unlink()
		yc.Link(x)
	}
	y.Unlink()
	return e
}

// FindDynChild returns the first dynamic descendant of x mergeable with
// y, looking through static intermediate nodes.
func (x *Node) FindDynChild(y *Node) *Node {
	if y.dyn == nil {
		return nil
	}
	for _, c := range x.children {
		if c.dyn != nil {
			if c.dyn.Mergeable(y.dyn) {
				return c
			}
			continue
		}
		if d := c.FindDynChild(y); d != nil {
			return d
		}
	}
	return nil
}

// findMergeableChild matches dynamic nodes by call site and static nodes
// by kind, structure id and name among x's immediate children.
func (x *Node) findMergeableChild(y *Node) *Node {
	if y.dyn != nil {
		return x.FindDynChild(y)
	}
	for _, c := range x.children {
		if c.dyn == nil && c.kind == y.kind && c.structID == y.structID && c.Name == y.Name {
			return c
		}
	}
	return nil
}

// mergeMe adds y's metrics into x at offset beg and reconciles call-path
// ids. The first non-zero id wins; an id adopted from y that the
// destination already holds is reported as a duplicate.
func (x *Node) mergeMe(y *Node, beg int, ctx *MergeContext) MergeEffect {
	end := beg + len(y.metrics)
	x.EnsureMetricsSize(end)
	for xi, yi := beg, 0; xi < end; xi, yi = xi+1, yi+1 {
		x.metrics[xi] += y.metrics[yi]
	}

	if x.dyn == nil || y.dyn == nil {
		return MergeEffect{}
	}
	switch xc, yc := x.dyn.CPID, y.dyn.CPID; {
	case yc == 0 || xc == yc:
	case xc == 0:
		x.dyn.CPID = yc
		if !ctx.noteCPID(yc) {
			return MergeEffect{Kind: EffectCPIDDuplicate, NodeID: x.id, OldCPID: yc, NewCPID: yc}
		}
	default:
		// Merging two different call-path ids is not supported.
		return MergeEffect{Kind: EffectCPIDConflict, NodeID: x.id, OldCPID: yc, NewCPID: xc}
	}
	return MergeEffect{}
}

// mergeDeepFixup prepares a subtree moved into the destination: metrics
// are shifted past the destination's existing range and call-path ids are
// checked for collisions.
func (n *Node) mergeDeepFixup(newMetricBegIdx int, ctx *MergeContext) []MergeEffect {
	var effects []MergeEffect
	for x := range n.PreOrder() {
		if cp := x.CPID(); !ctx.noteCPID(cp) {
			effects = append(effects, MergeEffect{Kind: EffectCPIDDuplicate, NodeID: x.id, OldCPID: cp, NewCPID: cp})
		}
		x.InsertMetricsBefore(newMetricBegIdx)
	}
	return effects
}
