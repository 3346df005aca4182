package cct

import (
	"slices"

	"github.com/cockroachdb/errors"

	"github.com/callpath-core/pkg/collections"
	"github.com/callpath-core/pkg/interval"
)

// RetainIDFlag marks a call-path id whose node must survive pruning, for
// example because a trace refers to it.
const RetainIDFlag uint32 = 0x1

// RetainCPID reports whether cp carries RetainIDFlag.
func RetainCPID(cp uint32) bool {
	return cp&RetainIDFlag != 0
}

// PruneByMetrics deletes every subtree whose inclusive metrics in set are
// all below thresholdPct percent of the root's value. Ids of deleted nodes
// are recorded in deleted when it is non-nil.
func (t *Tree) PruneByMetrics(table MetricTable, set *interval.Set, thresholdPct float64, deleted *collections.Bitset) {
	t.root.pruneByMetrics(table, set, t.root, thresholdPct, deleted)
	t.InvalidateIndex()
}

func (n *Node) pruneByMetrics(table MetricTable, set *interval.Set, root *Node, thresholdPct float64, deleted *collections.Bitset) {
	for _, x := range slices.Clone(n.children) {
		numIncl := 0
		important := false
	scan:
		for iv := range set.All() {
			for id := int(iv.Beg); id <= int(iv.End); id++ {
				if !table.IsInclusive(id) {
					continue
				}
				numIncl++
				total := root.Metric(id)
				if x.Metric(id)*100/total >= thresholdPct {
					important = true
					break scan
				}
			}
		}

		if important || numIncl == 0 {
			x.pruneByMetrics(table, set, root, thresholdPct, deleted)
		} else {
			deleteChaff(x, deleted)
		}
	}
}

// PruneByNodeID deletes every subtree whose root id is marked.
func (t *Tree) PruneByNodeID(marked *collections.Bitset) {
	if marked.Test(int(t.root.id)) {
		panic(errors.AssertionFailedf("cct: cannot prune the root"))
	}
	t.root.pruneChildrenByNodeID(marked)
	t.InvalidateIndex()
}

func (n *Node) pruneChildrenByNodeID(marked *collections.Bitset) {
	for _, c := range slices.Clone(n.children) {
		if marked.Test(int(c.id)) {
			c.Unlink()
			continue
		}
		c.pruneChildrenByNodeID(marked)
	}
}

// deleteChaff deletes x's subtree bottom-up, sparing leaves whose call-path
// id must be retained and therefore their ancestors. It reports whether x
// itself was deleted.
func deleteChaff(x *Node, deleted *collections.Bitset) bool {
	isLeaf := x.IsLeaf()

	allDeleted := true
	for _, c := range slices.Clone(x.children) {
		allDeleted = deleteChaff(c, deleted) && allDeleted
	}
	if !allDeleted {
		return false
	}
	if isLeaf && RetainCPID(x.CPID()) {
		return false
	}
	x.Unlink()
	if deleted != nil {
		deleted.Set(int(x.id))
	}
	return true
}
