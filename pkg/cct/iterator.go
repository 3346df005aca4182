package cct

import (
	"cmp"
	"iter"
	"slices"

	"github.com/callpath-core/pkg/collections"
)

// Order selects the traversal order of Walk.
type Order int

const (
	// PreOrder visits a node before its children.
	PreOrder Order = iota
	// PostOrder visits a node after its children.
	PostOrder
)

// Filter selects which nodes a walk yields. Traversal continues through
// nodes the filter rejects.
type Filter func(*Node) bool

// IsDynamicFilter keeps only nodes with a dynamic context.
func IsDynamicFilter(n *Node) bool { return n.dyn != nil }

// KindFilter keeps only nodes of kind k.
func KindFilter(k Kind) Filter {
	return func(n *Node) bool { return n.kind == k }
}

// WalkOptions configure Walk.
type WalkOptions struct {
	Order      Order
	Filter     Filter
	LeavesOnly bool
	// Compare, when set, visits children in sorted order.
	Compare func(a, b *Node) int
}

type walkFrame struct {
	node    *Node
	visited bool
}

// Walk iterates the subtree rooted at n. Children are snapshotted when
// their parent is expanded, so the yielded node may be unlinked or
// re-parented by the caller.
func (n *Node) Walk(opts WalkOptions) iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		stack := collections.NewStack[walkFrame](32)
		stack.Push(walkFrame{node: n})

		for !stack.IsEmpty() {
			f, _ := stack.Pop()
			x := f.node

			if opts.Order == PostOrder && !f.visited {
				stack.Push(walkFrame{node: x, visited: true})
				pushChildren(stack, x, opts.Compare)
				continue
			}
			if opts.Order == PreOrder {
				pushChildren(stack, x, opts.Compare)
			}

			if opts.LeavesOnly && !x.IsLeaf() {
				continue
			}
			if opts.Filter != nil && !opts.Filter(x) {
				continue
			}
			if !yield(x) {
				return
			}
		}
	}
}

func pushChildren(stack *collections.Stack[walkFrame], x *Node, compare func(a, b *Node) int) {
	kids := x.children
	if compare != nil && len(kids) > 1 {
		kids = slices.Clone(kids)
		slices.SortStableFunc(kids, compare)
	}
	for i := len(kids) - 1; i >= 0; i-- {
		stack.Push(walkFrame{node: kids[i]})
	}
}

// PreOrder iterates the subtree in pre-order.
func (n *Node) PreOrder() iter.Seq[*Node] {
	return n.Walk(WalkOptions{Order: PreOrder})
}

// PostOrder iterates the subtree in post-order.
func (n *Node) PostOrder() iter.Seq[*Node] {
	return n.Walk(WalkOptions{Order: PostOrder})
}

// Leaves iterates the leaves of the subtree, left to right.
func (n *Node) Leaves() iter.Seq[*Node] {
	return n.Walk(WalkOptions{Order: PreOrder, LeavesOnly: true})
}

// SortedPreOrder iterates the subtree in pre-order visiting children in
// the order given by compare.
func (n *Node) SortedPreOrder(compare func(a, b *Node) int) iter.Seq[*Node] {
	return n.Walk(WalkOptions{Order: PreOrder, Compare: compare})
}

// SortedChildren returns the children ordered by compare.
func (n *Node) SortedChildren(compare func(a, b *Node) int) []*Node {
	kids := slices.Clone(n.children)
	slices.SortStableFunc(kids, compare)
	return kids
}

// CompareByStructure orders nodes by structure id and then by static and
// dynamic identity. It never looks at node ids, so structurally identical
// trees sort the same way.
func CompareByStructure(a, b *Node) int {
	if c := cmp.Compare(a.structID, b.structID); c != 0 {
		return c
	}
	if c := cmp.Compare(a.kind, b.kind); c != 0 {
		return c
	}
	var ad, bd DynInfo
	if a.dyn != nil {
		ad = *a.dyn
	}
	if b.dyn != nil {
		bd = *b.dyn
	}
	if c := cmp.Compare(ad.LoadModuleID, bd.LoadModuleID); c != 0 {
		return c
	}
	if c := cmp.Compare(ad.IP, bd.IP); c != 0 {
		return c
	}
	if c := cmp.Compare(ad.LIP, bd.LIP); c != 0 {
		return c
	}
	if c := cmp.Compare(ad.Assoc, bd.Assoc); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	return cmp.Compare(a.Line, b.Line)
}

// CompareByID orders nodes by id.
func CompareByID(a, b *Node) int {
	return cmp.Compare(a.id, b.id)
}

// CompareByName orders nodes by name, then by structure.
func CompareByName(a, b *Node) int {
	if c := cmp.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	return CompareByStructure(a, b)
}

// CompareByMetric returns a comparator ordering nodes by descending value
// of metric id.
func CompareByMetric(id int) func(a, b *Node) int {
	return func(a, b *Node) int {
		if c := cmp.Compare(b.Metric(id), a.Metric(id)); c != 0 {
			return c
		}
		return CompareByStructure(a, b)
	}
}
