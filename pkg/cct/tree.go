package cct

import (
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
)

// Tree is a calling-context tree with exactly one root.
//
// The id index used by FindNode is built lazily and dropped on every
// structural change made through the tree. Callers that link or unlink
// nodes directly must call InvalidateIndex.
type Tree struct {
	root       *Node
	index      map[uint32]*Node
	maxDenseID uint32
}

// NewTree returns a tree owning root.
func NewTree(root *Node) *Tree {
	if root == nil {
		panic(errors.AssertionFailedf("cct: tree needs a root"))
	}
	if root.parent != nil {
		panic(errors.AssertionFailedf("cct: tree root %d has a parent", root.id))
	}
	return &Tree{root: root}
}

// NewRootTree returns a tree whose root is a fresh Root node.
func NewRootTree(name string) *Tree {
	return NewTree(NewRoot(name))
}

// Root returns the root node.
func (t *Tree) Root() *Node { return t.root }

// Empty reports whether the root has no children.
func (t *Tree) Empty() bool { return t.root.IsLeaf() }

// MaxDenseID returns the largest id assigned by the last
// MakeDensePreorderIds.
func (t *Tree) MaxDenseID() uint32 { return t.maxDenseID }

// InvalidateIndex drops the id index.
func (t *Tree) InvalidateIndex() {
	t.index = nil
}

func (t *Tree) buildIndex() {
	t.index = make(map[uint32]*Node)
	for n := range t.root.PreOrder() {
		t.index[n.id] = n
	}
}

// FindNode returns the node with the given id, or nil. The index is built
// on first use and rebuilt once on a miss.
func (t *Tree) FindNode(id uint32) *Node {
	if t.index == nil {
		t.buildIndex()
		return t.index[id]
	}
	if n, ok := t.index[id]; ok {
		return n
	}
	t.buildIndex()
	return t.index[id]
}

// MakeDensePreorderIds numbers every node from 1 in pre-order, visiting
// children in structure order so that structurally identical trees get
// identical ids. It returns the largest id assigned.
func (t *Tree) MakeDensePreorderIds() uint32 {
	next := t.root.MakeDensePreorderIds(1)
	t.maxDenseID = next - 1
	t.InvalidateIndex()
	return t.maxDenseID
}

// MakeDensePreorderIds numbers the subtree starting at next and returns
// the next unused id.
func (n *Node) MakeDensePreorderIds(next uint32) uint32 {
	for x := range n.SortedPreOrder(CompareByStructure) {
		x.id = next
		next++
	}
	return next
}

// NodeCount returns the number of nodes in the tree.
func (t *Tree) NodeCount() int {
	c := 0
	for range t.root.PreOrder() {
		c++
	}
	return c
}

// VerifyUniqueCPIds reports whether every non-zero call-path id occurs
// once. It returns the duplicated ids.
func (t *Tree) VerifyUniqueCPIds() (bool, []uint32) {
	seen := make(map[uint32]bool)
	var dups []uint32
	for n := range t.root.Walk(WalkOptions{Filter: IsDynamicFilter}) {
		cp := n.dyn.CPID
		if cp == 0 {
			continue
		}
		if seen[cp] {
			dups = append(dups, cp)
			continue
		}
		seen[cp] = true
	}
	return len(dups) == 0, dups
}

// Dump writes an indented rendering of the tree with metrics [beg, end).
func (t *Tree) Dump(w io.Writer, beg, end int) error {
	for n := range t.root.PreOrder() {
		var sb strings.Builder
		sb.WriteString(strings.Repeat("  ", n.Depth()))
		sb.WriteString(n.String())
		if n.HasMetrics(beg, end) {
			sb.WriteString(" [")
			for i := beg; i < end; i++ {
				if i > beg {
					sb.WriteByte(' ')
				}
				fmt.Fprintf(&sb, "%d:%g", i, n.Metric(i))
			}
			sb.WriteByte(']')
		}
		sb.WriteByte('\n')
		if _, err := io.WriteString(w, sb.String()); err != nil {
			return err
		}
	}
	return nil
}

// String renders the tree with every metric.
func (t *Tree) String() string {
	end := 0
	for n := range t.root.PreOrder() {
		end = max(end, n.NumMetrics())
	}
	var sb strings.Builder
	_ = t.Dump(&sb, 0, end)
	return sb.String()
}
