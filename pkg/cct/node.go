// Package cct provides the calling-context tree: nodes, iteration, metric
// aggregation and the merge engine used to combine per-thread trees.
//
// A tree is owned by one goroutine at a time. Per-thread trees are built by
// their owning producer and handed off, never shared, before merging.
package cct

import (
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// Kind is the variant of a node.
type Kind uint8

// Node kinds.
const (
	KindRoot Kind = iota
	KindProcFrame
	KindProc
	KindLoop
	KindCall
	KindStmt
	numKinds
)

var kindNames = [numKinds]string{"Root", "ProcFrame", "Proc", "Loop", "Call", "Stmt"}

// String returns the kind's name.
func (k Kind) String() string {
	if k < numKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind returns the kind with the given name.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), true
		}
	}
	return 0, false
}

// AssocInfo describes how a sampled frame relates to its logical source
// counterpart.
type AssocInfo uint8

// Association kinds.
const (
	AssocNone AssocInfo = iota
	AssocOneToOne
	AssocManyToOne
	AssocOneToMany
	AssocManyToMany
)

func (a AssocInfo) String() string {
	switch a {
	case AssocNone:
		return "none"
	case AssocOneToOne:
		return "1-to-1"
	case AssocManyToOne:
		return "M-to-1"
	case AssocOneToMany:
		return "1-to-M"
	case AssocManyToMany:
		return "M-to-M"
	default:
		return "invalid"
	}
}

// DynInfo is the payload of a node representing a sampled (dynamic)
// context.
type DynInfo struct {
	IP           uint64
	LoadModuleID uint32
	LIP          uint64
	Assoc        AssocInfo
	// CPID is the call-path id; 0 means none.
	CPID uint32
}

// Mergeable reports whether two dynamic contexts denote the same call site.
func (d *DynInfo) Mergeable(o *DynInfo) bool {
	return d.IP == o.IP &&
		d.LoadModuleID == o.LoadModuleID &&
		d.Assoc == o.Assoc &&
		d.LIP == o.LIP
}

// AllocInfo carries memory allocation attribution used by MergeMeAlloc.
type AllocInfo struct {
	// StaticID identifies a static data object; 0 means heap data.
	StaticID uint64
	// MallocIDs are ids of the allocation-site nodes this node touches.
	MallocIDs []uint32
	// AddrFmt marks metric slots holding address range bounds with 1.
	AddrFmt []uint8
}

func (a *AllocInfo) addrFmt(i int) uint8 {
	if a == nil || i < 0 || i >= len(a.AddrFmt) {
		return 0
	}
	return a.AddrFmt[i]
}

var nextUniqueID atomic.Uint32

func init() {
	nextUniqueID.Store(1)
}

func newUniqueID() uint32 {
	return nextUniqueID.Add(1)
}

// Node is a calling-context tree node. A parent exclusively owns its
// children; Unlink detaches a subtree without destroying it.
type Node struct {
	kind     Kind
	id       uint32
	structID uint32

	// Name, File and Line describe the node for display.
	Name string
	File string
	Line int
	// Alien marks a ProcFrame inlined from another source file.
	Alien bool

	dyn   *DynInfo
	Alloc *AllocInfo

	metrics  []float64
	parent   *Node
	children []*Node
}

// NewNode creates a static node of the given kind and links it under
// parent when parent is non-nil.
func NewNode(kind Kind, parent *Node) *Node {
	n := &Node{kind: kind, id: newUniqueID()}
	if parent != nil {
		n.Link(parent)
	}
	return n
}

// NewDynNode creates a node carrying the dynamic context dyn.
func NewDynNode(kind Kind, parent *Node, dyn DynInfo) *Node {
	n := NewNode(kind, parent)
	n.dyn = &dyn
	return n
}

// NewRoot creates a parentless Root node.
func NewRoot(name string) *Node {
	n := NewNode(KindRoot, nil)
	n.Name = name
	return n
}

// Kind returns the node's variant.
func (n *Node) Kind() Kind { return n.kind }

// ID returns the node's id. It is unique on creation and dense after
// Tree.MakeDensePreorderIds.
func (n *Node) ID() uint32 { return n.id }

// SetID overrides the node's id.
func (n *Node) SetID(id uint32) { n.id = id }

// StructID returns the static structure id used as the sort key.
func (n *Node) StructID() uint32 { return n.structID }

// SetStructID sets the static structure id.
func (n *Node) SetStructID(id uint32) { n.structID = id }

// Dyn returns the dynamic context, or nil for a static node.
func (n *Node) Dyn() *DynInfo { return n.dyn }

// IsDynamic reports whether the node carries a dynamic context.
func (n *Node) IsDynamic() bool { return n.dyn != nil }

// CPID returns the call-path id, or 0.
func (n *Node) CPID() uint32 {
	if n.dyn == nil {
		return 0
	}
	return n.dyn.CPID
}

// Parent returns the parent node, or nil for a tree root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the node's children. The slice must not be modified.
func (n *Node) Children() []*Node { return n.children }

// ChildCount returns the number of children.
func (n *Node) ChildCount() int { return len(n.children) }

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool { return len(n.children) == 0 }

// FirstChild returns the first child, or nil.
func (n *Node) FirstChild() *Node {
	if len(n.children) == 0 {
		return nil
	}
	return n.children[0]
}

// NextSibling returns the child following n under its parent, or nil.
func (n *Node) NextSibling() *Node {
	if n.parent == nil {
		return nil
	}
	sibs := n.parent.children
	if i := slices.Index(sibs, n); i >= 0 && i+1 < len(sibs) {
		return sibs[i+1]
	}
	return nil
}

// Link appends n to parent's children. n must be detached.
func (n *Node) Link(parent *Node) {
	if n.parent != nil {
		panic(errors.AssertionFailedf("cct: linking node %d that already has parent %d", n.id, n.parent.id))
	}
	n.parent = parent
	parent.children = append(parent.children, n)
}

// Unlink detaches n and its subtree from its parent.
func (n *Node) Unlink() {
	p := n.parent
	if p == nil {
		return
	}
	if i := slices.Index(p.children, n); i >= 0 {
		p.children = slices.Delete(p.children, i, i+1)
	}
	n.parent = nil
}

// Ancestor returns the nearest node of kind k, starting at n itself.
func (n *Node) Ancestor(k Kind) *Node {
	s := n
	for s != nil && s.kind != k {
		s = s.parent
	}
	return s
}

// AncestorRoot returns the enclosing Root, or nil if n has no parent.
func (n *Node) AncestorRoot() *Node {
	if n.parent == nil {
		return nil
	}
	return n.Ancestor(KindRoot)
}

// AncestorProcFrame returns the nearest ProcFrame.
func (n *Node) AncestorProcFrame() *Node { return n.Ancestor(KindProcFrame) }

// AncestorProc returns the nearest Proc.
func (n *Node) AncestorProc() *Node { return n.Ancestor(KindProc) }

// AncestorLoop returns the nearest Loop.
func (n *Node) AncestorLoop() *Node { return n.Ancestor(KindLoop) }

// AncestorCall returns the nearest Call.
func (n *Node) AncestorCall() *Node { return n.Ancestor(KindCall) }

// AncestorStmt returns the nearest Stmt.
func (n *Node) AncestorStmt() *Node { return n.Ancestor(KindStmt) }

// Depth returns the number of ancestors of n.
func (n *Node) Depth() int {
	d := 0
	for p := n.parent; p != nil; p = p.parent {
		d++
	}
	return d
}

// isLogicalProc reports whether n acts as a procedure frame for exclusive
// cost attribution.
func (n *Node) isLogicalProc() bool {
	return (n.kind == KindProcFrame && !n.Alien) || n.kind == KindProc
}

// String returns a one-line description of the node.
func (n *Node) String() string {
	s := fmt.Sprintf("%s id=%d", n.kind, n.id)
	if n.structID != 0 {
		s += fmt.Sprintf(" s=%d", n.structID)
	}
	if n.Name != "" {
		s += fmt.Sprintf(" n=%q", n.Name)
	}
	if n.Alien {
		s += " alien"
	}
	if d := n.dyn; d != nil {
		s += fmt.Sprintf(" ip=0x%x lm=%d", d.IP, d.LoadModuleID)
		if d.LIP != 0 {
			s += fmt.Sprintf(" lip=0x%x", d.LIP)
		}
		if d.Assoc != AssocNone {
			s += " a=" + d.Assoc.String()
		}
		if d.CPID != 0 {
			s += fmt.Sprintf(" cpid=%d", d.CPID)
		}
	}
	return s
}
