package cct

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chain builds root -> ProcFrame(main) -> Stmt and returns the three nodes.
func chain(mainIP, stmtIP uint64) (root, frame, stmt *Node) {
	root = NewRoot("test")
	frame = NewDynNode(KindProcFrame, root, DynInfo{IP: mainIP, LoadModuleID: 1})
	frame.Name = "main"
	stmt = NewDynNode(KindStmt, frame, DynInfo{IP: stmtIP, LoadModuleID: 1})
	return root, frame, stmt
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "Root", KindRoot.String())
	assert.Equal(t, "Stmt", KindStmt.String())
	assert.Equal(t, "Kind(42)", Kind(42).String())

	k, ok := ParseKind("Loop")
	require.True(t, ok)
	assert.Equal(t, KindLoop, k)
	_, ok = ParseKind("Nope")
	assert.False(t, ok)
}

func TestNode_LinkUnlink(t *testing.T) {
	root := NewRoot("r")
	a := NewNode(KindCall, root)
	b := NewNode(KindCall, root)
	c := NewNode(KindCall, root)

	assert.Equal(t, 3, root.ChildCount())
	assert.Same(t, a, root.FirstChild())
	assert.Same(t, b, a.NextSibling())
	assert.Nil(t, c.NextSibling())
	assert.Nil(t, root.NextSibling())

	b.Unlink()
	assert.Nil(t, b.Parent())
	assert.Equal(t, []*Node{a, c}, root.Children())
	assert.Same(t, c, a.NextSibling())

	b.Unlink()
	b.Link(a)
	assert.Same(t, a, b.Parent())
	assert.False(t, a.IsLeaf())
	assert.Equal(t, 2, b.Depth())
}

func TestNode_LinkAttachedPanics(t *testing.T) {
	root := NewRoot("r")
	a := NewNode(KindCall, root)
	assert.Panics(t, func() { a.Link(NewRoot("other")) })
}

func TestNode_UniqueIDs(t *testing.T) {
	a := NewRoot("a")
	b := NewRoot("b")
	assert.NotEqual(t, a.ID(), b.ID())
	assert.NotZero(t, a.ID())
}

func TestNode_Ancestor(t *testing.T) {
	root, frame, stmt := chain(0x100, 0x104)
	loop := NewNode(KindLoop, frame)
	stmt.Unlink()
	stmt.Link(loop)

	assert.Same(t, loop, stmt.AncestorLoop())
	assert.Same(t, frame, stmt.AncestorProcFrame())
	assert.Same(t, root, stmt.AncestorRoot())
	assert.Same(t, stmt, stmt.AncestorStmt())
	assert.Nil(t, stmt.AncestorProc())
	assert.Nil(t, stmt.AncestorCall())
	assert.Nil(t, root.AncestorRoot())
}

func TestDynInfo_Mergeable(t *testing.T) {
	a := &DynInfo{IP: 1, LoadModuleID: 2, LIP: 3, Assoc: AssocOneToOne, CPID: 9}
	b := &DynInfo{IP: 1, LoadModuleID: 2, LIP: 3, Assoc: AssocOneToOne}
	assert.True(t, a.Mergeable(b))

	b.LIP = 4
	assert.False(t, a.Mergeable(b))
	b.LIP, b.LoadModuleID = 3, 7
	assert.False(t, a.Mergeable(b))
	b.LoadModuleID, b.Assoc = 2, AssocManyToOne
	assert.False(t, a.Mergeable(b))
}

func TestNode_String(t *testing.T) {
	_, frame, _ := chain(0x400, 0x404)
	frame.Dyn().CPID = 5
	s := frame.String()
	assert.Contains(t, s, "ProcFrame")
	assert.Contains(t, s, `n="main"`)
	assert.Contains(t, s, "ip=0x400")
	assert.Contains(t, s, "cpid=5")
}
