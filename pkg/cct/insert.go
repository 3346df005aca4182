package cct

// Frame is one unwound stack frame as handed over by the unwinder.
type Frame struct {
	IP           uint64
	FP           uint64
	LoadModuleID uint32
	LIP          uint64
	Assoc        AssocInfo

	Name string
	File string
	Line int
}

func (f Frame) dynInfo() DynInfo {
	return DynInfo{IP: f.IP, LoadModuleID: f.LoadModuleID, LIP: f.LIP, Assoc: f.Assoc}
}

// InsertBacktrace records one sample. frames are ordered outermost first.
// Each frame is matched against the children of the current node by call
// site, creating a Call node when missing; the innermost frame ends at a
// Stmt leaf which receives value in slot metricID. An empty backtrace
// charges the root.
func (t *Tree) InsertBacktrace(frames []Frame, metricID int, value float64) *Node {
	n := t.root
	for i, f := range frames {
		kind := KindCall
		if i == len(frames)-1 {
			kind = KindStmt
		}
		n = t.findOrCreate(n, kind, f)
	}
	n.AddMetric(metricID, value)
	return n
}

func (t *Tree) findOrCreate(parent *Node, kind Kind, f Frame) *Node {
	dyn := f.dynInfo()
	for _, c := range parent.children {
		if c.kind == kind && c.dyn != nil && c.dyn.Mergeable(&dyn) {
			return c
		}
	}
	c := NewDynNode(kind, parent, dyn)
	c.Name, c.File, c.Line = f.Name, f.File, f.Line
	t.InvalidateIndex()
	return c
}
