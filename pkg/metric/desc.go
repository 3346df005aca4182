// Package metric describes the metrics stored in calling-context tree
// vectors and the derived expressions computed over them.
package metric

import (
	"fmt"

	"github.com/callpath-core/pkg/cct"
	"github.com/callpath-core/pkg/interval"
)

// Kind says how a metric gets its values.
type Kind int

const (
	// KindRaw metrics are sampled.
	KindRaw Kind = iota
	// KindDerived metrics are computed by a batch expression.
	KindDerived
	// KindDerivedIncr metrics are computed by an incremental expression.
	KindDerivedIncr
)

func (k Kind) String() string {
	switch k {
	case KindRaw:
		return "raw"
	case KindDerived:
		return "derived"
	case KindDerivedIncr:
		return "derived-incr"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Type says whether values are inclusive or exclusive.
type Type int

const (
	TypeNone Type = iota
	TypeIncl
	TypeExcl
)

func (t Type) String() string {
	switch t {
	case TypeIncl:
		return "inclusive"
	case TypeExcl:
		return "exclusive"
	default:
		return "none"
	}
}

// Desc describes one metric slot.
type Desc struct {
	ID          int
	Name        string
	Description string
	Unit        string
	Kind        Kind
	Type        Type
	// Visible is false for scratch slots.
	Visible bool

	Expr     cct.Expr
	IncrExpr cct.IncrExpr
}

// Mgr is an ordered table of metric descriptors. It satisfies
// cct.MetricTable.
type Mgr struct {
	metrics []*Desc
	byName  map[string]int
}

var _ cct.MetricTable = (*Mgr)(nil)

// NewMgr returns an empty table.
func NewMgr() *Mgr {
	return &Mgr{byName: make(map[string]int)}
}

// Add appends d, assigning its id, and returns the stored descriptor.
func (m *Mgr) Add(d Desc) *Desc {
	d.ID = len(m.metrics)
	stored := &d
	m.metrics = append(m.metrics, stored)
	if d.Name != "" {
		m.byName[d.Name] = d.ID
	}
	return stored
}

// AddRaw appends a visible raw metric.
func (m *Mgr) AddRaw(name, unit string, typ Type) *Desc {
	return m.Add(Desc{Name: name, Unit: unit, Kind: KindRaw, Type: typ, Visible: true})
}

// AddDerived appends a visible batch derived metric.
func (m *Mgr) AddDerived(name string, e cct.Expr) *Desc {
	return m.Add(Desc{Name: name, Kind: KindDerived, Visible: true, Expr: e})
}

// AddDerivedIncr appends a visible incremental derived metric.
func (m *Mgr) AddDerivedIncr(name string, e cct.IncrExpr) *Desc {
	return m.Add(Desc{Name: name, Kind: KindDerivedIncr, Visible: true, IncrExpr: e})
}

// Size returns the number of metrics.
func (m *Mgr) Size() int { return len(m.metrics) }

// Metric returns descriptor id, or nil.
func (m *Mgr) Metric(id int) *Desc {
	if id < 0 || id >= len(m.metrics) {
		return nil
	}
	return m.metrics[id]
}

// Metrics returns every descriptor in id order.
func (m *Mgr) Metrics() []*Desc { return m.metrics }

// Find returns the descriptor with the given name.
func (m *Mgr) Find(name string) (*Desc, bool) {
	id, ok := m.byName[name]
	if !ok {
		return nil, false
	}
	return m.metrics[id], true
}

// DerivedExpr implements cct.MetricTable.
func (m *Mgr) DerivedExpr(id int) cct.Expr {
	if d := m.Metric(id); d != nil && d.Kind == KindDerived {
		return d.Expr
	}
	return nil
}

// DerivedIncrExpr implements cct.MetricTable.
func (m *Mgr) DerivedIncrExpr(id int) cct.IncrExpr {
	if d := m.Metric(id); d != nil && d.Kind == KindDerivedIncr {
		return d.IncrExpr
	}
	return nil
}

// IsInclusive implements cct.MetricTable.
func (m *Mgr) IsInclusive(id int) bool {
	d := m.Metric(id)
	return d != nil && d.Type == TypeIncl
}

// Select returns the set of metric ids for which keep holds.
func (m *Mgr) Select(keep func(*Desc) bool) *interval.Set {
	s := interval.NewSet()
	for _, d := range m.metrics {
		if keep(d) {
			s.Insert(interval.New(uint64(d.ID), uint64(d.ID)))
		}
	}
	return s
}

// RawSet returns the ids of raw metrics.
func (m *Mgr) RawSet() *interval.Set {
	return m.Select(func(d *Desc) bool { return d.Kind == KindRaw })
}

// InclusiveSet returns the ids of raw inclusive metrics.
func (m *Mgr) InclusiveSet() *interval.Set {
	return m.Select(func(d *Desc) bool { return d.Kind == KindRaw && d.Type == TypeIncl })
}

// ExclusiveSet returns the ids of raw exclusive metrics.
func (m *Mgr) ExclusiveSet() *interval.Set {
	return m.Select(func(d *Desc) bool { return d.Kind == KindRaw && d.Type == TypeExcl })
}
