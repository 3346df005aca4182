package profile

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/callpath-core/internal/resolver"
	"github.com/callpath-core/pkg/cct"
	"github.com/callpath-core/pkg/metric"
)

// ThreadProfile accumulates the samples of one producer thread. Sample is
// called only by the owning goroutine; Seal hands the tree to the reducer.
type ThreadProfile struct {
	name     string
	tree     *cct.Tree
	layout   *metric.Mgr
	resolver resolver.Resolver

	incr    []cct.IncrExpr
	started map[*cct.Node]struct{}
	buf     []cct.Frame

	samples int64
	sealed  atomic.Bool
}

// NewThreadProfile returns an empty profile for the named thread. layout
// is usually NewThreadLayout; r classifies frame addresses.
func NewThreadProfile(name string, layout *metric.Mgr, r resolver.Resolver) *ThreadProfile {
	p := &ThreadProfile{
		name:     name,
		tree:     cct.NewRootTree(name),
		layout:   layout,
		resolver: r,
		started:  make(map[*cct.Node]struct{}),
	}
	for id := 0; id < layout.Size(); id++ {
		if e := layout.DerivedIncrExpr(id); e != nil {
			p.incr = append(p.incr, e)
		}
	}
	return p
}

// Name returns the thread name.
func (p *ThreadProfile) Name() string { return p.name }

// Tree returns the profile's tree. It must not be mutated by anyone but the
// owner until Seal.
func (p *ThreadProfile) Tree() *cct.Tree { return p.tree }

// Samples returns the number of samples recorded.
func (p *ThreadProfile) Samples() int64 { return p.samples }

// Sample records one backtrace, outermost frame first. value is added to
// slot metricID of the leaf; SlotCount is bumped when the layout has one and
// the streaming statistics see value. frames are not retained.
func (p *ThreadProfile) Sample(frames []cct.Frame, metricID int, value float64) *cct.Node {
	if p.sealed.Load() {
		panic(errors.AssertionFailedf("profile %s: sample after seal", p.name))
	}
	p.buf = append(p.buf[:0], frames...)
	if p.resolver != nil {
		resolver.Classify(p.resolver, p.buf)
	}

	leaf := p.tree.InsertBacktrace(p.buf, metricID, value)
	leaf.EnsureMetricsSize(p.layout.Size())
	if metricID != SlotCount && p.layout.Size() > SlotCount {
		leaf.AddMetric(SlotCount, 1)
	}
	p.accumulate(leaf, value)
	p.samples++
	return leaf
}

// SamplePlaceholder charges value to a synthetic context, for samples taken
// while the thread was idle or inside the profiler.
func (p *ThreadProfile) SamplePlaceholder(ph resolver.Placeholder, metricID int, value float64) *cct.Node {
	return p.Sample([]cct.Frame{ph.Frame()}, metricID, value)
}

func (p *ThreadProfile) accumulate(leaf *cct.Node, value float64) {
	if len(p.incr) == 0 {
		return
	}
	if _, ok := p.started[leaf]; !ok {
		for _, e := range p.incr {
			e.Initialize(leaf)
		}
		p.started[leaf] = struct{}{}
	}
	for _, e := range p.incr {
		e.InitializeSrc(leaf)
	}
	leaf.SetMetric(SlotSrc, value)
	for _, e := range p.incr {
		e.Accumulate(leaf)
	}
}

// Seal finalizes the streaming statistics and returns the profile as a
// reduction source. The profile accepts no samples afterwards.
func (p *ThreadProfile) Seal() Source {
	if !p.sealed.CompareAndSwap(false, true) {
		panic(errors.AssertionFailedf("profile %s: sealed twice", p.name))
	}
	for leaf := range p.started {
		for _, e := range p.incr {
			e.Finalize(leaf)
		}
		leaf.SetMetric(SlotSrc, 0)
	}
	p.started = nil
	p.buf = nil
	return Source{Name: p.name, Tree: p.tree, Layout: p.layout}
}
