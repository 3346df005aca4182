package activity

import (
	"context"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/callpath-core/internal/channel"
	"github.com/callpath-core/internal/profile"
	"github.com/callpath-core/internal/resolver"
	"github.com/callpath-core/pkg/cct"
	"github.com/callpath-core/pkg/config"
	"github.com/callpath-core/pkg/metric"
	"github.com/callpath-core/pkg/model"
	"github.com/callpath-core/pkg/utils"
)

// Slots of the device tree's metric vectors. Time and count line up with
// the value and count slots of thread profiles.
const (
	SlotTime  = profile.SlotValue
	SlotCount = profile.SlotCount
	SlotBytes = 2
)

// NewDeviceLayout returns the metric table of a device tree.
func NewDeviceLayout() *metric.Mgr {
	m := metric.NewMgr()
	m.AddRaw("gpu.time", "ns", metric.TypeIncl)
	m.AddRaw("gpu.count", "activities", metric.TypeIncl)
	m.AddRaw("gpu.bytes", "bytes", metric.TypeIncl)
	return m
}

// ProcessorConfig holds processor configuration.
type ProcessorConfig struct {
	Name      string // names the device tree
	BatchSize int    // trace records per sink write
	CPIDs     *CPIDAllocator
}

// DefaultProcessorConfig returns default processor configuration.
func DefaultProcessorConfig() *ProcessorConfig {
	return &ProcessorConfig{Name: "gpu", BatchSize: 128}
}

// ProcessorConfigFrom creates processor config from application config.
func ProcessorConfigFrom(cfg *config.TraceConfig, name string) *ProcessorConfig {
	return &ProcessorConfig{Name: name, BatchSize: cfg.BatchSize}
}

// Stats is a point-in-time view of a processor's counters.
type Stats struct {
	Correlations int64 `json:"correlations"`
	Duplicates   int64 `json:"duplicates"`
	Activities   int64 `json:"activities"`
	Deferred     int64 `json:"deferred"`
	Unmatched    int64 `json:"unmatched"`
	Traced       int64 `json:"traced"`
	FlushErrors  int64 `json:"flush_errors"`
}

type counters struct {
	correlations, duplicates, activities, deferred, unmatched, flushErrors atomic.Int64
}

// Processor joins correlation and activity streams into a device tree.
// Every Handle method runs on the consumer goroutine.
type Processor struct {
	config *ProcessorConfig
	logger utils.Logger

	corr    *HostCorrelationMap
	tree    *cct.Tree
	layout  *metric.Mgr
	trace   *TraceBuffer
	pending []channel.Activity
	runID   int64

	stats  counters
	sealed atomic.Bool
}

// NewProcessor creates a processor. sink may be nil, in which case no
// trace records are written. A nil logger discards output.
func NewProcessor(cfg *ProcessorConfig, sink Sink, logger utils.Logger) *Processor {
	if cfg == nil {
		cfg = DefaultProcessorConfig()
	}
	if cfg.CPIDs == nil {
		cfg.CPIDs = &CPIDAllocator{}
	}
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	p := &Processor{
		config: cfg,
		logger: logger.WithField("processor", cfg.Name),
		corr:   NewHostCorrelationMap(),
		tree:   cct.NewRootTree(cfg.Name),
		layout: NewDeviceLayout(),
	}
	if sink != nil {
		p.trace = NewTraceBuffer(sink, cfg.BatchSize)
	}
	return p
}

// SetRunID stamps subsequent trace records with id.
func (p *Processor) SetRunID(id int64) { p.runID = id }

// Tree returns the device tree. Consumer only.
func (p *Processor) Tree() *cct.Tree { return p.tree }

// HandleCorrelation records the launching context of a correlation id.
// The node belongs to a producer's tree; only its immutable ancestry and
// call-site data are read later.
func (p *Processor) HandleCorrelation(r *channel.CorrelationRecord) {
	p.mustOpen()
	p.stats.correlations.Add(1)
	if !p.corr.Insert(r.HostCorrelationID, r.Node) {
		p.stats.duplicates.Add(1)
		p.logger.Warn("Correlation %d published twice; keeping the newer context", r.HostCorrelationID)
	}
}

// HandleActivity charges a to the device tree under its launching context
// and returns the node charged. An activity whose correlation has not been
// seen yet is deferred to the next drain and nil is returned.
func (p *Processor) HandleActivity(ctx context.Context, a *channel.Activity) *cct.Node {
	p.mustOpen()
	p.stats.activities.Add(1)
	host, ok := p.corr.Lookup(a.CorrelationID)
	if !ok {
		p.stats.deferred.Add(1)
		p.pending = append(p.pending, *a)
		return nil
	}
	p.corr.Delete(a.CorrelationID)
	return p.attribute(ctx, a, host)
}

// retryPending gives deferred activities a second lookup. Those still
// unmatched are charged to the unknown context.
func (p *Processor) retryPending(ctx context.Context) int {
	if len(p.pending) == 0 {
		return 0
	}
	pending := p.pending
	p.pending = nil
	for i := range pending {
		a := &pending[i]
		host, ok := p.corr.Lookup(a.CorrelationID)
		if ok {
			p.corr.Delete(a.CorrelationID)
		} else {
			p.stats.unmatched.Add(1)
		}
		p.attribute(ctx, a, host)
	}
	return len(pending)
}

func (p *Processor) attribute(ctx context.Context, a *channel.Activity, host *cct.Node) *cct.Node {
	frames := hostFrames(host)
	frames = append(frames, placeholderFor(a.Kind).Frame())

	leaf := p.tree.InsertBacktrace(frames, SlotTime, float64(a.Duration()))
	leaf.AddMetric(SlotCount, 1)
	leaf.AddMetric(SlotBytes, float64(a.Bytes))
	if leaf.CPID() == 0 {
		leaf.Dyn().CPID = p.config.CPIDs.Next()
	}

	if p.trace != nil {
		rec := model.TraceRecord{
			RunID:         p.runID,
			CorrelationID: a.CorrelationID,
			Kind:          a.Kind.String(),
			NodeID:        leaf.CPID(),
			DeviceID:      a.DeviceID,
			StreamID:      a.StreamID,
			Start:         a.Start,
			End:           a.End,
			Bytes:         a.Bytes,
		}
		if host != nil {
			rec.HostNodeID = host.ID()
		}
		if err := p.trace.Add(ctx, rec); err != nil {
			p.stats.flushErrors.Add(1)
			p.logger.Error("Failed to write %d trace records: %v", p.trace.Pending(), err)
		}
	}
	return leaf
}

// hostFrames rebuilds the backtrace of host, outermost first. A nil host
// yields the unknown context.
func hostFrames(host *cct.Node) []cct.Frame {
	if host == nil {
		return []cct.Frame{resolver.Unknown.Frame()}
	}
	var frames []cct.Frame
	for n := host; n.Parent() != nil; n = n.Parent() {
		f := cct.Frame{Name: n.Name, File: n.File, Line: n.Line}
		if d := n.Dyn(); d != nil {
			f.IP, f.LoadModuleID, f.LIP, f.Assoc = d.IP, d.LoadModuleID, d.LIP, d.Assoc
		}
		frames = append(frames, f)
	}
	for i, j := 0, len(frames)-1; i < j; i, j = i+1, j-1 {
		frames[i], frames[j] = frames[j], frames[i]
	}
	return frames
}

func placeholderFor(k channel.ActivityKind) resolver.Placeholder {
	switch k {
	case channel.ActivityKernel:
		return resolver.GPUKernel
	case channel.ActivityMemcpy:
		return resolver.GPUCopy
	case channel.ActivityMemset:
		return resolver.GPUMemset
	case channel.ActivitySync:
		return resolver.GPUSync
	default:
		return resolver.Unknown
	}
}

// Drain consumes the given channels once: correlations first so that an
// activity finds a correlation published before it, then activities
// deferred by the previous drain, then new activities.
func (p *Processor) Drain(ctx context.Context, corrs []*channel.CorrelationChannel, acts []*channel.ActivityChannel) int {
	n := 0
	for _, c := range corrs {
		n += c.Consume(p.HandleCorrelation)
	}
	n += p.retryPending(ctx)
	for _, c := range acts {
		n += c.Consume(func(r *channel.ActivityRecord) {
			p.HandleActivity(ctx, &r.Activity)
		})
	}
	return n
}

// Register adds one drain function to m covering every channel.
func (p *Processor) Register(ctx context.Context, m *channel.Monitor, corrs []*channel.CorrelationChannel, acts []*channel.ActivityChannel) {
	m.Register(p.config.Name, func() int {
		return p.Drain(ctx, corrs, acts)
	})
}

// Flush writes queued trace records.
func (p *Processor) Flush(ctx context.Context) error {
	if p.trace == nil {
		return nil
	}
	return p.trace.Flush(ctx)
}

// Seal charges deferred activities, flushes the trace and hands the device
// tree off for reduction. The processor accepts no records afterwards.
func (p *Processor) Seal(ctx context.Context) (profile.Source, error) {
	p.retryPending(ctx)
	if !p.sealed.CompareAndSwap(false, true) {
		panic(errors.AssertionFailedf("processor %s: sealed twice", p.config.Name))
	}
	src := profile.Source{Name: p.config.Name, Tree: p.tree, Layout: p.layout}
	if left := p.corr.Len(); left > 0 {
		p.logger.Debug("%d correlations saw no activity", left)
	}
	if err := p.Flush(ctx); err != nil {
		return src, err
	}
	return src, nil
}

// Stats returns current processor statistics. Safe from any goroutine.
func (p *Processor) Stats() Stats {
	s := Stats{
		Correlations: p.stats.correlations.Load(),
		Duplicates:   p.stats.duplicates.Load(),
		Activities:   p.stats.activities.Load(),
		Deferred:     p.stats.deferred.Load(),
		Unmatched:    p.stats.unmatched.Load(),
		FlushErrors:  p.stats.flushErrors.Load(),
	}
	if p.trace != nil {
		s.Traced = p.trace.Written()
	}
	return s
}

func (p *Processor) mustOpen() {
	if p.sealed.Load() {
		panic(errors.AssertionFailedf("processor %s: record after seal", p.config.Name))
	}
}
