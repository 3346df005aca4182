// Package workload drives a synthetic host/device session through the
// channel layer: host threads sample their own calling contexts and launch
// device operations, a device goroutine completes them out of order, and
// the monitor joins both streams into a device tree.
package workload

import (
	"context"
	"fmt"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"

	"github.com/callpath-core/internal/activity"
	"github.com/callpath-core/internal/channel"
	"github.com/callpath-core/internal/profile"
	"github.com/callpath-core/internal/resolver"
	"github.com/callpath-core/pkg/cct"
	apperrors "github.com/callpath-core/pkg/errors"
	"github.com/callpath-core/pkg/utils"
)

const hostModule = "libapp.so"

// Config holds workload configuration.
type Config struct {
	Threads  int   // host threads
	Launches int   // device operations per host thread
	Depth    int   // distinct call sites per thread
	Seed     int64 // PRNG seed; equal seeds replay equal sessions
}

// DefaultConfig returns default workload configuration.
func DefaultConfig() *Config {
	return &Config{Threads: 4, Launches: 1000, Depth: 4, Seed: 1}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Threads < 1 {
		return apperrors.New(apperrors.CodeInvalidInput, "threads must be at least 1")
	}
	if c.Launches < 0 {
		return apperrors.New(apperrors.CodeInvalidInput, "launches must not be negative")
	}
	if c.Depth < 1 {
		return apperrors.New(apperrors.CodeInvalidInput, "depth must be at least 1")
	}
	return nil
}

// Result holds what a session produced.
type Result struct {
	Host      []profile.Source // one per host thread
	Device    profile.Source
	Symbols   *resolver.SymbolTable
	Channels  []channel.Stats
	Monitor   channel.MonitorStats
	Processor activity.Stats
}

// Runner runs sessions.
type Runner struct {
	config    *Config
	chOpts    channel.Options
	monitor   *channel.MonitorConfig
	processor *activity.ProcessorConfig
	sink      activity.Sink
	runID     int64
	logger    utils.Logger
}

// NewRunner creates a runner. sink may be nil.
func NewRunner(cfg *Config, logger utils.Logger) *Runner {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	return &Runner{
		config:    cfg,
		chOpts:    channel.Options{SlabSize: 256},
		monitor:   channel.DefaultMonitorConfig(),
		processor: activity.DefaultProcessorConfig(),
		logger:    logger,
	}
}

// WithChannels sets the channel options. Notify is always replaced by the
// session's monitor.
func (r *Runner) WithChannels(opts channel.Options, mon *channel.MonitorConfig) *Runner {
	r.chOpts = opts
	if mon != nil {
		r.monitor = mon
	}
	return r
}

// WithProcessor sets the device processor configuration.
func (r *Runner) WithProcessor(cfg *activity.ProcessorConfig) *Runner {
	if cfg != nil {
		r.processor = cfg
	}
	return r
}

// WithSink persists activity traces tagged with runID.
func (r *Runner) WithSink(sink activity.Sink, runID int64) *Runner {
	r.sink = sink
	r.runID = runID
	return r
}

// launch is handed from a host thread to the device.
type launch struct {
	id     uint64
	kind   channel.ActivityKind
	stream uint32
}

// Run executes one session. Host trees and the device tree come back
// sealed; the caller reduces them.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if err := r.config.Validate(); err != nil {
		return nil, err
	}

	symbols := resolver.NewSymbolTable()
	lm := symbols.AddModule(hostModule)

	mon := channel.NewMonitor(r.monitor, r.chOpts.Metrics, r.logger)
	opts := r.chOpts
	opts.Notify = mon.Notify

	corrs := make([]*channel.CorrelationChannel, r.config.Threads)
	for i := range corrs {
		corrs[i] = channel.NewCorrelationChannel(fmt.Sprintf("host-%d", i), opts)
	}
	device := channel.NewActivityChannel("device-0", opts)

	proc := activity.NewProcessor(r.processor, r.sink, r.logger)
	proc.SetRunID(r.runID)
	proc.Register(ctx, mon, corrs, []*channel.ActivityChannel{device})
	if err := mon.Start(ctx); err != nil {
		return nil, err
	}

	launches := make(chan launch, 1024)
	threads := make([]*profile.ThreadProfile, r.config.Threads)

	hosts, hctx := errgroup.WithContext(ctx)
	for i := range threads {
		threads[i] = profile.NewThreadProfile(fmt.Sprintf("host-%d", i), profile.NewThreadLayout("samples"), symbols)
		hosts.Go(func() error {
			return r.host(hctx, i, threads[i], symbols, lm, corrs[i], launches)
		})
	}

	devErr := make(chan error, 1)
	go func() {
		devErr <- r.device(ctx, device, launches)
	}()

	err := hosts.Wait()
	close(launches)
	if derr := <-devErr; err == nil {
		err = derr
	}
	mon.Stop()
	if err != nil {
		return nil, err
	}

	res := &Result{Symbols: symbols, Monitor: mon.Stats()}
	for _, t := range threads {
		res.Host = append(res.Host, t.Seal())
	}
	if res.Device, err = proc.Seal(ctx); err != nil {
		return nil, err
	}
	res.Processor = proc.Stats()
	for _, c := range corrs {
		res.Channels = append(res.Channels, c.Stats())
	}
	res.Channels = append(res.Channels, device.Stats())

	r.logger.Info("Session done: %d threads, %d launches, %d drain passes",
		r.config.Threads, r.config.Threads*r.config.Launches, res.Monitor.Passes)
	return res, nil
}

// host samples a call chain per launch and publishes its correlation
// before handing the launch to the device.
func (r *Runner) host(ctx context.Context, thread int, p *profile.ThreadProfile, symbols *resolver.SymbolTable,
	lm uint32, corr *channel.CorrelationChannel, out chan<- launch) error {
	rng := rand.New(rand.NewPCG(uint64(r.config.Seed), uint64(thread)))
	frames := make([]cct.Frame, 0, 3)
	entry := r.frame(symbols, lm, "main")

	for j := 0; j < r.config.Launches; j++ {
		site := rng.IntN(r.config.Depth)
		kind := pickKind(rng)

		frames = append(frames[:0], entry,
			r.frame(symbols, lm, fmt.Sprintf("step_%d", site)),
			r.frame(symbols, lm, "launch_"+kind.String()))
		node := p.Sample(frames, profile.SlotValue, 1)

		id := uint64(thread)<<32 | uint64(j+1)
		corr.Produce(id, node, int64(j))

		select {
		case out <- launch{id: id, kind: kind, stream: uint32(site)}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// device completes launches in arrival order on a single simulated clock.
func (r *Runner) device(ctx context.Context, ch *channel.ActivityChannel, in <-chan launch) error {
	rng := rand.New(rand.NewPCG(uint64(r.config.Seed), 1<<32))
	var clock int64
	for l := range in {
		if err := ctx.Err(); err != nil {
			for range in {
			}
			return err
		}
		a := channel.Activity{
			Kind:          l.kind,
			CorrelationID: l.id,
			Start:         clock,
			StreamID:      l.stream,
		}
		switch l.kind {
		case channel.ActivityMemcpy, channel.ActivityMemset:
			a.Bytes = uint64(64 << rng.IntN(10))
			a.End = clock + int64(a.Bytes/64) + 1
		default:
			a.End = clock + int64(100+rng.IntN(900))
		}
		clock = a.End
		ch.Produce(a)
	}
	return nil
}

func (r *Runner) frame(symbols *resolver.SymbolTable, lm uint32, name string) cct.Frame {
	sym := symbols.Intern(lm, name)
	return cct.Frame{IP: sym.Start, LoadModuleID: lm, Name: name}
}

func pickKind(rng *rand.Rand) channel.ActivityKind {
	switch n := rng.IntN(10); {
	case n < 6:
		return channel.ActivityKernel
	case n < 8:
		return channel.ActivityMemcpy
	case n < 9:
		return channel.ActivityMemset
	default:
		return channel.ActivitySync
	}
}
