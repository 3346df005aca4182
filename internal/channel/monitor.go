package channel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/callpath-core/pkg/config"
	apperrors "github.com/callpath-core/pkg/errors"
	"github.com/callpath-core/pkg/utils"
)

const tracerName = "github.com/callpath-core/internal/channel"

// MonitorConfig holds monitor configuration.
type MonitorConfig struct {
	PollInterval time.Duration // Upper bound on the wait between passes
	WakeBuffer   int           // Pending wake-ups kept while a pass runs
}

// DefaultMonitorConfig returns default monitor configuration.
func DefaultMonitorConfig() *MonitorConfig {
	return &MonitorConfig{
		PollInterval: 10 * time.Millisecond,
		WakeBuffer:   1,
	}
}

// FromConfig creates monitor config from application config.
func FromConfig(cfg *config.ChannelConfig) *MonitorConfig {
	return &MonitorConfig{
		PollInterval: cfg.PollDuration(),
		WakeBuffer:   cfg.WakeBuffer,
	}
}

// DrainFunc consumes everything currently published on one channel and
// returns the number of records handled.
type DrainFunc func() int

type registration struct {
	name  string
	drain DrainFunc
}

// Monitor is the single consumer of a set of channels. It drains them
// round-robin whenever a producer rings the doorbell or the poll interval
// elapses.
type Monitor struct {
	config  *MonitorConfig
	logger  utils.Logger
	metrics *Metrics
	tracer  trace.Tracer

	mu       sync.Mutex
	channels []registration
	next     int // round-robin start of the next pass

	wake    chan struct{}
	stopCh  chan struct{}
	done    chan struct{}
	running bool
	passes  int64
	handled int64
}

// NewMonitor creates a Monitor. metrics may be nil.
func NewMonitor(config *MonitorConfig, metrics *Metrics, logger utils.Logger) *Monitor {
	if config == nil {
		config = DefaultMonitorConfig()
	}
	if config.WakeBuffer < 1 {
		config.WakeBuffer = 1
	}
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	return &Monitor{
		config:  config,
		logger:  logger,
		metrics: metrics,
		tracer:  otel.Tracer(tracerName),
		wake:    make(chan struct{}, config.WakeBuffer),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Register adds a channel to the drain rotation. Channels registered
// earlier are drained earlier within the first pass.
func (m *Monitor) Register(name string, drain DrainFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, registration{name: name, drain: drain})
}

// Notify wakes the monitor. It never blocks and is safe to call from any
// producer.
func (m *Monitor) Notify() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Start runs the drain loop in a new goroutine until ctx is cancelled or
// Stop is called.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case <-m.stopCh:
		return apperrors.ErrClosed
	default:
	}
	if m.running {
		return apperrors.New(apperrors.CodeInvalidInput, "monitor already started")
	}
	m.running = true
	m.logger.Info("Starting channel monitor with %d channels", len(m.channels))
	go m.loop(ctx)
	return nil
}

// Stop stops the loop, performs a final drain and waits for it to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	select {
	case <-m.stopCh:
		m.mu.Unlock()
		return
	default:
	}
	close(m.stopCh)
	running := m.running
	m.mu.Unlock()

	if running {
		<-m.done
	} else {
		close(m.done)
	}
	m.logger.Info("Channel monitor stopped")
}

// Done is closed once the loop has exited.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.final(context.WithoutCancel(ctx))
			return
		case <-m.stopCh:
			m.final(ctx)
			return
		case <-m.wake:
			m.DrainAll(ctx)
		case <-ticker.C:
			m.DrainAll(ctx)
		}
	}
}

// final drains until a pass finds nothing, so records published before
// shutdown are not lost.
func (m *Monitor) final(ctx context.Context) {
	for m.DrainAll(ctx) > 0 {
	}
	m.logger.Debug("Final drain complete after %d passes", m.Stats().Passes)
}

// DrainAll runs one round-robin pass over every registered channel and
// returns the number of records handled. It must only be called from the
// consumer goroutine; Start's loop is that goroutine once started.
func (m *Monitor) DrainAll(ctx context.Context) int {
	m.mu.Lock()
	chans := m.channels
	start := m.next
	if len(chans) > 0 {
		m.next = (m.next + 1) % len(chans)
	}
	m.mu.Unlock()

	if len(chans) == 0 {
		return 0
	}

	_, span := m.tracer.Start(ctx, "channel.drain")
	began := time.Now()

	total := 0
	for i := range chans {
		r := chans[(start+i)%len(chans)]
		n := r.drain()
		if n > 0 {
			m.logger.Debug("Drained %d records from %s", n, r.name)
		}
		total += n
	}

	span.SetAttributes(
		attribute.Int("channels", len(chans)),
		attribute.Int("records", total),
	)
	span.End()

	if m.metrics != nil {
		m.metrics.DrainPasses.Inc()
		m.metrics.DrainLatency.Observe(time.Since(began).Seconds())
	}

	m.mu.Lock()
	m.passes++
	m.handled += int64(total)
	m.mu.Unlock()
	return total
}

// Stats returns current monitor statistics.
func (m *Monitor) Stats() MonitorStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	exited := false
	select {
	case <-m.done:
		exited = true
	default:
	}
	return MonitorStats{
		Channels: len(m.channels),
		Passes:   m.passes,
		Handled:  m.handled,
		Running:  m.running && !exited,
	}
}

// MonitorStats holds monitor statistics.
type MonitorStats struct {
	Channels int   `json:"channels"`
	Passes   int64 `json:"passes"`
	Handled  int64 `json:"handled"`
	Running  bool  `json:"running"`
}
