package utils

import (
	"sync"
	"time"
)

// Phase is one timed step of a pipeline.
type Phase struct {
	Name     string
	Start    time.Time
	Duration time.Duration
	done     bool
}

// PhaseTimer stops one phase. Stop is idempotent.
type PhaseTimer struct {
	timer *Timer
	phase *Phase
}

// Stop ends the phase and returns its duration.
func (pt *PhaseTimer) Stop() time.Duration {
	if pt.phase == nil {
		return 0
	}
	t := pt.timer
	t.mu.Lock()
	defer t.mu.Unlock()
	if !pt.phase.done {
		pt.phase.Duration = t.clock.Since(pt.phase.Start)
		pt.phase.done = true
	}
	return pt.phase.Duration
}

// Timer records the phases of a pipeline run in start order. A disabled
// timer records nothing.
type Timer struct {
	name    string
	logger  Logger
	clock   Clock
	enabled bool

	mu     sync.Mutex
	phases []*Phase
}

// TimerOption configures a Timer.
type TimerOption func(*Timer)

// WithLogger sets where PrintSummary writes.
func WithLogger(logger Logger) TimerOption {
	return func(t *Timer) { t.logger = logger }
}

// WithEnabled turns recording on or off.
func WithEnabled(enabled bool) TimerOption {
	return func(t *Timer) { t.enabled = enabled }
}

// WithClock replaces the system clock.
func WithClock(clock Clock) TimerOption {
	return func(t *Timer) { t.clock = clock }
}

// NewTimer creates an enabled timer.
func NewTimer(name string, opts ...TimerOption) *Timer {
	t := &Timer{name: name, clock: RealClock{}, enabled: true}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start begins a phase.
func (t *Timer) Start(name string) *PhaseTimer {
	if !t.enabled {
		return &PhaseTimer{timer: t}
	}
	p := &Phase{Name: name, Start: t.clock.Now()}
	t.mu.Lock()
	t.phases = append(t.phases, p)
	t.mu.Unlock()
	return &PhaseTimer{timer: t, phase: p}
}

// Time runs fn as a phase.
func (t *Timer) Time(name string, fn func() error) error {
	pt := t.Start(name)
	defer pt.Stop()
	return fn()
}

// Phases returns a copy of the completed phases.
func (t *Timer) Phases() []Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Phase, 0, len(t.phases))
	for _, p := range t.phases {
		if p.done {
			out = append(out, *p)
		}
	}
	return out
}

// Total sums the completed phases.
func (t *Timer) Total() time.Duration {
	var d time.Duration
	for _, p := range t.Phases() {
		d += p.Duration
	}
	return d
}

// PrintSummary logs every completed phase.
func (t *Timer) PrintSummary() {
	if !t.enabled || t.logger == nil {
		return
	}
	phases := t.Phases()
	t.logger.Info("=== %s timing ===", t.name)
	for i, p := range phases {
		t.logger.Info("  %d. %-10s %v", i+1, p.Name, p.Duration)
	}
	t.logger.Info("  total      %v", t.Total())
}
