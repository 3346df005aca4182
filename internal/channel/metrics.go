package channel

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "callpath"

// Metrics holds the channel counters. A nil *Metrics disables collection.
type Metrics struct {
	Produced  *prometheus.CounterVec
	Consumed  *prometheus.CounterVec
	Allocated *prometheus.CounterVec

	DrainPasses  prometheus.Counter
	DrainLatency prometheus.Histogram
}

// NewMetrics creates the channel counters and registers them with reg when
// reg is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Produced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "produced_records_total",
			Help:      "Records pushed onto a channel by its producer.",
		}, []string{"channel"}),
		Consumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "consumed_records_total",
			Help:      "Records handled and freed by the monitor.",
		}, []string{"channel"}),
		Allocated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "allocated_records_total",
			Help:      "Record allocations by source (recycled or arena).",
		}, []string{"channel", "source"}),
		DrainPasses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "drain_passes_total",
			Help:      "Round-robin drain passes over all registered channels.",
		}),
		DrainLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "drain_seconds",
			Help:      "Duration of a drain pass.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Produced, m.Consumed, m.Allocated, m.DrainPasses, m.DrainLatency)
	}
	return m
}

// channelCounters are the per-channel children of Metrics, resolved once so
// the producer path is a single atomic add.
type channelCounters struct {
	produced prometheus.Counter
	consumed prometheus.Counter
	recycled prometheus.Counter
	fresh    prometheus.Counter
}

func (m *Metrics) forChannel(name string) *channelCounters {
	if m == nil {
		return nil
	}
	return &channelCounters{
		produced: m.Produced.WithLabelValues(name),
		consumed: m.Consumed.WithLabelValues(name),
		recycled: m.Allocated.WithLabelValues(name, "recycled"),
		fresh:    m.Allocated.WithLabelValues(name, "arena"),
	}
}
