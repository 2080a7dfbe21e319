// internal/metrics/metrics.go

// Package metrics bundles the Prometheus instruments the bridge
// exports. One instance per process, registered on a caller-owned
// registry so tests stay isolated.
package metrics

import (
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bridge"

// Metrics holds every instrument. Fields are incremented directly by
// the owning components; there is no wrapper API to keep in sync.
type Metrics struct {
	// PollsTotal counts poll cycles by result: success, failure, skipped.
	PollsTotal *prometheus.CounterVec
	// PollDuration is the wall time of one whole poll cycle.
	PollDuration prometheus.Histogram
	// ReadsTotal counts wire reads by register bank and result.
	ReadsTotal *prometheus.CounterVec
	// BreakerOpen is 1 while the circuit breaker blocks polls.
	BreakerOpen prometheus.Gauge
	// BreakerOpens counts transitions into the open state.
	BreakerOpens prometheus.Counter
	// LastSuccess is the unix timestamp of the latest published snapshot.
	LastSuccess prometheus.Gauge
	// RegistersLoaded is the entry count of the loaded table.
	RegistersLoaded prometheus.Gauge
	// WSClients is the number of connected websocket subscribers.
	WSClients prometheus.Gauge
	// SinkPublishes counts snapshot deliveries by sink and result.
	SinkPublishes *prometheus.CounterVec
}

// New creates and registers all instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PollsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Poll cycles by result (success, failure, skipped).",
		}, []string{"result"}),
		PollDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Wall time of one poll cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
		ReadsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reads_total",
			Help:      "Wire reads by register bank and result.",
		}, []string{"function", "result"}),
		BreakerOpen: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_open",
			Help:      "1 while the circuit breaker blocks polls.",
		}),
		BreakerOpens: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_opens_total",
			Help:      "Times the circuit breaker opened.",
		}),
		LastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the latest published snapshot.",
		}),
		RegistersLoaded: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registers_loaded",
			Help:      "Entries in the loaded register table.",
		}),
		WSClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected websocket subscribers.",
		}),
		SinkPublishes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_publishes_total",
			Help:      "Snapshot deliveries by sink and result.",
		}, []string{"sink", "result"}),
	}
}

// RegisterSnapshotAge exports the current snapshot's age, computed at
// scrape time. age reports false before the first successful poll; the
// gauge then reads NaN.
func RegisterSnapshotAge(reg prometheus.Registerer, age func() (time.Duration, bool)) {
	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "snapshot_age_seconds",
		Help:      "Seconds since the current snapshot was taken; NaN before the first poll.",
	}, func() float64 {
		d, ok := age()
		if !ok {
			return math.NaN()
		}
		return d.Seconds()
	})
}
