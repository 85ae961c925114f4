package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// -----------------------------------------------------------------------------
// Prometheus collectors for the pipeline. A private registry keeps repeated
// construction (tests, restarts) from tripping duplicate registration.
// -----------------------------------------------------------------------------

type Metrics struct {
	registry *prometheus.Registry

	ActiveConnections  prometheus.Gauge
	MessagesSent       prometheus.Counter
	SlowClientsDropped prometheus.Counter
	EventsProcessed    prometheus.Counter
	SignificantChanges prometheus.Counter
	ValidationFailures prometheus.Counter
	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter
	BreakerState       *prometheus.GaugeVec
	JobRuns            *prometheus.CounterVec
	FetchDuration      *prometheus.HistogramVec
}

// -----------------------------------------------------------------------------

func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Number of live websocket connections.",
		}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Frames delivered to client send buffers.",
		}),
		SlowClientsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slow_clients_dropped_total",
			Help:      "Connections closed because their send buffer filled.",
		}),
		EventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Records that completed the processing pipeline.",
		}),
		SignificantChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "significant_changes_total",
			Help:      "Records whose field deltas crossed the threshold.",
		}),
		ValidationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_failures_total",
			Help:      "Records rejected by validation.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Cache lookups that returned a live entry.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Cache lookups that missed or hit an expired entry.",
		}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Breaker state per source (0=closed, 1=open, 2=half-open).",
		}, []string{"source"}),
		JobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled job executions by outcome.",
		}, []string{"job", "result"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Upstream fetch latency per source.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
	}

	registry.MustRegister(
		m.ActiveConnections,
		m.MessagesSent,
		m.SlowClientsDropped,
		m.EventsProcessed,
		m.SignificantChanges,
		m.ValidationFailures,
		m.CacheHits,
		m.CacheMisses,
		m.BreakerState,
		m.JobRuns,
		m.FetchDuration,
	)
	return m
}

// -----------------------------------------------------------------------------

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
