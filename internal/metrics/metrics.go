package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments for a Calder service. Instruments
// register on the default registry, which Handler serves on /metrics. All
// methods are nil-safe so callers never have to guard on metrics being
// configured.
type Metrics struct {
	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec

	workersRegistered prometheus.Counter
	workersReaped     prometheus.Counter

	fragmentsAssigned prometheus.Counter
	fragmentsReported *prometheus.CounterVec

	chainsCompiled prometheus.Counter
}

func New(service string) *Metrics {
	labels := prometheus.Labels{"service": service}
	return &Metrics{
		httpRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name:        "calder_http_requests_total",
			Help:        "HTTP requests by method, route and status.",
			ConstLabels: labels,
		}, []string{"method", "route", "status"}),
		httpLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "calder_http_request_duration_seconds",
			Help:        "HTTP request latency by method and route.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"method", "route"}),
		workersRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name:        "calder_workers_registered_total",
			Help:        "Workers that joined the fleet.",
			ConstLabels: labels,
		}),
		workersReaped: promauto.NewCounter(prometheus.CounterOpts{
			Name:        "calder_workers_reaped_total",
			Help:        "Workers marked errored after a missed heartbeat.",
			ConstLabels: labels,
		}),
		fragmentsAssigned: promauto.NewCounter(prometheus.CounterOpts{
			Name:        "calder_fragments_assigned_total",
			Help:        "Fragments handed out to workers.",
			ConstLabels: labels,
		}),
		fragmentsReported: promauto.NewCounterVec(prometheus.CounterOpts{
			Name:        "calder_fragments_reported_total",
			Help:        "Fragment results by final status.",
			ConstLabels: labels,
		}, []string{"status"}),
		chainsCompiled: promauto.NewCounter(prometheus.CounterOpts{
			Name:        "calder_chains_compiled_total",
			Help:        "Workflow documents compiled and stored.",
			ConstLabels: labels,
		}),
	}
}

// Handler serves the default registry in Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

func (m *Metrics) ObserveHTTP(method, route, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) WorkerRegistered() {
	if m == nil {
		return
	}
	m.workersRegistered.Inc()
}

func (m *Metrics) WorkerReaped() {
	if m == nil {
		return
	}
	m.workersReaped.Inc()
}

func (m *Metrics) FragmentAssigned() {
	if m == nil {
		return
	}
	m.fragmentsAssigned.Inc()
}

func (m *Metrics) FragmentReported(status string) {
	if m == nil {
		return
	}
	m.fragmentsReported.WithLabelValues(status).Inc()
}

func (m *Metrics) ChainCompiled() {
	if m == nil {
		return
	}
	m.chainsCompiled.Inc()
}
