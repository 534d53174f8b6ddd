package flow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes engine execution metrics for Prometheus scraping,
// all namespaced "storyflow_":
//
//   - inflight_handlers (gauge): handler invocations currently running
//   - node_latency_ms (histogram, by node/status): handler duration
//   - snapshots_total (counter): committed snapshots
//   - retries_total (counter, by node): handler retry attempts
//   - suspended_threads (gauge): threads parked for review
//   - threads_total (counter, by status): terminal outcomes
type Metrics struct {
	inflight    prometheus.Gauge
	nodeLatency *prometheus.HistogramVec
	snapshots   prometheus.Counter
	retries     *prometheus.CounterVec
	suspended   prometheus.Gauge
	threads     *prometheus.CounterVec
}

// NewMetrics registers all engine metrics with registry. Pass
// prometheus.DefaultRegisterer for the global registry or a dedicated
// one for isolation:
//
//	registry := prometheus.NewRegistry()
//	metrics := flow.NewMetrics(registry)
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		inflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "storyflow",
			Name:      "inflight_handlers",
			Help:      "Handler invocations currently executing",
		}),
		nodeLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "storyflow",
			Name:      "node_latency_ms",
			Help:      "Handler execution duration in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 60000},
		}, []string{"node", "status"}),
		snapshots: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "storyflow",
			Name:      "snapshots_total",
			Help:      "Committed thread snapshots",
		}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storyflow",
			Name:      "retries_total",
			Help:      "Handler retry attempts",
		}, []string{"node"}),
		suspended: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "storyflow",
			Name:      "suspended_threads",
			Help:      "Threads parked awaiting human review",
		}),
		threads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storyflow",
			Name:      "threads_total",
			Help:      "Threads finished, by terminal status",
		}, []string{"status"}),
	}
}

func (m *Metrics) handlerStarted() {
	if m != nil {
		m.inflight.Inc()
	}
}

func (m *Metrics) handlerFinished(node, status string, elapsed time.Duration) {
	if m != nil {
		m.inflight.Dec()
		m.nodeLatency.WithLabelValues(node, status).Observe(float64(elapsed.Milliseconds()))
	}
}

func (m *Metrics) snapshotCommitted() {
	if m != nil {
		m.snapshots.Inc()
	}
}

func (m *Metrics) retryAttempted(node string) {
	if m != nil {
		m.retries.WithLabelValues(node).Inc()
	}
}

func (m *Metrics) threadSuspended() {
	if m != nil {
		m.suspended.Inc()
	}
}

func (m *Metrics) threadResumed() {
	if m != nil {
		m.suspended.Dec()
	}
}

func (m *Metrics) threadFinished(status Status) {
	if m != nil {
		m.threads.WithLabelValues(string(status)).Inc()
	}
}
