package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "stencil_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the tile pipeline.
type Metrics struct {
	EntitiesProcessed *prometheus.CounterVec // labels: outcome={done,skipped,failed}
	Skips             *prometheus.CounterVec // labels: stage={resolving,fetching,normalizing,quantizing}
	PipelineRunning   prometheus.Gauge

	// Imagery provider metrics.
	FetchAttempts *prometheus.CounterVec // labels: outcome={success,error}
	FetchDuration prometheus.Histogram

	QuantizeDuration *prometheus.HistogramVec // labels: variant
	Notifications    *prometheus.CounterVec   // labels: outcome={success,error}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.EntitiesProcessed,
		m.Skips,
		m.PipelineRunning,
		m.FetchAttempts,
		m.FetchDuration,
		m.QuantizeDuration,
		m.Notifications,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		EntitiesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_processed_total",
			Help:      "Entities that reached a terminal state, by outcome.",
		}, []string{"outcome"}),
		Skips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_skipped_total",
			Help:      "Skipped entities by the stage that gave up.",
		}, []string{"stage"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a run is in progress, 0 otherwise.",
		}),
		FetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_attempts_total",
			Help:      "Imagery requests by outcome, one per attempt.",
		}, []string{"outcome"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Imagery API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		QuantizeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "quantize_duration_seconds",
			Help:      "Time spent binarizing and resizing one tile.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"variant"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Completion events published, by outcome.",
		}, []string{"outcome"}),
	}
}
