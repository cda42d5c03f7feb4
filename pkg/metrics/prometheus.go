// Package metrics provides Prometheus metrics for the stockcast prediction pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the stockcast service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Batch Metrics - What really matters for a prediction pipeline
	batchesTotal    prometheus.Counter
	batchesRejected prometheus.Counter
	batchSize       prometheus.Histogram
	itemsByOutcome  *prometheus.CounterVec

	// Feature Building Metrics
	featureBuildLatency prometheus.Histogram
	featureBuildErrors  prometheus.Counter
	cacheHits           prometheus.Counter
	cacheMisses         prometheus.Counter
	cacheSweeps         prometheus.Counter
	cacheSize           prometheus.Gauge

	// Dispatch Metrics - Scoring service interaction
	chunksDispatched prometheus.Counter
	dispatchLatency  prometheus.Histogram
	transportErrors  *prometheus.CounterVec

	// Collaborator Metrics
	persistenceFailures prometheus.Counter
	usageLogFailures    prometheus.Counter

	// Error Metrics - Detailed error tracking
	errorRateByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "stockcast",
		subsystem:        "pipeline",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	// Initialize metrics
	m.initializeMetrics()

	return m
}

func (m *Manager) initializeMetrics() {
	// Ensure metrics are registered on the configured registry (custom by default)
	auto := promauto.With(m.registry)

	// Batch Metrics
	m.batchesTotal = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "batches_total",
		Help:      "Total number of prediction batches accepted",
	})

	m.batchesRejected = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "batches_rejected_total",
		Help:      "Total number of batches rejected by validation",
	})

	m.batchSize = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "batch_size",
		Help:      "Histogram of accepted batch sizes",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	})

	m.itemsByOutcome = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "items_total",
			Help:      "Total number of items processed, by outcome",
		},
		[]string{"outcome"},
	)

	// Feature Building Metrics
	m.featureBuildLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "feature_build_latency_milliseconds",
		Help:      "Histogram of per-item feature build latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.featureBuildErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "feature_build_errors_total",
		Help:      "Total number of failed feature builds",
	})

	m.cacheHits = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "feature_cache_hits_total",
		Help:      "Total number of feature cache hits",
	})

	m.cacheMisses = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "feature_cache_misses_total",
		Help:      "Total number of feature cache misses (including stale entries)",
	})

	m.cacheSweeps = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "feature_cache_sweeps_total",
		Help:      "Total number of size-triggered cache sweeps",
	})

	m.cacheSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "feature_cache_size",
		Help:      "Current number of entries in the feature cache",
	})

	// Dispatch Metrics
	m.chunksDispatched = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "chunks_dispatched_total",
		Help:      "Total number of chunks sent to the scoring service",
	})

	m.dispatchLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "dispatch_latency_milliseconds",
		Help:      "Histogram of per-chunk dispatch latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.transportErrors = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "transport_errors_total",
			Help:      "Total number of transport failures, by kind",
		},
		[]string{"kind"},
	)

	// Collaborator Metrics
	m.persistenceFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "persistence_failures_total",
		Help:      "Total number of tolerated persistence failures",
	})

	m.usageLogFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "usage_log_failures_total",
		Help:      "Total number of tolerated usage-log failures",
	})

	// Error Metrics
	m.errorRateByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_by_component_total",
			Help:      "Total number of errors by component and type",
		},
		[]string{"component", "error_type"},
	)
}

// RecordBatch records an accepted batch and its size.
func RecordBatch(size int) {
	globalManager.batchesTotal.Inc()
	globalManager.batchSize.Observe(float64(size))
}

// RecordBatchRejected increments the rejected batches counter.
func RecordBatchRejected() {
	globalManager.batchesRejected.Inc()
}

// RecordItemOutcome counts one item result by outcome ("success", "build_error", ...).
func RecordItemOutcome(outcome string) {
	globalManager.itemsByOutcome.WithLabelValues(outcome).Inc()
}

// RecordFeatureBuildLatency records a per-item feature build latency in milliseconds.
func RecordFeatureBuildLatency(latencyMs float64) {
	globalManager.featureBuildLatency.Observe(latencyMs)
}

// RecordFeatureBuildError increments the failed feature builds counter.
func RecordFeatureBuildError() {
	globalManager.featureBuildErrors.Inc()
}

// RecordCacheHit increments the feature cache hit counter.
func RecordCacheHit() {
	globalManager.cacheHits.Inc()
}

// RecordCacheMiss increments the feature cache miss counter.
func RecordCacheMiss() {
	globalManager.cacheMisses.Inc()
}

// RecordCacheSweep increments the cache sweep counter.
func RecordCacheSweep() {
	globalManager.cacheSweeps.Inc()
}

// UpdateCacheSize updates the feature cache size gauge.
func UpdateCacheSize(size int) {
	globalManager.cacheSize.Set(float64(size))
}

// RecordChunkDispatched increments the dispatched chunks counter.
func RecordChunkDispatched() {
	globalManager.chunksDispatched.Inc()
}

// RecordDispatchLatency records a per-chunk dispatch latency in milliseconds.
func RecordDispatchLatency(latencyMs float64) {
	globalManager.dispatchLatency.Observe(latencyMs)
}

// RecordTransportError counts a transport failure by kind ("timeout", "unreachable", "malformed").
func RecordTransportError(kind string) {
	globalManager.transportErrors.WithLabelValues(kind).Inc()
}

// RecordPersistenceFailure increments the tolerated persistence failures counter.
func RecordPersistenceFailure() {
	globalManager.persistenceFailures.Inc()
}

// RecordUsageLogFailure increments the tolerated usage-log failures counter.
func RecordUsageLogFailure() {
	globalManager.usageLogFailures.Inc()
}

// RecordErrorByComponent records an error by component and type.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
