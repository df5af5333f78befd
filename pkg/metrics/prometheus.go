// Package metrics provides Prometheus metrics for the receipt points service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every collector exported by the service.
type Manager struct {
	namespace      string
	subsystem      string
	latencyBuckets []float64
	pointsBuckets  []float64
	enabled        bool
	constLabels    map[string]string
	registry       prometheus.Registerer

	// Receipt pipeline
	receiptsProcessed prometheus.Counter
	receiptsRejected  *prometheus.CounterVec
	pointsAwarded     prometheus.Histogram
	rulePoints        *prometheus.CounterVec
	lookups           *prometheus.CounterVec
	idempotentReplays prometheus.Counter

	// Store
	receiptsStored prometheus.Gauge
	storeLatency   *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByEndpoint    *prometheus.CounterVec
	errorsByType        *prometheus.CounterVec
	panics              *prometheus.CounterVec

	// Process
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // process-wide metrics

// customRegistry keeps the default Go collectors out of /metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals

func init() { //nolint:gochecknoinits
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager builds and registers a metrics manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:      "receipts",
		subsystem:      "processor",
		latencyBuckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250},
		pointsBuckets:  []float64{0, 10, 25, 50, 75, 100, 150, 200, 300, 500},
		enabled:        true,
		constLabels:    map[string]string{},
		registry:       prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen
	auto := promauto.With(m.registry)

	m.receiptsProcessed = auto.NewCounter(m.counterOpts(
		"receipts_processed_total", "Receipts accepted, scored and stored"))
	m.receiptsRejected = auto.NewCounterVec(m.counterOpts(
		"receipts_rejected_total", "Receipts refused by the service, by reason"),
		[]string{"reason"})
	m.pointsAwarded = auto.NewHistogram(m.histogramOpts(
		"points_awarded", "Distribution of points awarded per receipt", m.pointsBuckets))
	m.rulePoints = auto.NewCounterVec(m.counterOpts(
		"rule_points_total", "Points contributed by each scoring rule"),
		[]string{"rule"})
	m.lookups = auto.NewCounterVec(m.counterOpts(
		"lookups_total", "Receipt lookups by outcome"),
		[]string{"result"})
	m.idempotentReplays = auto.NewCounter(m.counterOpts(
		"idempotent_replays_total", "Process requests answered from the idempotency cache"))

	m.receiptsStored = auto.NewGauge(m.gaugeOpts(
		"receipts_stored", "Receipts currently held in the store"))
	m.storeLatency = auto.NewHistogramVec(m.histogramOpts(
		"store_latency_milliseconds", "Store operation latency in milliseconds", m.latencyBuckets),
		[]string{"op"})

	m.httpRequests = auto.NewCounterVec(m.counterOpts(
		"http_requests_total", "HTTP requests by endpoint, method and status"),
		[]string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts(
		"http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.latencyBuckets),
		[]string{"endpoint", "method", "status_code"})
	m.errorsByEndpoint = auto.NewCounterVec(m.counterOpts(
		"errors_by_endpoint_total", "Error responses by endpoint"),
		[]string{"endpoint", "method", "error_type"})
	m.errorsByType = auto.NewCounterVec(m.counterOpts(
		"errors_by_type_total", "Error responses by type and severity"),
		[]string{"error_type", "severity"})
	m.panics = auto.NewCounterVec(m.counterOpts(
		"panics_recovered_total", "Handler panics recovered by the HTTP layer"),
		[]string{"endpoint"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts(
		"system_memory_usage_bytes", "Heap bytes allocated"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts(
		"system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts(
		"system_gc_pause_time_milliseconds", "Average GC pause in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}))
}

// Enabled reports whether the manager records observations.
func (m *Manager) Enabled() bool { return m.enabled }

func (m *Manager) RecordReceiptProcessed() {
	if m.enabled {
		m.receiptsProcessed.Inc()
	}
}

func (m *Manager) RecordReceiptRejected(reason string) {
	if m.enabled {
		m.receiptsRejected.WithLabelValues(reason).Inc()
	}
}

func (m *Manager) RecordPointsAwarded(points int) {
	if m.enabled {
		m.pointsAwarded.Observe(float64(points))
	}
}

func (m *Manager) RecordRulePoints(rule string, points int) {
	if m.enabled && points > 0 {
		m.rulePoints.WithLabelValues(rule).Add(float64(points))
	}
}

func (m *Manager) RecordLookup(result string) {
	if m.enabled {
		m.lookups.WithLabelValues(result).Inc()
	}
}

func (m *Manager) RecordIdempotentReplay() {
	if m.enabled {
		m.idempotentReplays.Inc()
	}
}

func (m *Manager) UpdateReceiptsStored(count int) {
	if m.enabled {
		m.receiptsStored.Set(float64(count))
	}
}

func (m *Manager) RecordStoreLatency(op string, latencyMs float64) {
	if m.enabled {
		m.storeLatency.WithLabelValues(op).Observe(latencyMs)
	}
}

func (m *Manager) RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	if m.enabled {
		m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
		m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
	}
}

func (m *Manager) RecordError(endpoint, method, errorType, severity string) {
	if m.enabled {
		m.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
		m.errorsByType.WithLabelValues(errorType, severity).Inc()
	}
}

func (m *Manager) RecordPanic(endpoint string) {
	if m.enabled {
		m.panics.WithLabelValues(endpoint).Inc()
	}
}

func (m *Manager) UpdateSystem(memBytes uint64, goroutines int, avgGCPauseMs float64) {
	if !m.enabled {
		return
	}
	m.systemMemoryUsage.Set(float64(memBytes))
	m.systemGoroutineCount.Set(float64(goroutines))
	if avgGCPauseMs > 0 {
		m.systemGCPauseTime.Observe(avgGCPauseMs)
	}
}

// Package-level helpers record on the global manager.

// RecordReceiptProcessed counts a stored receipt.
func RecordReceiptProcessed() { globalManager.RecordReceiptProcessed() }

// RecordReceiptRejected counts a refused receipt; reason is a short label
// such as "validation" or "not_saveable".
func RecordReceiptRejected(reason string) { globalManager.RecordReceiptRejected(reason) }

// RecordPointsAwarded observes the total points of a stored receipt.
func RecordPointsAwarded(points int) { globalManager.RecordPointsAwarded(points) }

// RecordRulePoints adds a rule's contribution. Zero contributions are skipped.
func RecordRulePoints(rule string, points int) { globalManager.RecordRulePoints(rule, points) }

// RecordLookup counts a lookup by outcome ("hit" or "miss").
func RecordLookup(result string) { globalManager.RecordLookup(result) }

// RecordIdempotentReplay counts a replayed process request.
func RecordIdempotentReplay() { globalManager.RecordIdempotentReplay() }

// UpdateReceiptsStored sets the stored receipts gauge.
func UpdateReceiptsStored(count int) { globalManager.UpdateReceiptsStored(count) }

// RecordStoreLatency observes a store operation ("save" or "get").
func RecordStoreLatency(op string, latencyMs float64) {
	globalManager.RecordStoreLatency(op, latencyMs)
}

// RecordHTTPRequest counts a request and observes its duration.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	globalManager.RecordHTTPRequest(endpoint, method, statusCode, durationMs)
}

// RecordError counts an error response.
func RecordError(endpoint, method, errorType, severity string) {
	globalManager.RecordError(endpoint, method, errorType, severity)
}

// RecordPanic counts a recovered handler panic.
func RecordPanic(endpoint string) { globalManager.RecordPanic(endpoint) }

// UpdateSystem records process memory, goroutines and average GC pause.
func UpdateSystem(memBytes uint64, goroutines int, avgGCPauseMs float64) {
	globalManager.UpdateSystem(memBytes, goroutines, avgGCPauseMs)
}

// GetRegistry returns the registry backing the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
