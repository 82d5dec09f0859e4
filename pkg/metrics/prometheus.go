// Package metrics provides Prometheus metrics for the voeux assignment service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Assignment runs
	runsTotal          *prometheus.CounterVec
	runDuration        *prometheus.HistogramVec
	runsRejected       *prometheus.CounterVec
	runsInFlight       prometheus.Gauge
	satisfactionScore  *prometheus.GaugeVec
	assignedStudents   *prometheus.GaugeVec
	unassignedStudents *prometheus.GaugeVec

	// Preference submissions
	voeuxAccepted prometheus.Counter
	voeuxRejected *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByEndpoint *prometheus.CounterVec

	// Run queue
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueUtilization prometheus.Gauge
	queueRejected    prometheus.Counter

	// Workers
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Store
	storeOperationLatency *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // avoid default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "voeux",
		subsystem:        "assignment",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: m.constLabels}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // flat list of collectors
	auto := promauto.With(m.registry)
	runLabels := []string{"level", "algorithm"}

	m.runsTotal = auto.NewCounterVec(m.counterOpts("runs_total",
		"Assignment runs by level, algorithm and outcome"), []string{"level", "algorithm", "outcome"})
	m.runDuration = auto.NewHistogramVec(m.histogramOpts("run_duration_milliseconds",
		"Wall time of one assignment run", m.histogramBuckets), runLabels)
	m.runsRejected = auto.NewCounterVec(m.counterOpts("runs_rejected_total",
		"Run requests rejected before execution, by reason"), []string{"level", "reason"})
	m.runsInFlight = auto.NewGauge(m.gaugeOpts("runs_in_flight",
		"Runs currently executing"))
	m.satisfactionScore = auto.NewGaugeVec(m.gaugeOpts("satisfaction_score",
		"Satisfaction score of the last completed run"), runLabels)
	m.assignedStudents = auto.NewGaugeVec(m.gaugeOpts("assigned_students",
		"Assigned students in the last completed run"), runLabels)
	m.unassignedStudents = auto.NewGaugeVec(m.gaugeOpts("unassigned_students",
		"Unassigned students in the last completed run"), runLabels)

	m.voeuxAccepted = auto.NewCounter(m.counterOpts("voeux_accepted_total",
		"Wish-list submissions accepted by the validator"))
	m.voeuxRejected = auto.NewCounterVec(m.counterOpts("voeux_rejected_total",
		"Wish-list submissions rejected by the validator, by reason"), []string{"reason"})

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total",
		"HTTP requests by endpoint, method and status"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", m.histogramBuckets), []string{"endpoint", "method", "status_code"})
	m.errorRateByEndpoint = auto.NewCounterVec(m.counterOpts("http_errors_total",
		"HTTP error responses by endpoint, method and error type"), []string{"endpoint", "method", "error_type"})

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Run requests waiting for a worker"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Maximum run queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio", "Run queue size / capacity"))
	m.queueRejected = auto.NewCounter(m.counterOpts("queue_rejected_total", "Run requests refused by a full or closed queue"))

	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count", "Run workers started"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogramOpts("worker_processing_latency_milliseconds",
		"Time a worker spends on one run request", m.histogramBuckets))
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total", "Run requests that ended in error"))

	m.storeOperationLatency = auto.NewHistogramVec(m.histogramOpts("store_operation_latency_milliseconds",
		"Latency of result-store and source operations", m.histogramBuckets), []string{"backend", "operation"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "Heap bytes allocated"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_time_milliseconds",
		"Average GC pause time in milliseconds", []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100}))
}

// RecordRun counts a finished run; outcome is "complete" or "failed".
func RecordRun(level, algorithm, outcome string, durationMs float64) {
	globalManager.runsTotal.WithLabelValues(level, algorithm, outcome).Inc()
	globalManager.runDuration.WithLabelValues(level, algorithm).Observe(durationMs)
}

// RecordRunRejected counts a run refused before execution.
func RecordRunRejected(level, reason string) {
	globalManager.runsRejected.WithLabelValues(level, reason).Inc()
}

// RunStarted increments the in-flight gauge.
func RunStarted() { globalManager.runsInFlight.Inc() }

// RunFinished decrements the in-flight gauge.
func RunFinished() { globalManager.runsInFlight.Dec() }

// UpdateRunResult publishes the quality figures of a completed run.
func UpdateRunResult(level, algorithm string, satisfaction float64, assigned, unassigned int) {
	globalManager.satisfactionScore.WithLabelValues(level, algorithm).Set(satisfaction)
	globalManager.assignedStudents.WithLabelValues(level, algorithm).Set(float64(assigned))
	globalManager.unassignedStudents.WithLabelValues(level, algorithm).Set(float64(unassigned))
}

// RecordVoeuxAccepted counts an accepted wish-list submission.
func RecordVoeuxAccepted() { globalManager.voeuxAccepted.Inc() }

// RecordVoeuxRejected counts a rejected wish-list submission.
func RecordVoeuxRejected(reason string) { globalManager.voeuxRejected.WithLabelValues(reason).Inc() }

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint records an HTTP error response.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateQueueSize sets the current run queue length.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the run queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// UpdateQueueUtilization sets the run queue utilization ratio.
func UpdateQueueUtilization(utilization float64) { globalManager.queueUtilization.Set(utilization) }

// RecordQueueRejected counts an enqueue refused by the run queue.
func RecordQueueRejected() { globalManager.queueRejected.Inc() }

// UpdateWorkerActiveCount sets the number of started run workers.
func UpdateWorkerActiveCount(count int) { globalManager.workerActiveCount.Set(float64(count)) }

// RecordWorkerProcessingLatency records the time spent on one run request.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError counts a run request that ended in error.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// RecordStoreLatency records the latency of one store operation.
func RecordStoreLatency(backend, operation string, latencyMs float64) {
	globalManager.storeOperationLatency.WithLabelValues(backend, operation).Observe(latencyMs)
}

// UpdateSystemMemoryUsage sets heap bytes allocated.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// RecordSystemGCPauseTime records the average GC pause time.
func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }

// GetRegistry returns the registry holding the service collectors.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
