package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arkivo-io/arkivo/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides
// lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	executionsTotal *prometheus.CounterVec
	bytesMoved      prometheus.Counter
	filesScanned    prometheus.Counter
	duplicateFiles  prometheus.Gauge
	tierTransitions *prometheus.CounterVec
	schedulerSkips  prometheus.Counter
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	requestCount         uint64
	requestDurationTotal uint64
	executionCount       uint64
	executionFailedCount uint64
	bytesMovedCount      uint64
	filesScannedCount    uint64
	schedulerSkipCount   uint64
	cacheHitCount        uint64
	cacheMissCount       uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	executionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backup_executions_total",
		Help: "Total engine invocations by final status",
	}, []string{"status"})

	bytesMoved := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "backup_bytes_transferred_total",
		Help: "Total bytes reported transferred by the engine",
	})

	filesScanned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "catalog_files_scanned_total",
		Help: "Total file observations processed by catalog scans",
	})

	duplicateFiles := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_duplicate_files",
		Help: "Active catalog entries currently marked duplicate",
	})

	tierTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tier_transitions_total",
		Help: "Tier reclassifications by subject and target tier",
	}, []string{"subject", "tier"})

	schedulerSkips := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_skips_total",
		Help: "Due schedules skipped because the job was already running",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, executionsTotal, bytesMoved,
		filesScanned, duplicateFiles, tierTransitions, schedulerSkips, cacheHits, cacheMisses, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		executionsTotal: executionsTotal,
		bytesMoved:      bytesMoved,
		filesScanned:    filesScanned,
		duplicateFiles:  duplicateFiles,
		tierTransitions: tierTransitions,
		schedulerSkips:  schedulerSkips,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordExecution counts one finished engine invocation.
func (m *MetricsService) RecordExecution(status models.LogStatus, bytesTransferred int64) {
	if m == nil {
		return
	}
	m.executionsTotal.WithLabelValues(string(status)).Inc()
	atomic.AddUint64(&m.executionCount, 1)
	if status != models.LogStatusCompleted {
		atomic.AddUint64(&m.executionFailedCount, 1)
	}
	if bytesTransferred > 0 {
		m.bytesMoved.Add(float64(bytesTransferred))
		atomic.AddUint64(&m.bytesMovedCount, uint64(bytesTransferred))
	}
}

// RecordFilesScanned counts catalog observations.
func (m *MetricsService) RecordFilesScanned(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.filesScanned.Add(float64(n))
	atomic.AddUint64(&m.filesScannedCount, uint64(n))
}

// SetDuplicateFiles publishes the current duplicate gauge.
func (m *MetricsService) SetDuplicateFiles(n int64) {
	if m == nil {
		return
	}
	m.duplicateFiles.Set(float64(n))
}

// RecordTierTransition counts one reclassification.
func (m *MetricsService) RecordTierTransition(subject string, tier models.Tier) {
	if m == nil {
		return
	}
	m.tierTransitions.WithLabelValues(subject, string(tier)).Inc()
}

// RecordSchedulerSkip counts a due schedule skipped on overlap.
func (m *MetricsService) RecordSchedulerSkip() {
	if m == nil {
		return
	}
	m.schedulerSkips.Inc()
	atomic.AddUint64(&m.schedulerSkipCount, 1)
}

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
}

// Snapshot returns aggregated counters for the status endpoints.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}
	var cacheRatio float64
	if hits+misses > 0 {
		cacheRatio = float64(hits) / float64(hits+misses)
	}

	return models.SystemMetrics{
		ExecutionsTotal:          atomic.LoadUint64(&m.executionCount),
		ExecutionsFailed:         atomic.LoadUint64(&m.executionFailedCount),
		BytesTransferredTotal:    atomic.LoadUint64(&m.bytesMovedCount),
		FilesScannedTotal:        atomic.LoadUint64(&m.filesScannedCount),
		SchedulerSkipsTotal:      atomic.LoadUint64(&m.schedulerSkipCount),
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CacheHitRatio:            cacheRatio,
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
