package models

import "time"

// SystemMetrics is a lightweight snapshot of runtime counters for API
// consumption; the full series lives behind the Prometheus endpoint.
type SystemMetrics struct {
	ExecutionsTotal          uint64    `json:"executions_total"`
	ExecutionsFailed         uint64    `json:"executions_failed"`
	BytesTransferredTotal    uint64    `json:"bytes_transferred_total"`
	FilesScannedTotal        uint64    `json:"files_scanned_total"`
	SchedulerSkipsTotal      uint64    `json:"scheduler_skips_total"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
