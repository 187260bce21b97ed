package models

import "time"

// ScanStatus captures scan job lifecycle states.
type ScanStatus string

const (
	ScanStatusPending   ScanStatus = "pending"
	ScanStatusRunning   ScanStatus = "running"
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusFailed    ScanStatus = "failed"
)

// ScanJob records one catalog reconciliation run over a root path.
type ScanJob struct {
	ID                 string        `db:"id" json:"id"`
	RootPath           string        `db:"root_path" json:"root_path"`
	Status             ScanStatus    `db:"status" json:"status"`
	StartedAt          *time.Time    `db:"started_at" json:"started_at,omitempty"`
	CompletedAt        *time.Time    `db:"completed_at" json:"completed_at,omitempty"`
	FilesScanned       int64         `db:"files_scanned" json:"files_scanned"`
	DirectoriesScanned int64         `db:"directories_scanned" json:"directories_scanned"`
	TotalSizeBytes     int64         `db:"total_size_bytes" json:"total_size_bytes"`
	ErrorsCount        int           `db:"errors_count" json:"errors_count"`
	ErrorMessage       *string       `db:"error_message" json:"error_message,omitempty"`
	DurationSeconds    *float64      `db:"duration_seconds" json:"duration_seconds,omitempty"`
	BackupJobID        *string       `db:"backup_job_id" json:"backup_job_id,omitempty"`
	ScanType           ScanType      `db:"scan_type" json:"scan_type"`
	TriggeredBy        TriggerSource `db:"triggered_by" json:"triggered_by"`
	CreatedAt          time.Time     `db:"created_at" json:"created_at"`
}

// ScanResult carries the final walk totals back onto the scan job row.
type ScanResult struct {
	FilesScanned       int64
	DirectoriesScanned int64
	TotalSizeBytes     int64
	ErrorsCount        int
	ErrorMessage       *string
	DurationSeconds    float64
}
