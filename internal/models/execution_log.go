package models

import "time"

// LogStatus captures the lifecycle of a single engine invocation.
type LogStatus string

const (
	LogStatusRunning   LogStatus = "running"
	LogStatusCompleted LogStatus = "completed"
	LogStatusFailed    LogStatus = "failed"
	LogStatusCancelled LogStatus = "cancelled"
)

// ExecutionLog is the append-only audit record for one (source, destination)
// engine invocation. Finalized rows are summarized and archived by tier
// rotation but never physically deleted by it.
type ExecutionLog struct {
	ID               string        `db:"id" json:"id"`
	BackupJobID      string        `db:"backup_job_id" json:"backup_job_id"`
	ScheduleID       *string       `db:"schedule_id" json:"schedule_id,omitempty"`
	Command          string        `db:"command" json:"command"`
	SourcePath       string        `db:"source_path" json:"source_path"`
	DestinationPath  string        `db:"destination_path" json:"destination_path"`
	StartedAt        time.Time     `db:"started_at" json:"started_at"`
	CompletedAt      *time.Time    `db:"completed_at" json:"completed_at,omitempty"`
	Status           LogStatus     `db:"status" json:"status"`
	FilesTransferred int64         `db:"files_transferred" json:"files_transferred"`
	FilesChecked     int64         `db:"files_checked" json:"files_checked"`
	FilesDeleted     int64         `db:"files_deleted" json:"files_deleted"`
	BytesTransferred int64         `db:"bytes_transferred" json:"bytes_transferred"`
	TransferRateMbps float64       `db:"transfer_rate_mbps" json:"transfer_rate_mbps"`
	DurationSeconds  *float64      `db:"duration_seconds" json:"duration_seconds,omitempty"`
	ErrorCount       int           `db:"error_count" json:"error_count"`
	ErrorMessage     *string       `db:"error_message" json:"error_message,omitempty"`
	EngineOutput     *string       `db:"engine_output" json:"engine_output,omitempty"`
	EngineErrors     *string       `db:"engine_errors" json:"engine_errors,omitempty"`
	StorageTier      Tier          `db:"storage_tier" json:"storage_tier"`
	ArchivedPath     *string       `db:"archived_path" json:"archived_path,omitempty"`
	TriggeredBy      TriggerSource `db:"triggered_by" json:"triggered_by"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
}

// LogCompletion finalizes a running execution log with engine results.
type LogCompletion struct {
	Status           LogStatus
	FilesTransferred int64
	FilesChecked     int64
	FilesDeleted     int64
	BytesTransferred int64
	TransferRateMbps float64
	DurationSeconds  float64
	ErrorCount       int
	ErrorMessage     *string
	EngineOutput     *string
	EngineErrors     *string
}

// LogFilter narrows execution log listings.
type LogFilter struct {
	BackupJobID *string
	Status      *LogStatus
	Since       *time.Time
	Limit       int
	Offset      int
}

// LogStats aggregates execution outcomes for reporting.
type LogStats struct {
	Total            int64   `db:"total" json:"total"`
	Completed        int64   `db:"completed" json:"completed"`
	Failed           int64   `db:"failed" json:"failed"`
	Cancelled        int64   `db:"cancelled" json:"cancelled"`
	Running          int64   `db:"running" json:"running"`
	BytesTransferred int64   `db:"bytes_transferred" json:"bytes_transferred"`
	FilesTransferred int64   `db:"files_transferred" json:"files_transferred"`
	SuccessRate      float64 `db:"-" json:"success_rate"`
}
