package models

import "time"

// ScheduleStatus records the outcome of the most recent schedule evaluation.
type ScheduleStatus string

const (
	ScheduleStatusPending   ScheduleStatus = "pending"
	ScheduleStatusRunning   ScheduleStatus = "running"
	ScheduleStatusCompleted ScheduleStatus = "completed"
	ScheduleStatusFailed    ScheduleStatus = "failed"
	ScheduleStatusSkipped   ScheduleStatus = "skipped"
)

// BackupSchedule attaches a cron expression to a backup job. At most one
// schedule exists per job.
type BackupSchedule struct {
	ID             string         `db:"id" json:"id"`
	BackupJobID    string         `db:"backup_job_id" json:"backup_job_id"`
	Name           string         `db:"name" json:"name"`
	CronExpression string         `db:"cron_expression" json:"cron_expression"`
	Enabled        bool           `db:"enabled" json:"enabled"`
	NextRun        *time.Time     `db:"next_run" json:"next_run,omitempty"`
	LastRun        *time.Time     `db:"last_run" json:"last_run,omitempty"`
	LastStatus     ScheduleStatus `db:"last_status" json:"last_status"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// BackupScheduleUpdate carries partial updates; nil fields are left untouched.
type BackupScheduleUpdate struct {
	Name           *string
	CronExpression *string
	Enabled        *bool
	NextRun        *time.Time
}
