package models

import "time"

// ScanType identifies what initiated the scan that produced an observation.
type ScanType string

const (
	ScanTypeInitial   ScanType = "initial"
	ScanTypeScheduled ScanType = "scheduled"
	ScanTypeManual    ScanType = "manual"
	ScanTypeBackupPre ScanType = "backup_pre"
)

// FileHistory is an append-only change record written whenever a scan
// observes a tracked attribute differing from the catalog entry.
type FileHistory struct {
	ID                    string     `db:"id" json:"id"`
	FileID                string     `db:"file_id" json:"file_id"`
	ScanJobID             *string    `db:"scan_job_id" json:"scan_job_id,omitempty"`
	SizeBytes             int64      `db:"size_bytes" json:"size_bytes"`
	ContentHash           string     `db:"content_hash" json:"content_hash"`
	ModifiedAt            time.Time  `db:"modified_at" json:"modified_at"`
	AccessedAt            *time.Time `db:"accessed_at" json:"accessed_at,omitempty"`
	SizeChanged           bool       `db:"size_changed" json:"size_changed"`
	HashChanged           bool       `db:"hash_changed" json:"hash_changed"`
	ModifiedChanged       bool       `db:"modified_changed" json:"modified_changed"`
	AccessedChanged       bool       `db:"accessed_changed" json:"accessed_changed"`
	SizeDelta             int64      `db:"size_delta" json:"size_delta"`
	DaysSinceAccess       *int       `db:"days_since_access" json:"days_since_access,omitempty"`
	DaysSinceModification *int       `db:"days_since_modification" json:"days_since_modification,omitempty"`
	ScanType              ScanType   `db:"scan_type" json:"scan_type"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
}
