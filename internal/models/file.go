package models

import (
	"time"

	"github.com/lib/pq"
)

// FileEntry is one row per observed filesystem path. Exactly one active
// entry per content hash is canonical; every other active entry with the
// same hash carries is_duplicate plus a duplicate_of back-reference.
type FileEntry struct {
	ID              string         `db:"id" json:"id"`
	FilePath        string         `db:"file_path" json:"file_path"`
	FileName        string         `db:"file_name" json:"file_name"`
	Extension       *string        `db:"extension" json:"extension,omitempty"`
	SizeBytes       int64          `db:"size_bytes" json:"size_bytes"`
	ContentHash     string         `db:"content_hash" json:"content_hash"`
	FileCreatedAt   *time.Time     `db:"file_created_at" json:"file_created_at,omitempty"`
	FileModifiedAt  time.Time      `db:"file_modified_at" json:"file_modified_at"`
	FileAccessedAt  *time.Time     `db:"file_accessed_at" json:"file_accessed_at,omitempty"`
	ParentDirectory string         `db:"parent_directory" json:"parent_directory"`
	Depth           int            `db:"depth" json:"depth"`
	IsDuplicate     bool           `db:"is_duplicate" json:"is_duplicate"`
	DuplicateOf     *string        `db:"duplicate_of" json:"duplicate_of,omitempty"`
	IsActive        bool           `db:"is_active" json:"is_active"`
	BackupCount     int            `db:"backup_count" json:"backup_count"`
	LastBackupAt    *time.Time     `db:"last_backup_at" json:"last_backup_at,omitempty"`
	BackupJobIDs    pq.StringArray `db:"backup_job_ids" json:"backup_job_ids,omitempty"`
	Temperature     Tier           `db:"temperature" json:"temperature"`
	FirstSeenAt     time.Time      `db:"first_seen_at" json:"first_seen_at"`
	LastScanAt      time.Time      `db:"last_scan_at" json:"last_scan_at"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// FileObservedUpdate applies a fresh observation to an existing entry.
type FileObservedUpdate struct {
	SizeBytes      int64
	ContentHash    string
	FileModifiedAt time.Time
	FileAccessedAt *time.Time
	LastScanAt     time.Time
}

// FileFilter narrows catalog searches.
type FileFilter struct {
	PathPrefix     string
	NameContains   string
	Extension      *string
	MinSize        *int64
	MaxSize        *int64
	Temperature    *Tier
	DuplicatesOnly bool
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// DuplicateGroup summarizes every active entry sharing one content hash.
type DuplicateGroup struct {
	ContentHash string      `json:"content_hash"`
	Count       int         `json:"count"`
	WastedBytes int64       `json:"wasted_bytes"`
	Files       []FileEntry `json:"files"`
}

// FileTemperature pairs the columns the tiering pass needs to reclassify a
// file without loading the whole row.
type FileTemperature struct {
	ID             string     `db:"id"`
	FileAccessedAt *time.Time `db:"file_accessed_at"`
	FileModifiedAt time.Time  `db:"file_modified_at"`
	Temperature    Tier       `db:"temperature"`
}
