package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// FileTypeCounts is a per-extension file count histogram persisted as JSONB.
type FileTypeCounts map[string]int64

// Value marshals the histogram to JSON for persistence.
func (f FileTypeCounts) Value() (driver.Value, error) {
	if f == nil {
		f = FileTypeCounts{}
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marshal file type counts: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the histogram.
func (f *FileTypeCounts) Scan(value interface{}) error {
	if value == nil {
		*f = FileTypeCounts{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for FileTypeCounts", value)
	}
	if len(data) == 0 {
		*f = FileTypeCounts{}
		return nil
	}
	if err := json.Unmarshal(data, f); err != nil {
		return fmt.Errorf("unmarshal file type counts: %w", err)
	}
	return nil
}

// DirectoryEntry aggregates catalog contents for one directory. total_files
// and total_size cover the whole subtree; direct_files counts immediate
// children only.
type DirectoryEntry struct {
	ID                string         `db:"id" json:"id"`
	DirPath           string         `db:"dir_path" json:"dir_path"`
	DirName           string         `db:"dir_name" json:"dir_name"`
	Depth             int            `db:"depth" json:"depth"`
	TotalFiles        int64          `db:"total_files" json:"total_files"`
	DirectFiles       int64          `db:"direct_files" json:"direct_files"`
	TotalSizeBytes    int64          `db:"total_size_bytes" json:"total_size_bytes"`
	SubdirectoryCount int            `db:"subdirectory_count" json:"subdirectory_count"`
	FileTypes         FileTypeCounts `db:"file_types" json:"file_types"`
	LargestFileID     *string        `db:"largest_file_id" json:"largest_file_id,omitempty"`
	OldestFileID      *string        `db:"oldest_file_id" json:"oldest_file_id,omitempty"`
	NewestFileID      *string        `db:"newest_file_id" json:"newest_file_id,omitempty"`
	LastScanAt        time.Time      `db:"last_scan_at" json:"last_scan_at"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}
