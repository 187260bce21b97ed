package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus captures backup job lifecycle states.
type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
)

// TriggerSource identifies what initiated an execution.
type TriggerSource string

const (
	TriggerManual   TriggerSource = "manual"
	TriggerSchedule TriggerSource = "schedule"
	TriggerAPI      TriggerSource = "api"
)

// PathMapping pairs one source path with its ordered destinations.
type PathMapping struct {
	Source       string   `json:"source"`
	Destinations []string `json:"destinations"`
}

// JobMappings is the ordered source-to-destinations set persisted as JSONB.
type JobMappings []PathMapping

// Value marshals mappings to JSON for persistence.
func (m JobMappings) Value() (driver.Value, error) {
	if m == nil {
		m = JobMappings{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal job mappings: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the mappings slice.
func (m *JobMappings) Scan(value interface{}) error {
	if value == nil {
		*m = JobMappings{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for JobMappings", value)
	}
	if len(data) == 0 {
		*m = JobMappings{}
		return nil
	}
	if err := json.Unmarshal(data, m); err != nil {
		return fmt.Errorf("unmarshal job mappings: %w", err)
	}
	return nil
}

// PairCount returns the number of (source, destination) invocations the
// mappings expand to.
func (m JobMappings) PairCount() int {
	total := 0
	for _, pm := range m {
		total += len(pm.Destinations)
	}
	return total
}

// BackupJob is a persisted recurring data-movement job. Rows are never
// physically deleted; removal flips is_active and stamps deleted_at.
type BackupJob struct {
	ID        string      `db:"id" json:"id"`
	Name      string      `db:"name" json:"name"`
	Mappings  JobMappings `db:"mappings" json:"mappings"`
	Status    JobStatus   `db:"status" json:"status"`
	IsActive  bool        `db:"is_active" json:"is_active"`
	DeletedAt *time.Time  `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt time.Time   `db:"updated_at" json:"updated_at"`
}

// BackupJobUpdate carries partial updates; nil fields are left untouched.
type BackupJobUpdate struct {
	Name     *string
	Mappings *JobMappings
}

// BackupJobFilter narrows job listings.
type BackupJobFilter struct {
	Status   *JobStatus
	Search   string
	Page     int
	PageSize int
}
