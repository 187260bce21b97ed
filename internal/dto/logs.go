package dto

import (
	"time"

	"github.com/arkivo-io/arkivo/internal/models"
)

// ListLogsQuery filters execution log listings.
type ListLogsQuery struct {
	JobID  string     `form:"job_id"`
	Status string     `form:"status" binding:"omitempty,oneof=running completed failed cancelled"`
	Since  *time.Time `form:"since" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit  int        `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset int        `form:"offset" binding:"omitempty,min=0"`
}

// ToFilter converts query parameters into the repository filter.
func (q ListLogsQuery) ToFilter() models.LogFilter {
	filter := models.LogFilter{
		Since:  q.Since,
		Limit:  q.Limit,
		Offset: q.Offset,
	}
	if q.JobID != "" {
		id := q.JobID
		filter.BackupJobID = &id
	}
	if q.Status != "" {
		status := models.LogStatus(q.Status)
		filter.Status = &status
	}
	return filter
}
