package dto

import (
	"github.com/arkivo-io/arkivo/internal/models"
)

// MappingPayload is one source with its ordered destinations.
type MappingPayload struct {
	Source       string   `json:"source" binding:"required"`
	Destinations []string `json:"destinations" binding:"required,min=1,dive,required"`
}

// SchedulePayload optionally attaches a cron schedule at job creation.
type SchedulePayload struct {
	Name           string `json:"name"`
	CronExpression string `json:"cron_expression" binding:"required"`
	Enabled        *bool  `json:"enabled"`
}

// CreateBackupJobRequest describes payload for creating a backup job.
type CreateBackupJobRequest struct {
	Name     string           `json:"name" binding:"required"`
	Mappings []MappingPayload `json:"mappings" binding:"required,min=1,dive"`
	Schedule *SchedulePayload `json:"schedule"`
}

// UpdateBackupJobRequest carries partial job changes.
type UpdateBackupJobRequest struct {
	Name     *string           `json:"name"`
	Mappings *[]MappingPayload `json:"mappings" binding:"omitempty,min=1,dive"`
}

// CreateScheduleRequest attaches or replaces a job schedule.
type CreateScheduleRequest struct {
	Name           string `json:"name"`
	CronExpression string `json:"cron_expression" binding:"required"`
	Enabled        *bool  `json:"enabled"`
}

// UpdateScheduleRequest carries partial schedule changes.
type UpdateScheduleRequest struct {
	Name           *string `json:"name"`
	CronExpression *string `json:"cron_expression"`
	Enabled        *bool   `json:"enabled"`
}

// ListBackupJobsQuery filters job listings.
type ListBackupJobsQuery struct {
	Status   string `form:"status" binding:"omitempty,oneof=PENDING RUNNING COMPLETED FAILED"`
	Search   string `form:"search"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=200"`
}

// ToMappings converts payload mappings into the persisted form.
func ToMappings(payloads []MappingPayload) models.JobMappings {
	mappings := make(models.JobMappings, 0, len(payloads))
	for _, payload := range payloads {
		mappings = append(mappings, models.PathMapping{
			Source:       payload.Source,
			Destinations: payload.Destinations,
		})
	}
	return mappings
}

// ToJob builds the model for persistence.
func (r CreateBackupJobRequest) ToJob() *models.BackupJob {
	return &models.BackupJob{
		Name:     r.Name,
		Mappings: ToMappings(r.Mappings),
	}
}

// ToSchedule builds the schedule model, nil when no schedule was attached.
func (r CreateBackupJobRequest) ToSchedule() *models.BackupSchedule {
	if r.Schedule == nil {
		return nil
	}
	return schedulePayloadToModel(r.Schedule.Name, r.Schedule.CronExpression, r.Schedule.Enabled, r.Name)
}

// ToSchedule builds the schedule model.
func (r CreateScheduleRequest) ToSchedule(jobID string) *models.BackupSchedule {
	schedule := schedulePayloadToModel(r.Name, r.CronExpression, r.Enabled, "")
	schedule.BackupJobID = jobID
	return schedule
}

func schedulePayloadToModel(name, cronExpression string, enabled *bool, fallbackName string) *models.BackupSchedule {
	if name == "" {
		name = fallbackName
	}
	schedule := &models.BackupSchedule{
		Name:           name,
		CronExpression: cronExpression,
		Enabled:        true,
	}
	if enabled != nil {
		schedule.Enabled = *enabled
	}
	return schedule
}

// ToFilter converts query parameters into the repository filter.
func (q ListBackupJobsQuery) ToFilter() models.BackupJobFilter {
	filter := models.BackupJobFilter{
		Search:   q.Search,
		Page:     q.Page,
		PageSize: q.PageSize,
	}
	if q.Status != "" {
		status := models.JobStatus(q.Status)
		filter.Status = &status
	}
	return filter
}

// ToUpdate converts the request into the partial update form.
func (r UpdateBackupJobRequest) ToUpdate() models.BackupJobUpdate {
	update := models.BackupJobUpdate{Name: r.Name}
	if r.Mappings != nil {
		mappings := ToMappings(*r.Mappings)
		update.Mappings = &mappings
	}
	return update
}

// ToUpdate converts the request into the partial update form.
func (r UpdateScheduleRequest) ToUpdate() models.BackupScheduleUpdate {
	return models.BackupScheduleUpdate{
		Name:           r.Name,
		CronExpression: r.CronExpression,
		Enabled:        r.Enabled,
	}
}
