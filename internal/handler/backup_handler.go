package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arkivo-io/arkivo/internal/dto"
	"github.com/arkivo-io/arkivo/internal/models"
	appErrors "github.com/arkivo-io/arkivo/pkg/errors"
	"github.com/arkivo-io/arkivo/pkg/response"
)

type backupService interface {
	CreateJob(ctx context.Context, job *models.BackupJob, schedule *models.BackupSchedule) error
	GetJob(ctx context.Context, id string) (*models.BackupJob, error)
	ListJobs(ctx context.Context, filter models.BackupJobFilter) ([]models.BackupJob, error)
	UpdateJob(ctx context.Context, id string, update models.BackupJobUpdate) (*models.BackupJob, error)
	DeleteJob(ctx context.Context, id string) error
	Trigger(ctx context.Context, jobID string, trigger models.TriggerSource, scheduleID *string) error
}

type scheduleService interface {
	Create(ctx context.Context, schedule *models.BackupSchedule) (*models.BackupSchedule, error)
	Get(ctx context.Context, jobID string) (*models.BackupSchedule, error)
	List(ctx context.Context) ([]models.BackupSchedule, error)
	Update(ctx context.Context, jobID string, update models.BackupScheduleUpdate) (*models.BackupSchedule, error)
	Delete(ctx context.Context, jobID string) error
}

// BackupHandler exposes the backup job surface.
type BackupHandler struct {
	backups   backupService
	schedules scheduleService
}

// NewBackupHandler builds a new handler.
func NewBackupHandler(backups backupService, schedules scheduleService) *BackupHandler {
	return &BackupHandler{backups: backups, schedules: schedules}
}

// Create godoc
// @Summary Create a backup job
// @Tags Backups
// @Accept json
// @Produce json
// @Param payload body dto.CreateBackupJobRequest true "Job payload"
// @Success 201 {object} response.Envelope
// @Router /backups [post]
func (h *BackupHandler) Create(c *gin.Context) {
	var req dto.CreateBackupJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid backup job payload"))
		return
	}
	job := req.ToJob()
	if err := h.backups.CreateJob(c.Request.Context(), job, req.ToSchedule()); err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, job)
}

// List godoc
// @Summary List backup jobs
// @Tags Backups
// @Produce json
// @Param status query string false "Status filter"
// @Param search query string false "Name search"
// @Success 200 {object} response.Envelope
// @Router /backups [get]
func (h *BackupHandler) List(c *gin.Context) {
	var query dto.ListBackupJobsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid job filters"))
		return
	}
	jobs, err := h.backups.ListJobs(c.Request.Context(), query.ToFilter())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, jobs, nil)
}

// Get godoc
// @Summary Get a backup job
// @Tags Backups
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /backups/{id} [get]
func (h *BackupHandler) Get(c *gin.Context) {
	job, err := h.backups.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Update godoc
// @Summary Update a backup job
// @Tags Backups
// @Accept json
// @Produce json
// @Param id path string true "Job ID"
// @Param payload body dto.UpdateBackupJobRequest true "Partial payload"
// @Success 200 {object} response.Envelope
// @Router /backups/{id} [put]
func (h *BackupHandler) Update(c *gin.Context) {
	var req dto.UpdateBackupJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid backup job payload"))
		return
	}
	job, err := h.backups.UpdateJob(c.Request.Context(), c.Param("id"), req.ToUpdate())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Delete godoc
// @Summary Soft delete a backup job
// @Tags Backups
// @Param id path string true "Job ID"
// @Success 204
// @Router /backups/{id} [delete]
func (h *BackupHandler) Delete(c *gin.Context) {
	if err := h.backups.DeleteJob(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Run godoc
// @Summary Trigger a backup job now
// @Tags Backups
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /backups/{id}/run [post]
func (h *BackupHandler) Run(c *gin.Context) {
	if err := h.backups.Trigger(c.Request.Context(), c.Param("id"), models.TriggerAPI, nil); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"status": string(models.JobStatusRunning)}, nil)
}

// CreateSchedule godoc
// @Summary Attach a schedule to a job
// @Tags Schedules
// @Accept json
// @Produce json
// @Param id path string true "Job ID"
// @Param payload body dto.CreateScheduleRequest true "Schedule payload"
// @Success 201 {object} response.Envelope
// @Router /backups/{id}/schedule [post]
func (h *BackupHandler) CreateSchedule(c *gin.Context) {
	var req dto.CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid schedule payload"))
		return
	}
	schedule, err := h.schedules.Create(c.Request.Context(), req.ToSchedule(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, schedule)
}

// GetSchedule godoc
// @Summary Get a job's schedule
// @Tags Schedules
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /backups/{id}/schedule [get]
func (h *BackupHandler) GetSchedule(c *gin.Context) {
	schedule, err := h.schedules.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}

// UpdateSchedule godoc
// @Summary Update a job's schedule
// @Tags Schedules
// @Accept json
// @Produce json
// @Param id path string true "Job ID"
// @Param payload body dto.UpdateScheduleRequest true "Partial payload"
// @Success 200 {object} response.Envelope
// @Router /backups/{id}/schedule [put]
func (h *BackupHandler) UpdateSchedule(c *gin.Context) {
	var req dto.UpdateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid schedule payload"))
		return
	}
	schedule, err := h.schedules.Update(c.Request.Context(), c.Param("id"), req.ToUpdate())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}

// DeleteSchedule godoc
// @Summary Remove a job's schedule
// @Tags Schedules
// @Param id path string true "Job ID"
// @Success 204
// @Router /backups/{id}/schedule [delete]
func (h *BackupHandler) DeleteSchedule(c *gin.Context) {
	if err := h.schedules.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListSchedules godoc
// @Summary List every schedule
// @Tags Schedules
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /schedules [get]
func (h *BackupHandler) ListSchedules(c *gin.Context) {
	schedules, err := h.schedules.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedules, nil)
}
