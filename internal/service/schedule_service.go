package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arkivo-io/arkivo/internal/models"
	appErrors "github.com/arkivo-io/arkivo/pkg/errors"
)

type scheduleStore interface {
	Create(ctx context.Context, schedule *models.BackupSchedule) error
	GetByJobID(ctx context.Context, jobID string) (*models.BackupSchedule, error)
	List(ctx context.Context) ([]models.BackupSchedule, error)
	Update(ctx context.Context, id string, update models.BackupScheduleUpdate) error
	Delete(ctx context.Context, jobID string) error
}

type scheduleJobReader interface {
	GetByID(ctx context.Context, id string) (*models.BackupJob, error)
}

// ScheduleService manages the cron attachment of backup jobs. Expressions
// are validated before anything is persisted.
type ScheduleService struct {
	schedules scheduleStore
	jobs      scheduleJobReader
	logger    *zap.Logger
}

// NewScheduleService wires the service.
func NewScheduleService(schedules scheduleStore, jobs scheduleJobReader, logger *zap.Logger) *ScheduleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{schedules: schedules, jobs: jobs, logger: logger}
}

// Create attaches a schedule to an active job.
func (s *ScheduleService) Create(ctx context.Context, schedule *models.BackupSchedule) (*models.BackupSchedule, error) {
	if _, err := s.jobs.GetByID(ctx, schedule.BackupJobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "backup job not found")
		}
		return nil, appErrors.StoreError(err, "load backup job")
	}

	next, err := cronNext(schedule.CronExpression, time.Now().UTC())
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid cron expression: %v", err))
	}
	schedule.NextRun = &next

	if err := s.schedules.Create(ctx, schedule); err != nil {
		return nil, appErrors.StoreError(err, "create schedule")
	}
	s.logger.Sugar().Infow("schedule created", "schedule_id", schedule.ID, "job_id", schedule.BackupJobID, "cron", schedule.CronExpression)
	return schedule, nil
}

// Get returns the schedule attached to a job.
func (s *ScheduleService) Get(ctx context.Context, jobID string) (*models.BackupSchedule, error) {
	schedule, err := s.schedules.GetByJobID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return nil, appErrors.StoreError(err, "get schedule")
	}
	return schedule, nil
}

// List returns every schedule.
func (s *ScheduleService) List(ctx context.Context) ([]models.BackupSchedule, error) {
	schedules, err := s.schedules.List(ctx)
	if err != nil {
		return nil, appErrors.StoreError(err, "list schedules")
	}
	return schedules, nil
}

// Update applies partial changes; a new cron expression recomputes the
// next fire time.
func (s *ScheduleService) Update(ctx context.Context, jobID string, update models.BackupScheduleUpdate) (*models.BackupSchedule, error) {
	schedule, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if update.CronExpression != nil {
		next, err := cronNext(*update.CronExpression, time.Now().UTC())
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid cron expression: %v", err))
		}
		update.NextRun = &next
	}

	if err := s.schedules.Update(ctx, schedule.ID, update); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return nil, appErrors.StoreError(err, "update schedule")
	}
	return s.Get(ctx, jobID)
}

// Delete removes a job's schedule.
func (s *ScheduleService) Delete(ctx context.Context, jobID string) error {
	if err := s.schedules.Delete(ctx, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return appErrors.StoreError(err, "delete schedule")
	}
	s.logger.Sugar().Infow("schedule deleted", "job_id", jobID)
	return nil
}
