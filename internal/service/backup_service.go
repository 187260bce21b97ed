package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arkivo-io/arkivo/internal/models"
	"github.com/arkivo-io/arkivo/internal/transfer"
	appErrors "github.com/arkivo-io/arkivo/pkg/errors"
)

type backupJobStore interface {
	Create(ctx context.Context, job *models.BackupJob) error
	GetByID(ctx context.Context, id string) (*models.BackupJob, error)
	List(ctx context.Context, filter models.BackupJobFilter) ([]models.BackupJob, error)
	Update(ctx context.Context, id string, update models.BackupJobUpdate) error
	TryMarkRunning(ctx context.Context, id string) (bool, error)
	SetStatus(ctx context.Context, id string, status models.JobStatus) error
	SoftDelete(ctx context.Context, id string, deletedAt time.Time) error
}

type backupScheduleStore interface {
	Create(ctx context.Context, schedule *models.BackupSchedule) error
	SetLastStatus(ctx context.Context, id string, status models.ScheduleStatus) error
}

type executionLogWriter interface {
	Create(ctx context.Context, log *models.ExecutionLog) error
	Complete(ctx context.Context, id string, completion models.LogCompletion) error
}

type transferEngine interface {
	Command(source, destination string) []string
	Sync(ctx context.Context, source, destination string) (*transfer.Result, error)
}

// backupCatalog is the slice of the catalog the orchestrator needs: a
// pre-transfer scan of each source root and the post-transfer backup link.
type backupCatalog interface {
	ScanForBackup(ctx context.Context, root string, jobID string) error
	MarkBackedUp(ctx context.Context, sourcePrefix string, jobID string, backedUpAt time.Time) (int64, error)
}

// BackupService owns the backup job lifecycle and drives the transfer
// engine for each (source, destination) pair.
type BackupService struct {
	jobs      backupJobStore
	schedules backupScheduleStore
	logs      executionLogWriter
	engine    transferEngine
	catalog   backupCatalog
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewBackupService wires the orchestrator.
func NewBackupService(jobs backupJobStore, schedules backupScheduleStore, logs executionLogWriter, engine transferEngine, catalog backupCatalog, metrics *MetricsService, logger *zap.Logger) *BackupService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BackupService{
		jobs:      jobs,
		schedules: schedules,
		logs:      logs,
		engine:    engine,
		catalog:   catalog,
		metrics:   metrics,
		logger:    logger,
	}
}

// CreateJob validates and persists a job, with an optional attached
// schedule created in the same call.
func (s *BackupService) CreateJob(ctx context.Context, job *models.BackupJob, schedule *models.BackupSchedule) error {
	if err := validateMappings(job.Mappings); err != nil {
		return err
	}
	if strings.TrimSpace(job.Name) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "job name is required")
	}
	if schedule != nil {
		next, err := cronNext(schedule.CronExpression, time.Now().UTC())
		if err != nil {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid cron expression: %v", err))
		}
		schedule.NextRun = &next
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		return appErrors.StoreError(err, "create backup job")
	}
	if schedule != nil {
		schedule.BackupJobID = job.ID
		if err := s.schedules.Create(ctx, schedule); err != nil {
			return appErrors.StoreError(err, "create backup schedule")
		}
	}
	s.logger.Sugar().Infow("backup job created", "job_id", job.ID, "name", job.Name, "pairs", job.Mappings.PairCount())
	return nil
}

// GetJob returns one active job. Soft-deleted jobs answer not found.
func (s *BackupService) GetJob(ctx context.Context, id string) (*models.BackupJob, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "backup job not found")
		}
		return nil, appErrors.StoreError(err, "get backup job")
	}
	return job, nil
}

// ListJobs returns active jobs.
func (s *BackupService) ListJobs(ctx context.Context, filter models.BackupJobFilter) ([]models.BackupJob, error) {
	jobs, err := s.jobs.List(ctx, filter)
	if err != nil {
		return nil, appErrors.StoreError(err, "list backup jobs")
	}
	return jobs, nil
}

// UpdateJob applies partial changes.
func (s *BackupService) UpdateJob(ctx context.Context, id string, update models.BackupJobUpdate) (*models.BackupJob, error) {
	if update.Mappings != nil {
		if err := validateMappings(*update.Mappings); err != nil {
			return nil, err
		}
	}
	if update.Name != nil && strings.TrimSpace(*update.Name) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "job name is required")
	}
	if err := s.jobs.Update(ctx, id, update); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "backup job not found")
		}
		return nil, appErrors.StoreError(err, "update backup job")
	}
	return s.GetJob(ctx, id)
}

// DeleteJob soft-deletes a job. Repeating the call answers not found, the
// execution history stays queryable.
func (s *BackupService) DeleteJob(ctx context.Context, id string) error {
	if err := s.jobs.SoftDelete(ctx, id, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "backup job not found")
		}
		return appErrors.StoreError(err, "delete backup job")
	}
	s.logger.Sugar().Infow("backup job deleted", "job_id", id)
	return nil
}

// Trigger claims the job and runs it in the background. The claim itself is
// synchronous so overlap is refused before the caller gets an answer; a
// schedule reference, when present, has its outcome stamped once the run
// finishes.
func (s *BackupService) Trigger(ctx context.Context, jobID string, trigger models.TriggerSource, scheduleID *string) error {
	job, err := s.claim(ctx, jobID)
	if err != nil {
		return err
	}
	go func() {
		if err := s.run(context.Background(), job, trigger, scheduleID); err != nil {
			s.logger.Sugar().Errorw("background execution failed", "job_id", job.ID, "error", err)
		}
	}()
	return nil
}

// Execute claims the job and runs every mapping pair to completion.
func (s *BackupService) Execute(ctx context.Context, jobID string, trigger models.TriggerSource, scheduleID *string) error {
	job, err := s.claim(ctx, jobID)
	if err != nil {
		return err
	}
	return s.run(ctx, job, trigger, scheduleID)
}

func (s *BackupService) claim(ctx context.Context, jobID string) (*models.BackupJob, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	claimed, err := s.jobs.TryMarkRunning(ctx, jobID)
	if err != nil {
		return nil, appErrors.StoreError(err, "claim backup job")
	}
	if !claimed {
		return nil, appErrors.Clone(appErrors.ErrAlreadyRunning, "backup job is already running")
	}
	return job, nil
}

// run executes every (source, destination) pair in mapping order. One
// failed pair fails the job but never stops the remaining pairs;
// cancellation stops everything after finalizing the current log.
func (s *BackupService) run(ctx context.Context, job *models.BackupJob, trigger models.TriggerSource, scheduleID *string) error {
	allOK := true
	cancelled := false

pairs:
	for _, mapping := range job.Mappings {
		s.preScan(ctx, mapping.Source, job.ID)
		for _, destination := range mapping.Destinations {
			ok, stop := s.runPair(ctx, job, mapping.Source, destination, trigger, scheduleID)
			if !ok {
				allOK = false
			}
			if stop {
				cancelled = true
				break pairs
			}
		}
	}

	final := models.JobStatusCompleted
	if !allOK {
		final = models.JobStatusFailed
	}
	finCtx := context.WithoutCancel(ctx)
	if err := s.jobs.SetStatus(finCtx, job.ID, final); err != nil {
		s.logger.Sugar().Errorw("failed to finalize job status", "job_id", job.ID, "error", err)
	}
	if scheduleID != nil {
		outcome := models.ScheduleStatusCompleted
		if !allOK {
			outcome = models.ScheduleStatusFailed
		}
		if err := s.schedules.SetLastStatus(finCtx, *scheduleID, outcome); err != nil {
			s.logger.Sugar().Errorw("failed to finalize schedule status", "schedule_id", *scheduleID, "error", err)
		}
	}
	s.logger.Sugar().Infow("backup job finished", "job_id", job.ID, "status", final, "triggered_by", trigger)

	if cancelled {
		return ctx.Err()
	}
	if !allOK {
		return appErrors.Clone(appErrors.ErrEngineFailure, "one or more transfers failed")
	}
	return nil
}

// runPair performs one engine invocation under its own execution log.
// ok reports success, stop requests abandoning the remaining pairs.
func (s *BackupService) runPair(ctx context.Context, job *models.BackupJob, source, destination string, trigger models.TriggerSource, scheduleID *string) (ok bool, stop bool) {
	finCtx := context.WithoutCancel(ctx)

	log := &models.ExecutionLog{
		BackupJobID:     job.ID,
		ScheduleID:      scheduleID,
		Command:         strings.Join(s.engine.Command(source, destination), " "),
		SourcePath:      source,
		DestinationPath: destination,
		TriggeredBy:     trigger,
	}
	if err := s.logs.Create(ctx, log); err != nil {
		s.logger.Sugar().Errorw("failed to open execution log", "job_id", job.ID, "source", source, "error", err)
		return false, false
	}

	result, err := s.engine.Sync(ctx, source, destination)
	if err != nil {
		msg := err.Error()
		s.finalizeLog(finCtx, log.ID, models.LogCompletion{
			Status:       models.LogStatusFailed,
			ErrorCount:   1,
			ErrorMessage: &msg,
		})
		s.metrics.RecordExecution(models.LogStatusFailed, 0)
		return false, false
	}

	completion := completionFromResult(result)
	switch {
	case result.Cancelled:
		completion.Status = models.LogStatusCancelled
		s.finalizeLog(finCtx, log.ID, completion)
		s.metrics.RecordExecution(models.LogStatusCancelled, result.BytesTransferred)
		return false, true
	case result.Succeeded():
		completion.Status = models.LogStatusCompleted
		s.finalizeLog(finCtx, log.ID, completion)
		s.metrics.RecordExecution(models.LogStatusCompleted, result.BytesTransferred)
		if s.catalog != nil {
			if linked, err := s.catalog.MarkBackedUp(finCtx, source, job.ID, time.Now().UTC()); err != nil {
				s.logger.Sugar().Warnw("backup link update failed", "job_id", job.ID, "source", source, "error", err)
			} else {
				s.logger.Sugar().Debugw("backup link updated", "job_id", job.ID, "source", source, "files", linked)
			}
		}
		return true, false
	default:
		completion.Status = models.LogStatusFailed
		if completion.ErrorMessage == nil {
			msg := fmt.Sprintf("engine exited with code %d", result.ExitCode)
			completion.ErrorMessage = &msg
		}
		s.finalizeLog(finCtx, log.ID, completion)
		s.metrics.RecordExecution(models.LogStatusFailed, result.BytesTransferred)
		return false, false
	}
}

// preScan refreshes the catalog under the source root before the transfer.
// Failures are logged and ignored; an out-of-date catalog never blocks the
// backup itself.
func (s *BackupService) preScan(ctx context.Context, root string, jobID string) {
	if s.catalog == nil {
		return
	}
	if err := s.catalog.ScanForBackup(ctx, root, jobID); err != nil {
		s.logger.Sugar().Warnw("pre-backup scan failed", "job_id", jobID, "root", root, "error", err)
	}
}

func (s *BackupService) finalizeLog(ctx context.Context, logID string, completion models.LogCompletion) {
	if err := s.logs.Complete(ctx, logID, completion); err != nil {
		s.logger.Sugar().Errorw("failed to finalize execution log", "log_id", logID, "error", err)
	}
}

func completionFromResult(result *transfer.Result) models.LogCompletion {
	completion := models.LogCompletion{
		FilesTransferred: result.FilesTransferred,
		FilesChecked:     result.FilesChecked,
		FilesDeleted:     result.FilesDeleted,
		BytesTransferred: result.BytesTransferred,
		TransferRateMbps: result.RateMbps,
		DurationSeconds:  result.Duration.Seconds(),
		ErrorCount:       result.ErrorCount,
	}
	if len(result.ErrorSample) > 0 {
		msg := strings.Join(result.ErrorSample, "; ")
		completion.ErrorMessage = &msg
	}
	if result.Stdout != "" {
		out := result.Stdout
		completion.EngineOutput = &out
	}
	if result.Stderr != "" {
		errs := result.Stderr
		completion.EngineErrors = &errs
	}
	return completion
}

func validateMappings(mappings models.JobMappings) error {
	if len(mappings) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "at least one source mapping is required")
	}
	for _, mapping := range mappings {
		if strings.TrimSpace(mapping.Source) == "" {
			return appErrors.Clone(appErrors.ErrValidation, "mapping source path is required")
		}
		if len(mapping.Destinations) == 0 {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("mapping %q needs at least one destination", mapping.Source))
		}
		for _, destination := range mapping.Destinations {
			if strings.TrimSpace(destination) == "" {
				return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("mapping %q has an empty destination", mapping.Source))
			}
		}
	}
	return nil
}
