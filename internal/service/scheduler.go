package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arkivo-io/arkivo/internal/models"
	appErrors "github.com/arkivo-io/arkivo/pkg/errors"
)

type dueScheduleStore interface {
	ListDue(ctx context.Context, now time.Time) ([]models.BackupSchedule, error)
	RecordRun(ctx context.Context, id string, status models.ScheduleStatus, lastRun time.Time, nextRun time.Time) error
}

type scheduleExecutor interface {
	Trigger(ctx context.Context, jobID string, trigger models.TriggerSource, scheduleID *string) error
}

// Scheduler polls for due schedules on a fixed tick and fires their backup
// jobs. The fire only claims the job; the transfer runs in the background,
// so a slow transfer never stalls the tick. A job still running from a
// previous fire is skipped, never queued behind itself; the schedule simply
// advances to its next slot.
type Scheduler struct {
	schedules dueScheduleStore
	executor  scheduleExecutor
	metrics   *MetricsService
	logger    *zap.Logger

	tick time.Duration
	now  func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler wires the tick loop.
func NewScheduler(schedules dueScheduleStore, executor scheduleExecutor, metrics *MetricsService, tick time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tick <= 0 {
		tick = time.Second
	}
	return &Scheduler{
		schedules: schedules,
		executor:  executor,
		metrics:   metrics,
		logger:    logger,
		tick:      tick,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start launches the tick loop. Stop or the parent context ends it.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()
		s.logger.Sugar().Infow("scheduler started", "tick", s.tick)
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("scheduler stopped")
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()
}

// Stop halts the loop and waits for the tick in flight.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Tick evaluates every due schedule once. A failing schedule never blocks
// the others.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now()
	due, err := s.schedules.ListDue(ctx, now)
	if err != nil {
		s.logger.Sugar().Errorw("failed to list due schedules", "error", err)
		return
	}
	for _, schedule := range due {
		s.fire(ctx, schedule, now)
	}
}

func (s *Scheduler) fire(ctx context.Context, schedule models.BackupSchedule, now time.Time) {
	next, err := cronNext(schedule.CronExpression, now)
	if err != nil {
		// A schedule with a broken expression would fire forever; park it
		// a day out so the log line is visible without flooding.
		s.logger.Sugar().Errorw("schedule has invalid cron expression", "schedule_id", schedule.ID, "cron", schedule.CronExpression, "error", err)
		next = now.Add(24 * time.Hour)
	}

	// Trigger claims the job and returns; the transfer itself keeps
	// running after this tick and flips last_status when it finishes.
	scheduleID := schedule.ID
	err = s.executor.Trigger(ctx, schedule.BackupJobID, models.TriggerSchedule, &scheduleID)
	status := models.ScheduleStatusRunning
	switch {
	case err == nil:
	case isAlreadyRunning(err):
		status = models.ScheduleStatusSkipped
		s.metrics.RecordSchedulerSkip()
		s.logger.Sugar().Infow("schedule skipped, job still running", "schedule_id", schedule.ID, "job_id", schedule.BackupJobID)
	default:
		status = models.ScheduleStatusFailed
		s.logger.Sugar().Errorw("scheduled fire failed", "schedule_id", schedule.ID, "job_id", schedule.BackupJobID, "error", err)
	}

	if err := s.schedules.RecordRun(context.WithoutCancel(ctx), schedule.ID, status, now, next); err != nil {
		s.logger.Sugar().Errorw("failed to record schedule run", "schedule_id", schedule.ID, "error", err)
	}
}

func isAlreadyRunning(err error) bool {
	var appErr *appErrors.Error
	return errors.As(err, &appErr) && appErr.Code == appErrors.ErrAlreadyRunning.Code
}
