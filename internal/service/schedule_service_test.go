package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkivo-io/arkivo/internal/models"
	appErrors "github.com/arkivo-io/arkivo/pkg/errors"
)

type scheduleStoreStub struct {
	byJob   map[string]*models.BackupSchedule
	created []*models.BackupSchedule
	updates []models.BackupScheduleUpdate
}

func newScheduleStoreStub(schedules ...*models.BackupSchedule) *scheduleStoreStub {
	stub := &scheduleStoreStub{byJob: map[string]*models.BackupSchedule{}}
	for _, schedule := range schedules {
		stub.byJob[schedule.BackupJobID] = schedule
	}
	return stub
}

func (s *scheduleStoreStub) Create(ctx context.Context, schedule *models.BackupSchedule) error {
	schedule.ID = "sched-1"
	s.byJob[schedule.BackupJobID] = schedule
	s.created = append(s.created, schedule)
	return nil
}

func (s *scheduleStoreStub) GetByJobID(ctx context.Context, jobID string) (*models.BackupSchedule, error) {
	schedule, ok := s.byJob[jobID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return schedule, nil
}

func (s *scheduleStoreStub) List(ctx context.Context) ([]models.BackupSchedule, error) {
	out := []models.BackupSchedule{}
	for _, schedule := range s.byJob {
		out = append(out, *schedule)
	}
	return out, nil
}

func (s *scheduleStoreStub) Update(ctx context.Context, id string, update models.BackupScheduleUpdate) error {
	for _, schedule := range s.byJob {
		if schedule.ID == id {
			s.updates = append(s.updates, update)
			if update.CronExpression != nil {
				schedule.CronExpression = *update.CronExpression
			}
			if update.Enabled != nil {
				schedule.Enabled = *update.Enabled
			}
			if update.NextRun != nil {
				schedule.NextRun = update.NextRun
			}
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *scheduleStoreStub) Delete(ctx context.Context, jobID string) error {
	if _, ok := s.byJob[jobID]; !ok {
		return sql.ErrNoRows
	}
	delete(s.byJob, jobID)
	return nil
}

type scheduleJobReaderStub struct {
	jobs map[string]*models.BackupJob
}

func (s *scheduleJobReaderStub) GetByID(ctx context.Context, id string) (*models.BackupJob, error) {
	job, ok := s.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return job, nil
}

func newScheduleServiceForTest(store *scheduleStoreStub, jobIDs ...string) *ScheduleService {
	reader := &scheduleJobReaderStub{jobs: map[string]*models.BackupJob{}}
	for _, id := range jobIDs {
		reader.jobs[id] = &models.BackupJob{ID: id, IsActive: true}
	}
	return NewScheduleService(store, reader, nil)
}

func TestScheduleCreateComputesNextRun(t *testing.T) {
	store := newScheduleStoreStub()
	svc := newScheduleServiceForTest(store, "job-1")

	schedule, err := svc.Create(context.Background(), &models.BackupSchedule{
		BackupJobID:    "job-1",
		Name:           "nightly",
		CronExpression: "0 3 * * *",
		Enabled:        true,
	})
	require.NoError(t, err)
	require.NotNil(t, schedule.NextRun)
	assert.Equal(t, 3, schedule.NextRun.Hour())
	assert.True(t, schedule.NextRun.After(time.Now().UTC()))
}

func TestScheduleCreateUnknownJob(t *testing.T) {
	svc := newScheduleServiceForTest(newScheduleStoreStub())
	_, err := svc.Create(context.Background(), &models.BackupSchedule{BackupJobID: "missing", CronExpression: "0 3 * * *"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestScheduleCreateInvalidCron(t *testing.T) {
	svc := newScheduleServiceForTest(newScheduleStoreStub(), "job-1")
	_, err := svc.Create(context.Background(), &models.BackupSchedule{BackupJobID: "job-1", CronExpression: "bogus"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestScheduleUpdateNewCronRecomputesNextRun(t *testing.T) {
	existing := &models.BackupSchedule{ID: "sched-1", BackupJobID: "job-1", CronExpression: "0 3 * * *"}
	store := newScheduleStoreStub(existing)
	svc := newScheduleServiceForTest(store, "job-1")

	newCron := "0 5 * * *"
	updated, err := svc.Update(context.Background(), "job-1", models.BackupScheduleUpdate{CronExpression: &newCron})
	require.NoError(t, err)
	require.NotNil(t, updated.NextRun)
	assert.Equal(t, 5, updated.NextRun.Hour())
	require.Len(t, store.updates, 1)
	require.NotNil(t, store.updates[0].NextRun)
}

func TestScheduleUpdateInvalidCron(t *testing.T) {
	existing := &models.BackupSchedule{ID: "sched-1", BackupJobID: "job-1", CronExpression: "0 3 * * *"}
	svc := newScheduleServiceForTest(newScheduleStoreStub(existing), "job-1")

	bad := "nope"
	_, err := svc.Update(context.Background(), "job-1", models.BackupScheduleUpdate{CronExpression: &bad})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestScheduleDeleteNotFound(t *testing.T) {
	svc := newScheduleServiceForTest(newScheduleStoreStub())
	err := svc.Delete(context.Background(), "job-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
