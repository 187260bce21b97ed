package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkivo-io/arkivo/internal/models"
	"github.com/arkivo-io/arkivo/internal/transfer"
	appErrors "github.com/arkivo-io/arkivo/pkg/errors"
)

type dueScheduleStoreStub struct {
	mu      sync.Mutex
	due     []models.BackupSchedule
	listErr error
	runs    []recordedRun
}

type recordedRun struct {
	id      string
	status  models.ScheduleStatus
	lastRun time.Time
	nextRun time.Time
}

func (s *dueScheduleStoreStub) ListDue(ctx context.Context, now time.Time) ([]models.BackupSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.due, nil
}

func (s *dueScheduleStoreStub) RecordRun(ctx context.Context, id string, status models.ScheduleStatus, lastRun time.Time, nextRun time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, recordedRun{id: id, status: status, lastRun: lastRun, nextRun: nextRun})
	return nil
}

type scheduleExecutorStub struct {
	mu    sync.Mutex
	errs  map[string]error
	fired []string
}

func (s *scheduleExecutorStub) Trigger(ctx context.Context, jobID string, trigger models.TriggerSource, scheduleID *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fired = append(s.fired, jobID)
	if s.errs != nil {
		return s.errs[jobID]
	}
	return nil
}

func dueSchedule(id, jobID, cronExpr string) models.BackupSchedule {
	return models.BackupSchedule{ID: id, BackupJobID: jobID, CronExpression: cronExpr, Enabled: true}
}

func TestSchedulerTickFiresDueSchedules(t *testing.T) {
	store := &dueScheduleStoreStub{due: []models.BackupSchedule{
		dueSchedule("s1", "job-1", "0 2 * * *"),
		dueSchedule("s2", "job-2", "*/5 * * * *"),
	}}
	executor := &scheduleExecutorStub{}
	scheduler := NewScheduler(store, executor, nil, time.Second, nil)
	now := time.Date(2026, 3, 10, 1, 59, 0, 0, time.UTC)
	scheduler.now = func() time.Time { return now }

	scheduler.Tick(context.Background())

	assert.Equal(t, []string{"job-1", "job-2"}, executor.fired)
	require.Len(t, store.runs, 2)
	assert.Equal(t, models.ScheduleStatusRunning, store.runs[0].status)
	assert.Equal(t, now, store.runs[0].lastRun)
	assert.Equal(t, time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC), store.runs[0].nextRun)
	assert.Equal(t, time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC), store.runs[1].nextRun)
}

// slowEngineStub holds the slow destination open until released.
type slowEngineStub struct {
	release chan struct{}
}

func (s *slowEngineStub) Command(source, destination string) []string {
	return []string{"rclone", "sync", source, destination}
}

func (s *slowEngineStub) Sync(ctx context.Context, source, destination string) (*transfer.Result, error) {
	if destination == "remote:slow" {
		<-s.release
	}
	return &transfer.Result{ExitCode: 0, FilesTransferred: 1}, nil
}

func TestSchedulerTickReturnsWhileTransferRuns(t *testing.T) {
	engine := &slowEngineStub{release: make(chan struct{})}
	jobs := newBackupJobStoreStub(
		testJob("job-slow", models.JobMappings{{Source: "/data", Destinations: []string{"remote:slow"}}}),
		testJob("job-fast", models.JobMappings{{Source: "/data", Destinations: []string{"remote:fast"}}}),
	)
	schedules := &backupScheduleStoreStub{}
	backups := NewBackupService(jobs, schedules, newLogWriterStub(), engine, nil, nil, nil)

	store := &dueScheduleStoreStub{due: []models.BackupSchedule{
		dueSchedule("s1", "job-slow", "* * * * *"),
		dueSchedule("s2", "job-fast", "* * * * *"),
	}}
	scheduler := NewScheduler(store, backups, nil, time.Second, nil)

	done := make(chan struct{})
	go func() {
		scheduler.Tick(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tick waited on a transfer in flight")
	}

	// Both schedules were evaluated in the same tick; the slow job is
	// claimed and running, its slot already advanced.
	require.Len(t, store.runs, 2)
	assert.Equal(t, models.ScheduleStatusRunning, store.runs[0].status)
	assert.True(t, store.runs[0].nextRun.After(store.runs[0].lastRun))
	assert.Equal(t, models.JobStatusRunning, jobs.status("job-slow"))

	// Once the transfer finishes the schedule records the real outcome.
	close(engine.release)
	require.Eventually(t, func() bool {
		return schedules.lastStatus("s1") == models.ScheduleStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSchedulerSkipsRunningJob(t *testing.T) {
	store := &dueScheduleStoreStub{due: []models.BackupSchedule{dueSchedule("s1", "job-1", "* * * * *")}}
	executor := &scheduleExecutorStub{errs: map[string]error{
		"job-1": appErrors.Clone(appErrors.ErrAlreadyRunning, "backup job is already running"),
	}}
	scheduler := NewScheduler(store, executor, nil, time.Second, nil)

	scheduler.Tick(context.Background())

	require.Len(t, store.runs, 1)
	assert.Equal(t, models.ScheduleStatusSkipped, store.runs[0].status)
	// The next slot still advances so the skip does not refire every tick.
	assert.True(t, store.runs[0].nextRun.After(store.runs[0].lastRun))
}

func TestSchedulerRecordsFailure(t *testing.T) {
	store := &dueScheduleStoreStub{due: []models.BackupSchedule{
		dueSchedule("s1", "job-1", "* * * * *"),
		dueSchedule("s2", "job-2", "* * * * *"),
	}}
	executor := &scheduleExecutorStub{errs: map[string]error{
		"job-1": errors.New("engine exploded"),
	}}
	scheduler := NewScheduler(store, executor, nil, time.Second, nil)

	scheduler.Tick(context.Background())

	// The failing schedule never blocks the one behind it.
	assert.Equal(t, []string{"job-1", "job-2"}, executor.fired)
	require.Len(t, store.runs, 2)
	assert.Equal(t, models.ScheduleStatusFailed, store.runs[0].status)
	assert.Equal(t, models.ScheduleStatusRunning, store.runs[1].status)
}

func TestSchedulerParksBrokenExpression(t *testing.T) {
	store := &dueScheduleStoreStub{due: []models.BackupSchedule{dueSchedule("s1", "job-1", "garbage")}}
	executor := &scheduleExecutorStub{}
	scheduler := NewScheduler(store, executor, nil, time.Second, nil)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	scheduler.now = func() time.Time { return now }

	scheduler.Tick(context.Background())

	require.Len(t, store.runs, 1)
	assert.Equal(t, now.Add(24*time.Hour), store.runs[0].nextRun)
}

func TestSchedulerListFailureIsNonFatal(t *testing.T) {
	store := &dueScheduleStoreStub{listErr: errors.New("db down")}
	scheduler := NewScheduler(store, &scheduleExecutorStub{}, nil, time.Second, nil)
	scheduler.Tick(context.Background())
	assert.Empty(t, store.runs)
}

func TestSchedulerStartStop(t *testing.T) {
	store := &dueScheduleStoreStub{}
	scheduler := NewScheduler(store, &scheduleExecutorStub{}, nil, 10*time.Millisecond, nil)
	scheduler.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	scheduler.Stop()
}
