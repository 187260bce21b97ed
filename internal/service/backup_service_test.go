package service

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkivo-io/arkivo/internal/models"
	"github.com/arkivo-io/arkivo/internal/transfer"
	appErrors "github.com/arkivo-io/arkivo/pkg/errors"
)

type backupJobStoreStub struct {
	mu      sync.Mutex
	jobs    map[string]*models.BackupJob
	created []*models.BackupJob
	getErr  error
}

func newBackupJobStoreStub(jobs ...*models.BackupJob) *backupJobStoreStub {
	stub := &backupJobStoreStub{jobs: map[string]*models.BackupJob{}}
	for _, job := range jobs {
		stub.jobs[job.ID] = job
	}
	return stub
}

func (s *backupJobStoreStub) Create(ctx context.Context, job *models.BackupJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.ID == "" {
		job.ID = fmt.Sprintf("job-%d", len(s.jobs)+1)
	}
	job.Status = models.JobStatusPending
	job.IsActive = true
	s.jobs[job.ID] = job
	s.created = append(s.created, job)
	return nil
}

func (s *backupJobStoreStub) GetByID(ctx context.Context, id string) (*models.BackupJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	job, ok := s.jobs[id]
	if !ok || !job.IsActive {
		return nil, sql.ErrNoRows
	}
	copied := *job
	return &copied, nil
}

func (s *backupJobStoreStub) List(ctx context.Context, filter models.BackupJobFilter) ([]models.BackupJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.BackupJob{}
	for _, job := range s.jobs {
		if job.IsActive {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (s *backupJobStoreStub) Update(ctx context.Context, id string, update models.BackupJobUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || !job.IsActive {
		return sql.ErrNoRows
	}
	if update.Name != nil {
		job.Name = *update.Name
	}
	if update.Mappings != nil {
		job.Mappings = *update.Mappings
	}
	return nil
}

func (s *backupJobStoreStub) TryMarkRunning(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || !job.IsActive {
		return false, nil
	}
	if job.Status == models.JobStatusRunning {
		return false, nil
	}
	job.Status = models.JobStatusRunning
	return true, nil
}

func (s *backupJobStoreStub) SetStatus(ctx context.Context, id string, status models.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	job.Status = status
	return nil
}

func (s *backupJobStoreStub) SoftDelete(ctx context.Context, id string, deletedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || !job.IsActive {
		return sql.ErrNoRows
	}
	job.IsActive = false
	job.DeletedAt = &deletedAt
	return nil
}

func (s *backupJobStoreStub) status(id string) models.JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id].Status
}

type backupScheduleStoreStub struct {
	mu       sync.Mutex
	created  []*models.BackupSchedule
	statuses map[string]models.ScheduleStatus
}

func (s *backupScheduleStoreStub) Create(ctx context.Context, schedule *models.BackupSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	schedule.ID = fmt.Sprintf("sched-%d", len(s.created)+1)
	s.created = append(s.created, schedule)
	return nil
}

func (s *backupScheduleStoreStub) SetLastStatus(ctx context.Context, id string, status models.ScheduleStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statuses == nil {
		s.statuses = map[string]models.ScheduleStatus{}
	}
	s.statuses[id] = status
	return nil
}

func (s *backupScheduleStoreStub) lastStatus(id string) models.ScheduleStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[id]
}

type logWriterStub struct {
	mu          sync.Mutex
	created     []*models.ExecutionLog
	completions map[string]models.LogCompletion
}

func newLogWriterStub() *logWriterStub {
	return &logWriterStub{completions: map[string]models.LogCompletion{}}
}

func (s *logWriterStub) Create(ctx context.Context, log *models.ExecutionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	log.ID = fmt.Sprintf("log-%d", len(s.created)+1)
	log.Status = models.LogStatusRunning
	s.created = append(s.created, log)
	return nil
}

func (s *logWriterStub) Complete(ctx context.Context, id string, completion models.LogCompletion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, done := s.completions[id]; done {
		return sql.ErrNoRows
	}
	s.completions[id] = completion
	return nil
}

// engineStub returns scripted results keyed by destination.
type engineStub struct {
	mu      sync.Mutex
	results map[string]*transfer.Result
	errs    map[string]error
	synced  []string
}

func newEngineStub() *engineStub {
	return &engineStub{results: map[string]*transfer.Result{}, errs: map[string]error{}}
}

func (s *engineStub) Command(source, destination string) []string {
	return []string{"rclone", "sync", source, destination}
}

func (s *engineStub) Sync(ctx context.Context, source, destination string) (*transfer.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.synced = append(s.synced, source+"=>"+destination)
	if err, ok := s.errs[destination]; ok {
		return nil, err
	}
	if result, ok := s.results[destination]; ok {
		return result, nil
	}
	return &transfer.Result{ExitCode: 0, FilesTransferred: 1, BytesTransferred: 100}, nil
}

type backupCatalogStub struct {
	mu       sync.Mutex
	scans    []string
	linked   []string
	scanErr  error
	linkErr  error
	linkedAt []time.Time
}

func (s *backupCatalogStub) ScanForBackup(ctx context.Context, root string, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scans = append(s.scans, root)
	return s.scanErr
}

func (s *backupCatalogStub) MarkBackedUp(ctx context.Context, sourcePrefix string, jobID string, backedUpAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.linkErr != nil {
		return 0, s.linkErr
	}
	s.linked = append(s.linked, sourcePrefix)
	s.linkedAt = append(s.linkedAt, backedUpAt)
	return 1, nil
}

func newBackupServiceForTest(jobs *backupJobStoreStub, engine *engineStub, logs *logWriterStub, catalog *backupCatalogStub) *BackupService {
	return NewBackupService(jobs, &backupScheduleStoreStub{}, logs, engine, catalog, nil, nil)
}

func testJob(id string, mappings models.JobMappings) *models.BackupJob {
	return &models.BackupJob{
		ID:       id,
		Name:     "nightly",
		Mappings: mappings,
		Status:   models.JobStatusPending,
		IsActive: true,
	}
}

func TestCreateJobValidatesMappings(t *testing.T) {
	jobs := newBackupJobStoreStub()
	svc := newBackupServiceForTest(jobs, newEngineStub(), newLogWriterStub(), &backupCatalogStub{})

	cases := []struct {
		name string
		job  *models.BackupJob
	}{
		{"no mappings", &models.BackupJob{Name: "x", Mappings: models.JobMappings{}}},
		{"empty source", &models.BackupJob{Name: "x", Mappings: models.JobMappings{{Source: " ", Destinations: []string{"remote:a"}}}}},
		{"no destinations", &models.BackupJob{Name: "x", Mappings: models.JobMappings{{Source: "/data", Destinations: nil}}}},
		{"blank name", &models.BackupJob{Name: "  ", Mappings: models.JobMappings{{Source: "/data", Destinations: []string{"remote:a"}}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.CreateJob(context.Background(), tc.job, nil)
			require.Error(t, err)
			appErr := appErrors.FromError(err)
			assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
		})
	}
	assert.Empty(t, jobs.created)
}

func TestCreateJobWithSchedule(t *testing.T) {
	jobs := newBackupJobStoreStub()
	schedules := &backupScheduleStoreStub{}
	svc := NewBackupService(jobs, schedules, newLogWriterStub(), newEngineStub(), &backupCatalogStub{}, nil, nil)

	job := &models.BackupJob{
		Name:     "nightly",
		Mappings: models.JobMappings{{Source: "/data", Destinations: []string{"remote:a"}}},
	}
	schedule := &models.BackupSchedule{Name: "nightly", CronExpression: "0 2 * * *", Enabled: true}
	require.NoError(t, svc.CreateJob(context.Background(), job, schedule))

	require.Len(t, schedules.created, 1)
	assert.Equal(t, job.ID, schedules.created[0].BackupJobID)
	require.NotNil(t, schedules.created[0].NextRun)
	assert.Equal(t, 2, schedules.created[0].NextRun.Hour())
}

func TestCreateJobRejectsBadCron(t *testing.T) {
	svc := newBackupServiceForTest(newBackupJobStoreStub(), newEngineStub(), newLogWriterStub(), &backupCatalogStub{})
	job := &models.BackupJob{
		Name:     "nightly",
		Mappings: models.JobMappings{{Source: "/data", Destinations: []string{"remote:a"}}},
	}
	err := svc.CreateJob(context.Background(), job, &models.BackupSchedule{CronExpression: "not a cron"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExecuteRunsEveryPairInOrder(t *testing.T) {
	job := testJob("job-1", models.JobMappings{
		{Source: "/data/docs", Destinations: []string{"remote:a", "remote:b"}},
		{Source: "/data/pics", Destinations: []string{"remote:c"}},
	})
	jobs := newBackupJobStoreStub(job)
	engine := newEngineStub()
	logs := newLogWriterStub()
	catalog := &backupCatalogStub{}
	svc := newBackupServiceForTest(jobs, engine, logs, catalog)

	require.NoError(t, svc.Execute(context.Background(), "job-1", models.TriggerManual, nil))

	assert.Equal(t, []string{
		"/data/docs=>remote:a",
		"/data/docs=>remote:b",
		"/data/pics=>remote:c",
	}, engine.synced)
	require.Len(t, logs.created, 3)
	assert.Len(t, logs.completions, 3)
	for _, completion := range logs.completions {
		assert.Equal(t, models.LogStatusCompleted, completion.Status)
	}
	assert.Equal(t, models.JobStatusCompleted, jobs.status("job-1"))
	// One pre-scan per source, one backup link per successful pair.
	assert.Equal(t, []string{"/data/docs", "/data/pics"}, catalog.scans)
	assert.Equal(t, []string{"/data/docs", "/data/docs", "/data/pics"}, catalog.linked)
}

func TestExecuteFailedPairFailsJobButContinues(t *testing.T) {
	job := testJob("job-1", models.JobMappings{
		{Source: "/data", Destinations: []string{"remote:bad", "remote:good"}},
	})
	jobs := newBackupJobStoreStub(job)
	engine := newEngineStub()
	engine.results["remote:bad"] = &transfer.Result{ExitCode: 3, ErrorCount: 2, ErrorSample: []string{"io error"}}
	logs := newLogWriterStub()
	svc := newBackupServiceForTest(jobs, engine, logs, &backupCatalogStub{})

	err := svc.Execute(context.Background(), "job-1", models.TriggerManual, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrEngineFailure.Code, appErrors.FromError(err).Code)

	// The failing destination never stops the remaining pair.
	assert.Len(t, engine.synced, 2)
	assert.Equal(t, models.JobStatusFailed, jobs.status("job-1"))

	statuses := map[models.LogStatus]int{}
	for _, completion := range logs.completions {
		statuses[completion.Status]++
	}
	assert.Equal(t, 1, statuses[models.LogStatusFailed])
	assert.Equal(t, 1, statuses[models.LogStatusCompleted])
}

func TestExecuteSpawnFailureRecordsFailedLog(t *testing.T) {
	job := testJob("job-1", models.JobMappings{{Source: "/data", Destinations: []string{"remote:a"}}})
	jobs := newBackupJobStoreStub(job)
	engine := newEngineStub()
	engine.errs["remote:a"] = errors.New("binary not found")
	logs := newLogWriterStub()
	svc := newBackupServiceForTest(jobs, engine, logs, &backupCatalogStub{})

	err := svc.Execute(context.Background(), "job-1", models.TriggerManual, nil)
	require.Error(t, err)
	require.Len(t, logs.created, 1)
	completion := logs.completions[logs.created[0].ID]
	assert.Equal(t, models.LogStatusFailed, completion.Status)
	require.NotNil(t, completion.ErrorMessage)
	assert.Contains(t, *completion.ErrorMessage, "binary not found")
}

func TestExecuteCancellationStopsRemainingPairs(t *testing.T) {
	job := testJob("job-1", models.JobMappings{
		{Source: "/data", Destinations: []string{"remote:a", "remote:b"}},
	})
	jobs := newBackupJobStoreStub(job)
	engine := newEngineStub()
	engine.results["remote:a"] = &transfer.Result{ExitCode: -1, Cancelled: true, BytesTransferred: 42}
	logs := newLogWriterStub()
	svc := newBackupServiceForTest(jobs, engine, logs, &backupCatalogStub{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := svc.Execute(ctx, "job-1", models.TriggerManual, nil)
	require.ErrorIs(t, err, context.Canceled)

	// remote:b is never attempted after the cancellation.
	assert.Equal(t, []string{"/data=>remote:a"}, engine.synced)
	require.Len(t, logs.created, 1)
	assert.Equal(t, models.LogStatusCancelled, logs.completions[logs.created[0].ID].Status)
	assert.Equal(t, models.JobStatusFailed, jobs.status("job-1"))
}

func TestExecuteRefusesOverlap(t *testing.T) {
	job := testJob("job-1", models.JobMappings{{Source: "/data", Destinations: []string{"remote:a"}}})
	job.Status = models.JobStatusRunning
	jobs := newBackupJobStoreStub(job)
	svc := newBackupServiceForTest(jobs, newEngineStub(), newLogWriterStub(), &backupCatalogStub{})

	err := svc.Execute(context.Background(), "job-1", models.TriggerManual, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyRunning.Code, appErrors.FromError(err).Code)
}

func TestExecuteUnknownJob(t *testing.T) {
	svc := newBackupServiceForTest(newBackupJobStoreStub(), newEngineStub(), newLogWriterStub(), &backupCatalogStub{})
	err := svc.Execute(context.Background(), "missing", models.TriggerManual, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestDeleteJobTwiceAnswersNotFound(t *testing.T) {
	job := testJob("job-1", models.JobMappings{{Source: "/data", Destinations: []string{"remote:a"}}})
	jobs := newBackupJobStoreStub(job)
	svc := newBackupServiceForTest(jobs, newEngineStub(), newLogWriterStub(), &backupCatalogStub{})

	require.NoError(t, svc.DeleteJob(context.Background(), "job-1"))
	err := svc.DeleteJob(context.Background(), "job-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestExecuteRecordsCommandOnLog(t *testing.T) {
	job := testJob("job-1", models.JobMappings{{Source: "/data", Destinations: []string{"remote:a"}}})
	jobs := newBackupJobStoreStub(job)
	logs := newLogWriterStub()
	svc := newBackupServiceForTest(jobs, newEngineStub(), logs, &backupCatalogStub{})

	require.NoError(t, svc.Execute(context.Background(), "job-1", models.TriggerAPI, nil))
	require.Len(t, logs.created, 1)
	entry := logs.created[0]
	assert.True(t, strings.HasPrefix(entry.Command, "rclone sync /data remote:a"))
	assert.Equal(t, models.TriggerAPI, entry.TriggeredBy)
	assert.Equal(t, "/data", entry.SourcePath)
	assert.Equal(t, "remote:a", entry.DestinationPath)
}

func TestTriggerStampsScheduleOutcome(t *testing.T) {
	job := testJob("job-1", models.JobMappings{{Source: "/data", Destinations: []string{"remote:a"}}})
	jobs := newBackupJobStoreStub(job)
	schedules := &backupScheduleStoreStub{}
	svc := NewBackupService(jobs, schedules, newLogWriterStub(), newEngineStub(), &backupCatalogStub{}, nil, nil)

	scheduleID := "sched-1"
	require.NoError(t, svc.Trigger(context.Background(), "job-1", models.TriggerSchedule, &scheduleID))

	require.Eventually(t, func() bool {
		return schedules.lastStatus("sched-1") == models.ScheduleStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, models.JobStatusCompleted, jobs.status("job-1"))
}

func TestGetJobStoreDownAnswersUnavailable(t *testing.T) {
	jobs := newBackupJobStoreStub()
	jobs.getErr = driver.ErrBadConn
	svc := newBackupServiceForTest(jobs, newEngineStub(), newLogWriterStub(), &backupCatalogStub{})

	_, err := svc.GetJob(context.Background(), "job-1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrStoreUnavailable.Code, appErr.Code)
	assert.Equal(t, http.StatusServiceUnavailable, appErr.Status)
}
