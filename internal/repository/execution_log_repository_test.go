package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/arkivo-io/arkivo/internal/models"
)

func TestExecutionLogRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewExecutionLogRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO backup_execution_logs")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	log := &models.ExecutionLog{
		BackupJobID:     "job-1",
		Command:         "rclone sync /data/docs remote:docs",
		SourcePath:      "/data/docs",
		DestinationPath: "remote:docs",
		TriggeredBy:     models.TriggerManual,
	}
	require.NoError(t, repo.Create(context.Background(), log))
	require.NotEmpty(t, log.ID)
	require.Equal(t, models.LogStatusRunning, log.Status)
	require.Equal(t, models.TierHot, log.StorageTier)
	require.False(t, log.StartedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutionLogRepositoryComplete(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewExecutionLogRepository(db)
	completion := models.LogCompletion{
		Status:           models.LogStatusCompleted,
		FilesTransferred: 42,
		BytesTransferred: 1 << 20,
		TransferRateMbps: 12.5,
		DurationSeconds:  3.2,
	}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE backup_execution_logs SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Complete(context.Background(), "log-1", completion))

	// Finalizing twice finds no running row.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE backup_execution_logs SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.Complete(context.Background(), "log-1", completion)
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestExecutionLogRepositoryStats(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewExecutionLogRepository(db)
	rows := sqlmock.NewRows([]string{"total", "completed", "failed", "cancelled", "running", "bytes_transferred", "files_transferred"}).
		AddRow(10, 6, 2, 0, 2, 4096, 120)
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(10), stats.Total)
	require.InDelta(t, 0.75, stats.SuccessRate, 0.0001)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutionLogRepositoryMoveToTier(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewExecutionLogRepository(db)

	// No ids means no statement at all.
	require.NoError(t, repo.MoveToTier(context.Background(), nil, models.TierWarm, "warm/2026/backup_logs_2026-07.json.gz"))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE backup_execution_logs")).
		WillReturnResult(sqlmock.NewResult(0, 2))
	require.NoError(t, repo.MoveToTier(context.Background(), []string{"log-1", "log-2"}, models.TierWarm, "warm/2026/backup_logs_2026-07.json.gz"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutionLogRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewExecutionLogRepository(db)
	jobID := "job-1"
	status := models.LogStatusFailed
	since := time.Now().Add(-24 * time.Hour)

	rows := sqlmock.NewRows([]string{"id", "backup_job_id", "status"}).
		AddRow("log-1", jobID, "failed")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM backup_execution_logs")).
		WithArgs(jobID, status, since).
		WillReturnRows(rows)

	logs, err := repo.List(context.Background(), models.LogFilter{BackupJobID: &jobID, Status: &status, Since: &since})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
