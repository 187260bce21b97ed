package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/arkivo-io/arkivo/internal/models"
)

// ScanJobRepository handles scan job lifecycle persistence.
type ScanJobRepository struct {
	db *sqlx.DB
}

// NewScanJobRepository constructs the repository.
func NewScanJobRepository(db *sqlx.DB) *ScanJobRepository {
	return &ScanJobRepository{db: db}
}

// Create stores a pending scan job.
func (r *ScanJobRepository) Create(ctx context.Context, job *models.ScanJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.Status == "" {
		job.Status = models.ScanStatusPending
	}

	const query = `INSERT INTO scan_jobs
	(id, root_path, status, started_at, completed_at, files_scanned, directories_scanned,
	 total_size_bytes, errors_count, error_message, duration_seconds, backup_job_id,
	 scan_type, triggered_by, created_at)
	VALUES (:id, :root_path, :status, :started_at, :completed_at, :files_scanned, :directories_scanned,
	 :total_size_bytes, :errors_count, :error_message, :duration_seconds, :backup_job_id,
	 :scan_type, :triggered_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create scan job: %w", err)
	}
	return nil
}

// GetByID retrieves one scan job.
func (r *ScanJobRepository) GetByID(ctx context.Context, id string) (*models.ScanJob, error) {
	const query = `SELECT * FROM scan_jobs WHERE id = $1`
	var job models.ScanJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// List returns scan jobs, newest first.
func (r *ScanJobRepository) List(ctx context.Context, limit int) ([]models.ScanJob, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT * FROM scan_jobs ORDER BY created_at DESC LIMIT %d`, limit)
	var jobs []models.ScanJob
	if err := r.db.SelectContext(ctx, &jobs, query); err != nil {
		return nil, fmt.Errorf("list scan jobs: %w", err)
	}
	return jobs, nil
}

// MarkRunning transitions a pending scan to running.
func (r *ScanJobRepository) MarkRunning(ctx context.Context, id string, startedAt time.Time) error {
	const query = `UPDATE scan_jobs SET status = $2, started_at = $3
	WHERE id = $1 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, id, models.ScanStatusRunning, startedAt, models.ScanStatusPending)
	if err != nil {
		return fmt.Errorf("mark scan running: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check scan claim rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Finish finalizes a scan job with walk totals.
func (r *ScanJobRepository) Finish(ctx context.Context, id string, status models.ScanStatus, result models.ScanResult) error {
	const query = `UPDATE scan_jobs SET
	status = $2, completed_at = $3, files_scanned = $4, directories_scanned = $5,
	total_size_bytes = $6, errors_count = $7, error_message = $8, duration_seconds = $9
	WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC(),
		result.FilesScanned, result.DirectoriesScanned, result.TotalSizeBytes,
		result.ErrorsCount, result.ErrorMessage, result.DurationSeconds); err != nil {
		return fmt.Errorf("finish scan job: %w", err)
	}
	return nil
}
