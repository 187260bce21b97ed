package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/arkivo-io/arkivo/internal/models"
)

// BackupJobRepository handles backup job persistence.
type BackupJobRepository struct {
	db *sqlx.DB
}

// NewBackupJobRepository constructs the repository.
func NewBackupJobRepository(db *sqlx.DB) *BackupJobRepository {
	return &BackupJobRepository{db: db}
}

// Create stores a new backup job.
func (r *BackupJobRepository) Create(ctx context.Context, job *models.BackupJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	job.IsActive = true

	const query = `INSERT INTO backup_jobs
	(id, name, mappings, status, is_active, deleted_at, created_at, updated_at)
	VALUES (:id, :name, :mappings, :status, :is_active, :deleted_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create backup job: %w", err)
	}
	return nil
}

// GetByID retrieves one active backup job. Soft-deleted rows are invisible.
func (r *BackupJobRepository) GetByID(ctx context.Context, id string) (*models.BackupJob, error) {
	const query = `SELECT id, name, mappings, status, is_active, deleted_at, created_at, updated_at
	FROM backup_jobs WHERE id = $1 AND is_active = TRUE`
	var job models.BackupJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// List returns active jobs applying filters.
func (r *BackupJobRepository) List(ctx context.Context, filter models.BackupJobFilter) ([]models.BackupJob, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT id, name, mappings, status, is_active, deleted_at, created_at, updated_at
	FROM backup_jobs`)
	args := make([]interface{}, 0, 3)
	conditions := []string{"is_active = TRUE"}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conditions = append(conditions, fmt.Sprintf("name ILIKE $%d", len(args)))
	}

	builder.WriteString(" WHERE ")
	builder.WriteString(strings.Join(conditions, " AND "))
	builder.WriteString(" ORDER BY created_at DESC")

	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", pageSize, (page-1)*pageSize))

	var jobs []models.BackupJob
	if err := r.db.SelectContext(ctx, &jobs, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list backup jobs: %w", err)
	}
	return jobs, nil
}

// Update applies partial changes to an active job.
func (r *BackupJobRepository) Update(ctx context.Context, id string, update models.BackupJobUpdate) error {
	sets := make([]string, 0, 3)
	args := make([]interface{}, 0, 3)

	if update.Name != nil {
		args = append(args, *update.Name)
		sets = append(sets, fmt.Sprintf("name = $%d", len(args)))
	}
	if update.Mappings != nil {
		args = append(args, *update.Mappings)
		sets = append(sets, fmt.Sprintf("mappings = $%d", len(args)))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, time.Now().UTC())
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))

	args = append(args, id)
	query := fmt.Sprintf("UPDATE backup_jobs SET %s WHERE id = $%d AND is_active = TRUE",
		strings.Join(sets, ", "), len(args))

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update backup job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check backup job update rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// TryMarkRunning atomically claims the job for execution. It reports false
// when the job is already running, inactive, or absent; the single
// conditional UPDATE is the only concurrency guard.
func (r *BackupJobRepository) TryMarkRunning(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE backup_jobs SET status = $2, updated_at = $3
	WHERE id = $1 AND is_active = TRUE AND status <> $2`
	res, err := r.db.ExecContext(ctx, query, id, models.JobStatusRunning, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("mark backup job running: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check backup job claim rows: %w", err)
	}
	return affected == 1, nil
}

// SetStatus records a terminal (or reset) job status.
func (r *BackupJobRepository) SetStatus(ctx context.Context, id string, status models.JobStatus) error {
	const query = `UPDATE backup_jobs SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("set backup job status: %w", err)
	}
	return nil
}

// SoftDelete deactivates a job. The row and its execution history remain.
func (r *BackupJobRepository) SoftDelete(ctx context.Context, id string, deletedAt time.Time) error {
	const query = `UPDATE backup_jobs SET is_active = FALSE, deleted_at = $2, updated_at = $2
	WHERE id = $1 AND is_active = TRUE`
	res, err := r.db.ExecContext(ctx, query, id, deletedAt)
	if err != nil {
		return fmt.Errorf("soft delete backup job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check backup job delete rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
