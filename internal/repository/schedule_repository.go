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

// ScheduleRepository handles backup schedule persistence.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository constructs the repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// Create stores a schedule for a job. The unique backup_job_id constraint
// enforces at most one schedule per job.
func (r *ScheduleRepository) Create(ctx context.Context, schedule *models.BackupSchedule) error {
	if schedule.ID == "" {
		schedule.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}
	schedule.UpdatedAt = now
	if schedule.LastStatus == "" {
		schedule.LastStatus = models.ScheduleStatusPending
	}

	const query = `INSERT INTO backup_schedules
	(id, backup_job_id, name, cron_expression, enabled, next_run, last_run, last_status, created_at, updated_at)
	VALUES (:id, :backup_job_id, :name, :cron_expression, :enabled, :next_run, :last_run, :last_status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, schedule); err != nil {
		return fmt.Errorf("create backup schedule: %w", err)
	}
	return nil
}

// GetByJobID retrieves the schedule attached to a job.
func (r *ScheduleRepository) GetByJobID(ctx context.Context, jobID string) (*models.BackupSchedule, error) {
	const query = `SELECT id, backup_job_id, name, cron_expression, enabled, next_run, last_run, last_status, created_at, updated_at
	FROM backup_schedules WHERE backup_job_id = $1`
	var schedule models.BackupSchedule
	if err := r.db.GetContext(ctx, &schedule, query, jobID); err != nil {
		return nil, err
	}
	return &schedule, nil
}

// List returns every schedule ordered by next run.
func (r *ScheduleRepository) List(ctx context.Context) ([]models.BackupSchedule, error) {
	const query = `SELECT id, backup_job_id, name, cron_expression, enabled, next_run, last_run, last_status, created_at, updated_at
	FROM backup_schedules ORDER BY next_run ASC NULLS LAST`
	var schedules []models.BackupSchedule
	if err := r.db.SelectContext(ctx, &schedules, query); err != nil {
		return nil, fmt.Errorf("list backup schedules: %w", err)
	}
	return schedules, nil
}

// ListDue returns enabled schedules whose next run is at or before now and
// whose job is still active.
func (r *ScheduleRepository) ListDue(ctx context.Context, now time.Time) ([]models.BackupSchedule, error) {
	const query = `SELECT s.id, s.backup_job_id, s.name, s.cron_expression, s.enabled, s.next_run, s.last_run, s.last_status, s.created_at, s.updated_at
	FROM backup_schedules s
	JOIN backup_jobs j ON j.id = s.backup_job_id AND j.is_active = TRUE
	WHERE s.enabled = TRUE AND s.next_run IS NOT NULL AND s.next_run <= $1
	ORDER BY s.next_run ASC`
	var schedules []models.BackupSchedule
	if err := r.db.SelectContext(ctx, &schedules, query, now); err != nil {
		return nil, fmt.Errorf("list due schedules: %w", err)
	}
	return schedules, nil
}

// Update applies partial changes to a schedule.
func (r *ScheduleRepository) Update(ctx context.Context, id string, update models.BackupScheduleUpdate) error {
	sets := make([]string, 0, 4)
	args := make([]interface{}, 0, 5)

	if update.Name != nil {
		args = append(args, *update.Name)
		sets = append(sets, fmt.Sprintf("name = $%d", len(args)))
	}
	if update.CronExpression != nil {
		args = append(args, *update.CronExpression)
		sets = append(sets, fmt.Sprintf("cron_expression = $%d", len(args)))
	}
	if update.Enabled != nil {
		args = append(args, *update.Enabled)
		sets = append(sets, fmt.Sprintf("enabled = $%d", len(args)))
	}
	if update.NextRun != nil {
		args = append(args, *update.NextRun)
		sets = append(sets, fmt.Sprintf("next_run = $%d", len(args)))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, time.Now().UTC())
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))

	args = append(args, id)
	query := fmt.Sprintf("UPDATE backup_schedules SET %s WHERE id = $%d",
		strings.Join(sets, ", "), len(args))

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update backup schedule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check backup schedule update rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RecordRun stamps the outcome of a schedule evaluation and advances the
// next fire time.
func (r *ScheduleRepository) RecordRun(ctx context.Context, id string, status models.ScheduleStatus, lastRun time.Time, nextRun time.Time) error {
	const query = `UPDATE backup_schedules
	SET last_status = $2, last_run = $3, next_run = $4, updated_at = $5
	WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, lastRun, nextRun, time.Now().UTC()); err != nil {
		return fmt.Errorf("record schedule run: %w", err)
	}
	return nil
}

// SetLastStatus stamps the outcome of a fired run once it finishes,
// leaving the run timestamps alone.
func (r *ScheduleRepository) SetLastStatus(ctx context.Context, id string, status models.ScheduleStatus) error {
	const query = `UPDATE backup_schedules SET last_status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("set schedule status: %w", err)
	}
	return nil
}

// Delete removes a schedule. Schedules carry no audit history of their own,
// so removal is physical.
func (r *ScheduleRepository) Delete(ctx context.Context, jobID string) error {
	const query = `DELETE FROM backup_schedules WHERE backup_job_id = $1`
	res, err := r.db.ExecContext(ctx, query, jobID)
	if err != nil {
		return fmt.Errorf("delete backup schedule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check backup schedule delete rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
