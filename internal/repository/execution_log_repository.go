package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/arkivo-io/arkivo/internal/models"
)

// ExecutionLogRepository handles the append-only execution audit trail.
type ExecutionLogRepository struct {
	db *sqlx.DB
}

// NewExecutionLogRepository constructs the repository.
func NewExecutionLogRepository(db *sqlx.DB) *ExecutionLogRepository {
	return &ExecutionLogRepository{db: db}
}

// Create opens a new log row in running state.
func (r *ExecutionLogRepository) Create(ctx context.Context, log *models.ExecutionLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if log.StartedAt.IsZero() {
		log.StartedAt = now
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = now
	}
	if log.Status == "" {
		log.Status = models.LogStatusRunning
	}
	if log.StorageTier == "" {
		log.StorageTier = models.TierHot
	}

	const query = `INSERT INTO backup_execution_logs
	(id, backup_job_id, schedule_id, command, source_path, destination_path, started_at, completed_at,
	 status, files_transferred, files_checked, files_deleted, bytes_transferred, transfer_rate_mbps,
	 duration_seconds, error_count, error_message, engine_output, engine_errors, storage_tier,
	 archived_path, triggered_by, created_at)
	VALUES (:id, :backup_job_id, :schedule_id, :command, :source_path, :destination_path, :started_at, :completed_at,
	 :status, :files_transferred, :files_checked, :files_deleted, :bytes_transferred, :transfer_rate_mbps,
	 :duration_seconds, :error_count, :error_message, :engine_output, :engine_errors, :storage_tier,
	 :archived_path, :triggered_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create execution log: %w", err)
	}
	return nil
}

// Complete finalizes a running log row with the engine outcome.
func (r *ExecutionLogRepository) Complete(ctx context.Context, id string, completion models.LogCompletion) error {
	const query = `UPDATE backup_execution_logs SET
	status = $2, completed_at = $3, files_transferred = $4, files_checked = $5, files_deleted = $6,
	bytes_transferred = $7, transfer_rate_mbps = $8, duration_seconds = $9, error_count = $10,
	error_message = $11, engine_output = $12, engine_errors = $13
	WHERE id = $1 AND status = $14`
	res, err := r.db.ExecContext(ctx, query, id,
		completion.Status, time.Now().UTC(),
		completion.FilesTransferred, completion.FilesChecked, completion.FilesDeleted,
		completion.BytesTransferred, completion.TransferRateMbps, completion.DurationSeconds,
		completion.ErrorCount, completion.ErrorMessage, completion.EngineOutput, completion.EngineErrors,
		models.LogStatusRunning)
	if err != nil {
		return fmt.Errorf("complete execution log: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check execution log completion rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetByID retrieves one log row.
func (r *ExecutionLogRepository) GetByID(ctx context.Context, id string) (*models.ExecutionLog, error) {
	const query = `SELECT * FROM backup_execution_logs WHERE id = $1`
	var log models.ExecutionLog
	if err := r.db.GetContext(ctx, &log, query, id); err != nil {
		return nil, err
	}
	return &log, nil
}

// List returns logs applying filters, newest first.
func (r *ExecutionLogRepository) List(ctx context.Context, filter models.LogFilter) ([]models.ExecutionLog, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT * FROM backup_execution_logs`)
	args := make([]interface{}, 0, 3)
	conditions := make([]string, 0, 3)

	if filter.BackupJobID != nil {
		args = append(args, *filter.BackupJobID)
		conditions = append(conditions, fmt.Sprintf("backup_job_id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Since != nil {
		args = append(args, *filter.Since)
		conditions = append(conditions, fmt.Sprintf("started_at >= $%d", len(args)))
	}

	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY started_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var logs []models.ExecutionLog
	if err := r.db.SelectContext(ctx, &logs, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list execution logs: %w", err)
	}
	return logs, nil
}

// Delete removes a single log row on explicit operator request.
func (r *ExecutionLogRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM backup_execution_logs WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete execution log: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check execution log delete rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Stats aggregates execution outcomes across all jobs.
func (r *ExecutionLogRepository) Stats(ctx context.Context) (*models.LogStats, error) {
	const query = `SELECT
	COUNT(*) AS total,
	COUNT(*) FILTER (WHERE status = 'completed') AS completed,
	COUNT(*) FILTER (WHERE status = 'failed') AS failed,
	COUNT(*) FILTER (WHERE status = 'cancelled') AS cancelled,
	COUNT(*) FILTER (WHERE status = 'running') AS running,
	COALESCE(SUM(bytes_transferred), 0) AS bytes_transferred,
	COALESCE(SUM(files_transferred), 0) AS files_transferred
	FROM backup_execution_logs`
	var stats models.LogStats
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("execution log stats: %w", err)
	}
	finished := stats.Completed + stats.Failed + stats.Cancelled
	if finished > 0 {
		stats.SuccessRate = float64(stats.Completed) / float64(finished)
	}
	return &stats, nil
}

// ListFinishedInTier returns finalized logs in the given tier that started
// before the cutoff, oldest first. Tier rotation feeds on this.
func (r *ExecutionLogRepository) ListFinishedInTier(ctx context.Context, tier models.Tier, cutoff time.Time) ([]models.ExecutionLog, error) {
	const query = `SELECT * FROM backup_execution_logs
	WHERE storage_tier = $1 AND status <> 'running' AND started_at < $2
	ORDER BY started_at ASC`
	var logs []models.ExecutionLog
	if err := r.db.SelectContext(ctx, &logs, query, tier, cutoff); err != nil {
		return nil, fmt.Errorf("list logs for rotation: %w", err)
	}
	return logs, nil
}

// MoveToTier re-labels rows into a tier, records where the payload was
// archived, and clears the bulky engine output columns.
func (r *ExecutionLogRepository) MoveToTier(ctx context.Context, ids []string, tier models.Tier, archivedPath string) error {
	if len(ids) == 0 {
		return nil
	}
	const query = `UPDATE backup_execution_logs
	SET storage_tier = $2, archived_path = $3, engine_output = NULL, engine_errors = NULL
	WHERE id = ANY($1)`
	if _, err := r.db.ExecContext(ctx, query, pq.Array(ids), tier, archivedPath); err != nil {
		return fmt.Errorf("move logs to tier: %w", err)
	}
	return nil
}

// RelabelArchive updates the tier and archive location for every row whose
// payload lives in the given archive file.
func (r *ExecutionLogRepository) RelabelArchive(ctx context.Context, oldPath string, newPath string, tier models.Tier) error {
	const query = `UPDATE backup_execution_logs
	SET storage_tier = $3, archived_path = $2
	WHERE archived_path = $1`
	if _, err := r.db.ExecContext(ctx, query, oldPath, newPath, tier); err != nil {
		return fmt.Errorf("relabel archived logs: %w", err)
	}
	return nil
}

// TierCounts returns row counts per storage tier.
func (r *ExecutionLogRepository) TierCounts(ctx context.Context) (map[models.Tier]int64, error) {
	const query = `SELECT storage_tier, COUNT(*) AS n FROM backup_execution_logs GROUP BY storage_tier`
	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("execution log tier counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Tier]int64, 3)
	for rows.Next() {
		var tier models.Tier
		var n int64
		if err := rows.Scan(&tier, &n); err != nil {
			return nil, fmt.Errorf("scan tier count: %w", err)
		}
		counts[tier] = n
	}
	return counts, rows.Err()
}
