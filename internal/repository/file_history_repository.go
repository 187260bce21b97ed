package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/arkivo-io/arkivo/internal/models"
)

// FileHistoryRepository handles the append-only file change trail.
type FileHistoryRepository struct {
	db *sqlx.DB
}

// NewFileHistoryRepository constructs the repository.
func NewFileHistoryRepository(db *sqlx.DB) *FileHistoryRepository {
	return &FileHistoryRepository{db: db}
}

// Create appends one change record. History rows are never updated.
func (r *FileHistoryRepository) Create(ctx context.Context, history *models.FileHistory) error {
	if history.ID == "" {
		history.ID = uuid.NewString()
	}
	if history.CreatedAt.IsZero() {
		history.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO file_history
	(id, file_id, scan_job_id, size_bytes, content_hash, modified_at, accessed_at,
	 size_changed, hash_changed, modified_changed, accessed_changed, size_delta,
	 days_since_access, days_since_modification, scan_type, created_at)
	VALUES (:id, :file_id, :scan_job_id, :size_bytes, :content_hash, :modified_at, :accessed_at,
	 :size_changed, :hash_changed, :modified_changed, :accessed_changed, :size_delta,
	 :days_since_access, :days_since_modification, :scan_type, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, history); err != nil {
		return fmt.Errorf("create file history: %w", err)
	}
	return nil
}

// ListByFile returns a file's change trail, newest first.
func (r *FileHistoryRepository) ListByFile(ctx context.Context, fileID string, limit int) ([]models.FileHistory, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT id, file_id, scan_job_id, size_bytes, content_hash, modified_at, accessed_at,
	size_changed, hash_changed, modified_changed, accessed_changed, size_delta,
	days_since_access, days_since_modification, scan_type, created_at
	FROM file_history WHERE file_id = $1 ORDER BY created_at DESC LIMIT %d`, limit)
	var records []models.FileHistory
	if err := r.db.SelectContext(ctx, &records, query, fileID); err != nil {
		return nil, fmt.Errorf("list file history: %w", err)
	}
	return records, nil
}
