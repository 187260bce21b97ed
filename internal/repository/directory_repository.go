package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/arkivo-io/arkivo/internal/models"
)

// DirectoryRepository handles per-directory catalog aggregates.
type DirectoryRepository struct {
	db *sqlx.DB
}

// NewDirectoryRepository constructs the repository.
func NewDirectoryRepository(db *sqlx.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// Upsert writes a directory aggregate, replacing the previous snapshot for
// the path.
func (r *DirectoryRepository) Upsert(ctx context.Context, entry *models.DirectoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	if entry.LastScanAt.IsZero() {
		entry.LastScanAt = now
	}

	const query = `INSERT INTO directory_catalog
	(id, dir_path, dir_name, depth, total_files, direct_files, total_size_bytes, subdirectory_count,
	 file_types, largest_file_id, oldest_file_id, newest_file_id, last_scan_at, created_at, updated_at)
	VALUES (:id, :dir_path, :dir_name, :depth, :total_files, :direct_files, :total_size_bytes, :subdirectory_count,
	 :file_types, :largest_file_id, :oldest_file_id, :newest_file_id, :last_scan_at, :created_at, :updated_at)
	ON CONFLICT (dir_path) DO UPDATE SET
	 depth = EXCLUDED.depth,
	 total_files = EXCLUDED.total_files,
	 direct_files = EXCLUDED.direct_files,
	 total_size_bytes = EXCLUDED.total_size_bytes,
	 subdirectory_count = EXCLUDED.subdirectory_count,
	 file_types = EXCLUDED.file_types,
	 largest_file_id = EXCLUDED.largest_file_id,
	 oldest_file_id = EXCLUDED.oldest_file_id,
	 newest_file_id = EXCLUDED.newest_file_id,
	 last_scan_at = EXCLUDED.last_scan_at,
	 updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("upsert directory entry: %w", err)
	}
	return nil
}

// ListUnder returns aggregates for the root and its subtree.
func (r *DirectoryRepository) ListUnder(ctx context.Context, root string, limit int) ([]models.DirectoryEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	query := fmt.Sprintf(`SELECT id, dir_path, dir_name, depth, total_files, direct_files, total_size_bytes,
	subdirectory_count, file_types, largest_file_id, oldest_file_id, newest_file_id,
	last_scan_at, created_at, updated_at
	FROM directory_catalog
	WHERE dir_path = $1 OR dir_path LIKE $1 || '/%%'
	ORDER BY dir_path ASC LIMIT %d`, limit)
	var entries []models.DirectoryEntry
	if err := r.db.SelectContext(ctx, &entries, query, strings.TrimRight(root, "/")); err != nil {
		return nil, fmt.Errorf("list directories: %w", err)
	}
	return entries, nil
}
