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

const fileColumns = `id, file_path, file_name, extension, size_bytes, content_hash,
	file_created_at, file_modified_at, file_accessed_at, parent_directory, depth,
	is_duplicate, duplicate_of, is_active, backup_count, last_backup_at, backup_job_ids,
	temperature, first_seen_at, last_scan_at, created_at, updated_at`

// FileRepository handles the file catalog.
type FileRepository struct {
	db *sqlx.DB
}

// NewFileRepository constructs the repository.
func NewFileRepository(db *sqlx.DB) *FileRepository {
	return &FileRepository{db: db}
}

// GetByPath retrieves the entry for a path regardless of active state.
// Paths are unique, so a reappearing file reactivates its old row.
func (r *FileRepository) GetByPath(ctx context.Context, path string) (*models.FileEntry, error) {
	query := `SELECT ` + fileColumns + ` FROM file_catalog WHERE file_path = $1`
	var entry models.FileEntry
	if err := r.db.GetContext(ctx, &entry, query, path); err != nil {
		return nil, err
	}
	return &entry, nil
}

// GetByID retrieves one entry.
func (r *FileRepository) GetByID(ctx context.Context, id string) (*models.FileEntry, error) {
	query := `SELECT ` + fileColumns + ` FROM file_catalog WHERE id = $1`
	var entry models.FileEntry
	if err := r.db.GetContext(ctx, &entry, query, id); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Create inserts a newly observed file.
func (r *FileRepository) Create(ctx context.Context, entry *models.FileEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	if entry.FirstSeenAt.IsZero() {
		entry.FirstSeenAt = now
	}
	if entry.LastScanAt.IsZero() {
		entry.LastScanAt = now
	}
	if entry.Temperature == "" {
		entry.Temperature = models.TierHot
	}
	entry.IsActive = true

	const query = `INSERT INTO file_catalog
	(id, file_path, file_name, extension, size_bytes, content_hash, file_created_at, file_modified_at,
	 file_accessed_at, parent_directory, depth, is_duplicate, duplicate_of, is_active, backup_count,
	 last_backup_at, backup_job_ids, temperature, first_seen_at, last_scan_at, created_at, updated_at)
	VALUES (:id, :file_path, :file_name, :extension, :size_bytes, :content_hash, :file_created_at, :file_modified_at,
	 :file_accessed_at, :parent_directory, :depth, :is_duplicate, :duplicate_of, :is_active, :backup_count,
	 :last_backup_at, :backup_job_ids, :temperature, :first_seen_at, :last_scan_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create file entry: %w", err)
	}
	return nil
}

// ApplyObservation writes a changed observation back onto the entry and
// reactivates it if a previous scan had marked it absent.
func (r *FileRepository) ApplyObservation(ctx context.Context, id string, obs models.FileObservedUpdate) error {
	const query = `UPDATE file_catalog SET
	size_bytes = $2, content_hash = $3, file_modified_at = $4, file_accessed_at = $5,
	last_scan_at = $6, is_active = TRUE, updated_at = $7
	WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id,
		obs.SizeBytes, obs.ContentHash, obs.FileModifiedAt, obs.FileAccessedAt,
		obs.LastScanAt, time.Now().UTC()); err != nil {
		return fmt.Errorf("apply file observation: %w", err)
	}
	return nil
}

// TouchScan bumps last_scan_at for an unchanged observation.
func (r *FileRepository) TouchScan(ctx context.Context, id string, scannedAt time.Time, accessedAt *time.Time) error {
	const query = `UPDATE file_catalog
	SET last_scan_at = $2, file_accessed_at = COALESCE($3, file_accessed_at), is_active = TRUE, updated_at = $4
	WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, scannedAt, accessedAt, time.Now().UTC()); err != nil {
		return fmt.Errorf("touch file scan: %w", err)
	}
	return nil
}

// ListActiveByHash returns every active entry with the hash, canonical
// candidate first. The (first_seen_at, id) ordering makes promotion
// deterministic when two entries share a first-seen instant.
func (r *FileRepository) ListActiveByHash(ctx context.Context, hash string) ([]models.FileEntry, error) {
	query := `SELECT ` + fileColumns + ` FROM file_catalog
	WHERE content_hash = $1 AND is_active = TRUE
	ORDER BY first_seen_at ASC, id ASC`
	var entries []models.FileEntry
	if err := r.db.SelectContext(ctx, &entries, query, hash); err != nil {
		return nil, fmt.Errorf("list files by hash: %w", err)
	}
	return entries, nil
}

// MarkCanonical clears the duplicate flag on the surviving entry.
func (r *FileRepository) MarkCanonical(ctx context.Context, id string) error {
	const query = `UPDATE file_catalog
	SET is_duplicate = FALSE, duplicate_of = NULL, updated_at = $2
	WHERE id = $1 AND is_duplicate = TRUE`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark file canonical: %w", err)
	}
	return nil
}

// MarkDuplicate points an entry at its canonical twin.
func (r *FileRepository) MarkDuplicate(ctx context.Context, id string, canonicalID string) error {
	const query = `UPDATE file_catalog
	SET is_duplicate = TRUE, duplicate_of = $2, updated_at = $3
	WHERE id = $1 AND (is_duplicate = FALSE OR duplicate_of IS DISTINCT FROM $2)`
	if _, err := r.db.ExecContext(ctx, query, id, canonicalID, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark file duplicate: %w", err)
	}
	return nil
}

// DeactivateUnseen flags entries under the root that the scan did not
// observe. Rows stay in place for audit; only is_active flips. The
// deactivated entries are returned so dedup can promote new canonicals.
func (r *FileRepository) DeactivateUnseen(ctx context.Context, root string, scanStart time.Time) ([]models.FileEntry, error) {
	query := `UPDATE file_catalog
	SET is_active = FALSE, updated_at = $3
	WHERE (file_path = $1 OR file_path LIKE $1 || '/%')
	  AND is_active = TRUE AND last_scan_at < $2
	RETURNING ` + fileColumns
	var entries []models.FileEntry
	if err := r.db.SelectContext(ctx, &entries, query, strings.TrimRight(root, "/"), scanStart, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("deactivate unseen files: %w", err)
	}
	return entries, nil
}

// Search returns catalog entries applying filters.
func (r *FileRepository) Search(ctx context.Context, filter models.FileFilter) ([]models.FileEntry, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + fileColumns + ` FROM file_catalog`)
	args := make([]interface{}, 0, 6)
	conditions := make([]string, 0, 6)

	if !filter.IncludeDeleted {
		conditions = append(conditions, "is_active = TRUE")
	}
	if filter.PathPrefix != "" {
		args = append(args, filter.PathPrefix+"%")
		conditions = append(conditions, fmt.Sprintf("file_path LIKE $%d", len(args)))
	}
	if filter.NameContains != "" {
		args = append(args, "%"+filter.NameContains+"%")
		conditions = append(conditions, fmt.Sprintf("file_name ILIKE $%d", len(args)))
	}
	if filter.Extension != nil {
		args = append(args, *filter.Extension)
		conditions = append(conditions, fmt.Sprintf("extension = $%d", len(args)))
	}
	if filter.MinSize != nil {
		args = append(args, *filter.MinSize)
		conditions = append(conditions, fmt.Sprintf("size_bytes >= $%d", len(args)))
	}
	if filter.MaxSize != nil {
		args = append(args, *filter.MaxSize)
		conditions = append(conditions, fmt.Sprintf("size_bytes <= $%d", len(args)))
	}
	if filter.Temperature != nil {
		args = append(args, *filter.Temperature)
		conditions = append(conditions, fmt.Sprintf("temperature = $%d", len(args)))
	}
	if filter.DuplicatesOnly {
		conditions = append(conditions, "is_duplicate = TRUE")
	}

	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY file_path ASC")

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var entries []models.FileEntry
	if err := r.db.SelectContext(ctx, &entries, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("search files: %w", err)
	}
	return entries, nil
}

// DuplicateHashes returns content hashes shared by more than one active
// entry, largest waste first.
func (r *FileRepository) DuplicateHashes(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT content_hash FROM file_catalog
	WHERE is_active = TRUE
	GROUP BY content_hash HAVING COUNT(*) > 1
	ORDER BY SUM(size_bytes) DESC LIMIT %d`, limit)
	var hashes []string
	if err := r.db.SelectContext(ctx, &hashes, query); err != nil {
		return nil, fmt.Errorf("list duplicate hashes: %w", err)
	}
	return hashes, nil
}

// AtRisk returns active files never backed up or whose last backup is older
// than the stale window.
func (r *FileRepository) AtRisk(ctx context.Context, staleBefore time.Time, limit int) ([]models.FileEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT `+fileColumns+` FROM file_catalog
	WHERE is_active = TRUE AND (backup_count = 0 OR last_backup_at IS NULL OR last_backup_at < $1)
	ORDER BY last_backup_at ASC NULLS FIRST, file_path ASC LIMIT %d`, limit)
	var entries []models.FileEntry
	if err := r.db.SelectContext(ctx, &entries, query, staleBefore); err != nil {
		return nil, fmt.Errorf("list at-risk files: %w", err)
	}
	return entries, nil
}

// MarkBackedUp links every active file under the source path to the job
// that just copied it.
func (r *FileRepository) MarkBackedUp(ctx context.Context, sourcePrefix string, jobID string, backedUpAt time.Time) (int64, error) {
	const query = `UPDATE file_catalog SET
	last_backup_at = $3, backup_count = backup_count + 1,
	backup_job_ids = CASE WHEN $2 = ANY(backup_job_ids) THEN backup_job_ids ELSE array_append(backup_job_ids, $2::uuid) END,
	updated_at = $4
	WHERE (file_path = $1 OR file_path LIKE $1 || '/%') AND is_active = TRUE`
	res, err := r.db.ExecContext(ctx, query, strings.TrimRight(sourcePrefix, "/"), jobID, backedUpAt, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("mark files backed up: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check backup link rows: %w", err)
	}
	return affected, nil
}

// ListTemperatures streams the columns tier reclassification needs.
func (r *FileRepository) ListTemperatures(ctx context.Context) ([]models.FileTemperature, error) {
	const query = `SELECT id, file_accessed_at, file_modified_at, temperature
	FROM file_catalog WHERE is_active = TRUE`
	var rows []models.FileTemperature
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list file temperatures: %w", err)
	}
	return rows, nil
}

// SetTemperature reclassifies one file. The tier guard keeps repeated
// passes write-free.
func (r *FileRepository) SetTemperature(ctx context.Context, id string, tier models.Tier) (bool, error) {
	const query = `UPDATE file_catalog SET temperature = $2, updated_at = $3
	WHERE id = $1 AND temperature <> $2`
	res, err := r.db.ExecContext(ctx, query, id, tier, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("set file temperature: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check temperature rows: %w", err)
	}
	return affected == 1, nil
}

// TemperatureCounts returns active file counts and sizes per tier.
func (r *FileRepository) TemperatureCounts(ctx context.Context) (map[models.Tier]int64, error) {
	const query = `SELECT temperature, COUNT(*) AS n FROM file_catalog
	WHERE is_active = TRUE GROUP BY temperature`
	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("file temperature counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Tier]int64, 3)
	for rows.Next() {
		var tier models.Tier
		var n int64
		if err := rows.Scan(&tier, &n); err != nil {
			return nil, fmt.Errorf("scan temperature count: %w", err)
		}
		counts[tier] = n
	}
	return counts, rows.Err()
}
