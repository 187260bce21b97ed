package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arkivo-io/arkivo/internal/models"
	"github.com/arkivo-io/arkivo/internal/scanner"
	"github.com/arkivo-io/arkivo/pkg/config"
	appErrors "github.com/arkivo-io/arkivo/pkg/errors"
	"github.com/arkivo-io/arkivo/pkg/jobs"
)

type catalogFileStore interface {
	GetByPath(ctx context.Context, path string) (*models.FileEntry, error)
	GetByID(ctx context.Context, id string) (*models.FileEntry, error)
	Create(ctx context.Context, entry *models.FileEntry) error
	ApplyObservation(ctx context.Context, id string, obs models.FileObservedUpdate) error
	TouchScan(ctx context.Context, id string, scannedAt time.Time, accessedAt *time.Time) error
	ListActiveByHash(ctx context.Context, hash string) ([]models.FileEntry, error)
	MarkCanonical(ctx context.Context, id string) error
	MarkDuplicate(ctx context.Context, id string, canonicalID string) error
	DeactivateUnseen(ctx context.Context, root string, scanStart time.Time) ([]models.FileEntry, error)
	Search(ctx context.Context, filter models.FileFilter) ([]models.FileEntry, error)
	DuplicateHashes(ctx context.Context, limit int) ([]string, error)
	AtRisk(ctx context.Context, staleBefore time.Time, limit int) ([]models.FileEntry, error)
	MarkBackedUp(ctx context.Context, sourcePrefix string, jobID string, backedUpAt time.Time) (int64, error)
}

type fileHistoryStore interface {
	Create(ctx context.Context, history *models.FileHistory) error
	ListByFile(ctx context.Context, fileID string, limit int) ([]models.FileHistory, error)
}

type directoryStore interface {
	Upsert(ctx context.Context, entry *models.DirectoryEntry) error
	ListUnder(ctx context.Context, root string, limit int) ([]models.DirectoryEntry, error)
}

type scanJobStore interface {
	Create(ctx context.Context, job *models.ScanJob) error
	GetByID(ctx context.Context, id string) (*models.ScanJob, error)
	List(ctx context.Context, limit int) ([]models.ScanJob, error)
	MarkRunning(ctx context.Context, id string, startedAt time.Time) error
	Finish(ctx context.Context, id string, status models.ScanStatus, result models.ScanResult) error
}

// observationWalker is the scanner seam; tests substitute scripted walks.
type observationWalker interface {
	Walk(ctx context.Context, yield func(scanner.Observation) error) (scanner.Stats, error)
}

type scanEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// CatalogService reconciles filesystem observations into the file catalog:
// upserts, change history, content-hash dedup, absence handling, and the
// per-directory aggregates. It also answers the catalog query surface.
type CatalogService struct {
	files   catalogFileStore
	history fileHistoryStore
	dirs    directoryStore
	scans   scanJobStore
	queue   scanEnqueuer
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger

	scanCfg   config.ScanConfig
	cacheTTL  time.Duration
	staleDays int

	newWalker func(root string) observationWalker
}

// NewCatalogService wires the catalog engine.
func NewCatalogService(files catalogFileStore, history fileHistoryStore, dirs directoryStore, scans scanJobStore, cache *CacheService, metrics *MetricsService, scanCfg config.ScanConfig, catalogCfg config.CatalogConfig, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	staleDays := catalogCfg.AtRiskStaleDays
	if staleDays <= 0 {
		staleDays = 30
	}
	s := &CatalogService{
		files:     files,
		history:   history,
		dirs:      dirs,
		scans:     scans,
		cache:     cache,
		metrics:   metrics,
		logger:    logger,
		scanCfg:   scanCfg,
		cacheTTL:  catalogCfg.CacheTTL,
		staleDays: staleDays,
	}
	s.newWalker = func(root string) observationWalker {
		return scanner.New(scanner.Config{
			Root:            root,
			ExcludePatterns: scanCfg.ExcludePatterns,
			MaxDepth:        scanCfg.MaxDepth,
			FollowSymlinks:  scanCfg.FollowSymlinks,
		}, logger)
	}
	return s
}

// SetQueue attaches the scan worker pool. Without a queue StartScan runs
// inline, which keeps tests and one-shot tools simple.
func (s *CatalogService) SetQueue(queue scanEnqueuer) {
	s.queue = queue
}

// StartScan registers a scan job for the root and hands it to the worker
// pool. The job row is the API-visible handle for progress polling.
func (s *CatalogService) StartScan(ctx context.Context, rootPath string, scanType models.ScanType, trigger models.TriggerSource) (*models.ScanJob, error) {
	rootPath = strings.TrimSpace(rootPath)
	if rootPath == "" || !filepath.IsAbs(rootPath) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "root_path must be an absolute path")
	}
	if scanType == "" {
		scanType = models.ScanTypeManual
	}

	job := &models.ScanJob{
		RootPath:    rootPath,
		ScanType:    scanType,
		TriggeredBy: trigger,
	}
	if err := s.scans.Create(ctx, job); err != nil {
		return nil, appErrors.StoreError(err, "create scan job")
	}

	if s.queue == nil {
		if err := s.RunScan(ctx, job.ID); err != nil {
			return job, err
		}
		return s.GetScanJob(ctx, job.ID)
	}

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "catalog_scan", Payload: job.ID}); err != nil {
		msg := "scan queue unavailable"
		result := models.ScanResult{ErrorsCount: 1, ErrorMessage: &msg}
		if finishErr := s.scans.Finish(ctx, job.ID, models.ScanStatusFailed, result); finishErr != nil {
			s.logger.Sugar().Errorw("failed to fail unqueued scan", "scan_id", job.ID, "error", finishErr)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "scan queue full")
	}
	return job, nil
}

// HandleScanJob is the worker pool handler.
func (s *CatalogService) HandleScanJob(ctx context.Context, job jobs.Job) error {
	scanID, ok := job.Payload.(string)
	if !ok || scanID == "" {
		return fmt.Errorf("scan job payload must be a scan id")
	}
	return s.RunScan(ctx, scanID)
}

// GetScanJob returns one scan job.
func (s *CatalogService) GetScanJob(ctx context.Context, id string) (*models.ScanJob, error) {
	job, err := s.scans.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "scan job not found")
		}
		return nil, appErrors.StoreError(err, "get scan job")
	}
	return job, nil
}

// ListScanJobs returns recent scan jobs.
func (s *CatalogService) ListScanJobs(ctx context.Context, limit int) ([]models.ScanJob, error) {
	scans, err := s.scans.List(ctx, limit)
	if err != nil {
		return nil, appErrors.StoreError(err, "list scan jobs")
	}
	return scans, nil
}

// ScanForBackup refreshes the catalog under a source root right before a
// transfer, synchronously, and tags the scan with the backup job.
func (s *CatalogService) ScanForBackup(ctx context.Context, root string, backupJobID string) error {
	job := &models.ScanJob{
		RootPath:    strings.TrimRight(root, "/"),
		ScanType:    models.ScanTypeBackupPre,
		TriggeredBy: models.TriggerAPI,
		BackupJobID: &backupJobID,
	}
	if err := s.scans.Create(ctx, job); err != nil {
		return fmt.Errorf("create pre-backup scan: %w", err)
	}
	return s.RunScan(ctx, job.ID)
}

// MarkBackedUp records the backup linkage for every active file under the
// source prefix.
func (s *CatalogService) MarkBackedUp(ctx context.Context, sourcePrefix string, jobID string, backedUpAt time.Time) (int64, error) {
	return s.files.MarkBackedUp(ctx, sourcePrefix, jobID, backedUpAt)
}

// RunScan walks the root and reconciles every observation. Per-path
// failures accumulate into the scan job; only a dead walk fails it.
func (s *CatalogService) RunScan(ctx context.Context, scanID string) error {
	job, err := s.scans.GetByID(ctx, scanID)
	if err != nil {
		return fmt.Errorf("load scan job: %w", err)
	}

	scanStart := time.Now().UTC()
	if err := s.scans.MarkRunning(ctx, job.ID, scanStart); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Another worker claimed it.
			return nil
		}
		return fmt.Errorf("claim scan job: %w", err)
	}
	s.logger.Sugar().Infow("scan started", "scan_id", job.ID, "root", job.RootPath, "type", job.ScanType)

	agg := newDirAggregator(job.RootPath)
	reconcileErrors := 0
	var errorSample []string

	stats, walkErr := s.newWalker(job.RootPath).Walk(ctx, func(obs scanner.Observation) error {
		entry, err := s.reconcileObservation(ctx, job, obs)
		if err != nil {
			reconcileErrors++
			if len(errorSample) < 10 {
				errorSample = append(errorSample, fmt.Sprintf("%s: %v", obs.Path, err))
			}
			return nil
		}
		agg.add(obs, entry.ID)
		return nil
	})

	result := models.ScanResult{
		FilesScanned:       stats.Files,
		DirectoriesScanned: stats.Directories,
		TotalSizeBytes:     stats.TotalBytes,
		ErrorsCount:        stats.Errors + reconcileErrors,
		DurationSeconds:    time.Since(scanStart).Seconds(),
	}
	errorSample = append(errorSample, stats.ErrorSample...)
	if len(errorSample) > 0 {
		msg := strings.Join(errorSample, "; ")
		result.ErrorMessage = &msg
	}

	finCtx := context.WithoutCancel(ctx)
	if walkErr != nil {
		msg := walkErr.Error()
		if result.ErrorMessage != nil {
			msg = msg + "; " + *result.ErrorMessage
		}
		result.ErrorMessage = &msg
		result.ErrorsCount++
		if err := s.scans.Finish(finCtx, job.ID, models.ScanStatusFailed, result); err != nil {
			s.logger.Sugar().Errorw("failed to finalize scan", "scan_id", job.ID, "error", err)
		}
		return fmt.Errorf("scan walk aborted: %w", walkErr)
	}

	// Active entries under the root the walk did not touch are gone from
	// disk: deactivate them and re-elect canonicals for their hashes.
	deactivated, err := s.files.DeactivateUnseen(ctx, job.RootPath, scanStart)
	if err != nil {
		s.logger.Sugar().Errorw("absence pass failed", "scan_id", job.ID, "error", err)
		result.ErrorsCount++
	} else {
		hashes := make(map[string]struct{}, len(deactivated))
		for _, entry := range deactivated {
			hashes[entry.ContentHash] = struct{}{}
		}
		for hash := range hashes {
			if err := s.dedupeHash(ctx, hash); err != nil {
				s.logger.Sugar().Warnw("canonical promotion failed", "scan_id", job.ID, "hash", hash, "error", err)
			}
		}
	}

	for _, dirEntry := range agg.entries(scanStart) {
		entry := dirEntry
		if err := s.dirs.Upsert(ctx, &entry); err != nil {
			s.logger.Sugar().Warnw("directory aggregate upsert failed", "scan_id", job.ID, "dir", entry.DirPath, "error", err)
			result.ErrorsCount++
		}
	}

	result.DurationSeconds = time.Since(scanStart).Seconds()
	status := models.ScanStatusCompleted
	if err := s.scans.Finish(finCtx, job.ID, status, result); err != nil {
		s.logger.Sugar().Errorw("failed to finalize scan", "scan_id", job.ID, "error", err)
	}
	if err := s.cache.Invalidate(finCtx, "catalog:*"); err != nil {
		s.logger.Sugar().Warnw("cache invalidation failed", "scan_id", job.ID, "error", err)
	}
	s.metrics.RecordFilesScanned(stats.Files)
	s.logger.Sugar().Infow("scan finished", "scan_id", job.ID, "files", stats.Files, "errors", result.ErrorsCount)
	return nil
}

// reconcileObservation upserts one observation and maintains the change
// history and dedup state around it.
func (s *CatalogService) reconcileObservation(ctx context.Context, job *models.ScanJob, obs scanner.Observation) (*models.FileEntry, error) {
	now := time.Now().UTC()
	entry, err := s.files.GetByPath(ctx, obs.Path)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		entry = newFileEntry(obs, now)
		if err := s.files.Create(ctx, entry); err != nil {
			return nil, err
		}
		if err := s.history.Create(ctx, initialHistory(entry, job, now)); err != nil {
			return nil, err
		}
		if err := s.dedupeHash(ctx, entry.ContentHash); err != nil {
			return nil, err
		}
		return entry, nil
	}

	sizeChanged := entry.SizeBytes != obs.SizeBytes
	hashChanged := entry.ContentHash != obs.Hash
	modifiedChanged := !entry.FileModifiedAt.Equal(obs.ModifiedAt)
	accessedChanged := !timePtrEqual(entry.FileAccessedAt, obs.AccessedAt)

	reactivated := !entry.IsActive

	if !sizeChanged && !hashChanged && !modifiedChanged {
		// Access drift alone is not a content change; just refresh the
		// scan stamp and recency.
		if err := s.files.TouchScan(ctx, entry.ID, now, obs.AccessedAt); err != nil {
			return nil, err
		}
		entry.IsActive = true
		entry.LastScanAt = now
		if obs.AccessedAt != nil {
			entry.FileAccessedAt = obs.AccessedAt
		}
		// A file coming back after an absence rejoins its duplicate
		// group; without this two active canonicals could share a hash.
		if reactivated {
			if err := s.dedupeHash(ctx, entry.ContentHash); err != nil {
				return nil, err
			}
		}
		return entry, nil
	}

	oldHash := entry.ContentHash
	record := &models.FileHistory{
		FileID:          entry.ID,
		ScanJobID:       scanJobRef(job),
		SizeBytes:       obs.SizeBytes,
		ContentHash:     obs.Hash,
		ModifiedAt:      obs.ModifiedAt,
		AccessedAt:      obs.AccessedAt,
		SizeChanged:     sizeChanged,
		HashChanged:     hashChanged,
		ModifiedChanged: modifiedChanged,
		AccessedChanged: accessedChanged,
		SizeDelta:       obs.SizeBytes - entry.SizeBytes,
		ScanType:        job.ScanType,
	}
	fillRecency(record, obs, now)
	if err := s.history.Create(ctx, record); err != nil {
		return nil, err
	}

	if err := s.files.ApplyObservation(ctx, entry.ID, models.FileObservedUpdate{
		SizeBytes:      obs.SizeBytes,
		ContentHash:    obs.Hash,
		FileModifiedAt: obs.ModifiedAt,
		FileAccessedAt: obs.AccessedAt,
		LastScanAt:     now,
	}); err != nil {
		return nil, err
	}
	entry.SizeBytes = obs.SizeBytes
	entry.ContentHash = obs.Hash
	entry.FileModifiedAt = obs.ModifiedAt
	entry.FileAccessedAt = obs.AccessedAt
	entry.LastScanAt = now
	entry.IsActive = true

	if hashChanged {
		if err := s.dedupeHash(ctx, obs.Hash); err != nil {
			return nil, err
		}
		if err := s.dedupeHash(ctx, oldHash); err != nil {
			return nil, err
		}
	} else if reactivated {
		if err := s.dedupeHash(ctx, entry.ContentHash); err != nil {
			return nil, err
		}
	}
	return entry, nil
}

// dedupeHash re-elects the canonical entry for a content hash: the oldest
// active entry survives, every other active entry points at it.
func (s *CatalogService) dedupeHash(ctx context.Context, hash string) error {
	if hash == "" {
		return nil
	}
	entries, err := s.files.ListActiveByHash(ctx, hash)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	canonical := entries[0]
	if canonical.IsDuplicate {
		if err := s.files.MarkCanonical(ctx, canonical.ID); err != nil {
			return err
		}
	}
	for _, entry := range entries[1:] {
		if entry.IsDuplicate && entry.DuplicateOf != nil && *entry.DuplicateOf == canonical.ID {
			continue
		}
		if err := s.files.MarkDuplicate(ctx, entry.ID, canonical.ID); err != nil {
			return err
		}
	}
	return nil
}

// GetFile returns one catalog entry.
func (s *CatalogService) GetFile(ctx context.Context, id string) (*models.FileEntry, error) {
	entry, err := s.files.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "file not found")
		}
		return nil, appErrors.StoreError(err, "get file")
	}
	return entry, nil
}

// FileHistory returns a file's change trail.
func (s *CatalogService) FileHistory(ctx context.Context, fileID string, limit int) ([]models.FileHistory, error) {
	if _, err := s.GetFile(ctx, fileID); err != nil {
		return nil, err
	}
	records, err := s.history.ListByFile(ctx, fileID, limit)
	if err != nil {
		return nil, appErrors.StoreError(err, "list file history")
	}
	return records, nil
}

// Search queries the catalog, with results cached briefly.
func (s *CatalogService) Search(ctx context.Context, filter models.FileFilter) ([]models.FileEntry, error) {
	key := cacheKey("catalog:search", filter)
	var cached []models.FileEntry
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	entries, err := s.files.Search(ctx, filter)
	if err != nil {
		return nil, appErrors.StoreError(err, "search files")
	}
	_ = s.cache.Set(ctx, key, entries, s.cacheTTL)
	return entries, nil
}

// Duplicates groups active entries by shared content hash.
func (s *CatalogService) Duplicates(ctx context.Context, limit int) ([]models.DuplicateGroup, error) {
	key := cacheKey("catalog:duplicates", limit)
	var cached []models.DuplicateGroup
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	hashes, err := s.files.DuplicateHashes(ctx, limit)
	if err != nil {
		return nil, appErrors.StoreError(err, "list duplicates")
	}

	groups := make([]models.DuplicateGroup, 0, len(hashes))
	var duplicateCount int64
	for _, hash := range hashes {
		entries, err := s.files.ListActiveByHash(ctx, hash)
		if err != nil {
			return nil, appErrors.StoreError(err, "load duplicate group")
		}
		if len(entries) < 2 {
			continue
		}
		var wasted int64
		for _, entry := range entries[1:] {
			wasted += entry.SizeBytes
		}
		duplicateCount += int64(len(entries) - 1)
		groups = append(groups, models.DuplicateGroup{
			ContentHash: hash,
			Count:       len(entries),
			WastedBytes: wasted,
			Files:       entries,
		})
	}
	s.metrics.SetDuplicateFiles(duplicateCount)
	_ = s.cache.Set(ctx, key, groups, s.cacheTTL)
	return groups, nil
}

// AtRisk returns active files with no recent backup coverage.
func (s *CatalogService) AtRisk(ctx context.Context, limit int) ([]models.FileEntry, error) {
	staleBefore := time.Now().UTC().AddDate(0, 0, -s.staleDays)
	entries, err := s.files.AtRisk(ctx, staleBefore, limit)
	if err != nil {
		return nil, appErrors.StoreError(err, "list at-risk files")
	}
	return entries, nil
}

// Directories returns aggregates for a subtree.
func (s *CatalogService) Directories(ctx context.Context, root string, limit int) ([]models.DirectoryEntry, error) {
	if strings.TrimSpace(root) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "root is required")
	}
	entries, err := s.dirs.ListUnder(ctx, root, limit)
	if err != nil {
		return nil, appErrors.StoreError(err, "list directories")
	}
	return entries, nil
}

func newFileEntry(obs scanner.Observation, now time.Time) *models.FileEntry {
	var ext *string
	if obs.Extension != "" {
		e := obs.Extension
		ext = &e
	}
	return &models.FileEntry{
		FilePath:        obs.Path,
		FileName:        obs.Name,
		Extension:       ext,
		SizeBytes:       obs.SizeBytes,
		ContentHash:     obs.Hash,
		FileCreatedAt:   obs.CreatedAt,
		FileModifiedAt:  obs.ModifiedAt,
		FileAccessedAt:  obs.AccessedAt,
		ParentDirectory: obs.Dir,
		Depth:           obs.Depth,
		FirstSeenAt:     now,
		LastScanAt:      now,
		BackupJobIDs:    []string{},
	}
}

func initialHistory(entry *models.FileEntry, job *models.ScanJob, now time.Time) *models.FileHistory {
	record := &models.FileHistory{
		FileID:      entry.ID,
		ScanJobID:   scanJobRef(job),
		SizeBytes:   entry.SizeBytes,
		ContentHash: entry.ContentHash,
		ModifiedAt:  entry.FileModifiedAt,
		AccessedAt:  entry.FileAccessedAt,
		ScanType:    job.ScanType,
	}
	obs := scanner.Observation{ModifiedAt: entry.FileModifiedAt, AccessedAt: entry.FileAccessedAt}
	fillRecency(record, obs, now)
	return record
}

func fillRecency(record *models.FileHistory, obs scanner.Observation, now time.Time) {
	if obs.AccessedAt != nil {
		days := int(now.Sub(*obs.AccessedAt).Hours() / 24)
		record.DaysSinceAccess = &days
	}
	days := int(now.Sub(obs.ModifiedAt).Hours() / 24)
	record.DaysSinceModification = &days
}

func scanJobRef(job *models.ScanJob) *string {
	if job == nil || job.ID == "" {
		return nil
	}
	id := job.ID
	return &id
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func cacheKey(prefix string, v interface{}) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return prefix
	}
	sum := sha256.Sum256(raw)
	return prefix + ":" + hex.EncodeToString(sum[:8])
}
