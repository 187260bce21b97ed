package service

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arkivo-io/arkivo/internal/models"
	"github.com/arkivo-io/arkivo/pkg/config"
	appErrors "github.com/arkivo-io/arkivo/pkg/errors"
)

type tieringFileStore interface {
	ListTemperatures(ctx context.Context) ([]models.FileTemperature, error)
	SetTemperature(ctx context.Context, id string, tier models.Tier) (bool, error)
	TemperatureCounts(ctx context.Context) (map[models.Tier]int64, error)
}

type tieringLogStore interface {
	ListFinishedInTier(ctx context.Context, tier models.Tier, cutoff time.Time) ([]models.ExecutionLog, error)
	MoveToTier(ctx context.Context, ids []string, tier models.Tier, archivedPath string) error
	RelabelArchive(ctx context.Context, oldPath string, newPath string, tier models.Tier) error
	TierCounts(ctx context.Context) (map[models.Tier]int64, error)
}

// TierReport summarizes one rotation pass. A pass over an already-rotated
// catalog reports zeros everywhere.
type TierReport struct {
	FilesReclassified int            `json:"files_reclassified"`
	LogsArchived      int            `json:"logs_archived"`
	ArchivesDemoted   int            `json:"archives_demoted"`
	FileTransitions   map[string]int `json:"file_transitions"`
	RanAt             time.Time      `json:"ran_at"`
}

// TierStatus is the tiering surface snapshot.
type TierStatus struct {
	Files  map[models.Tier]int64 `json:"files"`
	Logs   map[models.Tier]int64 `json:"logs"`
	Policy TierPolicy            `json:"policy"`
}

// TierPolicy exposes the active thresholds.
type TierPolicy struct {
	HotAccessDays       int    `json:"hot_access_days"`
	WarmAccessDays      int    `json:"warm_access_days"`
	HotRetention        string `json:"hot_retention"`
	WarmRetentionMonths int    `json:"warm_retention_months"`
	ArchiveDir          string `json:"archive_dir"`
}

// TieringService ages catalog entries and execution logs through the
// hot, warm and cold tiers. File reclassification is a pure relabel driven
// by access recency; log rotation compacts aged rows into monthly gzip
// archives and demotes those archives to cold storage as they age out.
type TieringService struct {
	files   tieringFileStore
	logs    tieringLogStore
	metrics *MetricsService
	logger  *zap.Logger
	cfg     config.TieringConfig
	now     func() time.Time

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTieringService wires the rotation engine.
func NewTieringService(files tieringFileStore, logs tieringLogStore, metrics *MetricsService, cfg config.TieringConfig, logger *zap.Logger) *TieringService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HotAccessDays <= 0 {
		cfg.HotAccessDays = 30
	}
	if cfg.WarmAccessDays <= cfg.HotAccessDays {
		cfg.WarmAccessDays = cfg.HotAccessDays * 6
	}
	if cfg.WarmRetentionMonths <= 0 {
		cfg.WarmRetentionMonths = 24
	}
	return &TieringService{
		files:   files,
		logs:    logs,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Start launches the periodic rotation loop.
func (s *TieringService) Start(ctx context.Context) {
	interval := s.cfg.Interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		s.logger.Sugar().Infow("tiering loop started", "interval", interval)
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("tiering loop stopped")
				return
			case <-ticker.C:
				if _, err := s.Run(ctx); err != nil {
					s.logger.Sugar().Errorw("tier rotation failed", "error", err)
				}
			}
		}
	}()
}

// Stop halts the loop.
func (s *TieringService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Run performs one full rotation pass. Passes never overlap.
func (s *TieringService) Run(ctx context.Context) (*TierReport, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	now := s.now()
	report := &TierReport{FileTransitions: map[string]int{}, RanAt: now}

	if err := s.reclassifyFiles(ctx, now, report); err != nil {
		return report, err
	}
	if err := s.archiveLogs(ctx, now, report); err != nil {
		return report, err
	}
	if err := s.demoteArchives(ctx, now, report); err != nil {
		return report, err
	}

	s.logger.Sugar().Infow("tier rotation finished",
		"files_reclassified", report.FilesReclassified,
		"logs_archived", report.LogsArchived,
		"archives_demoted", report.ArchivesDemoted)
	return report, nil
}

// Status reports current tier populations and the active policy.
func (s *TieringService) Status(ctx context.Context) (*TierStatus, error) {
	fileCounts, err := s.files.TemperatureCounts(ctx)
	if err != nil {
		return nil, appErrors.StoreError(err, "file tier counts")
	}
	logCounts, err := s.logs.TierCounts(ctx)
	if err != nil {
		return nil, appErrors.StoreError(err, "log tier counts")
	}
	return &TierStatus{Files: fileCounts, Logs: logCounts, Policy: s.Policy()}, nil
}

// Policy returns the active thresholds.
func (s *TieringService) Policy() TierPolicy {
	return TierPolicy{
		HotAccessDays:       s.cfg.HotAccessDays,
		WarmAccessDays:      s.cfg.WarmAccessDays,
		HotRetention:        s.cfg.HotRetention.String(),
		WarmRetentionMonths: s.cfg.WarmRetentionMonths,
		ArchiveDir:          s.cfg.ArchiveDir,
	}
}

// classify buckets a file by how recently it was touched. Access time
// drives the decision; modification time stands in where the filesystem
// does not track atime.
func (s *TieringService) classify(file models.FileTemperature, now time.Time) models.Tier {
	ref := file.FileModifiedAt
	if file.FileAccessedAt != nil && file.FileAccessedAt.After(ref) {
		ref = *file.FileAccessedAt
	}
	ageDays := int(now.Sub(ref).Hours() / 24)
	switch {
	case ageDays < s.cfg.HotAccessDays:
		return models.TierHot
	case ageDays < s.cfg.WarmAccessDays:
		return models.TierWarm
	default:
		return models.TierCold
	}
}

func (s *TieringService) reclassifyFiles(ctx context.Context, now time.Time, report *TierReport) error {
	files, err := s.files.ListTemperatures(ctx)
	if err != nil {
		return fmt.Errorf("list file temperatures: %w", err)
	}
	for _, file := range files {
		target := s.classify(file, now)
		if target == file.Temperature {
			continue
		}
		changed, err := s.files.SetTemperature(ctx, file.ID, target)
		if err != nil {
			return fmt.Errorf("reclassify file %s: %w", file.ID, err)
		}
		if changed {
			report.FilesReclassified++
			report.FileTransitions[string(file.Temperature)+"->"+string(target)]++
			s.metrics.RecordTierTransition("file", target)
		}
	}
	return nil
}

// archiveLogs compacts finished hot logs past retention into one gzip JSON
// archive per month and relabels the rows warm.
func (s *TieringService) archiveLogs(ctx context.Context, now time.Time, report *TierReport) error {
	cutoff := now.Add(-s.cfg.HotRetention)
	logs, err := s.logs.ListFinishedInTier(ctx, models.TierHot, cutoff)
	if err != nil {
		return fmt.Errorf("list hot logs: %w", err)
	}
	if len(logs) == 0 {
		return nil
	}

	byMonth := make(map[string][]models.ExecutionLog)
	for _, log := range logs {
		byMonth[log.StartedAt.UTC().Format("2006-01")] = append(byMonth[log.StartedAt.UTC().Format("2006-01")], log)
	}
	months := make([]string, 0, len(byMonth))
	for month := range byMonth {
		months = append(months, month)
	}
	sort.Strings(months)

	for _, month := range months {
		batch := byMonth[month]
		path := s.warmArchivePath(month)
		if err := writeLogArchive(path, batch); err != nil {
			return fmt.Errorf("write archive %s: %w", path, err)
		}
		ids := make([]string, len(batch))
		for i, log := range batch {
			ids[i] = log.ID
		}
		if err := s.logs.MoveToTier(ctx, ids, models.TierWarm, path); err != nil {
			return fmt.Errorf("relabel archived logs for %s: %w", month, err)
		}
		report.LogsArchived += len(batch)
		s.metrics.RecordTierTransition("log", models.TierWarm)
		s.logger.Sugar().Infow("log archive written", "month", month, "rows", len(batch), "path", path)
	}
	return nil
}

// demoteArchives moves warm monthly archives past warm retention into the
// cold directory and relabels their rows.
func (s *TieringService) demoteArchives(ctx context.Context, now time.Time, report *TierReport) error {
	warmDir := filepath.Join(s.cfg.ArchiveDir, "warm")
	boundary := now.AddDate(0, -s.cfg.WarmRetentionMonths, 0).Format("2006-01")

	var demote []string
	err := filepath.Walk(warmDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		month, ok := archiveMonth(info.Name())
		if ok && month < boundary {
			demote = append(demote, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan warm archives: %w", err)
	}
	sort.Strings(demote)

	for _, oldPath := range demote {
		month, _ := archiveMonth(filepath.Base(oldPath))
		newPath := s.coldArchivePath(month)
		if err := os.MkdirAll(filepath.Dir(newPath), 0o755); err != nil {
			return fmt.Errorf("prepare cold dir: %w", err)
		}
		if err := os.Rename(oldPath, newPath); err != nil {
			return fmt.Errorf("demote archive %s: %w", oldPath, err)
		}
		if err := s.logs.RelabelArchive(ctx, oldPath, newPath, models.TierCold); err != nil {
			return fmt.Errorf("relabel demoted archive %s: %w", newPath, err)
		}
		report.ArchivesDemoted++
		s.metrics.RecordTierTransition("log", models.TierCold)
		s.logger.Sugar().Infow("archive demoted to cold", "from", oldPath, "to", newPath)
	}
	return nil
}

func (s *TieringService) warmArchivePath(month string) string {
	year := month[:4]
	return filepath.Join(s.cfg.ArchiveDir, "warm", year, fmt.Sprintf("backup_logs_%s.json.gz", month))
}

func (s *TieringService) coldArchivePath(month string) string {
	year := month[:4]
	return filepath.Join(s.cfg.ArchiveDir, "cold", year, fmt.Sprintf("backup_logs_%s.json.gz", month))
}

// archiveMonth extracts the YYYY-MM label from an archive file name.
func archiveMonth(name string) (string, bool) {
	const prefix, suffix = "backup_logs_", ".json.gz"
	if len(name) != len(prefix)+7+len(suffix) || name[:len(prefix)] != prefix || name[len(name)-len(suffix):] != suffix {
		return "", false
	}
	month := name[len(prefix) : len(prefix)+7]
	if _, err := time.Parse("2006-01", month); err != nil {
		return "", false
	}
	return month, true
}

// writeLogArchive writes (or extends) one monthly archive. Existing
// contents are preserved so late rotations of the same month accumulate.
func writeLogArchive(path string, batch []models.ExecutionLog) error {
	var existing []models.ExecutionLog
	if err := readLogArchive(path, &existing); err != nil && !os.IsNotExist(err) {
		return err
	}
	merged := append(existing, batch...)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	gz := gzip.NewWriter(f)
	if err := json.NewEncoder(gz).Encode(merged); err != nil {
		gz.Close()
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := gz.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func readLogArchive(path string, dest *[]models.ExecutionLog) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()
	return json.NewDecoder(gz).Decode(dest)
}
