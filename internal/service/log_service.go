package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/arkivo-io/arkivo/internal/models"
	appErrors "github.com/arkivo-io/arkivo/pkg/errors"
	"github.com/arkivo-io/arkivo/pkg/export"
)

type executionLogStore interface {
	GetByID(ctx context.Context, id string) (*models.ExecutionLog, error)
	List(ctx context.Context, filter models.LogFilter) ([]models.ExecutionLog, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (*models.LogStats, error)
}

// LogService answers the execution history surface.
type LogService struct {
	logs     executionLogStore
	exporter *export.CSVExporter
	logger   *zap.Logger
}

// NewLogService wires the service.
func NewLogService(logs executionLogStore, logger *zap.Logger) *LogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogService{logs: logs, exporter: export.NewCSVExporter(), logger: logger}
}

// Get returns one execution log.
func (s *LogService) Get(ctx context.Context, id string) (*models.ExecutionLog, error) {
	log, err := s.logs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "execution log not found")
		}
		return nil, appErrors.StoreError(err, "get execution log")
	}
	return log, nil
}

// List returns execution logs matching the filter, newest first.
func (s *LogService) List(ctx context.Context, filter models.LogFilter) ([]models.ExecutionLog, error) {
	logs, err := s.logs.List(ctx, filter)
	if err != nil {
		return nil, appErrors.StoreError(err, "list execution logs")
	}
	return logs, nil
}

// Delete removes a single log row on explicit operator request.
func (s *LogService) Delete(ctx context.Context, id string) error {
	if err := s.logs.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "execution log not found")
		}
		return appErrors.StoreError(err, "delete execution log")
	}
	s.logger.Sugar().Infow("execution log deleted", "log_id", id)
	return nil
}

// Stats aggregates execution outcomes across all jobs.
func (s *LogService) Stats(ctx context.Context) (*models.LogStats, error) {
	stats, err := s.logs.Stats(ctx)
	if err != nil {
		return nil, appErrors.StoreError(err, "execution log stats")
	}
	return stats, nil
}

// ExportCSV renders the filtered logs as a CSV document.
func (s *LogService) ExportCSV(ctx context.Context, filter models.LogFilter) ([]byte, error) {
	logs, err := s.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Headers: []string{
			"id", "backup_job_id", "status", "source_path", "destination_path",
			"started_at", "completed_at", "files_transferred", "bytes_transferred",
			"transfer_rate_mbps", "duration_seconds", "error_count", "error_message",
			"storage_tier", "triggered_by",
		},
		Rows: make([]map[string]string, 0, len(logs)),
	}
	for _, log := range logs {
		row := map[string]string{
			"id":                 log.ID,
			"backup_job_id":      log.BackupJobID,
			"status":             string(log.Status),
			"source_path":        log.SourcePath,
			"destination_path":   log.DestinationPath,
			"started_at":         log.StartedAt.UTC().Format(time.RFC3339),
			"files_transferred":  strconv.FormatInt(log.FilesTransferred, 10),
			"bytes_transferred":  strconv.FormatInt(log.BytesTransferred, 10),
			"transfer_rate_mbps": fmt.Sprintf("%.2f", log.TransferRateMbps),
			"error_count":        strconv.Itoa(log.ErrorCount),
			"storage_tier":       string(log.StorageTier),
			"triggered_by":       string(log.TriggeredBy),
		}
		if log.CompletedAt != nil {
			row["completed_at"] = log.CompletedAt.UTC().Format(time.RFC3339)
		}
		if log.DurationSeconds != nil {
			row["duration_seconds"] = fmt.Sprintf("%.2f", *log.DurationSeconds)
		}
		if log.ErrorMessage != nil {
			row["error_message"] = *log.ErrorMessage
		}
		dataset.Rows = append(dataset.Rows, row)
	}

	payload, err := s.exporter.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "render csv export")
	}
	return payload, nil
}
