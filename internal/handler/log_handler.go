package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arkivo-io/arkivo/internal/dto"
	"github.com/arkivo-io/arkivo/internal/models"
	appErrors "github.com/arkivo-io/arkivo/pkg/errors"
	"github.com/arkivo-io/arkivo/pkg/response"
)

type logService interface {
	Get(ctx context.Context, id string) (*models.ExecutionLog, error)
	List(ctx context.Context, filter models.LogFilter) ([]models.ExecutionLog, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (*models.LogStats, error)
	ExportCSV(ctx context.Context, filter models.LogFilter) ([]byte, error)
}

// LogHandler exposes the execution history surface.
type LogHandler struct {
	logs logService
}

// NewLogHandler builds a new handler.
func NewLogHandler(logs logService) *LogHandler {
	return &LogHandler{logs: logs}
}

// List godoc
// @Summary List execution logs
// @Tags Logs
// @Produce json
// @Param job_id query string false "Backup job filter"
// @Param status query string false "Status filter"
// @Success 200 {object} response.Envelope
// @Router /logs [get]
func (h *LogHandler) List(c *gin.Context) {
	var query dto.ListLogsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid log filters"))
		return
	}
	logs, err := h.logs.List(c.Request.Context(), query.ToFilter())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, nil)
}

// Get godoc
// @Summary Get one execution log
// @Tags Logs
// @Produce json
// @Param id path string true "Log ID"
// @Success 200 {object} response.Envelope
// @Router /logs/{id} [get]
func (h *LogHandler) Get(c *gin.Context) {
	log, err := h.logs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, log, nil)
}

// Delete godoc
// @Summary Delete one execution log
// @Tags Logs
// @Param id path string true "Log ID"
// @Success 204
// @Router /logs/{id} [delete]
func (h *LogHandler) Delete(c *gin.Context) {
	if err := h.logs.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Stats godoc
// @Summary Aggregate execution statistics
// @Tags Logs
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /logs/stats [get]
func (h *LogHandler) Stats(c *gin.Context) {
	stats, err := h.logs.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Export godoc
// @Summary Export execution logs as CSV
// @Tags Logs
// @Produce text/csv
// @Success 200 {file} binary
// @Router /logs/export [get]
func (h *LogHandler) Export(c *gin.Context) {
	var query dto.ListLogsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid log filters"))
		return
	}
	payload, err := h.logs.ExportCSV(c.Request.Context(), query.ToFilter())
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := fmt.Sprintf("execution_logs_%s.csv", time.Now().UTC().Format("20060102_150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv", payload)
}
