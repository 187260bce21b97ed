package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arkivo-io/arkivo/internal/service"
	"github.com/arkivo-io/arkivo/pkg/response"
)

type tieringService interface {
	Run(ctx context.Context) (*service.TierReport, error)
	Status(ctx context.Context) (*service.TierStatus, error)
	Policy() service.TierPolicy
}

// ArchiveHandler exposes the storage tier surface: current tier populations,
// the active aging policy, and a manual rotation trigger.
type ArchiveHandler struct {
	tiering tieringService
}

// NewArchiveHandler constructs the handler.
func NewArchiveHandler(tiering tieringService) *ArchiveHandler {
	return &ArchiveHandler{tiering: tiering}
}

// Status godoc
// @Summary Tier populations for files and logs
// @Tags Archive
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /archive/status [get]
func (h *ArchiveHandler) Status(c *gin.Context) {
	status, err := h.tiering.Status(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Policy godoc
// @Summary Active tiering thresholds
// @Tags Archive
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /archive/policy [get]
func (h *ArchiveHandler) Policy(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.tiering.Policy(), nil)
}

// Run godoc
// @Summary Run one tier rotation pass now
// @Tags Archive
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /archive/run [post]
func (h *ArchiveHandler) Run(c *gin.Context) {
	report, err := h.tiering.Run(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}
