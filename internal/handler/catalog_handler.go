package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/arkivo-io/arkivo/internal/dto"
	"github.com/arkivo-io/arkivo/internal/models"
	appErrors "github.com/arkivo-io/arkivo/pkg/errors"
	"github.com/arkivo-io/arkivo/pkg/response"
)

type catalogService interface {
	StartScan(ctx context.Context, rootPath string, scanType models.ScanType, trigger models.TriggerSource) (*models.ScanJob, error)
	GetScanJob(ctx context.Context, id string) (*models.ScanJob, error)
	ListScanJobs(ctx context.Context, limit int) ([]models.ScanJob, error)
	GetFile(ctx context.Context, id string) (*models.FileEntry, error)
	FileHistory(ctx context.Context, fileID string, limit int) ([]models.FileHistory, error)
	Search(ctx context.Context, filter models.FileFilter) ([]models.FileEntry, error)
	Duplicates(ctx context.Context, limit int) ([]models.DuplicateGroup, error)
	AtRisk(ctx context.Context, limit int) ([]models.FileEntry, error)
	Directories(ctx context.Context, root string, limit int) ([]models.DirectoryEntry, error)
}

// CatalogHandler exposes the file catalog surface.
type CatalogHandler struct {
	catalog catalogService
}

// NewCatalogHandler builds a new handler.
func NewCatalogHandler(catalog catalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// StartScan godoc
// @Summary Start a catalog scan
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body dto.StartScanRequest true "Scan payload"
// @Success 201 {object} response.Envelope
// @Router /files/scan [post]
func (h *CatalogHandler) StartScan(c *gin.Context) {
	var req dto.StartScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid scan payload"))
		return
	}
	scanType := models.ScanType(req.ScanType)
	if scanType == "" {
		scanType = models.ScanTypeManual
	}
	job, err := h.catalog.StartScan(c.Request.Context(), req.RootPath, scanType, models.TriggerAPI)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, job)
}

// ListScans godoc
// @Summary List recent scan jobs
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /files/scans [get]
func (h *CatalogHandler) ListScans(c *gin.Context) {
	scans, err := h.catalog.ListScanJobs(c.Request.Context(), queryInt(c, "limit", 50))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, scans, nil)
}

// GetScan godoc
// @Summary Get one scan job
// @Tags Catalog
// @Produce json
// @Param id path string true "Scan ID"
// @Success 200 {object} response.Envelope
// @Router /files/scans/{id} [get]
func (h *CatalogHandler) GetScan(c *gin.Context) {
	job, err := h.catalog.GetScanJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Search godoc
// @Summary Search the file catalog
// @Tags Catalog
// @Produce json
// @Param path_prefix query string false "Path prefix"
// @Param name query string false "Name fragment"
// @Param temperature query string false "Tier filter"
// @Success 200 {object} response.Envelope
// @Router /files/search [get]
func (h *CatalogHandler) Search(c *gin.Context) {
	var query dto.SearchFilesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid search filters"))
		return
	}
	entries, err := h.catalog.Search(c.Request.Context(), query.ToFilter())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Duplicates godoc
// @Summary List duplicate file groups
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /files/duplicates [get]
func (h *CatalogHandler) Duplicates(c *gin.Context) {
	groups, err := h.catalog.Duplicates(c.Request.Context(), queryInt(c, "limit", 100))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, groups, nil)
}

// AtRisk godoc
// @Summary List files without recent backup coverage
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /files/at-risk [get]
func (h *CatalogHandler) AtRisk(c *gin.Context) {
	entries, err := h.catalog.AtRisk(c.Request.Context(), queryInt(c, "limit", 100))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// GetFile godoc
// @Summary Get one catalog entry
// @Tags Catalog
// @Produce json
// @Param id path string true "File ID"
// @Success 200 {object} response.Envelope
// @Router /files/{id} [get]
func (h *CatalogHandler) GetFile(c *gin.Context) {
	entry, err := h.catalog.GetFile(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// FileHistory godoc
// @Summary Get a file's change history
// @Tags Catalog
// @Produce json
// @Param id path string true "File ID"
// @Success 200 {object} response.Envelope
// @Router /files/{id}/history [get]
func (h *CatalogHandler) FileHistory(c *gin.Context) {
	records, err := h.catalog.FileHistory(c.Request.Context(), c.Param("id"), queryInt(c, "limit", 100))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Directories godoc
// @Summary List directory aggregates for a subtree
// @Tags Catalog
// @Produce json
// @Param root query string true "Subtree root"
// @Success 200 {object} response.Envelope
// @Router /files/directories [get]
func (h *CatalogHandler) Directories(c *gin.Context) {
	entries, err := h.catalog.Directories(c.Request.Context(), c.Query("root"), queryInt(c, "limit", 200))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
