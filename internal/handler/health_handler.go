package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/arkivo-io/arkivo/pkg/database"
	appErrors "github.com/arkivo-io/arkivo/pkg/errors"
	"github.com/arkivo-io/arkivo/pkg/response"
)

type engineProbe interface {
	Version(ctx context.Context) (string, error)
}

// HealthHandler answers liveness and readiness probes. Readiness requires
// the catalog store and the transfer engine binary to both respond.
type HealthHandler struct {
	db     *sqlx.DB
	engine engineProbe
}

// NewHealthHandler constructs the handler.
func NewHealthHandler(db *sqlx.DB, engine engineProbe) *HealthHandler {
	return &HealthHandler{db: db, engine: engine}
}

// Health reports process liveness.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness reports whether dependencies are reachable.
func (h *HealthHandler) Readiness(c *gin.Context) {
	checks := gin.H{}

	if h.db == nil {
		checks["database"] = "unavailable"
		response.Error(c, appErrors.Clone(appErrors.ErrStoreUnavailable, "catalog store unavailable"))
		return
	}
	if err := database.Healthy(c.Request.Context(), h.db); err != nil {
		checks["database"] = "unavailable"
		response.Error(c, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, http.StatusServiceUnavailable, "catalog store unavailable"))
		return
	}
	checks["database"] = "ok"

	if h.engine != nil {
		version, err := h.engine.Version(c.Request.Context())
		if err != nil {
			checks["engine"] = "unavailable"
			response.Error(c, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, http.StatusServiceUnavailable, "transfer engine unavailable"))
			return
		}
		checks["engine"] = version
	}

	response.JSON(c, http.StatusOK, checks, nil)
}
