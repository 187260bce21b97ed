package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arkivo-io/arkivo/internal/middleware"
	"github.com/arkivo-io/arkivo/internal/service"
	"github.com/arkivo-io/arkivo/pkg/config"
	"github.com/arkivo-io/arkivo/pkg/logger"
	corsmiddleware "github.com/arkivo-io/arkivo/pkg/middleware/cors"
	reqidmiddleware "github.com/arkivo-io/arkivo/pkg/middleware/requestid"
)

// RouterDeps bundles everything the HTTP surface needs.
type RouterDeps struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *service.MetricsService

	Backup  *BackupHandler
	Catalog *CatalogHandler
	Logs    *LogHandler
	Archive *ArchiveHandler
	Health  *HealthHandler
	Metric  *MetricsHandler
}

// NewRouter assembles the gin engine with the full route table.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.Logger))
	r.Use(corsmiddleware.New(deps.Config.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.Metrics))

	r.GET("/health", deps.Health.Health)
	r.GET("/readiness", deps.Health.Readiness)
	r.GET("/metrics", deps.Metric.Prometheus)

	api := r.Group(deps.Config.APIPrefix)

	backups := api.Group("/backups")
	{
		backups.POST("", deps.Backup.Create)
		backups.GET("", deps.Backup.List)
		backups.GET("/:id", deps.Backup.Get)
		backups.PUT("/:id", deps.Backup.Update)
		backups.DELETE("/:id", deps.Backup.Delete)
		backups.POST("/:id/run", deps.Backup.Run)
		backups.POST("/:id/schedule", deps.Backup.CreateSchedule)
		backups.GET("/:id/schedule", deps.Backup.GetSchedule)
		backups.PUT("/:id/schedule", deps.Backup.UpdateSchedule)
		backups.DELETE("/:id/schedule", deps.Backup.DeleteSchedule)
	}
	api.GET("/schedules", deps.Backup.ListSchedules)

	files := api.Group("/files")
	{
		files.POST("/scan", deps.Catalog.StartScan)
		files.GET("/scans", deps.Catalog.ListScans)
		files.GET("/scans/:id", deps.Catalog.GetScan)
		files.GET("/search", deps.Catalog.Search)
		files.GET("/duplicates", deps.Catalog.Duplicates)
		files.GET("/at-risk", deps.Catalog.AtRisk)
		files.GET("/directories", deps.Catalog.Directories)
		files.GET("/:id", deps.Catalog.GetFile)
		files.GET("/:id/history", deps.Catalog.FileHistory)
	}

	logs := api.Group("/logs")
	{
		logs.GET("", deps.Logs.List)
		logs.GET("/stats", deps.Logs.Stats)
		logs.GET("/export", deps.Logs.Export)
		logs.GET("/:id", deps.Logs.Get)
		logs.DELETE("/:id", deps.Logs.Delete)
	}

	api.GET("/system/metrics", deps.Metric.Summary)

	archive := api.Group("/archive")
	{
		archive.GET("/status", deps.Archive.Status)
		archive.GET("/policy", deps.Archive.Policy)
		archive.POST("/run", deps.Archive.Run)
	}

	return r
}
