package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arkivo-io/arkivo/internal/handler"
	"github.com/arkivo-io/arkivo/internal/repository"
	"github.com/arkivo-io/arkivo/internal/service"
	"github.com/arkivo-io/arkivo/internal/transfer"
	"github.com/arkivo-io/arkivo/pkg/cache"
	"github.com/arkivo-io/arkivo/pkg/config"
	"github.com/arkivo-io/arkivo/pkg/database"
	"github.com/arkivo-io/arkivo/pkg/jobs"
	"github.com/arkivo-io/arkivo/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck
	sugar := logr.Sugar()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		sugar.Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		sugar.Warnw("redis unavailable, catalog query cache disabled", "error", err)
		redisClient = nil
	}

	jobRepo := repository.NewBackupJobRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	logRepo := repository.NewExecutionLogRepository(db)
	fileRepo := repository.NewFileRepository(db)
	historyRepo := repository.NewFileHistoryRepository(db)
	dirRepo := repository.NewDirectoryRepository(db)
	scanRepo := repository.NewScanJobRepository(db)

	engine := transfer.NewEngine(transfer.Options{
		Binary:        cfg.Engine.Binary,
		Transfers:     cfg.Engine.Transfers,
		Checkers:      cfg.Engine.Checkers,
		StatsInterval: cfg.Engine.StatsInterval,
		ExtraFlags:    cfg.Engine.ExtraFlags,
		DryRun:        cfg.Engine.DryRun,
	}, logr)

	metrics := service.NewMetricsService()

	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Catalog.CacheTTL, logr, redisClient != nil)

	catalogSvc := service.NewCatalogService(fileRepo, historyRepo, dirRepo, scanRepo, cacheSvc, metrics, cfg.Scan, cfg.Catalog, logr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scanQueue := jobs.NewQueue("catalog_scan", catalogSvc.HandleScanJob, jobs.QueueConfig{
		Workers:    cfg.Scan.WorkerConcurrency,
		BufferSize: cfg.Scan.QueueSize,
		Logger:     logr,
	})
	scanQueue.Start(ctx)
	catalogSvc.SetQueue(scanQueue)

	backupSvc := service.NewBackupService(jobRepo, scheduleRepo, logRepo, engine, catalogSvc, metrics, logr)
	scheduleSvc := service.NewScheduleService(scheduleRepo, jobRepo, logr)
	logSvc := service.NewLogService(logRepo, logr)
	tieringSvc := service.NewTieringService(fileRepo, logRepo, metrics, cfg.Tiering, logr)

	scheduler := service.NewScheduler(scheduleRepo, backupSvc, metrics, cfg.Scheduler.TickInterval, logr)
	if cfg.Scheduler.Enabled {
		scheduler.Start(ctx)
	}
	if cfg.Tiering.Enabled {
		tieringSvc.Start(ctx)
	}

	router := handler.NewRouter(handler.RouterDeps{
		Config:  cfg,
		Logger:  logr,
		Metrics: metrics,

		Backup:  handler.NewBackupHandler(backupSvc, scheduleSvc),
		Catalog: handler.NewCatalogHandler(catalogSvc),
		Logs:    handler.NewLogHandler(logSvc),
		Archive: handler.NewArchiveHandler(tieringSvc),
		Health:  handler.NewHealthHandler(db, engine),
		Metric:  handler.NewMetricsHandler(metrics),
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	go func() {
		sugar.Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	sugar.Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Errorw("server shutdown failed", "error", err)
	}

	if cfg.Scheduler.Enabled {
		scheduler.Stop()
	}
	if cfg.Tiering.Enabled {
		tieringSvc.Stop()
	}
	scanQueue.Stop()

	sugar.Infow("server stopped")
}
