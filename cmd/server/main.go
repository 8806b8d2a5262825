// Package main provides the API server entry point for the app directory tracker.
// It serves the HTTP API and runs the guild count refresh job in the same process.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/app-directory-tracker/internal/adapter"
	"github.com/app-directory-tracker/internal/api"
	"github.com/app-directory-tracker/internal/circuitbreaker"
	"github.com/app-directory-tracker/internal/config"
	"github.com/app-directory-tracker/internal/logging"
	"github.com/app-directory-tracker/internal/service"
	"github.com/app-directory-tracker/internal/storage"
	"github.com/app-directory-tracker/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	postgres, err := storage.ConnectPostgres(ctx, &cfg.Database.Postgres, nil)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	if cfg.Database.Postgres.AutoMigrate {
		logger.WithField("path", cfg.Database.Postgres.MigrationsPath).Info("Running Postgres migrations")
		if err := storage.RunMigrations(cfg.Database.Postgres.URL(), cfg.Database.Postgres.MigrationsPath); err != nil {
			logger.WithError(err).Fatal("Failed to run migrations")
		}
	}

	// Redis backs the run lease and the history cache. It is required only
	// when the lease is enabled; otherwise the process runs without both.
	lockRequired := cfg.Refresh.Enabled && cfg.Refresh.LockEnabled
	redisCache, err := storage.NewRedisCache(ctx, &cfg.Database.Redis)
	if err != nil {
		if lockRequired {
			logger.WithError(err).Fatal("Failed to connect to Redis (required by REFRESH_LOCK_ENABLED)")
		}
		logger.WithError(err).Warn("Redis unavailable, running without history cache")
		redisCache = nil
	} else {
		defer redisCache.Close()
	}

	logger.Info("Database connections established")

	// Repositories
	appRepo := storage.NewApplicationRepository(postgres)
	statRepo := storage.NewStatRepository(postgres)
	scanLogRepo := storage.NewScanLogRepository(postgres)

	directory, err := adapter.NewDirectoryClient(&adapter.DirectoryClientConfig{
		BaseURL:           cfg.Directory.BaseURL,
		Locale:            cfg.Directory.Locale,
		Timeout:           cfg.Directory.Timeout,
		RequestsPerSecond: cfg.Directory.RequestsPerSecond,
		Breaker:           circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig("application-directory")),
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create directory client")
	}

	// Services
	var historyCache *storage.HistoryCache
	var cacher service.HistoryCacher
	if redisCache != nil {
		historyCache = storage.NewHistoryCache(redisCache, cfg.Cache.HistoryTTL)
		cacher = historyCache
	}
	queryService := service.NewQueryService(appRepo, statRepo, cacher)
	importService := service.NewImportService(directory, appRepo)

	health := api.HealthChecks{
		Database:  postgres,
		Directory: directory,
	}
	if redisCache != nil {
		health.Cache = redisCache
	}

	var refreshWorker *worker.StatsRefreshWorker
	if cfg.Refresh.Enabled {
		workerCfg := &worker.StatsRefreshWorkerConfig{
			Applications: appRepo,
			Stats:        statRepo,
			ScanLogs:     scanLogRepo,
			Directory:    directory,
			Interval:     cfg.Refresh.Interval,
			ScanInterval: cfg.Refresh.ScanInterval,
			LockTTL:      cfg.Refresh.LockTTL,
		}
		// Interface fields stay nil unless set; a typed nil would be non-nil.
		if lockRequired {
			workerCfg.Lock = storage.NewRedisRunLock(redisCache)
		}
		if historyCache != nil {
			workerCfg.Invalidator = historyCache
		}

		refreshWorker, err = worker.NewStatsRefreshWorker(workerCfg)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create refresh worker")
		}
		if err := refreshWorker.Start(ctx); err != nil {
			logger.WithError(err).Fatal("Failed to start refresh worker")
		}
		health.Worker = refreshWorker
	} else {
		logger.Info("Refresh job disabled (REFRESH_ENABLED=false)")
	}

	serverConfig := &api.ServerConfig{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	}
	server := api.NewServer(serverConfig, queryService, importService, health)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serverErr:
		logger.WithError(err).Error("Server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	if refreshWorker != nil {
		if err := refreshWorker.Stop(shutdownCtx); err != nil {
			logger.WithError(err).Error("Refresh worker did not stop cleanly")
		}
	}

	logger.Info("Server exited")
}
