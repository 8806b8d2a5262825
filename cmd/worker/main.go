// Package main provides a standalone entry point for the guild count refresh job.
// It runs the same job as cmd/server without the HTTP API, either on its
// interval or, with -once, as a single pass suitable for cron.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/app-directory-tracker/internal/adapter"
	"github.com/app-directory-tracker/internal/config"
	"github.com/app-directory-tracker/internal/logging"
	"github.com/app-directory-tracker/internal/storage"
	"github.com/app-directory-tracker/internal/worker"
)

func main() {
	once := flag.Bool("once", false, "Run a single refresh pass and exit")
	flag.Parse()

	os.Exit(run(*once))
}

// run returns the process exit code so that deferred cleanup runs before exit.
func run(once bool) int {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		return 1
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger().WithComponent("refresh-worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	postgres, err := storage.ConnectPostgres(ctx, &cfg.Database.Postgres, nil)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to Postgres")
		return 1
	}
	defer postgres.Close()

	workerCfg := &worker.StatsRefreshWorkerConfig{
		Applications: storage.NewApplicationRepository(postgres),
		Stats:        storage.NewStatRepository(postgres),
		ScanLogs:     storage.NewScanLogRepository(postgres),
		Interval:     cfg.Refresh.Interval,
		ScanInterval: cfg.Refresh.ScanInterval,
		LockTTL:      cfg.Refresh.LockTTL,
	}

	redisCache, err := storage.NewRedisCache(ctx, &cfg.Database.Redis)
	switch {
	case err != nil && cfg.Refresh.LockEnabled:
		logger.WithError(err).Error("Failed to connect to Redis (required by REFRESH_LOCK_ENABLED)")
		return 1
	case err != nil:
		logger.WithError(err).Warn("Redis unavailable, cached histories will expire on their own")
	default:
		defer redisCache.Close()
		workerCfg.Invalidator = storage.NewHistoryCache(redisCache, cfg.Cache.HistoryTTL)
		if cfg.Refresh.LockEnabled {
			workerCfg.Lock = storage.NewRedisRunLock(redisCache)
		}
	}

	directory, err := adapter.NewDirectoryClient(&adapter.DirectoryClientConfig{
		BaseURL:           cfg.Directory.BaseURL,
		Locale:            cfg.Directory.Locale,
		Timeout:           cfg.Directory.Timeout,
		RequestsPerSecond: cfg.Directory.RequestsPerSecond,
	})
	if err != nil {
		logger.WithError(err).Error("Failed to create directory client")
		return 1
	}
	workerCfg.Directory = directory

	refreshWorker, err := worker.NewStatsRefreshWorker(workerCfg)
	if err != nil {
		logger.WithError(err).Error("Failed to create refresh worker")
		return 1
	}

	if once {
		summary, err := refreshWorker.RunOnce(ctx)
		switch {
		case errors.Is(err, worker.ErrRunLocked):
			logger.Info("Another run holds the lease, nothing to do")
		case err != nil:
			logger.WithError(err).Error("Refresh run failed")
			return 1
		default:
			logger.WithFields(map[string]interface{}{
				"runId":   summary.RunID,
				"total":   summary.Total,
				"success": summary.Success,
				"failed":  summary.Failed,
				"skipped": summary.Skipped,
			}).Infof("Refresh pass finished in %s", summary.Duration)
		}
		return 0
	}

	if err := refreshWorker.Start(ctx); err != nil {
		logger.WithError(err).Error("Failed to start refresh worker")
		return 1
	}

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := refreshWorker.Stop(stopCtx); err != nil {
		logger.WithError(err).Error("Refresh worker did not stop cleanly")
		return 1
	}
	return 0
}
