// Package worker contains the background jobs of the tracker.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/app-directory-tracker/internal/logging"
	"github.com/app-directory-tracker/internal/models"
	"github.com/google/uuid"
)

// JobName identifies the refresh job, e.g. as the key of its run lease
const JobName = "stats-refresh"

// ErrRunLocked is returned by RunOnce when another process holds the run lease
var ErrRunLocked = errors.New("refresh run already in progress")

// ApplicationLister lists every application the job should consider
type ApplicationLister interface {
	ListRefs(ctx context.Context) ([]models.ApplicationRef, error)
}

// StatWriter appends guild count samples
type StatWriter interface {
	Insert(ctx context.Context, botID string, guildCount int64) (*models.StatEntry, error)
}

// ScanLogStore reads and writes the per-bot scan watermark
type ScanLogStore interface {
	GetLastScannedAt(ctx context.Context, botID string) (*time.Time, error)
	Upsert(ctx context.Context, botID string, scannedAt time.Time) error
}

// GuildCountFetcher asks the directory for a bot's current guild count
type GuildCountFetcher interface {
	FetchGuildCount(ctx context.Context, botID string) (int64, error)
}

// RunLock is a lease that keeps runs in different processes apart
type RunLock interface {
	TryLock(ctx context.Context, job string, ttl time.Duration) (string, bool, error)
	Unlock(ctx context.Context, job string, token string) error
}

// HistoryInvalidator drops cached histories after a new sample
type HistoryInvalidator interface {
	Invalidate(ctx context.Context, botID string) error
}

// RunSummary describes one pass over all applications
type RunSummary struct {
	RunID    string        `json:"runId"`
	Total    int           `json:"total"`
	Success  int           `json:"success"`
	Failed   int           `json:"failed"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

// StatsRefreshWorkerConfig holds configuration for the refresh worker
type StatsRefreshWorkerConfig struct {
	Applications ApplicationLister
	Stats        StatWriter
	ScanLogs     ScanLogStore
	Directory    GuildCountFetcher
	Lock         RunLock            // optional; nil disables the run lease
	Invalidator  HistoryInvalidator // optional
	Interval     time.Duration      // time between runs (default: 1h)
	ScanInterval time.Duration      // minimum time between two polls of one bot (default: 1h)
	LockTTL      time.Duration      // lease TTL (default: Interval)
	Now          func() time.Time   // defaults to time.Now
}

// StatsRefreshWorker periodically records the guild count of every bot
type StatsRefreshWorker struct {
	apps         ApplicationLister
	stats        StatWriter
	scanLogs     ScanLogStore
	directory    GuildCountFetcher
	lock         RunLock
	invalidator  HistoryInvalidator
	interval     time.Duration
	scanInterval time.Duration
	lockTTL      time.Duration
	now          func() time.Time

	mu          sync.RWMutex
	running     bool
	cancel      context.CancelFunc
	stopCh      chan struct{}
	doneCh      chan struct{}
	lastRunAt   time.Time
	lastSummary *RunSummary
	lastError   error
}

// NewStatsRefreshWorker creates a new refresh worker
func NewStatsRefreshWorker(cfg *StatsRefreshWorkerConfig) (*StatsRefreshWorker, error) {
	if cfg.Applications == nil {
		return nil, fmt.Errorf("application lister cannot be nil")
	}
	if cfg.Stats == nil {
		return nil, fmt.Errorf("stat writer cannot be nil")
	}
	if cfg.ScanLogs == nil {
		return nil, fmt.Errorf("scan log store cannot be nil")
	}
	if cfg.Directory == nil {
		return nil, fmt.Errorf("guild count fetcher cannot be nil")
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	scanInterval := cfg.ScanInterval
	if scanInterval <= 0 {
		scanInterval = time.Hour
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = interval
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &StatsRefreshWorker{
		apps:         cfg.Applications,
		stats:        cfg.Stats,
		scanLogs:     cfg.ScanLogs,
		directory:    cfg.Directory,
		lock:         cfg.Lock,
		invalidator:  cfg.Invalidator,
		interval:     interval,
		scanInterval: scanInterval,
		lockTTL:      lockTTL,
		now:          now,
	}, nil
}

// Start runs the job once and then every interval until Stop is called or ctx is cancelled
func (w *StatsRefreshWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("stats refresh worker is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.running = true
	w.cancel = cancel
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	logging.WithFields(map[string]interface{}{
		"interval":     w.interval.String(),
		"scanInterval": w.scanInterval.String(),
		"lockEnabled":  w.lock != nil,
	}).Info("Starting stats refresh worker")

	go w.loop(runCtx, w.stopCh, w.doneCh)
	return nil
}

// Stop cancels an in-flight run and waits for the loop to exit
func (w *StatsRefreshWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("stats refresh worker is not running")
	}
	stopCh, doneCh, cancel := w.stopCh, w.doneCh, w.cancel
	w.mu.Unlock()

	logging.Info("Stopping stats refresh worker")
	close(stopCh)
	cancel()

	select {
	case <-doneCh:
		logging.Info("Stats refresh worker stopped gracefully")
	case <-ctx.Done():
		logging.Warn("Stats refresh worker stop timed out")
		return ctx.Err()
	}

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	return nil
}

// loop runs inline on every tick, so one process never overlaps its own runs.
// Ticks missed while a run is in progress are dropped by the ticker.
func (w *StatsRefreshWorker) loop(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	w.tick(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *StatsRefreshWorker) tick(ctx context.Context) {
	summary, err := w.RunOnce(ctx)

	w.mu.Lock()
	w.lastRunAt = w.now()
	w.lastError = err
	if summary != nil {
		w.lastSummary = summary
	}
	w.mu.Unlock()

	switch {
	case errors.Is(err, ErrRunLocked):
		logging.WithField("job", JobName).Info("Skipping refresh run, lease held elsewhere")
	case err != nil:
		logging.WithField("job", JobName).WithError(err).Error("Refresh run failed")
	}
}

// RunOnce performs one pass over all applications. Per-bot failures are
// counted in the summary; only a failure to take the lease or to list
// applications is returned as an error.
func (w *StatsRefreshWorker) RunOnce(ctx context.Context) (*RunSummary, error) {
	started := time.Now()
	summary := &RunSummary{RunID: uuid.NewString()}
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"job":   JobName,
		"runId": summary.RunID,
	})

	if w.lock != nil {
		token, ok, err := w.lock.TryLock(ctx, JobName, w.lockTTL)
		if err != nil {
			metricsRefreshRuns.WithLabelValues("failed").Inc()
			return nil, fmt.Errorf("failed to acquire run lease: %w", err)
		}
		if !ok {
			metricsRefreshRuns.WithLabelValues("locked").Inc()
			return nil, ErrRunLocked
		}
		defer w.releaseLock(ctx, logger, token)
	}

	refs, err := w.apps.ListRefs(ctx)
	if err != nil {
		metricsRefreshRuns.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	summary.Total = len(refs)

	for _, ref := range refs {
		if ctx.Err() != nil {
			logger.WithError(ctx.Err()).Warn("Refresh run interrupted")
			break
		}
		result := w.refreshBot(ctx, logger, ref)
		metricsRefreshBots.WithLabelValues(result.String()).Inc()
		switch result {
		case outcomeSuccess:
			summary.Success++
		case outcomeFailed:
			summary.Failed++
		case outcomeSkipped:
			summary.Skipped++
		}
	}

	summary.Duration = time.Since(started)
	metricsRefreshDuration.Observe(summary.Duration.Seconds())
	if ctx.Err() != nil {
		metricsRefreshRuns.WithLabelValues("interrupted").Inc()
	} else {
		metricsRefreshRuns.WithLabelValues("completed").Inc()
	}
	logger.WithFields(map[string]interface{}{
		"total":    summary.Total,
		"success":  summary.Success,
		"failed":   summary.Failed,
		"skipped":  summary.Skipped,
		"duration": summary.Duration.String(),
	}).Info("Refresh run complete")

	return summary, ctx.Err()
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeFailed
	outcomeSkipped
)

func (o outcome) String() string {
	switch o {
	case outcomeSuccess:
		return "success"
	case outcomeFailed:
		return "failed"
	case outcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// refreshBot polls one bot. It never returns an error; failures become outcomes.
func (w *StatsRefreshWorker) refreshBot(ctx context.Context, logger *logging.Logger, ref models.ApplicationRef) outcome {
	if !ref.HasBot() {
		return outcomeSkipped
	}
	botID := *ref.BotID
	botLogger := logger.WithFields(map[string]interface{}{
		"applicationId": ref.ID,
		"botId":         botID,
	})

	now := w.now()
	last, err := w.scanLogs.GetLastScannedAt(ctx, botID)
	if err != nil {
		botLogger.WithError(err).Warn("Failed to read scan log")
		return outcomeFailed
	}
	var scanLog *models.ScanLog
	if last != nil {
		scanLog = &models.ScanLog{BotID: botID, LastScannedAt: *last}
	}
	if scanLog.ScannedWithin(now, w.scanInterval) {
		botLogger.Debug("Scanned recently, skipping")
		return outcomeSkipped
	}

	count, err := w.directory.FetchGuildCount(ctx, botID)
	if err != nil {
		botLogger.WithError(err).Warn("No stats available")
		return outcomeFailed
	}
	if count <= 0 {
		botLogger.WithField("guildCount", count).Warn("Ignoring non-positive guild count")
		return outcomeFailed
	}

	// Sample before watermark
	if _, err := w.stats.Insert(ctx, botID, count); err != nil {
		botLogger.WithError(err).Error("Failed to insert stat entry")
		return outcomeFailed
	}
	if err := w.scanLogs.Upsert(ctx, botID, now); err != nil {
		botLogger.WithError(err).Error("Failed to update scan log")
		return outcomeFailed
	}

	if w.invalidator != nil {
		if err := w.invalidator.Invalidate(ctx, botID); err != nil {
			botLogger.WithError(err).Warn("Failed to invalidate history cache")
		}
	}

	botLogger.WithField("guildCount", count).Debug("Recorded guild count")
	return outcomeSuccess
}

func (w *StatsRefreshWorker) releaseLock(ctx context.Context, logger *logging.Logger, token string) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := w.lock.Unlock(releaseCtx, JobName, token); err != nil {
		logger.WithError(err).Warn("Failed to release run lease")
	}
}

// RefreshWorkerStatus represents the current state of the refresh worker
type RefreshWorkerStatus struct {
	Running     bool        `json:"running"`
	Interval    string      `json:"interval"`
	LastRunAt   *time.Time  `json:"lastRunAt,omitempty"`
	LastSummary *RunSummary `json:"lastSummary,omitempty"`
	LastError   string      `json:"lastError,omitempty"`
}

// GetStatus returns the current status of the worker
func (w *StatsRefreshWorker) GetStatus() *RefreshWorkerStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()

	status := &RefreshWorkerStatus{
		Running:     w.running,
		Interval:    w.interval.String(),
		LastSummary: w.lastSummary,
	}
	if !w.lastRunAt.IsZero() {
		lastRunAt := w.lastRunAt
		status.LastRunAt = &lastRunAt
	}
	if w.lastError != nil {
		status.LastError = w.lastError.Error()
	}
	return status
}
