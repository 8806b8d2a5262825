package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsRefreshRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "app_directory_refresh_runs_total",
		Help: "Refresh runs by result (completed, interrupted, locked, failed)",
	}, []string{"result"})

	metricsRefreshBots = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "app_directory_refresh_bots_total",
		Help: "Per-bot refresh outcomes",
	}, []string{"outcome"})

	metricsRefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "app_directory_refresh_run_duration_seconds",
		Help:    "Duration of refresh runs that got past the lease",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	})
)
