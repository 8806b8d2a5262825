package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	metricsHTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "app_directory_http_requests_total",
		Help: "HTTP requests by route template, method and status",
	}, []string{"route", "method", "status"})

	metricsHTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "app_directory_http_request_duration_seconds",
		Help:    "HTTP request latency by route template",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

// routeLabel returns the matched route template, keeping label cardinality
// independent of path parameters.
func routeLabel(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return "unmatched"
	}
	tpl, err := route.GetPathTemplate()
	if err != nil {
		return "unmatched"
	}
	return tpl
}

// metricsHandler serves the default registry. Compression is left to
// CompressionMiddleware.
func metricsHandler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		DisableCompression: true,
	})
}
