// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/app-directory-tracker/internal/circuitbreaker"
	"github.com/app-directory-tracker/internal/logging"
	"github.com/app-directory-tracker/internal/models"
	"github.com/app-directory-tracker/internal/service"
	"github.com/app-directory-tracker/internal/types"
	"github.com/app-directory-tracker/internal/worker"
	"github.com/gorilla/mux"
)

// Service interfaces for dependency injection and testing

// QueryServiceInterface defines the read operations behind the API
type QueryServiceInterface interface {
	ListApplications(ctx context.Context) ([]*models.ApplicationSummary, error)
	ListApplicationsPage(ctx context.Context, cursor string, limit int) (*service.ApplicationPage, error)
	SearchApplications(ctx context.Context, query string, filter types.SearchFilter) ([]*models.ApplicationSummary, error)
	GetApplication(ctx context.Context, id string) (*service.ApplicationDetail, error)
	GetFirstApplication(ctx context.Context) (*service.ApplicationDetail, error)
	GetGuildCountHistory(ctx context.Context, botID string, limit int) ([]models.HistoryPoint, error)
}

// ImportServiceInterface defines the import operation
type ImportServiceInterface interface {
	ImportBot(ctx context.Context, botID string) (*service.ImportResult, error)
}

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// BreakerReporter exposes the directory client's circuit breaker
type BreakerReporter interface {
	BreakerStats() circuitbreaker.Stats
}

// WorkerReporter exposes the refresh worker's state
type WorkerReporter interface {
	GetStatus() *worker.RefreshWorkerStatus
}

// HealthChecks lists the optional components reported by /health
type HealthChecks struct {
	Database  Pinger
	Cache     Pinger
	Directory BreakerReporter
	Worker    WorkerReporter
}

// Server represents the HTTP API server.
type Server struct {
	router        *mux.Router
	httpServer    *http.Server
	queryService  QueryServiceInterface
	importService ImportServiceInterface
	health        HealthChecks
	config        *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host              string
	Port              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	RequestsPerSecond int // per client IP
	Burst             int
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	queryService QueryServiceInterface,
	importService ImportServiceInterface,
	health HealthChecks,
) *Server {
	s := &Server{
		router:        mux.NewRouter(),
		queryService:  queryService,
		importService: importService,
		health:        health,
		config:        config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RequestsPerSecond, s.config.Burst)

	// Order matters: the access log must see the status written by recovery.
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", metricsHandler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/import-bot", s.handleImportBot).Methods(http.MethodPost, http.MethodOptions)

	// Fixed paths are registered before /{id} so they are not read as ids.
	api.HandleFunc("/applications", s.handleListApplications).Methods(http.MethodGet)
	api.HandleFunc("/applications/page", s.handleApplicationsPage).Methods(http.MethodGet)
	api.HandleFunc("/applications/search", s.handleSearchApplications).Methods(http.MethodGet)
	api.HandleFunc("/applications/first", s.handleFirstApplication).Methods(http.MethodGet)
	api.HandleFunc("/applications/{id}", s.handleGetApplication).Methods(http.MethodGet)

	api.HandleFunc("/guild-count/{botId}/history", s.handleGuildCountHistory).Methods(http.MethodGet)
}

// Handler returns the root handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	logging.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
