package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/eshaffer321/invoice-matcher/internal/api/handlers"
	"github.com/eshaffer321/invoice-matcher/internal/api/middleware"
	"github.com/eshaffer321/invoice-matcher/internal/application/service"
	"github.com/eshaffer321/invoice-matcher/internal/infrastructure/metrics"
	"github.com/eshaffer321/invoice-matcher/internal/infrastructure/storage"
)

// Config holds API server configuration.
type Config struct {
	Port           int
	AllowedOrigins []string
	Version        string
}

// DefaultConfig returns sensible defaults for the API server.
func DefaultConfig() Config {
	return Config{
		Port:           8085,
		AllowedOrigins: middleware.DefaultCORSConfig().AllowedOrigins,
	}
}

// Server is the HTTP API server.
type Server struct {
	config           Config
	router           chi.Router
	httpServer       *http.Server
	logger           *slog.Logger
	repo             storage.Repository
	reconcileService *service.ReconcileService
	metrics          *metrics.Metrics
}

// NewServer creates a new API server.
// Reconciliation endpoints are only mounted when reconcileService is set, and
// /metrics only when m is set.
func NewServer(cfg Config, repo storage.Repository, reconcileService *service.ReconcileService, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = DefaultConfig().AllowedOrigins
	}

	s := &Server{
		config:           cfg,
		router:           chi.NewRouter(),
		logger:           logger,
		repo:             repo,
		reconcileService: reconcileService,
		metrics:          m,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures global middleware.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.Recoverer)

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = s.config.AllowedOrigins
	s.router.Use(middleware.CORS(corsConfig))

	s.router.Use(middleware.Logging(s.logger))
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check and metrics (no /api prefix - for load balancers and scrapers)
	s.router.Get("/health", handlers.NewHealthHandler(s.config.Version).ServeHTTP)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}

	s.router.Route("/api", func(r chi.Router) {
		// Stored runs (audit trail)
		runsHandler := handlers.NewRunsHandler(s.repo, s.logger)
		r.Get("/runs", runsHandler.List)
		r.Get("/runs/{id}", runsHandler.Get)
		r.Get("/runs/{id}/outcomes", runsHandler.Outcomes)
		r.Get("/runs/{id}/issues", runsHandler.Issues)

		statsHandler := handlers.NewStatsHandler(s.repo, s.logger)
		r.Get("/stats", statsHandler.Get)

		// Live reconciliation jobs
		if s.reconcileService != nil {
			reconcileHandler := handlers.NewReconcileHandler(s.reconcileService, s.logger)
			r.Post("/reconciliations", reconcileHandler.Start)
			r.Get("/reconciliations", reconcileHandler.List)
			r.Get("/reconciliations/active", reconcileHandler.ListActive)
			r.Get("/reconciliations/{jobId}", reconcileHandler.Get)
			r.Delete("/reconciliations/{jobId}", reconcileHandler.Cancel)
		}
	})
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")

	if s.httpServer == nil {
		return nil
	}

	return s.httpServer.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}
