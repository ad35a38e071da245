package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates the API server. repo, cache, bus and m may be nil;
// endpoints that need a missing port answer 503.
func NewServer(cfg domain.ServerConfig, orch *decision.Orchestrator, repo domain.Repository, cache domain.Cache, bus domain.EventBus, m *metrics.Metrics, version string) *Server {
	handler := NewHandler(orch, repo, cache, bus, version)
	router := chi.NewRouter()

	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware(m))
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))
	router.Use(BodyLimitMiddleware(cfg.MaxBodyBytes))

	// No tenant required
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	router.Group(func(r chi.Router) {
		r.Use(TenantMiddleware)

		r.Route("/fraud", func(r chi.Router) {
			r.Post("/check", handler.FraudCheck)
			r.Get("/checks/{id}", handler.GetFraudCheck)
			r.Get("/alerts", handler.ListFraudAlerts)
			r.Get("/alerts/{id}", handler.GetFraudAlert)
		})

		r.Route("/behavior", func(r chi.Router) {
			r.Post("/events", handler.RecordEvents)
			r.Post("/analyze", handler.AnalyzeSession)
		})

		r.Post("/loans/emi", handler.QuoteLoan)

		r.Route("/collections", func(r chi.Router) {
			r.Post("/strategy", handler.PlanCollection)
			r.Get("/{loanId}/plan", handler.GetCollectionPlan)
			r.Post("/{loanId}/outcomes", handler.RecordOutcome)
			r.Get("/{loanId}/outcomes", handler.ListOutcomes)
		})
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// MountMetrics exposes h at path outside the tenant group.
func (s *Server) MountMetrics(path string, h http.Handler) {
	if path == "" {
		path = "/metrics"
	}
	s.router.Handle(path, h)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
