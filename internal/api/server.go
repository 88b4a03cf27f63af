package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Options configures the HTTP server.
type Options struct {
	Server    domain.ServerConfig
	RateLimit domain.RateLimitConfig
	Bulk      domain.BulkConfig
	Version   string
}

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(opts Options, deps Dependencies) *Server {
	handler := NewHandler(deps, opts.Version, opts.Bulk.MaxBytes)
	router := chi.NewRouter()

	router.Use(middleware.RealIP)
	router.Use(RecoverMiddleware)
	router.Use(SecureMiddleware)
	router.Use(CORSMiddleware(opts.Server.CORSOrigins))
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(deps.Metrics.Middleware)
	router.Use(middleware.Compress(5))

	// Probes and metrics are not rate limited.
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Handle("/metrics", deps.Metrics.Handler())

	router.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(opts.RateLimit.RequestsPerMinute))

		r.Route("/predict", func(r chi.Router) {
			r.Post("/churn", handler.Predict(domain.DomainChurn))
			r.Post("/content-success", handler.Predict(domain.DomainContentSuccess))
			r.Post("/viewership", handler.Predict(domain.DomainViewership))
			r.Post("/revenue", handler.Predict(domain.DomainRevenue))
		})

		r.Route("/predictions", func(r chi.Router) {
			r.Get("/", handler.ListPredictions)
			r.Post("/bulk", handler.BulkPredict)
			r.Get("/bulk/template", handler.BulkTemplate)
			r.Get("/{id}", handler.GetPrediction)
		})

		r.Route("/rule-tables", func(r chi.Router) {
			r.Get("/", handler.ListRuleTables)
			r.Post("/reload", handler.ReloadRuleTables)
			r.Get("/{domain}", handler.GetRuleTable)
			r.Put("/{domain}", handler.PutRuleTable)
		})

		r.Get("/dashboard", handler.Dashboard)
		r.Get("/dashboard/{dataset}", handler.DashboardDataset)

		r.Get("/datasets", handler.ListDatasets)
		r.Post("/datasets/preprocess", handler.PreprocessDataset)

		r.Route("/training", func(r chi.Router) {
			r.Get("/status", handler.TrainingStatus)
			r.Get("/jobs", handler.ListTrainingJobs)
			r.Post("/jobs", handler.StartTraining)
			r.Get("/jobs/{id}", handler.GetTrainingJob)
			r.Get("/jobs/{id}/metrics", handler.GetTrainingMetrics)
		})
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  opts.Server,
	}
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

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
