// Package server exposes the forecast service over HTTP and WebSocket.
//
// Responsibilities:
//   - Route analytics, ingest and report endpoints (gorilla/mux)
//   - Apply the middleware chain: request ID, recover, logging, rate limit, tracing, CORS
//   - Persist every generated report and invalidate cached records on ingest
//   - Stream reports to WebSocket subscribers
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-forecast/internal/analytics"
	"github.com/kubilitics/kubilitics-forecast/internal/analytics/forecasting"
	"github.com/kubilitics/kubilitics-forecast/internal/db"
	"github.com/kubilitics/kubilitics-forecast/internal/middleware"
)

// Version is reported by /health.
var Version = "dev"

// maxBodyBytes bounds request bodies, ingest batches included.
const maxBodyBytes = 8 << 20

// Runner produces analytics reports.
type Runner interface {
	Run(ctx context.Context, req analytics.Request) (*analytics.Report, error)
}

// Invalidator drops cached records of a tenant after new ones are written.
type Invalidator interface {
	Invalidate(ctx context.Context, tenantID string) error
}

// Config holds HTTP settings.
type Config struct {
	Port               int
	AllowedOrigins     []string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	RateLimitPerMinute int
	RateLimitBurst     int
}

// Deps are the collaborators of the server. Store and Invalidator may be nil.
type Deps struct {
	Runner      Runner
	Registry    *forecasting.Registry
	Store       db.Store
	Invalidator Invalidator
	Hub         *Hub
	Logger      *zap.Logger
}

// Server is the HTTP front end.
type Server struct {
	cfg         Config
	runner      Runner
	registry    *forecasting.Registry
	store       db.Store
	invalidator Invalidator
	hub         *Hub
	logger      *zap.Logger
	router      *mux.Router
	handler     http.Handler
	httpServer  *http.Server

	baseCtx    context.Context
	baseCancel context.CancelFunc
}

// New builds the router and middleware chain.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Runner == nil {
		return nil, fmt.Errorf("server: runner is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Registry == nil {
		deps.Registry = forecasting.DefaultRegistry()
	}
	if deps.Hub == nil {
		deps.Hub = NewHub(deps.Logger)
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:         cfg,
		runner:      deps.Runner,
		registry:    deps.Registry,
		store:       deps.Store,
		invalidator: deps.Invalidator,
		hub:         deps.Hub,
		logger:      deps.Logger,
		router:      mux.NewRouter(),
		baseCtx:     ctx,
		baseCancel:  cancel,
	}
	s.routes()

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader, middleware.TraceIDHeader},
		AllowCredentials: false,
	})
	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst)

	var h http.Handler = s.router
	h = limiter.Middleware(h)
	h = middleware.SecureHeaders(h)
	h = middleware.MaxBodySize(maxBodyBytes)(h)
	h = middleware.Tracing(h)
	h = c.Handler(h)
	s.handler = h
	return s, nil
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID, middleware.RouteSpan, middleware.Recover(s.logger), middleware.StructuredLog(s.logger))

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/ws/analytics", s.serveWS).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/analytics/predictive", s.handlePredictivePost).Methods(http.MethodPost)
	api.HandleFunc("/analytics/predictive", s.handlePredictiveGet).Methods(http.MethodGet)
	api.HandleFunc("/analytics/domains", s.handleDomains).Methods(http.MethodGet)
	api.HandleFunc("/tenants/{tenant}/records", s.handleIngest).Methods(http.MethodPost)
	api.HandleFunc("/tenants/{tenant}/reports", s.handleListReports).Methods(http.MethodGet)
	api.HandleFunc("/reports/{id}", s.handleGetReport).Methods(http.MethodGet)
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub { return s.hub }

// ListenAndServe serves until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}
	s.logger.Info("http server listening", zap.Int("port", s.cfg.Port))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown closes WebSocket clients and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.baseCancel()
	s.hub.Close()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// runReport runs req and stores the result. A failed save is logged; the
// caller still gets the report.
func (s *Server) runReport(ctx context.Context, req analytics.Request) (*analytics.Report, error) {
	report, err := s.runner.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	if s.store != nil {
		rec, err := db.NewReportRecord(report)
		if err == nil {
			err = s.store.SaveReport(ctx, rec)
		}
		if err != nil {
			s.logger.Warn("report not stored", zap.String("report_id", report.ID), zap.Error(err))
		}
	}
	return report, nil
}
