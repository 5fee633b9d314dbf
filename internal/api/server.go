// Package api provides the HTTP API server.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/graaaaa/playpulse/internal/app"
)

// Server represents the HTTP API server.
type Server struct {
	httpServer *http.Server
	router     chi.Router

	// Use case dependencies
	health    app.HealthUsecase
	dashboard app.DashboardUsecase
	events    app.EventsUsecase

	corsOrigins []string
	limiter     *RateLimiter
	metrics     http.Handler

	// Admin guard on mutating event routes; disabled when adminUser is empty.
	adminUser    string
	adminHash    []byte
	authFailures *AuthFailureLimiter
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithDashboardUsecase sets the dashboard use case.
func WithDashboardUsecase(d app.DashboardUsecase) ServerOption {
	return func(s *Server) { s.dashboard = d }
}

// WithEventsUsecase sets the events use case.
func WithEventsUsecase(events app.EventsUsecase) ServerOption {
	return func(s *Server) { s.events = events }
}

// WithAdminAuth guards POST/PUT/DELETE event routes with HTTP Basic Auth.
// passwordHash is a bcrypt hash.
func WithAdminAuth(username, passwordHash string) ServerOption {
	return func(s *Server) {
		if username != "" && passwordHash != "" {
			s.adminUser = username
			s.adminHash = []byte(passwordHash)
		}
	}
}

// WithCORSOrigins sets the allowed CORS origins.
func WithCORSOrigins(origins []string) ServerOption {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithRateLimiter applies a per-IP rate limiter to every route.
func WithRateLimiter(rl *RateLimiter) ServerOption {
	return func(s *Server) { s.limiter = rl }
}

// WithMetricsHandler overrides the /metrics handler.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) { s.metrics = h }
}

// WithTimeouts sets the server read and write timeouts.
func WithTimeouts(read, write time.Duration) ServerOption {
	return func(s *Server) {
		if read > 0 {
			s.httpServer.ReadTimeout = read
			s.httpServer.ReadHeaderTimeout = read
		}
		if write > 0 {
			s.httpServer.WriteTimeout = write
		}
	}
}

// NewServer creates a new API server with the given dependencies.
func NewServer(addr string, health app.HealthUsecase, opts ...ServerOption) *Server {
	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		health:       health,
		metrics:      promhttp.Handler(),
		authFailures: NewAuthFailureLimiter(DefaultAuthFailureLimiterConfig()),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	s.httpServer.Handler = s.router
	return s
}

// routes builds the chi router.
func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(requestIDMiddleware)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         86400,
	}))
	r.Use(securityHeadersMiddleware)
	if s.limiter != nil {
		r.Use(s.limiter.Middleware)
	}
	r.Use(metricsMiddleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	})

	r.Get("/api/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics)

	if s.dashboard != nil {
		r.Get("/api/current", s.handleCurrent)
		r.Get("/api/member-history", s.handleMemberHistory)
		r.Get("/api/top-games", s.handleTopGames)
		r.Get("/api/recent-activity", s.handleRecentActivity)
	}

	if s.events != nil {
		r.Route("/api/events", func(r chi.Router) {
			r.Get("/", s.handleListEvents)
			r.With(s.adminGuard).Post("/", s.handleCreateEvent)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetEvent)
				r.Get("/stats", s.handleEventStats)
				r.With(s.adminGuard).Put("/", s.handleUpdateEvent)
				r.With(s.adminGuard).Delete("/", s.handleDeleteEvent)
				r.With(s.adminGuard).Post("/activate", s.handleActivateEvent)
			})
		})
	}

	return r
}

// handleHealth handles GET /api/health. A degraded store answers 503 so
// load balancers take the instance out of rotation.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	result, err := s.health.Handle(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if result.Status != app.StatusOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, result)
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}
