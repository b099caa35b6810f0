// Package server provides the HTTP server and routing for the risk engine.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/poolrisk/internal/engine"
	"github.com/aristath/poolrisk/internal/metrics"
	ratinghandlers "github.com/aristath/poolrisk/internal/modules/rating/handlers"
	scenariohandlers "github.com/aristath/poolrisk/internal/modules/scenarios/handlers"
	"github.com/aristath/poolrisk/internal/modules/simulation"
	simulationhandlers "github.com/aristath/poolrisk/internal/modules/simulation/handlers"
	"github.com/aristath/poolrisk/internal/scheduler"
)

// Version is reported by /health
var Version = "dev"

// Config holds server configuration
type Config struct {
	Log           zerolog.Logger
	Engine        *engine.Engine
	Registry      *simulation.Registry
	Scheduler     *scheduler.Scheduler // optional
	Port          int
	DevMode       bool
	DefaultTrials int
	// AllowedOrigins are host patterns such as "localhost:*"
	AllowedOrigins []string
}

// Server represents the HTTP server
type Server struct {
	router        *chi.Mux
	server        *http.Server
	log           zerolog.Logger
	engine        *engine.Engine
	registry      *simulation.Registry
	scheduler     *scheduler.Scheduler
	port          int
	defaultTrials int
	origins       []string
	startedAt     time.Time
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = defaultOrigins
	}
	s := &Server{
		router:        chi.NewRouter(),
		log:           cfg.Log.With().Str("component", "server").Logger(),
		engine:        cfg.Engine,
		registry:      cfg.Registry,
		scheduler:     cfg.Scheduler,
		port:          cfg.Port,
		defaultTrials: cfg.DefaultTrials,
		origins:       cfg.AllowedOrigins,
		startedAt:     time.Now(),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: sync runs and progress streams bound themselves
		IdleTimeout: 60 * time.Second,
	}

	return s
}

// Router exposes the handler tree, mainly for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// Metrics
	s.router.Use(metrics.Middleware)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins(s.origins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "Location"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// defaultOrigins applies when no origins are configured. An empty CORS list
// would otherwise allow every origin.
var defaultOrigins = []string{"localhost:*", "127.0.0.1:*"}

// corsOrigins turns host patterns into the scheme-qualified origins the CORS
// middleware matches
func corsOrigins(patterns []string) []string {
	origins := make([]string, 0, 2*len(patterns))
	for _, p := range patterns {
		if p == "*" {
			return []string{"*"}
		}
		origins = append(origins, "http://"+p, "https://"+p)
	}
	return origins
}

// setupRoutes configures all routes. Request timeouts are applied per
// route group so the WebSocket progress stream is not cut off.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", metrics.Handler())

	s.router.Route("/api", func(r chi.Router) {
		simulationhandlers.NewHandler(s.engine, s.registry, s.defaultTrials, s.origins, s.log).RegisterRoutes(r)
		ratinghandlers.NewHandler(s.engine, s.log).RegisterRoutes(r)
		scenariohandlers.NewHandler(s.engine, s.defaultTrials, s.log).RegisterRoutes(r)

		r.Route("/system", func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Get("/status", s.handleSystemStatus)
			r.Get("/jobs", s.handleListJobs)
			r.Post("/jobs/{name}", s.handleTriggerJob)
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server. Hijacked WebSocket
// connections are not tracked by net/http and end with their runs.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
