// Package server provides the HTTP surface of the research engine: the
// cache-only read endpoint plus the admin and metrics routes.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mockbroker/research-engine/internal/cache"
	"github.com/mockbroker/research-engine/internal/database"
	"github.com/mockbroker/research-engine/internal/priority"
	"github.com/mockbroker/research-engine/internal/ratelimit"
	"github.com/mockbroker/research-engine/internal/scheduler"
	"github.com/mockbroker/research-engine/internal/sweep"
	"github.com/mockbroker/research-engine/internal/universe"
)

// Config holds server dependencies.
type Config struct {
	Cache     *cache.Client
	Sweeper   *sweep.Sweeper
	Scheduler *scheduler.Scheduler
	Tiers     *priority.Manager
	Catalogue *universe.Catalogue
	Limiter   *ratelimit.Limiter
	History   *database.JobHistory
	DB        *database.DB
	ResultTTL time.Duration
	Port      int
	DevMode   bool
	Log       zerolog.Logger
}

// Server is the HTTP server.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	cache     *cache.Client
	sweeper   *sweep.Sweeper
	scheduler *scheduler.Scheduler
	tiers     *priority.Manager
	catalogue *universe.Catalogue
	limiter   *ratelimit.Limiter
	history   *database.JobHistory
	db        *database.DB
	resultTTL time.Duration
	startedAt time.Time
	now       func() time.Time

	// inFlight tracks symbols with a background sweep already running so
	// concurrent reads don't trigger duplicates.
	inFlightMu sync.Mutex
	inFlight   map[string]struct{}

	log zerolog.Logger
}

// New creates the HTTP server with all routes registered.
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		cache:     cfg.Cache,
		sweeper:   cfg.Sweeper,
		scheduler: cfg.Scheduler,
		tiers:     cfg.Tiers,
		catalogue: cfg.Catalogue,
		limiter:   cfg.Limiter,
		history:   cfg.History,
		db:        cfg.DB,
		resultTTL: cfg.ResultTTL,
		startedAt: time.Now(),
		now:       time.Now,
		inFlight:  make(map[string]struct{}),
		log:       cfg.Log.With().Str("component", "server").Logger(),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleLiveness)
	s.router.Get("/research", s.handleResearch)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/admin", func(r chi.Router) {
		r.Post("/sweep", s.handleAdminSweep)
		r.Get("/scheduler", s.handleAdminScheduler)
		r.Get("/health", s.handleAdminHealth)
	})
}

// Start runs the server. Blocks until shutdown or listen failure.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP server starting")
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("HTTP server shutting down")
	return s.server.Shutdown(ctx)
}

// Router exposes the mux for tests.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

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
