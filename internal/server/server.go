// Package server exposes the operator API: system state, halt and resume
// controls, risk and health snapshots, the audit trail, an event stream,
// and Prometheus metrics. It is an observation and override surface; all
// trading decisions stay inside the control plane.
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

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/backup"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/clock"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/events"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/src"
)

// Controller is the halt authority surface the API exposes.
type Controller interface {
	Status() src.Status
	RequestHalt(level domain.HaltLevel, reason, operator string)
	RequestResume(req domain.ResumeRequest) error
}

// BudgetReader serves the live risk budget.
type BudgetReader interface {
	Snapshot() domain.RiskBudgetSnapshot
	OpenPositions() []domain.OpenPositionRisk
}

// HealthReader serves per-source health scores.
type HealthReader interface {
	Scores() map[string]domain.HealthScore
	RiskMultiplier() float64
}

// HaltLog reads the persisted audit trail.
type HaltLog interface {
	ListEvents(limit int) ([]domain.HaltEvent, error)
	ListTransitions(limit int) ([]domain.StateTransition, error)
}

// Pipeline reports the orchestrator's view and accepts manual cycle
// triggers.
type Pipeline interface {
	Mode() domain.RuntimeMode
	Running() bool
	LastCycle() *domain.CycleRecord
	Trigger()
}

// BackupManager drives the backup job from the ops API.
type BackupManager interface {
	RunNow(ctx context.Context) error
	ListBackups(ctx context.Context) ([]backup.Info, error)
}

// Config holds server wiring. Backups may be nil when the backup job is
// disabled; Metrics may be nil in tests.
type Config struct {
	Port       int
	Log        zerolog.Logger
	Clock      clock.Clock
	Controller Controller
	Budget     BudgetReader
	Health     HealthReader
	Halts      HaltLog
	Pipeline   Pipeline
	Backups    BackupManager
	Bus        *events.Bus
	Metrics    http.Handler
}

// Server is the ops HTTP server.
type Server struct {
	router  *chi.Mux
	server  *http.Server
	log     zerolog.Logger
	clk     clock.Clock
	started time.Time

	ctrl     Controller
	budget   BudgetReader
	health   HealthReader
	halts    HaltLog
	pipeline Pipeline
	backups  BackupManager
	bus      *events.Bus
	metrics  http.Handler
}

// New creates the ops server with routes and middleware configured.
func New(cfg Config) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		log:      cfg.Log.With().Str("component", "server").Logger(),
		clk:      cfg.Clock,
		started:  cfg.Clock.Now().UTC(),
		ctrl:     cfg.Controller,
		budget:   cfg.Budget,
		health:   cfg.Health,
		halts:    cfg.Halts,
		pipeline: cfg.Pipeline,
		backups:  cfg.Backups,
		bus:      cfg.Bus,
		metrics:  cfg.Metrics,
	}

	s.setupMiddleware()
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

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	// The event stream must outlive the request timeout, so the timeout
	// middleware is applied per-route group below instead of globally.
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	if s.metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.metrics)
	}

	s.router.Route("/api", func(r chi.Router) {
		if s.bus != nil {
			stream := newEventStreamHandler(s.bus, s.log)
			r.Get("/events/stream", stream.ServeHTTP)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Get("/state", s.handleState)
			r.Get("/snapshot", s.handleSnapshot)
			r.Get("/halts", s.handleHalts)
			r.Get("/transitions", s.handleTransitions)

			r.Post("/halt", s.handleHalt)
			r.Post("/resume", s.handleResume)
			r.Post("/cycle/trigger", s.handleTriggerCycle)

			r.Get("/backups", s.handleListBackups)
			r.Post("/backups/run", s.handleRunBackup)
		})
	})
}

// Start begins serving. It blocks until the listener stops.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Router returns the configured handler, for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// loggingMiddleware logs each request with its outcome.
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
