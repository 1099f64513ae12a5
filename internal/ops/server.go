// Package ops exposes the operational HTTP surface: health and runtime
// counters. It serves operators and probes, not article traffic.
package ops

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/storyline/internal/pipeline"
)

// Pinger is the database health probe.
type Pinger interface {
	Ping() error
}

// ParkedCounter reports how many articles are waiting for reprocessing.
type ParkedCounter interface {
	ParkedCount(ctx context.Context) (int64, error)
}

// Reporter yields the pipeline counter snapshot.
type Reporter interface {
	Report() pipeline.Report
}

// Service is the ops HTTP server.
type Service struct {
	version   string
	db        Pinger
	parked    ParkedCounter
	reporter  Reporter
	router    chi.Router
	server    *http.Server
	startTime time.Time
}

// NewService wires the ops routes.
func NewService(version string, db Pinger, parked ParkedCounter, reporter Reporter) *Service {
	s := &Service{
		version:   version,
		db:        db,
		parked:    parked,
		reporter:  reporter,
		router:    chi.NewRouter(),
		startTime: time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Service) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/stats", s.handleStats)
}

// Start serves until Shutdown is called.
func (s *Service) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	log.Info().Str("addr", addr).Msg("Ops server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
	}
	if err := s.db.Ping(); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["database"] = err.Error()
	}
	writeJSON(w, status, body)
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	report := s.reporter.Report()

	parked, err := s.parked.ParkedCount(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Parked count failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "stats unavailable"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"processed":  report.Processed,
		"duplicates": report.Duplicates,
		"rejected":   report.Rejected,
		"created":    report.Created,
		"joined":     report.Joined,
		"parked":     parked,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Encode response failed")
	}
}
