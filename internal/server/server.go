// Package server exposes the administrative trigger surface: manual
// syncs, source listing, operator reactivation, health and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"regsync/internal/domain"
	"regsync/internal/registry"
)

type Orchestrator interface {
	SyncOne(ctx context.Context, sourceID string) (*domain.SyncRun, error)
	SyncAll(ctx context.Context, activeOnly bool) (*domain.SyncRun, error)
}

type SourceDirectory interface {
	ListAll() []domain.DataSource
	Activate(id string) error
}

type Server struct {
	orchestrator Orchestrator
	sources      SourceDirectory
	metrics      http.Handler
	logger       *slog.Logger
}

func New(orchestrator Orchestrator, sources SourceDirectory, metricsHandler http.Handler, logger *slog.Logger) *Server {
	return &Server{
		orchestrator: orchestrator,
		sources:      sources,
		metrics:      metricsHandler,
		logger:       logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics)

	r.Route("/api", func(r chi.Router) {
		r.Post("/sync", s.handleSyncAll)
		r.Post("/sync/{sourceID}", s.handleSyncOne)
		r.Get("/sources", s.handleListSources)
		r.Post("/sources/{sourceID}/activate", s.handleActivate)
	})

	return r
}

// runSummary is the response shape for sync triggers: counts only,
// record payloads never leave the core.
type runSummary struct {
	ID             string                 `json:"id"`
	StartedAt      time.Time              `json:"started_at"`
	CompletedAt    time.Time              `json:"completed_at"`
	TotalProcessed int                    `json:"total_processed"`
	TotalErrors    int                    `json:"total_errors"`
	Outcomes       []domain.SourceOutcome `json:"outcomes"`
}

func summarize(run *domain.SyncRun) runSummary {
	return runSummary{
		ID:             run.ID,
		StartedAt:      run.StartedAt,
		CompletedAt:    run.CompletedAt,
		TotalProcessed: run.TotalProcessed,
		TotalErrors:    run.TotalErrors,
		Outcomes:       run.Outcomes,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSyncAll(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") != "true"

	run, err := s.orchestrator.SyncAll(r.Context(), activeOnly)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summarize(run))
}

func (s *Server) handleSyncOne(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "sourceID")

	run, err := s.orchestrator.SyncOne(r.Context(), sourceID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summarize(run))
}

type sourceView struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Kind              string    `json:"kind"`
	Priority          string    `json:"priority"`
	Region            string    `json:"region"`
	Status            string    `json:"status"`
	LastSyncedAt      time.Time `json:"last_synced_at"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources := s.sources.ListAll()

	views := make([]sourceView, 0, len(sources))
	for _, src := range sources {
		views = append(views, sourceView{
			ID:                src.ID,
			Name:              src.Name,
			Kind:              string(src.Kind),
			Priority:          string(src.Priority),
			Region:            src.Region,
			Status:            string(src.Status),
			LastSyncedAt:      src.LastSyncedAt,
			ConsecutiveErrors: src.ConsecutiveErrors,
		})
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "sourceID")

	if err := s.sources.Activate(sourceID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "active", "source_id": sourceID})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, registry.ErrSourceNotFound) {
		status = http.StatusNotFound
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
