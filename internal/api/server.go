// Package api exposes the operator surface: health, pipeline status, strike
// lookups, and the approval queue with its resolve endpoint.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/crewsight/foreman/internal/approval"
	"github.com/crewsight/foreman/internal/processor"
	"github.com/crewsight/foreman/internal/store"
	"github.com/crewsight/foreman/internal/strikes"
)

// Pipeline is the slice of the processor the API reads from and resolves
// through.
type Pipeline interface {
	PendingApprovals() []approval.Pending
	ActiveStrikes(ctx context.Context, worker string) map[strikes.Pillar]int
	ResolveApproval(ctx context.Context, contact string, decision approval.Decision) (approval.FinalAction, bool)
	Snapshot() processor.Stats
}

// AuditReader serves resolved-approval history. Optional; without it the
// recent-approvals route 404s.
type AuditReader interface {
	RecentApprovals(ctx context.Context, limit int) ([]store.AuditEntry, error)
}

type Server struct {
	router   *chi.Mux
	port     int
	pipeline Pipeline
	audit    AuditReader
	token    string
	logger   *slog.Logger
}

// NewServer builds the router. An empty token disables auth; anything else
// is required as a bearer token on /api/v1 routes.
func NewServer(port int, pipeline Pipeline, audit AuditReader, token string, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:   router,
		port:     port,
		pipeline: pipeline,
		audit:    audit,
		token:    token,
		logger:   logger,
	}

	router.Get("/health", s.health)
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.auth)
		r.Get("/foreman/status", s.status)
		r.Get("/strikes/{worker}", s.workerStrikes)
		r.Get("/approvals", s.approvals)
		r.Post("/approvals/{contact}/resolve", s.resolveApproval)
		if s.audit != nil {
			r.Get("/approvals/recent", s.recentApprovals)
		}
	})

	return s
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("api server starting", "addr", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errc:
		return err
	}
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"agent": "foreman",
		"stats": s.pipeline.Snapshot(),
	})
}

func (s *Server) workerStrikes(w http.ResponseWriter, r *http.Request) {
	worker := chi.URLParam(r, "worker")
	counts := s.pipeline.ActiveStrikes(r.Context(), worker)

	writeJSON(w, http.StatusOK, map[string]any{
		"worker":  worker,
		"strikes": counts,
	})
}

func (s *Server) approvals(w http.ResponseWriter, r *http.Request) {
	pending := s.pipeline.PendingApprovals()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(pending),
		"pending": pending,
	})
}

func (s *Server) recentApprovals(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}

	entries, err := s.audit.RecentApprovals(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to load approval audit", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "audit lookup failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(entries),
		"entries": entries,
	})
}

// resolveRequest is the body of POST /approvals/{contact}/resolve.
type resolveRequest struct {
	Decision   string `json:"decision"` // approve | reject | edit
	EditedText string `json:"edited_text,omitempty"`
	ResolvedBy string `json:"resolved_by"`
}

func (s *Server) resolveApproval(w http.ResponseWriter, r *http.Request) {
	contact := chi.URLParam(r, "contact")

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	var kind approval.DecisionKind
	switch req.Decision {
	case "approve":
		kind = approval.DecisionApprove
	case "reject":
		kind = approval.DecisionReject
	case "edit":
		kind = approval.DecisionEdit
		if req.EditedText == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "edit requires edited_text"})
			return
		}
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "decision must be approve, reject, or edit"})
		return
	}

	action, ok := s.pipeline.ResolveApproval(r.Context(), contact, approval.Decision{
		Kind:       kind,
		EditedText: req.EditedText,
		ResolvedBy: req.ResolvedBy,
	})
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no pending approval for contact"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"delivered": action.Deliver(),
		"action":    action,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
