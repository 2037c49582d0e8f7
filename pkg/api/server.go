// Package api exposes the operator HTTP surface: health and state read
// models, decision history, and the manual failover command.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/failoverd/failoverd/pkg/alert"
	"github.com/failoverd/failoverd/pkg/failover"
	"github.com/failoverd/failoverd/pkg/health"
	"github.com/failoverd/failoverd/pkg/observability"
)

// Service is the engine surface the API serves.
type Service interface {
	InstanceIDs() []string
	HealthSnapshots() []health.Snapshot
	InstanceHealth(instanceID string) []health.Snapshot
	InstanceState(ctx context.Context, instanceID string) (failover.InstanceState, error)
	DecisionHistory(ctx context.Context, instanceID string, limit int) ([]failover.Decision, error)
	AlertHistory(limit int) []alert.Alert
	IsLeader() bool
	ManualFailover(ctx context.Context, req failover.ManualRequest) (*failover.Decision, error)
}

// Server wraps the HTTP router around a Service.
type Server struct {
	service Service
	apiKey  string
	node    string
	logger  observability.Logger
	router  chi.Router
}

// NewServer builds the router. An empty apiKey disables authentication;
// the config layer rejects that for enabled APIs.
func NewServer(service Service, apiKey, node string, logger observability.Logger) *Server {
	s := &Server{
		service: service,
		apiKey:  apiKey,
		node:    node,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.handleHealthz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/status", s.handleStatus)
		r.Get("/instances", s.handleInstances)
		r.Get("/alerts", s.handleAlerts)
		r.Route("/instances/{instanceID}", func(r chi.Router) {
			r.Get("/health", s.handleInstanceHealth)
			r.Get("/state", s.handleInstanceState)
			r.Get("/decisions", s.handleDecisions)
			r.Post("/failover", s.handleManualFailover)
		})
	})

	s.router = r
	return s
}

// Handler returns the http handler for mounting.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("X-API-Key") != s.apiKey {
			s.writeError(w, http.StatusUnauthorized, "invalid or missing api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"node":      s.node,
		"leader":    s.service.IsLeader(),
		"instances": s.service.InstanceIDs(),
	})
}

type instanceSummary struct {
	InstanceID string                 `json:"instance_id"`
	State      failover.InstanceState `json:"state"`
	Health     []health.Snapshot      `json:"health"`
}

func (s *Server) handleInstances(w http.ResponseWriter, r *http.Request) {
	summaries := make([]instanceSummary, 0)
	for _, id := range s.service.InstanceIDs() {
		state, err := s.service.InstanceState(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		summaries = append(summaries, instanceSummary{
			InstanceID: id,
			State:      state,
			Health:     s.service.InstanceHealth(id),
		})
	}
	s.writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleInstanceHealth(w http.ResponseWriter, r *http.Request) {
	instanceID := chi.URLParam(r, "instanceID")
	if _, err := s.service.InstanceState(r.Context(), instanceID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.service.InstanceHealth(instanceID))
}

func (s *Server) handleInstanceState(w http.ResponseWriter, r *http.Request) {
	state, err := s.service.InstanceState(r.Context(), chi.URLParam(r, "instanceID"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	decisions, err := s.service.DecisionHistory(r.Context(), chi.URLParam(r, "instanceID"), limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if decisions == nil {
		decisions = []failover.Decision{}
	}
	s.writeJSON(w, http.StatusOK, decisions)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}
	history := s.service.AlertHistory(limit)
	if history == nil {
		history = []alert.Alert{}
	}
	s.writeJSON(w, http.StatusOK, history)
}

type manualFailoverRequest struct {
	TargetDC    string `json:"target_dc"`
	Force       bool   `json:"force"`
	Reason      string `json:"reason"`
	RequestedBy string `json:"requested_by"`
}

func (s *Server) handleManualFailover(w http.ResponseWriter, r *http.Request) {
	var body manualFailoverRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req := failover.ManualRequest{
		InstanceID:  chi.URLParam(r, "instanceID"),
		TargetDC:    body.TargetDC,
		Force:       body.Force,
		Reason:      body.Reason,
		RequestedBy: body.RequestedBy,
	}
	if req.RequestedBy == "" {
		req.RequestedBy = r.Header.Get("X-Requested-By")
	}

	decision, err := s.service.ManualFailover(r.Context(), req)
	if err != nil {
		s.logRequestError(r, err)
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, decision)
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, failover.ErrUnknownInstance):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, failover.ErrInvalidManualRequest):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, failover.ErrFailoverInFlight), errors.Is(err, failover.ErrCooldownActive):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, failover.ErrNotLeader):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) logRequestError(r *http.Request, err error) {
	if s.logger == nil {
		return
	}
	_ = s.logger.Log(r.Context(), observability.Event{
		Level:     observability.LevelWarn,
		Node:      s.node,
		Component: "api",
		Event:     "request_rejected",
		Message:   err.Error(),
		Fields:    map[string]interface{}{"path": r.URL.Path, "method": r.Method},
	})
}
