// Package server exposes the simulation lifecycle over HTTP: a small JSON API
// plus Server-Sent Events and WebSocket endpoints for push notifications. All
// routes require bearer-token authentication.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/hupe1980/teamsim/logging"
	"github.com/hupe1980/teamsim/notify"
	"github.com/hupe1980/teamsim/simulation"
)

// SimulationService is the lifecycle surface the HTTP layer depends on.
// Satisfied by *simulation.Service.
type SimulationService interface {
	Create(ctx context.Context, name, instruction string, participantUserIDs []string, createdBy string) (*simulation.Simulation, error)
	Get(ctx context.Context, id string) (*simulation.Simulation, error)
	List(ctx context.Context, userID string, limit, offset int) ([]*simulation.Simulation, int, error)
	Delete(ctx context.Context, id, userID string) error
	Rerun(ctx context.Context, id, userID string) (*simulation.Simulation, error)
}

// Options configures the HTTP server.
type Options struct {
	// KeepaliveInterval is how often idle push connections receive a
	// keepalive frame.
	KeepaliveInterval time.Duration

	Logger logging.Logger
}

// Server routes HTTP requests to the simulation service and the notification
// hub. It implements http.Handler.
type Server struct {
	svc       SimulationService
	hub       *notify.Hub
	verifier  TokenVerifier
	mux       *http.ServeMux
	keepalive time.Duration
	logger    logging.Logger
}

// New wires all routes onto a fresh mux.
func New(svc SimulationService, hub *notify.Hub, verifier TokenVerifier, optFns ...func(o *Options)) *Server {
	opts := Options{
		KeepaliveInterval: 15 * time.Second,
		Logger:            logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{
		svc:       svc,
		hub:       hub,
		verifier:  verifier,
		mux:       http.NewServeMux(),
		keepalive: opts.KeepaliveInterval,
		logger:    opts.Logger,
	}

	s.mux.HandleFunc("POST /simulations", s.requireAuth(s.handleCreate))
	s.mux.HandleFunc("GET /simulations", s.requireAuth(s.handleList))
	s.mux.HandleFunc("GET /simulations/{id}", s.requireAuth(s.handleGet))
	s.mux.HandleFunc("DELETE /simulations/{id}", s.requireAuth(s.handleDelete))
	s.mux.HandleFunc("POST /simulations/{id}/rerun", s.requireAuth(s.handleRerun))
	s.mux.HandleFunc("GET /events", s.requireAuth(s.handleEvents))
	s.mux.HandleFunc("GET /ws", s.requireAuth(s.handleWS))

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type createRequest struct {
	Name               string   `json:"name"`
	Instruction        string   `json:"instruction"`
	ParticipantUserIDs []string `json:"participant_user_ids"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorStatus(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sim, err := s.svc.Create(r.Context(), req.Name, req.Instruction, req.ParticipantUserIDs, UserID(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, sim)
}

type listResponse struct {
	Items  []*simulation.Simulation `json:"items"`
	Total  int                      `json:"total"`
	Limit  int                      `json:"limit"`
	Offset int                      `json:"offset"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)

	items, total, err := s.svc.List(r.Context(), UserID(r.Context()), limit, offset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, listResponse{Items: items, Total: total, Limit: limit, Offset: offset})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sim, err := s.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if sim.CreatedBy != UserID(r.Context()) {
		s.writeError(w, simulation.ErrForbidden)
		return
	}
	s.writeJSON(w, http.StatusOK, sim)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Delete(r.Context(), r.PathValue("id"), UserID(r.Context())); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRerun(w http.ResponseWriter, r *http.Request) {
	sim, err := s.svc.Rerun(r.Context(), r.PathValue("id"), UserID(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sim)
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps lifecycle sentinel errors onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, simulation.ErrValidation):
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, simulation.ErrNotFound):
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, simulation.ErrForbidden):
		s.writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error()})
	case errors.Is(err, simulation.ErrConflict):
		s.writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		s.logger.Error("request failed", "error", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func (s *Server) writeErrorStatus(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encoding failed", "error", err)
	}
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
