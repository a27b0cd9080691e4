// Package httpapi exposes the query pipeline over HTTP and a websocket that
// streams stage events while a query runs.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"aisquery/internal/domain"
	"aisquery/internal/memory"
	"aisquery/internal/orchestrator"
)

type QueryService interface {
	HandleQuery(ctx context.Context, req domain.QueryRequest, obs orchestrator.StageObserver) (domain.ResponseEnvelope, error)
	History(sessionID string) (memory.Conversation, bool)
	Reset(ctx context.Context, sessionID string) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type QueryObserver interface {
	ObserveQuery(transport string, env domain.ResponseEnvelope, err error)
}

type Options struct {
	// Store backs /healthz. Nil reports healthy without a check.
	Store    Pinger
	Observer QueryObserver
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

type Server struct {
	svc        QueryService
	opts       Options
	logger     *slog.Logger
	wsUpgrader websocket.Upgrader
}

func NewServer(svc QueryService, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		svc:    svc,
		opts:   opts,
		logger: logger,
		wsUpgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.health)
	if s.opts.Metrics != nil {
		r.Handle("/metrics", s.opts.Metrics)
	}
	r.Route("/v1", func(r chi.Router) {
		r.Post("/query", s.query)
		r.Get("/ws", s.queryWS)
		r.Get("/sessions/{id}/history", s.history)
		r.Post("/sessions/{id}/reset", s.reset)
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, req *http.Request) {
	if s.opts.Store != nil {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := s.opts.Store.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": "store unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) query(w http.ResponseWriter, req *http.Request) {
	var in domain.QueryRequest
	if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(in.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "query is required"})
		return
	}

	env, err := s.svc.HandleQuery(req.Context(), in, nil)
	s.observe("http", env, err)
	if err != nil {
		// the client went away; nothing useful can be written
		s.logger.Warn("http query abandoned", "session_id", in.SessionID, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "query abandoned"})
		return
	}
	// Pipeline failures are part of the envelope, not the HTTP status.
	writeJSON(w, http.StatusOK, env)
}

func (s *Server) history(w http.ResponseWriter, req *http.Request) {
	id := chi.URLParam(req, "id")
	conv, ok := s.svc.History(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown session"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":   conv.SessionID,
		"turns":        conv.Turns,
		"last_vessels": conv.LastVessels,
		"summary":      conv.Summary(),
		"updated_at":   conv.UpdatedAt,
	})
}

func (s *Server) reset(w http.ResponseWriter, req *http.Request) {
	id := chi.URLParam(req, "id")
	if err := s.svc.Reset(req.Context(), id); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "session_id": id})
}

func (s *Server) observe(transport string, env domain.ResponseEnvelope, err error) {
	if s.opts.Observer != nil {
		s.opts.Observer.ObserveQuery(transport, env, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func newSessionID() string {
	return uuid.NewString()
}
