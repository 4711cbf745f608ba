// internal/server/server.go
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/semaphore"

	"github.com/user/agentwatch/internal/ingest"
	"github.com/user/agentwatch/internal/state"
	"github.com/user/agentwatch/internal/types"
)

// Options tunes the HTTP and stream behaviour of a Server.
type Options struct {
	// UIDir, when set, is served for unmatched GET paths with index.html
	// as the single-page-app fallback.
	UIDir string

	// MaxBodyBytes caps POST /events bodies. Zero means DefaultMaxBodyBytes.
	MaxBodyBytes int64

	// SendBuffer is the per-subscriber outbound queue length.
	SendBuffer int

	// PingInterval is the websocket keepalive period. Zero disables pings.
	PingInterval time.Duration

	// MaxSubscribers caps concurrent stream connections. Zero means no cap.
	MaxSubscribers int64
}

const (
	DefaultMaxBodyBytes = 10 << 20
	DefaultSendBuffer   = 256
)

// Server exposes the ingest service over HTTP and WebSocket.
type Server struct {
	svc      *ingest.Service
	opts     Options
	mux      *http.ServeMux
	handler  http.Handler
	upgrader websocket.Upgrader
	slots    *semaphore.Weighted
	now      func() time.Time

	streamsMu sync.Mutex
	streams   map[*wsSubscriber]struct{}
}

// NewServer creates a Server for svc and registers all routes.
func NewServer(svc *ingest.Service, opts Options) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultSendBuffer
	}

	s := &Server{
		svc:  svc,
		opts: opts,
		mux:  http.NewServeMux(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Observers may connect from any origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		now:     time.Now,
		streams: make(map[*wsSubscriber]struct{}),
	}
	if opts.MaxSubscribers > 0 {
		s.slots = semaphore.NewWeighted(opts.MaxSubscribers)
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /events", s.handleSubmit)
	s.mux.HandleFunc("GET /events/recent", s.handleRecent)
	s.mux.HandleFunc("GET /events/filter-options", s.handleFilterOptions)
	s.mux.HandleFunc("GET /events/count", s.handleCount)
	s.mux.HandleFunc("DELETE /events", s.handleClear)
	s.mux.HandleFunc("GET /stream", s.handleStream)
	s.mux.HandleFunc("/", s.handleFallback)

	s.handler = logRequests(withCORS(s.mux))
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": types.Millis(s.now()),
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, ingest.ErrInvalidBody.Error())
		return
	}

	event, err := s.svc.Submit(r.Context(), body)
	if err != nil {
		s.writeServiceError(w, "submit event", err)
		return
	}

	slog.Debug("event received",
		"event_id", event.ID,
		"source_app", event.SourceApp,
		"session_id", event.SessionID,
		"hook_event_type", event.HookEventType,
	)
	writeJSON(w, http.StatusCreated, event)
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := state.DefaultRecentLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}

	events, err := s.svc.Recent(r.Context(), limit)
	if err != nil {
		s.writeServiceError(w, "recent events", err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleFilterOptions(w http.ResponseWriter, r *http.Request) {
	opts, err := s.svc.FilterOptions(r.Context())
	if err != nil {
		s.writeServiceError(w, "filter options", err)
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.svc.Count(r.Context())
	if err != nil {
		s.writeServiceError(w, "count events", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": count})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Clear(r.Context()); err != nil {
		s.writeServiceError(w, "clear events", err)
		return
	}
	slog.Info("all events cleared")
	writeJSON(w, http.StatusOK, map[string]string{"message": "All events cleared"})
}

func (s *Server) handleFallback(w http.ResponseWriter, r *http.Request) {
	if s.opts.UIDir != "" && (r.Method == http.MethodGet || r.Method == http.MethodHead) {
		s.serveUI(w, r)
		return
	}
	writeError(w, http.StatusNotFound, "not found")
}

// writeServiceError maps ingest errors onto status codes.
func (s *Server) writeServiceError(w http.ResponseWriter, op string, err error) {
	var verr *ingest.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, ingest.ErrInvalidBody):
		writeError(w, http.StatusBadRequest, ingest.ErrInvalidBody.Error())
	default:
		slog.Error(op+" failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
