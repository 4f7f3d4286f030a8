package display

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Server exposes the Store over HTTP.
type Server struct {
	store  *Store
	logger *slog.Logger
	mux    *http.ServeMux

	keepAlive      time.Duration
	reconnectLimit time.Duration

	mu      sync.RWMutex
	checks  map[string]HealthCheck
	details map[string]func() any
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithHealthCheck adds a named dependency to /health. A failing check marks
// the service degraded but does not fail the probe.
func WithHealthCheck(name string, check HealthCheck) ServerOption {
	return func(s *Server) {
		s.checks[name] = check
	}
}

// WithDetail adds informational component state to /health.
func WithDetail(name string, fn func() any) ServerOption {
	return func(s *Server) {
		s.details[name] = fn
	}
}

// WithKeepAlive sets the interval of SSE comment frames.
func WithKeepAlive(d time.Duration) ServerOption {
	return func(s *Server) {
		s.keepAlive = d
	}
}

// NewServer creates the HTTP surface for store.
func NewServer(store *Store, logger *slog.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		store:          store,
		logger:         logger,
		mux:            http.NewServeMux(),
		keepAlive:      15 * time.Second,
		reconnectLimit: 30 * time.Second,
		checks:         make(map[string]HealthCheck),
		details:        make(map[string]func() any),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("GET /api/orders", s.handleBoard)
	s.mux.HandleFunc("GET /api/orders/stream", s.handleStream)
	s.mux.HandleFunc("POST /api/reconnect", s.handleReconnect)
	s.mux.HandleFunc("GET /health", s.handleHealth)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.mux.ServeHTTP(w, r)

	if r.URL.Path != "/api/orders/stream" {
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	}
}

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Snapshot())
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	updates, unsubscribe := s.store.Subscribe()
	defer unsubscribe()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, s.store.Snapshot()); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case b, ok := <-updates:
			if !ok {
				return
			}
			if err := writeEvent(w, b); err != nil {
				s.logger.Debug("stream write failed", "error", err)
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.reconnectLimit)
	defer cancel()

	if err := s.store.Reconnect(ctx); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reconnected"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	board := s.store.Snapshot()
	health := struct {
		Status     string         `json:"status"`
		Components map[string]any `json:"components"`
	}{
		Status:     "healthy",
		Components: make(map[string]any),
	}

	feed := map[string]any{
		"connected":        board.Connected,
		"new_orders":       len(board.NewOrders),
		"completed_orders": len(board.CompletedOrders),
		"updated_at":       board.UpdatedAt,
	}
	if board.Error != "" {
		feed["error"] = board.Error
	}
	health.Components["feed"] = feed

	s.mu.RLock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			health.Status = "degraded"
			health.Components[name] = map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			}
		} else {
			health.Components[name] = "ok"
		}
	}
	for name, fn := range s.details {
		health.Components[name] = fn()
	}
	s.mu.RUnlock()

	code := http.StatusOK
	if !board.Connected {
		health.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, health)
}

func writeEvent(w http.ResponseWriter, b Board) error {
	data, err := json.Marshal(b)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: board\ndata: %s\n\n", data)
	return err
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
