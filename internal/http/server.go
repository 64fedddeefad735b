// Package httpserver exposes a small read-only status API while watch mode
// is running: health, the last sync outcome, and the recent event stream.
package httpserver

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"db_declarative_schema_syncer/internal/apply"
	"db_declarative_schema_syncer/internal/events"
)

type requestLogger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Pinger is the liveness surface of the target database. *pgxpool.Pool
// satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// State holds the most recent sync outcome for the status endpoint.
type State struct {
	mu      sync.Mutex
	result  *apply.Result
	syncErr string
	updated time.Time
}

func (s *State) RecordResult(r apply.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = &r
	s.syncErr = ""
	s.updated = time.Now().UTC()
}

// RecordError notes a sync that failed before producing a result. The
// message must already be credential-free.
func (s *State) RecordError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncErr = msg
	s.updated = time.Now().UTC()
}

type statusResponse struct {
	LastResult *apply.Result `json:"last_result,omitempty"`
	LastError  string        `json:"last_error,omitempty"`
	UpdatedAt  *time.Time    `json:"updated_at,omitempty"`
}

func (s *State) snapshot() statusResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp := statusResponse{LastError: s.syncErr}
	if s.result != nil {
		r := *s.result
		resp.LastResult = &r
	}
	if !s.updated.IsZero() {
		u := s.updated
		resp.UpdatedAt = &u
	}
	return resp
}

type Server struct {
	Addr   string
	Logger requestLogger
	Live   Pinger
	State  *State
	Events *events.Memory
}

func (s *Server) Start(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.Addr,
		Handler:           s.routes(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.Logger.Info("status server starting", "addr", s.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.Logger.Info("status server shutting down")
		return httpServer.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	r.Get("/api/status", s.status)
	r.Get("/api/events", s.eventStream)

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.Live.Ping(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "service_unhealthy", "target database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "db": "ok"})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.State.snapshot())
}

// eventStream dumps the recent events as NDJSON. With ?follow=1 the
// response stays open and new events stream as they happen.
func (s *Server) eventStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	sink := events.NewJSONSink(w)
	for _, e := range s.Events.Recent() {
		sink.Emit(e)
	}

	flusher, canFlush := w.(http.Flusher)
	if canFlush {
		flusher.Flush()
	}
	if r.URL.Query().Get("follow") != "1" {
		return
	}

	ch, cancel := s.Events.Follow()
	defer cancel()
	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-ch:
			sink.Emit(e)
			if canFlush {
				flusher.Flush()
			}
		}
	}
}
