// Package server exposes the discussion engine over HTTP: session
// management, discussion lifecycle, interventions, and operational
// endpoints.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/szaher/mdtboard/internal/discussion"
	"github.com/szaher/mdtboard/internal/participant"
	"github.com/szaher/mdtboard/internal/session"
	"github.com/szaher/mdtboard/internal/telemetry"
)

// BuildFunc assembles the participant roster for one discussion request.
type BuildFunc func(specialties []string, custom map[string]string) ([]participant.Participant, error)

// Server is the HTTP front end of the engine.
type Server struct {
	engine  *discussion.Engine
	store   *session.Store
	metrics *telemetry.Metrics
	logger  *slog.Logger
	build   BuildFunc
	apiKey  string
	httpSrv *http.Server
}

// Options configure the server.
type Options struct {
	Addr string
	// APIKey, when set, is required on every /v1 request.
	APIKey string
}

// New wires the HTTP server. Call ListenAndServe to start it; Handler is
// exposed separately for tests.
func New(engine *discussion.Engine, store *session.Store, build BuildFunc,
	metrics *telemetry.Metrics, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine:  engine,
		store:   store,
		metrics: metrics,
		logger:  logger,
		build:   build,
		apiKey:  opts.APIKey,
	}
	s.httpSrv = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/sessions", s.auth(s.handleCreateSession))
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.auth(s.handleDestroySession))
	mux.HandleFunc("GET /v1/sessions/stats", s.auth(s.handleSessionStats))

	mux.HandleFunc("POST /v1/discussions", s.auth(s.handleStartDiscussion))
	mux.HandleFunc("GET /v1/discussions/{id}/status", s.auth(s.handleDiscussionStatus))
	mux.HandleFunc("GET /v1/discussions/{id}/record", s.auth(s.handleDiscussionRecord))
	mux.HandleFunc("POST /v1/discussions/{id}/interventions", s.auth(s.handleIntervene))
	mux.HandleFunc("GET /v1/interventions/{id}", s.auth(s.handleInterventionStatus))

	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	return s.logRequests(mux)
}

// ListenAndServe runs the server until Shutdown or a listener error.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", "addr", s.httpSrv.Addr)
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests within the bound of ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	if s.apiKey == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next(w, r)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		s.logger.Info("request",
			"method", r.Method, "path", r.URL.Path,
			"status", rw.status, "duration_ms", time.Since(start).Milliseconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
