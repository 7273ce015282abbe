// Package web exposes the correction pipeline over HTTP for demos and
// operational probing.
//
// Endpoints:
//
//   - POST /correct  — run the pipeline over submitted transcript text and
//     return per-segment results plus run statistics as JSON.
//   - GET  /healthz  — liveness probe; always 200 while the process serves.
//   - GET  /readyz   — readiness probe; 200 only when all registered checks
//     pass (e.g. the statistics database answers a ping).
//   - GET  /metrics  — Prometheus scrape endpoint.
//
// All routes run behind the observe middleware, so every request carries a
// trace, a correlation ID header, and a duration metric.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/kousei/internal/observe"
	"github.com/MrWong99/kousei/internal/run"
	"github.com/MrWong99/kousei/internal/segment"
)

// maxRequestBody caps the transcript size accepted by /correct.
const maxRequestBody = 4 << 20

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Check is a named readiness probe. Probe returns nil when the dependency
// is healthy.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Server serves the correction pipeline over HTTP. The runner can be
// swapped at any time (configuration hot reload); requests always see a
// fully built runner.
type Server struct {
	runner  atomic.Pointer[run.Runner]
	metrics *observe.Metrics
	checks  []Check
}

// NewServer builds a Server around the given runner. Checks are evaluated
// by /readyz in order.
func NewServer(runner *run.Runner, metrics *observe.Metrics, checks ...Check) *Server {
	s := &Server{
		metrics: metrics,
		checks:  append([]Check(nil), checks...),
	}
	s.runner.Store(runner)
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// SetRunner atomically replaces the runner used by subsequent requests.
func (s *Server) SetRunner(r *run.Runner) {
	s.runner.Store(r)
}

// Handler returns the routed HTTP handler wrapped in the observe
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /correct", s.handleCorrect)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.Handle("GET /metrics", promhttp.Handler())
	return observe.Middleware(s.metrics)(mux)
}

// Serve runs an HTTP server on addr until ctx is cancelled, then shuts it
// down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// correctRequest is the JSON body accepted by /correct. Form submissions use
// the "text" field instead.
type correctRequest struct {
	Text string `json:"text"`
}

// correctResponse is the JSON reply of /correct.
type correctResponse struct {
	Segments []segment.Segment `json:"segments"`
	Stats    *run.Stats        `json:"stats"`
}

func (s *Server) handleCorrect(w http.ResponseWriter, r *http.Request) {
	text, err := requestText(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if strings.TrimSpace(text) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no transcript text submitted"})
		return
	}

	segments, stats, err := s.runner.Load().ProcessText(r.Context(), text)
	if err != nil {
		observe.Logger(r.Context()).Error("correction request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "processing failed"})
		return
	}

	writeJSON(w, http.StatusOK, correctResponse{Segments: segments, Stats: stats})
}

// requestText extracts the transcript from a JSON body, a form field, or the
// raw body, in that order of preference.
func requestText(r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxRequestBody)

	ct := r.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(ct, "application/json"):
		var req correctRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", errors.New("invalid JSON body")
		}
		return req.Text, nil
	case strings.HasPrefix(ct, "application/x-www-form-urlencoded"),
		strings.HasPrefix(ct, "multipart/form-data"):
		if err := r.ParseForm(); err != nil {
			return "", errors.New("invalid form body")
		}
		return r.FormValue("text"), nil
	default:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return "", errors.New("unreadable request body")
		}
		return string(body), nil
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.checks))
	status := http.StatusOK
	overall := "ok"

	for _, c := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Probe(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			overall = "fail"
			status = http.StatusServiceUnavailable
		} else {
			checks[c.Name] = "ok"
		}
	}

	writeJSON(w, status, map[string]any{"status": overall, "checks": checks})
}

// writeJSON encodes v with the given status code. On encoding failure it
// falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}
