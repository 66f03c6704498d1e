// Package server is the quill HTTP API process.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quill-hq/quill/internal/observability"
)

const (
	headerRequestID = "X-Request-ID"
	shutdownTimeout = 10 * time.Second
)

// Options configures the HTTP server.
type Options struct {
	Addr           string
	Workers        int
	RateLimitRPS   float64
	RateLimitBurst int
}

// Server serves the health, completion, checkout redirect and metrics routes.
type Server struct {
	opts    Options
	log     *zap.Logger
	metrics *observability.Metrics
	handler http.Handler
}

// New assembles the route table and middleware chain.
func New(opts Options, log *zap.Logger, metrics *observability.Metrics) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	s := &Server{opts: opts, log: log, metrics: metrics}

	api := http.NewServeMux()
	api.HandleFunc("GET /health", s.handleHealth)
	api.HandleFunc("POST /ai/complete", s.handleComplete)
	api.HandleFunc("GET /checkout/success", s.handleCheckoutSuccess)

	var limited http.Handler = api
	if opts.RateLimitRPS > 0 {
		limited = newRateLimiter(opts.RateLimitRPS, max(opts.RateLimitBurst, 1)).middleware(api)
	}

	root := http.NewServeMux()
	root.Handle("GET /metrics", metrics.Handler())
	root.Handle("/", workerLimit(opts.Workers, limited))

	s.handler = s.requestID(s.instrument(root))
	return s
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Run listens on opts.Addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening",
			zap.String("address", ln.Addr().String()),
			zap.Int("workers", s.opts.Workers),
		)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("http server shutting down", zap.Duration("timeout", shutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleComplete echoes the prompt back. The prompt is taken from the query
// string.
func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	prompt, ok := r.URL.Query()["prompt"]
	if !ok || len(prompt) == 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "query parameter 'prompt' is required"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"response": "You asked me to complete: " + prompt[0],
	})
}

var successPage = template.Must(template.New("success").Parse(`<!DOCTYPE html>
<html>
<head><title>Payment successful</title></head>
<body>
{{if .SessionID}}<h1 id="status">Payment successful</h1>
<p>Checkout session <code id="session-id">{{.SessionID}}</code> completed. Your subscription status will refresh shortly.</p>
{{else}}<h1 id="status">No checkout session</h1>
<p>This page expects a <code>session_id</code> query parameter.</p>
{{end}}</body>
</html>
`))

func (s *Server) handleCheckoutSuccess(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if sessionID == "" {
		w.WriteHeader(http.StatusBadRequest)
	}
	if err := successPage.Execute(w, struct{ SessionID string }{sessionID}); err != nil {
		s.log.Error("render success page", zap.Error(err))
	}
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		r.Header.Set(headerRequestID, id)
		next.ServeHTTP(w, r)
	})
}

// instrument records access logs and prometheus metrics.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.metrics.InFlight(1)
		defer s.metrics.InFlight(-1)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		s.metrics.ObserveHTTPRequest(r.Method, routeLabel(r), rec.status, elapsed)
		s.log.Info("http request",
			zap.String("request_id", r.Header.Get(headerRequestID)),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", elapsed),
		)
	})
}

// workerLimit bounds concurrent handler execution to n.
func workerLimit(n int, next http.Handler) http.Handler {
	sem := make(chan struct{}, n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}:
		case <-r.Context().Done():
			return
		}
		defer func() { <-sem }()
		next.ServeHTTP(w, r)
	})
}

func routeLabel(r *http.Request) string {
	switch r.URL.Path {
	case "/health", "/ai/complete", "/checkout/success", "/metrics":
		return r.URL.Path
	default:
		return "other"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
