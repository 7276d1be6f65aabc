package api

import (
	"bufio"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/dorank/internal/metrics"
	"github.com/JakeFAU/dorank/internal/report"
	"github.com/JakeFAU/dorank/internal/stats"
)

// CycleRunner runs one reporting cycle.
type CycleRunner interface {
	Run(ctx context.Context, req report.Request) (stats.Report, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the inbound triggers.
type Options struct {
	// TriggerToken guards POST /triggers. An empty token rejects every call.
	TriggerToken string
	// VerificationToken is the Slack slash command verification token. An
	// empty token rejects every command.
	VerificationToken string
	// BroadcastChannel receives scheduled reports.
	BroadcastChannel string
	// CycleTimeout bounds a single cycle started over HTTP.
	CycleTimeout time.Duration
}

// Server wires HTTP handlers to the reporting cycle.
type Server struct {
	router chi.Router
	runner CycleRunner
	store  Pinger
	opts   Options
	logger *zap.Logger

	// background tracks slash command cycles that outlive their request.
	background sync.WaitGroup
	baseCtx    context.Context
	cancel     context.CancelFunc
}

// NewServer constructs a Server with middleware and routes.
func NewServer(runner CycleRunner, store Pinger, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.CycleTimeout <= 0 {
		opts.CycleTimeout = 2 * time.Minute
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		runner:  runner,
		store:   store,
		opts:    opts,
		logger:  logger,
		baseCtx: baseCtx,
		cancel:  cancel,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(opts.CycleTimeout + 10*time.Second))

	r.Get("/", s.healthz)
	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())
	r.Post("/triggers", s.trigger)
	r.Post("/commands", s.command)

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Shutdown cancels background cycles and waits for them to finish or for
// ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for background cycles: %w", ctx.Err())
	}
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// trigger runs a scheduled cycle to the broadcast channel. The response is
// 200 whether or not the cycle succeeded; failures are reported in-channel.
func (s *Server) trigger(w http.ResponseWriter, r *http.Request) {
	if !tokenMatches(s.opts.TriggerToken, r.URL.Query().Get("token")) {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.opts.CycleTimeout)
	defer cancel()
	_, err := s.runner.Run(ctx, report.Request{
		Trigger:    stats.TriggerScheduled,
		Channel:    s.opts.BroadcastChannel,
		Visibility: stats.VisibilityBroadcast,
	})
	if err != nil {
		s.logger.Warn("triggered cycle failed", zap.Error(err))
	}
	w.WriteHeader(http.StatusOK)
}

// command handles the slash command form post. Slack expects an answer within
// three seconds, so the cycle runs in the background and replies through the
// response URL.
func (s *Server) command(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form")
		return
	}
	if !tokenMatches(s.opts.VerificationToken, r.PostForm.Get("token")) {
		writeError(w, http.StatusForbidden, "unauthorized")
		return
	}
	req := report.Request{
		Trigger:     stats.TriggerCommand,
		Channel:     r.PostForm.Get("channel_id"),
		User:        r.PostForm.Get("user_id"),
		ResponseURL: r.PostForm.Get("response_url"),
		Visibility:  stats.VisibilityPrivate,
	}
	if strings.EqualFold(strings.TrimSpace(r.PostForm.Get("text")), "public") {
		req.Visibility = stats.VisibilityBroadcast
	}
	if req.Channel == "" && req.ResponseURL == "" {
		writeError(w, http.StatusBadRequest, "channel_id or response_url required")
		return
	}

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(s.baseCtx, s.opts.CycleTimeout)
		defer cancel()
		if _, err := s.runner.Run(ctx, req); err != nil {
			s.logger.Warn("command cycle failed", zap.String("user", req.User), zap.Error(err))
		}
	}()
	w.WriteHeader(http.StatusOK)
}

func tokenMatches(expected, got string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID returns the request id stored by the middleware, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.String("request_id", RequestID(r.Context())),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
