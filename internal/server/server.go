// Package server exposes the webhook endpoint and operational routes.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dayuer/castbot/internal/pipeline"
	"github.com/dayuer/castbot/internal/signature"
)

const (
	DefaultListen          = "0.0.0.0:3000"
	DefaultWebhookPath     = "/webhook"
	DefaultMaxBodyBytes    = 1 << 20
	DefaultShutdownTimeout = 10 * time.Second
)

// Admitter is the synchronous half of the pipeline.
type Admitter interface {
	Admit(ctx context.Context, req pipeline.Request) (pipeline.Admission, error)
	Stats() pipeline.Stats
}

// Config configures a Server.
type Config struct {
	Listen          string
	WebhookPath     string
	SignatureHeader string
	MaxBodyBytes    int64
	ShutdownTimeout time.Duration
	// TrustProxyHeaders takes the caller from X-Forwarded-For/X-Real-IP.
	// Only enable behind a proxy that overwrites them.
	TrustProxyHeaders bool
	// Gauges are reported on /api/status, e.g. tracked dedup keys.
	Gauges map[string]func() int
	Logger *slog.Logger
}

// Server is the bot's HTTP front door.
type Server struct {
	cfg      Config
	admitter Admitter
	logger   *slog.Logger
	router   chi.Router
	srv      *http.Server

	startTime     time.Time
	totalRequests atomic.Int64
}

// New creates a Server and registers its routes.
func New(admitter Admitter, cfg Config) *Server {
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	if cfg.WebhookPath == "" {
		cfg.WebhookPath = DefaultWebhookPath
	}
	if cfg.SignatureHeader == "" {
		cfg.SignatureHeader = signature.DefaultHeader
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		cfg:       cfg,
		admitter:  admitter,
		logger:    cfg.Logger.With("component", "server"),
		startTime: time.Now(),
	}

	r := chi.NewRouter()
	if cfg.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/api/status", s.handleStatus)
	r.HandleFunc(cfg.WebhookPath, s.handleWebhookPath)

	s.router = r
	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until ctx is cancelled or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.cfg.Listen, err)
	}
	s.logger.Info("Server.Start: listening", "addr", ln.Addr().String(), "webhook", s.cfg.WebhookPath)

	stopped := make(chan error, 1)
	go func() {
		<-ctx.Done()
		stopped <- s.Stop(context.Background())
	}()

	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: serve: %w", err)
	}
	// Serve returns as soon as shutdown begins; wait for handlers to drain.
	if ctx.Err() != nil {
		return <-stopped
	}
	return nil
}

// Stop shuts the listener down, waiting up to the shutdown timeout for
// in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.totalRequests.Add(1)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		level := slog.LevelDebug
		if status >= 500 {
			level = slog.LevelError
		}
		s.logger.Log(r.Context(), level, "Server: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": int(time.Since(s.startTime).Seconds()),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	gauges := make(map[string]int, len(s.cfg.Gauges))
	for name, fn := range s.cfg.Gauges {
		gauges[name] = fn()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"uptime":        int(time.Since(s.startTime).Seconds()),
		"totalRequests": s.totalRequests.Load(),
		"pipeline":      s.admitter.Stats(),
		"gauges":        gauges,
	})
}
