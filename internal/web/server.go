// Package web serves the daemon's local admin surface: a status page, a
// JSON API for commands, a websocket event stream and Prometheus metrics.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/justestif/go-music-agent/internal/daemon"
	"github.com/justestif/go-music-agent/internal/ipc"
	"github.com/justestif/go-music-agent/internal/logging"
)

// DefaultAddr is the listen address suggested by the CLI.
const DefaultAddr = "127.0.0.1:8765"

const shutdownTimeout = 10 * time.Second

// Daemon is the part of the daemon the admin surface exposes.
type Daemon interface {
	Execute(ctx context.Context, command string) ipc.Response
	Status(ctx context.Context) daemon.Status
	Subscribe() (<-chan daemon.Event, func())
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr    string
	Logger  *slog.Logger
	Metrics http.Handler // served at /metrics when set
}

// Server is the admin HTTP server.
type Server struct {
	router    chi.Router
	server    *http.Server
	templates *Templates
	daemon    Daemon
	logger    *slog.Logger
}

// NewServer creates the admin server for d.
func NewServer(cfg ServerConfig, d Daemon) (*Server, error) {
	templates, err := NewTemplates(templateFS)
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	s := &Server{
		router:    chi.NewRouter(),
		templates: templates,
		daemon:    d,
		logger:    logger,
	}
	s.setupMiddleware()
	s.setupRoutes(cfg.Metrics)

	// No write timeout: /events streams for as long as the client stays.
	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug),
		NoColor: true,
	}))
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes(metrics http.Handler) {
	s.router.Group(func(r chi.Router) {
		r.Use(middleware.Compress(5))
		r.Get("/", s.handleHome)
		r.Get("/status", s.handleStatus)
		r.Post("/command", s.handleCommand)
	})
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/events", s.handleEvents)
	if metrics != nil {
		s.router.Handle("/metrics", metrics)
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully. It fits
// daemon.WithService.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server.BaseContext = func(net.Listener) context.Context { return ctx }

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("admin server listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.logger.Info("admin server stopped")
	return nil
}
