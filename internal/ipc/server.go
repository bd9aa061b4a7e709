package ipc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/justestif/go-music-agent/internal/apperr"
)

const (
	// readTimeout bounds how long a client may take to send its request.
	readTimeout = 30 * time.Second

	writeTimeout = 10 * time.Second

	// MaxRequestSize is the largest request the server reads.
	MaxRequestSize = 64 * 1024

	defaultDrainTimeout = 10 * time.Second
)

// Handler answers one request. The context is cancelled when the server's
// drain period expires during shutdown.
type Handler interface {
	Handle(ctx context.Context, req Request) Response
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req Request) Response

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// ConnTracker is notified as connections open and close.
type ConnTracker interface {
	ConnOpened()
	ConnClosed()
}

// ErrAlreadyRunning is returned by Serve when another process answers on the
// socket path.
var ErrAlreadyRunning = errors.New("another daemon is listening on the socket")

// Server serves the request/response protocol on a unix socket.
type Server struct {
	path         string
	handler      Handler
	logger       *slog.Logger
	tracker      ConnTracker
	drainTimeout time.Duration

	active sync.WaitGroup
	ready  chan struct{}
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithConnTracker reports connection counts to t.
func WithConnTracker(t ConnTracker) ServerOption {
	return func(s *Server) { s.tracker = t }
}

// WithDrainTimeout sets how long Serve waits for in-flight requests after
// its context is cancelled before cancelling their contexts.
func WithDrainTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.drainTimeout = d }
}

// NewServer creates a server for the socket at path.
func NewServer(path string, handler Handler, logger *slog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		path:         path,
		handler:      handler,
		logger:       logger,
		drainTimeout: defaultDrainTimeout,
		ready:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ready is closed once the socket is accepting connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Serve listens on the socket and handles connections until ctx is
// cancelled. It then closes the listener, waits for in-flight requests and
// removes the socket file.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.removeStale(); err != nil {
		return err
	}

	listener, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.path, err)
	}
	defer os.Remove(s.path)

	if err := os.Chmod(s.path, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("restricting %s: %w", s.path, err)
	}

	// Handlers outlive ctx by up to the drain timeout.
	handlerCtx, cancelHandlers := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelHandlers()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("ipc server listening", "path", s.path)
	close(s.ready)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.active.Add(1)
		go func() {
			defer s.active.Done()
			s.handleConnection(handlerCtx, conn)
		}()
	}

	s.drain(cancelHandlers)
	s.logger.Info("ipc server stopped")
	return nil
}

// drain waits for in-flight connections, cancelling their context once the
// drain timeout passes.
func (s *Server) drain(cancel context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		s.active.Wait()
		close(done)
	}()

	timer := time.NewTimer(s.drainTimeout)
	defer timer.Stop()
	select {
	case <-done:
		return
	case <-timer.C:
		s.logger.Warn("drain timeout reached, cancelling in-flight requests", "timeout", s.drainTimeout)
		cancel()
	}
	<-done
}

// removeStale deletes a socket file left behind by a dead daemon.
func (s *Server) removeStale() error {
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if conn, err := net.DialTimeout("unix", s.path, time.Second); err == nil {
		conn.Close()
		return fmt.Errorf("%s: %w", s.path, ErrAlreadyRunning)
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing stale socket %s: %w", s.path, err)
	}
	return nil
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	if s.tracker != nil {
		s.tracker.ConnOpened()
		defer s.tracker.ConnClosed()
	}

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	r := bufio.NewReader(io.LimitReader(conn, MaxRequestSize))

	first, err := r.Peek(1)
	if err != nil {
		// Connected and sent nothing.
		return
	}

	if isCBORMap(first[0]) {
		s.serveCBOR(ctx, conn, r)
		return
	}
	s.serveText(ctx, conn, r)
}

func (s *Server) serveCBOR(ctx context.Context, conn net.Conn, r io.Reader) {
	var req Request
	if err := newDecoder(r).Decode(&req); err != nil {
		s.writeCBOR(conn, Failure(apperr.Invalid("ipc.decode", "invalid request: %v", err)))
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	resp := s.dispatch(ctx, req)
	resp.ID = req.ID
	s.writeCBOR(conn, resp)
}

func (s *Server) serveText(ctx context.Context, conn net.Conn, r *bufio.Reader) {
	req, err := readTextRequest(r)
	if err != nil {
		s.writeTextResponse(conn, Failure(apperr.Invalid("ipc.read", "invalid request: %v", err)))
		return
	}
	req.ID = uuid.NewString()
	s.writeTextResponse(conn, s.dispatch(ctx, req))
}

func (s *Server) dispatch(ctx context.Context, req Request) Response {
	if req.Command == "" {
		return Failure(apperr.Invalid("ipc.dispatch", "empty command"))
	}
	s.logger.Debug("request received", "id", req.ID, "command", req.Command)
	return s.handler.Handle(ctx, req)
}

// Write failures are only logged: the connection is closing regardless.
func (s *Server) writeCBOR(conn net.Conn, resp Response) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := newEncoder(conn).Encode(resp); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}

func (s *Server) writeTextResponse(conn net.Conn, resp Response) {
	data, err := renderText(resp)
	if err != nil {
		data, _ = renderText(Failure(apperr.Wrap(apperr.KindInternal, "ipc.encode", err)))
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := conn.Write(data); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}
