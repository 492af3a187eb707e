// Package mcp exposes the resolve-and-act engine to agents over a small JSON
// command API.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xkilldash9x/domscout/internal/config"
)

const (
	shutdownTimeout = 30 * time.Second
	cleanupTimeout  = 15 * time.Second
)

// Server is the HTTP tool server.
type Server struct {
	cfg      config.Interface
	logger   *zap.Logger
	exec     Executor
	handlers *Handlers
}

// NewServer wires the handlers around exec.
func NewServer(cfg config.Interface, exec Executor, logger *zap.Logger) *Server {
	return &Server{
		cfg:      cfg,
		logger:   logger.Named("mcp_server"),
		exec:     exec,
		handlers: NewHandlers(cfg, exec, logger),
	}
}

// Router builds the chi router with its middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// A call can hold the browser for a navigation, a reload and an action.
	r.Use(middleware.Timeout(s.cfg.Server().RequestTimeout))

	s.handlers.RegisterRoutes(r)
	return r
}

// Start listens on server.listen_addr until ctx is done or the process gets
// SIGINT or SIGTERM.
func (s *Server) Start(ctx context.Context) error {
	addr := s.cfg.Server().ListenAddr
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.Serve(ctx, ln)
}

// Serve handles requests on ln until ctx is done, then drains in-flight
// requests and releases the browser session.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Tool server listening", zap.String("addr", ln.Addr().String()))
		errCh <- httpServer.Serve(ln)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down tool server...")
	case serveErr = <-errCh:
		if errors.Is(serveErr, http.ErrServerClosed) {
			serveErr = nil
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Draining may have used up shutdownCtx; the browser gets its own budget.
	cleanupCtx, cancelCleanup := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancelCleanup()
	if err := s.exec.Cleanup(cleanupCtx); err != nil {
		s.logger.Error("Browser cleanup error", zap.Error(err))
	}

	if serveErr != nil {
		return fmt.Errorf("tool server stopped: %w", serveErr)
	}
	return nil
}
