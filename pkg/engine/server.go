// Package engine hosts the gateway's HTTP server and the request
// resolution pipeline: match a rule, apply conditional overrides, park if
// active-wait, then render or forward.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/mockgate/mockgate/pkg/logging"
)

// Server runs the gateway handler on a TCP listener.
type Server struct {
	addr       string
	handler    *Handler
	log        *slog.Logger
	httpServer *http.Server

	mu      sync.Mutex
	running bool
}

// ServerOption customizes a Server.
type ServerOption func(*Server)

// WithLogger sets the operational logger.
func WithLogger(log *slog.Logger) ServerOption {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// NewServer creates a server for the given listen address.
func NewServer(addr string, handler *Handler, opts ...ServerOption) *Server {
	s := &Server{
		addr:    addr,
		handler: handler,
		log:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the gateway handler.
func (s *Server) Handler() *Handler {
	return s.handler
}

// Start begins serving. It returns once the listener is bound; serving
// continues on a background goroutine until Shutdown.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.running = true

	s.log.Info("gateway listening", "addr", listener.Addr().String())

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("server stopped", "error", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the server. Parked active-wait requests are
// cancelled when their client connections close.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	return s.httpServer.Shutdown(ctx)
}
