// package server contains middleware & handlers for the transcription bridge service
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/a2s/internal/tasks"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
// Common middleware includes logging, CORS, body limits, etc.
type Middleware func(http.Handler) http.Handler

// ServerOpts configures a [Server].
type ServerOpts struct {
	Coordinator    *tasks.Coordinator
	Logger         *log.Logger
	Addr           string   // Default: 127.0.0.1:3000
	AllowedOrigins []string // Default: *
}

// Server serves the coordinator API and its websocket update stream.
type Server struct {
	coord  *tasks.Coordinator
	logger *log.Logger
	hub    *Hub
	addr   string
	router http.Handler
}

// NewServer builds the router. Call [Server.Start] or [Server.ListenAndServe] to begin streaming updates.
func NewServer(opts ServerOpts) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:3000"
	}

	s := &Server{
		coord:  opts.Coordinator,
		logger: opts.Logger,
		hub:    NewHub(opts.Logger),
		addr:   opts.Addr,
	}
	s.router = s.routes(opts.AllowedOrigins)
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub { return s.hub }

// Start runs the hub and forwards coordinator updates to it until ctx is done.
func (s *Server) Start(ctx context.Context) {
	go s.hub.Run(ctx)

	updates, cancel := s.coord.Subscribe(256)
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case u, ok := <-updates:
				if !ok {
					return
				}
				s.hub.Publish(u)
			}
		}
	}()
}

// ListenAndServe starts streaming and serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.Start(ctx)

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("bridge server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("bridge server stopped")
	return nil
}
