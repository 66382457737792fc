// Package api exposes the delivery platform over HTTP: campaign lifecycle,
// job submission and status, provider registry management, and suppression
// list maintenance. Send submission is fire-and-forget: the handler returns
// a job ID at 202 and the worker does the rest.
package api

import (
	"context"
	"net/http"
	"time"
)

// Server wraps the HTTP server around the route tree.
type Server struct {
	handler http.Handler
	server  *http.Server
}

// NewServer creates the API server for the given handler set.
func NewServer(h *Handlers) *Server {
	return &Server{handler: SetupRoutes(h)}
}

// ListenAndServe starts the HTTP server on addr.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       time.Minute,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      time.Minute,
		IdleTimeout:       120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.handler
}
