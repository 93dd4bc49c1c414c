// Package web wires the HTTP surface of the check-in service: the
// WebSocket sign-in stream, the one-shot check-in, feature export and
// face template management.
package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/meetsign/meetsign/internal/checkin"
	"github.com/meetsign/meetsign/internal/config"
	"github.com/meetsign/meetsign/internal/evidence"
	"github.com/meetsign/meetsign/internal/recognizer"
	"github.com/meetsign/meetsign/internal/store"
	"github.com/meetsign/meetsign/internal/web/middleware"
)

// Server represents the web server.
type Server struct {
	config     *config.Config
	router     *chi.Mux
	httpServer *http.Server

	registry   *checkin.Registry
	store      store.MeetingStore
	recognizer recognizer.Recognizer
	evidence   *evidence.Store // nil disables evidence snapshots
}

// NewServer creates a new web server. evStore may be nil.
func NewServer(cfg *config.Config, host string, port int, registry *checkin.Registry, st store.MeetingStore, rec recognizer.Recognizer, evStore *evidence.Store) *Server {
	r := chi.NewRouter()

	s := &Server{
		config:     cfg,
		router:     r,
		registry:   registry,
		store:      st,
		recognizer: rec,
		evidence:   evStore,
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS())

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", host, port),
		Handler:     r,
		ReadTimeout: 0, // WebSocket streams stay open for the whole window
		IdleTimeout: 60 * time.Second,
	}

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	log.Printf("Starting check-in server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down check-in server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
