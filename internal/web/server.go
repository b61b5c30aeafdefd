// Package web hosts the HTTP API: health, runtime config, identity
// management and attendance sessions.
package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/krivanek/rollcall/internal/config"
	"github.com/krivanek/rollcall/internal/enroll"
	"github.com/krivanek/rollcall/internal/gallery"
	"github.com/krivanek/rollcall/internal/pipeline"
	"github.com/krivanek/rollcall/internal/roster"
	"github.com/krivanek/rollcall/internal/web/handlers"
	"github.com/krivanek/rollcall/internal/web/middleware"
)

// Deps are the domain collaborators the API exposes.
type Deps struct {
	Tuning   *config.Tuning
	Gallery  *gallery.Gallery
	Store    handlers.IdentityStore
	Enroller *enroll.Enroller
	Rosters  roster.Source
	Recorder handlers.AttendanceRecorder
	Pipeline *pipeline.Pipeline

	SessionDuration time.Duration
}

// Server represents the web server.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	sessions   *handlers.SessionManager
}

// NewServer creates a new web server.
func NewServer(deps Deps, port int, host string) *Server {
	r := chi.NewRouter()

	s := &Server{
		router:   r,
		sessions: handlers.NewSessionManager(),
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(5 * time.Minute))
	r.Use(middleware.CORS())

	s.setupRoutes(deps)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute, // SSE streams stay open for whole sessions
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	log.Printf("Starting web server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down web server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
