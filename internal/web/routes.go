package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/krivanek/rollcall/internal/web/handlers"
)

func (s *Server) setupRoutes(deps Deps) {
	configHandler := handlers.NewConfigHandler(deps.Tuning)
	identitiesHandler := handlers.NewIdentitiesHandler(deps.Gallery, deps.Store, deps.Enroller)
	sessionsHandler := handlers.NewSessionsHandler(s.sessions, deps.Rosters, deps.Recorder, deps.Pipeline, deps.SessionDuration)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/config", configHandler.Get)
		r.Put("/config", configHandler.Update)

		r.Get("/identities", identitiesHandler.List)
		r.Post("/identities", identitiesHandler.Enroll)
		r.Delete("/identities/{id}", identitiesHandler.Delete)

		r.Post("/sessions", sessionsHandler.Create)
		r.Get("/sessions/{id}", sessionsHandler.Status)
		r.Post("/sessions/{id}/end", sessionsHandler.End)
		r.Get("/sessions/{id}/events", sessionsHandler.Events)
	})
}
