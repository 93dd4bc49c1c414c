package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/meetsign/meetsign/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	recTimeout := s.config.Recognizer.CallTimeout()

	signinHandler := handlers.NewSignInHandler(
		s.registry, s.recognizer, s.evidence, s.store,
		recTimeout, s.config.Stream.Pacing(), s.config.Stream.IdleTimeout(),
		s.config.Stream.MaxErrors)
	checkinHandler := handlers.NewCheckinHandler(
		s.registry, s.recognizer, s.evidence, s.store, recTimeout)
	featuresHandler := handlers.NewFeaturesHandler(s.store)
	facesHandler := handlers.NewFacesHandler(s.store, s.recognizer, recTimeout)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/meetings/{meetingID}/signin", signinHandler.Stream)
		r.Post("/meetings/{meetingID}/checkin", checkinHandler.Checkin)
		r.Get("/meetings/{meetingID}/features", featuresHandler.Export)

		r.Post("/faces/register", facesHandler.Register)
		r.Delete("/faces/{userID}", facesHandler.Delete)
	})
}
