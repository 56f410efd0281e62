package web

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/faceauth/internal/constants"
	"github.com/kozaktomas/faceauth/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	facesHandler := handlers.NewFacesHandler(s.rec, s.logger)
	identitiesHandler := handlers.NewIdentitiesHandler(s.rec, s.logger)

	s.router.Get("/api/v1/health", handlers.HealthCheck)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(chiMiddleware.RequestSize(constants.MaxRequestBytes))

		// Faces
		r.Post("/login", facesHandler.Login)
		r.Post("/match", facesHandler.Match)
		r.Post("/suggestions", facesHandler.Suggestions)

		// Identities
		r.Get("/identities", identitiesHandler.List)
		r.Post("/identities/{identity}/embeddings", identitiesHandler.AddEmbedding)
		r.Post("/identities/{identity}/enrollment", identitiesHandler.Enrollment)
		r.Delete("/identities/{identity}", identitiesHandler.Remove)

		// Store
		r.Post("/store/reload", identitiesHandler.Reload)
	})
}
