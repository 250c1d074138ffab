package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/faceid/internal/directory"
	"github.com/kozaktomas/faceid/internal/web/handlers"
	"github.com/kozaktomas/faceid/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	faceIDHandler := handlers.NewFaceIDHandler(s.deps.Service, s.sessionManager)
	authHandler := handlers.NewAuthHandler(s.sessionManager, s.deps.Members, s.config.Session.TTL)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handlers.HealthCheck)
		r.Get("/ready", handlers.Readiness(s.deps.ReadyChecks))

		r.Get("/auth/status", authHandler.Status)
		r.Post("/auth/logout", authHandler.Logout)

		r.With(middleware.RateLimit(s.deps.LoginLimit)).Post("/faceid/login", faceIDHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(s.sessionManager))

			r.Post("/auth/refresh", authHandler.Refresh)

			r.Post("/faceid/register", faceIDHandler.Register)
			r.Get("/faceid/profiles", faceIDHandler.ListProfiles)
			r.Delete("/faceid/profiles", faceIDHandler.DeactivateAll)
			r.Get("/faceid/profiles/{id}", faceIDHandler.GetProfile)
			r.Delete("/faceid/profiles/{id}", faceIDHandler.DeactivateProfile)
			r.Post("/faceid/profiles/{id}/reactivate", faceIDHandler.ReactivateProfile)
			r.Delete("/faceid/profiles/{id}/permanent", faceIDHandler.DeleteProfile)

			r.With(middleware.RequireRole(directory.RoleAdmin)).Post("/faceid/cleanup", faceIDHandler.Cleanup)
		})
	})

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}`))
	})
}
