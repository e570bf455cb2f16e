package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Handle("/metrics", s.metrics.Handler())

	// Hub-compatible routes
	r.Get("/details", s.handleDetails)
	r.Route("/{doorId}", func(r chi.Router) {
		r.Post("/ping", s.handlePing)
		r.Get("/refresh", s.handleRefresh)
		r.Post("/control", s.handleControl)
	})

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/doors", func(r chi.Router) {
			r.Get("/", s.handleListDoors)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDoor)
				r.Get("/status", s.handleGetDoorStatus)
				r.Put("/peer", s.handleRegisterPeer)
				r.Post("/commands", s.handleCommand)
				r.Get("/history", s.handleDoorHistory)
			})
		})

		if s.events != nil {
			r.Get("/events", s.events.ServeHTTP)
		}
		if s.hub != nil {
			r.Get("/ws", s.handleWebSocket)
		}
	})

	return r
}
