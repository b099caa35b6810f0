package handlers

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// requestTimeout bounds every simulation route except the progress stream
const requestTimeout = 5 * time.Minute

// RegisterRoutes registers all simulation routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/simulations", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))
			r.Post("/", h.HandleCreate)
			r.Post("/sync", h.HandleRunSync)
			r.Get("/", h.HandleList)
			r.Get("/{id}", h.HandleGet)
			r.Delete("/{id}", h.HandleCancel)
			r.Get("/{id}/distribution", h.HandleDistribution)
		})
		r.Get("/{id}/stream", h.HandleStream)
	})
}
