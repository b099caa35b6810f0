package handlers

import (
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

func TestRegisterRoutes(t *testing.T) {
	env := setup(t)

	var routes []string
	err := chi.Walk(env.router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, method+" "+route)
		return nil
	})
	assert.NoError(t, err)

	for _, want := range []string{
		"POST /api/simulations/",
		"POST /api/simulations/sync",
		"GET /api/simulations/",
		"GET /api/simulations/{id}",
		"DELETE /api/simulations/{id}",
		"GET /api/simulations/{id}/distribution",
		"GET /api/simulations/{id}/stream",
	} {
		assert.Contains(t, routes, want)
	}
}
