// Package handlers provides HTTP handlers for shadow ratings.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aristath/poolrisk/internal/domain"
	"github.com/aristath/poolrisk/internal/engine"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// Handler handles rating HTTP requests
type Handler struct {
	engine *engine.Engine
	log    zerolog.Logger
}

// NewHandler creates a new rating handler
func NewHandler(eng *engine.Engine, log zerolog.Logger) *Handler {
	return &Handler{
		engine: eng,
		log:    log.With().Str("handler", "rating").Logger(),
	}
}

// RegisterRoutes registers rating routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/ratings", func(r chi.Router) {
		r.Post("/", h.HandleRate)
		r.Get("/table", h.HandleGetTable)
		r.Post("/table/reload", h.HandleReloadTable)
	})
}

// HandleRate handles POST /api/ratings. The body is a RiskReport, as
// returned by the simulation endpoints.
func (h *Handler) HandleRate(w http.ResponseWriter, r *http.Request) {
	var report domain.RiskReport
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&report); err != nil {
		h.writeError(w, domain.NewConfigurationError("body", "invalid JSON: %v", err))
		return
	}

	rated, err := h.engine.DeriveShadowRating(&report)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope(rated))
}

// HandleGetTable handles GET /api/ratings/table
func (h *Handler) HandleGetTable(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, envelope(h.engine.Ratings().Table()))
}

// HandleReloadTable handles POST /api/ratings/table/reload
func (h *Handler) HandleReloadTable(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ReloadRatingTable(); err != nil {
		h.log.Warn().Err(err).Msg("Manual rating table reload failed")
		h.writeError(w, err)
		return
	}
	table := h.engine.Ratings().Table()
	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"version": table.Version,
		"scales":  len(table.Scales),
	}))
}

func envelope(data interface{}) map[string]interface{} {
	return map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := map[string]interface{}{"code": "internal", "message": err.Error()}

	var cfgErr *domain.ConfigurationError
	if errors.As(err, &cfgErr) {
		status = http.StatusBadRequest
		body = map[string]interface{}{
			"code":    "invalid_configuration",
			"message": cfgErr.Reason,
			"field":   cfgErr.Field,
		}
	}
	h.writeJSON(w, status, map[string]interface{}{"error": body})
}
