// Package handlers provides HTTP handlers for scenario presets and
// side-by-side scenario comparison.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aristath/poolrisk/internal/domain"
	"github.com/aristath/poolrisk/internal/engine"
	"github.com/aristath/poolrisk/internal/modules/scenarios"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

const (
	maxBodyBytes   = 1 << 20
	compareTimeout = 5 * time.Minute
	defaultSeed    = 42
)

// Handler handles scenario HTTP requests
type Handler struct {
	engine        *engine.Engine
	defaultTrials int
	log           zerolog.Logger
}

// NewHandler creates a new scenarios handler
func NewHandler(eng *engine.Engine, defaultTrials int, log zerolog.Logger) *Handler {
	if defaultTrials <= 0 {
		defaultTrials = domain.DefaultTrials
	}
	return &Handler{
		engine:        eng,
		defaultTrials: defaultTrials,
		log:           log.With().Str("handler", "scenarios").Logger(),
	}
}

// RegisterRoutes registers scenario routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/scenarios", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Get("/sample-pool", h.HandleSamplePool)
		r.Get("/{name}", h.HandleGet)
		r.With(middleware.Timeout(compareTimeout)).Post("/compare", h.HandleCompare)
	})
}

// HandleList handles GET /api/scenarios
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	presets := scenarios.Presets()
	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"presets": presets,
		"count":   len(presets),
	}))
}

// HandleGet handles GET /api/scenarios/{name}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	scenario, err := scenarios.Get(chi.URLParam(r, "name"))
	if err != nil {
		h.writeErrorBody(w, http.StatusNotFound, "not_found", err.Error(), "")
		return
	}
	h.writeJSON(w, http.StatusOK, envelope(scenario.Normalized()))
}

// HandleSamplePool handles GET /api/scenarios/sample-pool
func (h *Handler) HandleSamplePool(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, envelope(scenarios.SamplePool()))
}

// compareRequest names presets, inline scenarios, or both. Presets run
// first, in the order given.
type compareRequest struct {
	Pool      *domain.PoolDescriptor      `json:"pool"`
	Presets   []string                    `json:"presets"`
	Scenarios []domain.ScenarioParameters `json:"scenarios"`
	Trials    int                         `json:"trials"`
	Seed      *uint64                     `json:"seed"`
}

// HandleCompare handles POST /api/scenarios/compare. Every scenario runs
// against the same pool and seed so differences come from the assumptions
// alone.
func (h *Handler) HandleCompare(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, domain.NewConfigurationError("body", "invalid JSON: %v", err))
		return
	}

	pool := scenarios.SamplePool()
	if req.Pool != nil {
		pool = *req.Pool
	}

	list := make([]domain.ScenarioParameters, 0, len(req.Presets)+len(req.Scenarios))
	for _, name := range req.Presets {
		scenario, err := scenarios.Get(name)
		if err != nil {
			h.writeError(w, err)
			return
		}
		list = append(list, scenario)
	}
	list = append(list, req.Scenarios...)
	if len(list) == 0 {
		for _, p := range scenarios.Presets() {
			list = append(list, p.Scenario)
		}
	}

	cfg := domain.SimulationConfig{Trials: req.Trials, Seed: defaultSeed}
	if cfg.Trials == 0 {
		cfg.Trials = h.defaultTrials
	}
	if req.Seed != nil {
		cfg.Seed = *req.Seed
	}

	results, err := h.engine.Compare(r.Context(), pool, list, cfg)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"pool":    pool.Name,
		"seed":    cfg.Seed,
		"trials":  cfg.Trials,
		"results": results,
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
	var cfgErr *domain.ConfigurationError
	switch {
	case errors.As(err, &cfgErr):
		h.writeErrorBody(w, http.StatusBadRequest, "invalid_configuration", cfgErr.Reason, cfgErr.Field)
	case errors.Is(err, domain.ErrCancelled):
		h.writeErrorBody(w, http.StatusConflict, "cancelled", err.Error(), "")
	default:
		h.log.Error().Err(err).Msg("Scenario comparison failed")
		h.writeErrorBody(w, http.StatusInternalServerError, "internal", "comparison failed", "")
	}
}

func (h *Handler) writeErrorBody(w http.ResponseWriter, status int, code, message, field string) {
	body := map[string]interface{}{
		"code":    code,
		"message": message,
	}
	if field != "" {
		body["field"] = field
	}
	h.writeJSON(w, status, map[string]interface{}{"error": body})
}
