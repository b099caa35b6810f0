// Package handlers provides HTTP handlers for simulation runs.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aristath/poolrisk/internal/domain"
	"github.com/aristath/poolrisk/internal/engine"
	"github.com/aristath/poolrisk/internal/modules/scenarios"
	"github.com/aristath/poolrisk/internal/modules/simulation"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultSeed is used when a request does not set one
const DefaultSeed uint64 = 42

// maxBodyBytes bounds request bodies; pools and scenarios are small
const maxBodyBytes = 1 << 20

// Handler handles simulation HTTP requests
type Handler struct {
	engine        *engine.Engine
	registry      *simulation.Registry
	defaultTrials int
	origins       []string
	log           zerolog.Logger
}

// NewHandler creates a new simulation handler. origins are the host
// patterns allowed to open a progress stream from a browser.
func NewHandler(eng *engine.Engine, registry *simulation.Registry, defaultTrials int, origins []string, log zerolog.Logger) *Handler {
	if defaultTrials <= 0 {
		defaultTrials = domain.DefaultTrials
	}
	return &Handler{
		engine:        eng,
		registry:      registry,
		defaultTrials: defaultTrials,
		origins:       origins,
		log:           log.With().Str("handler", "simulation").Logger(),
	}
}

// simulationRequest is the body of POST /api/simulations[/sync]. The pool
// defaults to the sample pool; the scenario is given inline or by preset name.
type simulationRequest struct {
	Pool     *domain.PoolDescriptor     `json:"pool"`
	Scenario *domain.ScenarioParameters `json:"scenario"`
	Preset   string                     `json:"preset"`
	Config   configRequest              `json:"config"`
}

type configRequest struct {
	Trials             int                `json:"trials"`
	Seed               *uint64            `json:"seed"`
	Granularity        domain.Granularity `json:"granularity"`
	BatchSize          int                `json:"batch_size"`
	Workers            int                `json:"workers"`
	ExportDistribution bool               `json:"export_distribution"`
	BumpBps            float64            `json:"bump_bps"`
}

func (h *Handler) decodeRequest(w http.ResponseWriter, r *http.Request) (domain.PoolDescriptor, domain.ScenarioParameters, domain.SimulationConfig, error) {
	var req simulationRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return domain.PoolDescriptor{}, domain.ScenarioParameters{}, domain.SimulationConfig{},
			domain.NewConfigurationError("body", "invalid JSON: %v", err)
	}

	pool := scenarios.SamplePool()
	if req.Pool != nil {
		pool = *req.Pool
	}

	var scenario domain.ScenarioParameters
	switch {
	case req.Scenario != nil:
		scenario = *req.Scenario
	case req.Preset != "":
		preset, err := scenarios.Get(req.Preset)
		if err != nil {
			return domain.PoolDescriptor{}, domain.ScenarioParameters{}, domain.SimulationConfig{}, err
		}
		scenario = preset
	default:
		return domain.PoolDescriptor{}, domain.ScenarioParameters{}, domain.SimulationConfig{},
			domain.NewConfigurationError("scenario", "either scenario or preset is required")
	}

	cfg := domain.SimulationConfig{
		Trials:             req.Config.Trials,
		Seed:               DefaultSeed,
		Granularity:        req.Config.Granularity,
		BatchSize:          req.Config.BatchSize,
		Workers:            req.Config.Workers,
		ExportDistribution: req.Config.ExportDistribution,
		BumpBps:            req.Config.BumpBps,
	}
	if cfg.Trials == 0 {
		cfg.Trials = h.defaultTrials
	}
	if req.Config.Seed != nil {
		cfg.Seed = *req.Config.Seed
	}
	return pool, scenario, cfg, nil
}

// HandleCreate handles POST /api/simulations
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	pool, scenario, cfg, err := h.decodeRequest(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	// The run must outlive this request
	run, err := h.engine.Start(context.Background(), pool, scenario, cfg)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.registry.Add(run)

	h.log.Info().
		Str("run_id", run.ID).
		Str("scenario", run.Scenario).
		Int("trials", run.Config.Trials).
		Msg("Simulation run accepted")

	w.Header().Set("Location", "/api/simulations/"+run.ID)
	h.writeJSON(w, http.StatusAccepted, envelope(summary(run.Snapshot())))
}

// HandleRunSync handles POST /api/simulations/sync
func (h *Handler) HandleRunSync(w http.ResponseWriter, r *http.Request) {
	pool, scenario, cfg, err := h.decodeRequest(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.engine.Run(r.Context(), pool, scenario, cfg, nil)
	if err != nil {
		h.writeError(w, err)
		return
	}
	rated, err := h.engine.DeriveShadowRating(result.Report)
	if err != nil {
		h.writeError(w, err)
		return
	}

	data := map[string]interface{}{
		"report":     result.Report,
		"rating":     rated,
		"elapsed_ms": result.Elapsed.Milliseconds(),
	}
	if cfg.ExportDistribution {
		data["distribution"] = result.Outcomes
	}
	h.writeJSON(w, http.StatusOK, envelope(data))
}

// HandleList handles GET /api/simulations
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	runs := h.registry.List()
	list := make([]simulation.RunSnapshot, 0, len(runs))
	for _, run := range runs {
		list = append(list, summary(run.Snapshot()))
	}
	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"runs":  list,
		"count": len(list),
	}))
}

// HandleGet handles GET /api/simulations/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	run, err := h.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	snap := run.Snapshot()
	data := map[string]interface{}{"run": snap}
	if snap.Report != nil {
		rated, err := h.engine.DeriveShadowRating(snap.Report)
		if err != nil {
			h.log.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to rate completed run")
		} else {
			data["rating"] = rated
		}
	}
	h.writeJSON(w, http.StatusOK, envelope(data))
}

// HandleCancel handles DELETE /api/simulations/{id}
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.registry.Cancel(id); err != nil {
		h.writeError(w, err)
		return
	}
	run, err := h.registry.Get(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, envelope(summary(run.Snapshot())))
}

// HandleDistribution handles GET /api/simulations/{id}/distribution.
// Responds with MessagePack when the client accepts it, JSON otherwise.
func (h *Handler) HandleDistribution(w http.ResponseWriter, r *http.Request) {
	run, err := h.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	result, err := run.Result()
	if err != nil {
		h.writeError(w, err)
		return
	}
	if result.Outcomes == nil {
		h.writeErrorBody(w, http.StatusConflict, "not_exported", "run was started without export_distribution", "")
		return
	}

	if acceptsMsgpack(r) {
		w.Header().Set("Content-Type", "application/msgpack")
		w.WriteHeader(http.StatusOK)
		enc := msgpack.NewEncoder(w)
		enc.SetCustomStructTag("json")
		if err := enc.Encode(result.Outcomes); err != nil {
			h.log.Error().Err(err).Msg("Failed to encode msgpack response")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"run_id":   run.ID,
		"outcomes": result.Outcomes,
		"count":    len(result.Outcomes),
	}))
}

func acceptsMsgpack(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/msgpack") || strings.Contains(accept, "application/x-msgpack")
}

// summary drops the report so list responses stay small
func summary(snap simulation.RunSnapshot) simulation.RunSnapshot {
	snap.Report = nil
	return snap
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

// writeError maps engine errors onto HTTP statuses
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var cfgErr *domain.ConfigurationError
	var cancelled *domain.CancelledError

	switch {
	case errors.As(err, &cfgErr):
		h.writeErrorBody(w, http.StatusBadRequest, "invalid_configuration", cfgErr.Reason, cfgErr.Field)
	case errors.Is(err, simulation.ErrRunNotFound):
		h.writeErrorBody(w, http.StatusNotFound, "not_found", err.Error(), "")
	case errors.Is(err, simulation.ErrRunNotComplete):
		h.writeErrorBody(w, http.StatusConflict, "not_complete", err.Error(), "")
	case errors.As(err, &cancelled):
		h.writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error": map[string]interface{}{
				"code":    "cancelled",
				"message": err.Error(),
				"partial": cancelled.Partial,
			},
		})
	default:
		h.log.Error().Err(err).Msg("Simulation request failed")
		h.writeErrorBody(w, http.StatusInternalServerError, "internal", "simulation failed", "")
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
