package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aristath/poolrisk/internal/domain"
	"github.com/aristath/poolrisk/internal/engine"
	"github.com/aristath/poolrisk/internal/modules/rating"
	"github.com/aristath/poolrisk/internal/modules/simulation"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T) *chi.Mux {
	t.Helper()
	logger := zerolog.Nop()
	provider, err := rating.NewProvider("", logger)
	require.NoError(t, err)
	driver := simulation.NewDriver(simulation.Options{Limits: domain.DefaultLimits(), Workers: 2}, logger)

	router := chi.NewRouter()
	router.Route("/api", NewHandler(engine.New(driver, provider, logger), 2000, logger).RegisterRoutes)
	return router
}

func serve(router http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var response map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &response)
	return w, response
}

func TestHandleList(t *testing.T) {
	router := setupRouter(t)

	w, response := serve(router, http.MethodGet, "/api/scenarios", "")
	require.Equal(t, http.StatusOK, w.Code)

	data := response["data"].(map[string]interface{})
	assert.Equal(t, float64(3), data["count"])
	first := data["presets"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "base", first["scenario"].(map[string]interface{})["name"])
	assert.NotEmpty(t, first["description"])
}

func TestHandleGet(t *testing.T) {
	router := setupRouter(t)

	w, response := serve(router, http.MethodGet, "/api/scenarios/STRESS", "")
	require.Equal(t, http.StatusOK, w.Code)
	data := response["data"].(map[string]interface{})
	assert.Equal(t, "stress", data["name"])
	assert.Equal(t, "beta", data["default_rate"].(map[string]interface{})["family"])
	assert.Contains(t, data["confidence_levels"], 0.99)

	w, _ = serve(router, http.MethodGet, "/api/scenarios/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleSamplePool(t *testing.T) {
	router := setupRouter(t)

	w, response := serve(router, http.MethodGet, "/api/scenarios/sample-pool", "")
	require.Equal(t, http.StatusOK, w.Code)
	data := response["data"].(map[string]interface{})
	assert.Equal(t, "125000000", data["notional"])
	assert.Len(t, data["tranches"], 3)
}

func TestHandleCompare(t *testing.T) {
	router := setupRouter(t)

	w, response := serve(router, http.MethodPost, "/api/scenarios/compare", `{"presets":["base","stress"],"trials":2000,"seed":9}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	data := response["data"].(map[string]interface{})
	assert.Equal(t, float64(9), data["seed"])
	results := data["results"].([]interface{})
	require.Len(t, results, 2)

	base := results[0].(map[string]interface{})
	stress := results[1].(map[string]interface{})
	assert.Equal(t, "base", base["scenario"])
	assert.Equal(t, "stress", stress["scenario"])

	baseEL := base["report"].(map[string]interface{})["expected_loss"].(float64)
	stressEL := stress["report"].(map[string]interface{})["expected_loss"].(float64)
	assert.Greater(t, stressEL, baseEL)
}

func TestHandleCompare_AllPresetsByDefault(t *testing.T) {
	router := setupRouter(t)

	w, response := serve(router, http.MethodPost, "/api/scenarios/compare", `{"trials":1000}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, response["data"].(map[string]interface{})["results"], 3)
}

func TestHandleCompare_Errors(t *testing.T) {
	router := setupRouter(t)

	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{"unknown preset", `{"presets":["nope"]}`, "scenario"},
		{"too few trials", `{"presets":["base"],"trials":5}`, "config.trials"},
		{"unknown field", `{"presets":["base"],"workers":3}`, "body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, response := serve(router, http.MethodPost, "/api/scenarios/compare", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)
			errBody := response["error"].(map[string]interface{})
			assert.Equal(t, tt.wantField, errBody["field"])
		})
	}
}
