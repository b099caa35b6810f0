// Package metrics provides Prometheus instrumentation for the risk engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SimulationsTotal counts finished simulation runs by terminal status.
	SimulationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poolrisk_simulations_total",
		Help: "Total number of simulation runs by outcome",
	}, []string{"status"})

	// SimulationDuration tracks wall-clock time of completed runs.
	SimulationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "poolrisk_simulation_duration_seconds",
		Help:    "Simulation run duration in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	// TrialsTotal counts evaluated Monte Carlo trials.
	TrialsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poolrisk_trials_total",
		Help: "Total Monte Carlo trials evaluated",
	})

	// ActiveRuns tracks asynchronous runs that have not finished.
	ActiveRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "poolrisk_active_runs",
		Help: "Number of simulation runs in progress",
	})

	// RatingTableReloads counts rating table reload attempts by result.
	RatingTableReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poolrisk_rating_table_reloads_total",
		Help: "Rating table reload attempts",
	}, []string{"result"})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poolrisk_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "poolrisk_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 5.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
// The wrapped writer keeps http.Hijacker so WebSocket upgrades still work.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := routePattern(r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// routePattern uses the chi route pattern to keep label cardinality bounded
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
