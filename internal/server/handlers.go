package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":      "healthy",
		"version":     Version,
		"service":     "poolrisk",
		"active_runs": s.registry.Active(),
	}

	if n, err := cpu.Counts(true); err == nil {
		response["cpu_count"] = n
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		response["memory_used_percent"] = vm.UsedPercent
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleSystemStatus reports process and host load alongside engine state
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := s.getSystemStats()
	table := s.engine.Ratings().Table()
	limits := s.engine.Limits()

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime_seconds":      int(time.Since(s.startedAt).Seconds()),
		"goroutines":          runtime.NumGoroutine(),
		"cpu_percent":         cpuPercent,
		"memory_used_percent": memPercent,
		"runs": map[string]interface{}{
			"active": s.registry.Active(),
			"total":  len(s.registry.List()),
		},
		"rating_table": map[string]interface{}{
			"version": table.Version,
			"scales":  len(table.Scales),
		},
		"limits": map[string]interface{}{
			"min_trials":     limits.MinTrials,
			"max_trials":     limits.MaxTrials,
			"max_batches":    limits.MaxBatches,
			"default_trials": s.defaultTrials,
		},
	})
}

// handleListJobs lists the background jobs that can be triggered
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := []string{}
	if s.scheduler != nil {
		jobs = s.scheduler.JobNames()
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

// handleTriggerJob runs a registered job immediately
func (s *Server) handleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if s.scheduler == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"status": "error", "message": "no jobs registered"})
		return
	}
	job, ok := s.scheduler.Job(name)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"status": "error", "message": "unknown job " + name})
		return
	}

	if err := s.scheduler.RunNow(job); err != nil {
		s.log.Error().Err(err).Str("job", name).Msg("Manual job run failed")
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "success", "job": name})
}

// getSystemStats returns CPU and RAM usage percentages. The CPU sample
// blocks for 100ms.
func (s *Server) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(cpuPercent) == 0 {
		s.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return cpuPercent[0], 0
	}

	return cpuPercent[0], memStat.UsedPercent
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
