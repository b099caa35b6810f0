// Package di provides dependency injection wiring and initialization.
package di

import (
	"github.com/aristath/poolrisk/internal/engine"
	"github.com/aristath/poolrisk/internal/modules/rating"
	"github.com/aristath/poolrisk/internal/modules/simulation"
	"github.com/aristath/poolrisk/internal/scheduler"
)

// Container holds the wired services shared by the server and its jobs
type Container struct {
	Ratings   *rating.Provider     // Active rating threshold table
	Driver    *simulation.Driver   // Monte Carlo driver with configured limits
	Engine    *engine.Engine       // Simulation and rating entry point
	Registry  *simulation.Registry // Asynchronous runs
	Scheduler *scheduler.Scheduler // Background jobs (not started)
}
