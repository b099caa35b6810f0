// Package main is the entry point for the pool risk HTTP service.
// It loads configuration, wires the engine, starts background jobs and
// serves the API until interrupted.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/poolrisk/internal/config"
	"github.com/aristath/poolrisk/internal/di"
	"github.com/aristath/poolrisk/internal/server"
	"github.com/aristath/poolrisk/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Int("workers", cfg.Simulation.Workers).
		Int("min_trials", cfg.Simulation.MinTrials).
		Int("max_trials", cfg.Simulation.MaxTrials).
		Msg("Starting pool risk engine")

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}

	container.Scheduler.Start()

	srv := server.New(server.Config{
		Log:            log,
		Engine:         container.Engine,
		Registry:       container.Registry,
		Scheduler:      container.Scheduler,
		Port:           cfg.Port,
		DevMode:        cfg.DevMode,
		DefaultTrials:  cfg.Simulation.DefaultTrials,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	container.Scheduler.Stop()

	// Stop accepting requests before cancelling runs so no new run slips in
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	if active := container.Registry.Active(); active > 0 {
		log.Info().Int("runs", active).Msg("Cancelling active simulation runs")
		for _, run := range container.Registry.List() {
			run.Cancel()
		}
	}

	log.Info().Msg("Server stopped")
}
