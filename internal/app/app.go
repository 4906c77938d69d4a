package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vftens/ablationgrid/internal/ctxlog"
	"github.com/vftens/ablationgrid/internal/experiment"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW       io.Writer
	logger     *slog.Logger
	experiment *experiment.Experiment
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger and the experiment
// definition already loaded. A failure to load the experiment is a fatal
// startup error and panics; the entrypoint recovers it into a clean exit.
func NewApp(outW io.Writer, cfg *Config, loader *experiment.Loader) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	exp, err := loader.Load(ctx, cfg.ExperimentPath)
	if err != nil {
		panic(fmt.Errorf("failed to load experiment definition: %w", err))
	}
	logger.Debug("Experiment definition loaded.",
		"experiment", exp.Name, "variants", len(exp.Variants), "total_runs", exp.TotalRuns())

	return &App{
		outW:       outW,
		logger:     logger,
		experiment: exp,
	}
}

// Experiment returns the loaded experiment definition. This is primarily
// for testing.
func (a *App) Experiment() *experiment.Experiment {
	return a.experiment
}
