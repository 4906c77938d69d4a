package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/vftens/ablationgrid/internal/ctxlog"
	"github.com/vftens/ablationgrid/internal/dispatch"
	"github.com/vftens/ablationgrid/internal/gpu"
	"github.com/vftens/ablationgrid/internal/session"
)

// Run executes the whole ablation experiment: persist all resolved configs,
// dispatch one trainer process per config under the worker bound, and clean
// the temporary files up again no matter how dispatch ends.
func (a *App) Run(ctx context.Context, cfg *Config) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if cfg.HealthcheckPort > 0 {
		go a.startHealthcheckServer(cfg.HealthcheckPort)
	}

	sess := session.New(a.experiment, cfg.ConfigDir)
	if err := sess.Open(ctx); err != nil {
		return fmt.Errorf("failed to prepare experiment: %w", err)
	}
	// Teardown must run on every exit path, including a panic below.
	defer func() {
		if err := sess.Close(ctx); err != nil {
			a.logger.Error("Cleanup finished with errors.", "error", err)
		}
	}()

	if cfg.DryRun {
		a.printPlan(sess)
		return nil
	}

	// An interrupt converts into a cooperative stop of new launches;
	// trainers already running are left to finish on their own.
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	d := dispatch.New(dispatch.Options{
		Workers:  a.experiment.Workers,
		Throttle: a.experiment.Throttle,
		Trainer:  a.experiment.TrainerArgv(),
		Flags:    a.experiment.Flags,
		GPUs:     gpu.NvidiaSMI{},
		Runner:   dispatch.ExecRunner{},
	})

	if err := d.Run(sigCtx, sess.Files()); err != nil {
		return fmt.Errorf("dispatch failed: %w", err)
	}

	a.logger.Debug("App.Run method finished.")
	return nil
}

// printPlan lists the trainer invocations a real run would perform.
func (a *App) printPlan(sess *session.Session) {
	a.logger.Info("Dry run: printing planned invocations only.")
	for _, file := range sess.Files() {
		cmd := fmt.Sprintf("%s train -c %s", a.experiment.Trainer, file)
		if a.experiment.Flags != "" {
			cmd += " " + a.experiment.Flags
		}
		if !strings.Contains(a.experiment.Flags, "--gpu") {
			cmd += " --gpu <selected at launch>"
		}
		fmt.Fprintln(a.outW, cmd)
	}
}
