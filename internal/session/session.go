// Package session ties grid expansion, config persistence and teardown into
// one scoped resource. Open writes every resolved configuration plus the
// schedule manifest to disk; Close removes the temporary files again on
// every exit path, whether the dispatch in between finished, failed or was
// interrupted.
package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/vftens/ablationgrid/internal/ctxlog"
	"github.com/vftens/ablationgrid/internal/experiment"
	"github.com/vftens/ablationgrid/internal/grid"
	"github.com/vftens/ablationgrid/internal/modelcfg"
)

// Session owns the on-disk lifetime of one ablation experiment.
type Session struct {
	exp       *experiment.Experiment
	configDir string

	stamp    string
	resolved []grid.Resolved
	files    []string

	closeOnce sync.Once
	closeErr  error
}

// New creates a session writing temporary config files into configDir.
func New(exp *experiment.Experiment, configDir string) *Session {
	return &Session{exp: exp, configDir: configDir}
}

// Open expands the ablation grid, persists one config file per resolved run
// into the temp config directory, and records the schedule manifest in the
// experiment's output directory. A write failure aborts immediately;
// whatever already reached disk is left for Close to sweep up.
func (s *Session) Open(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	if err := os.MkdirAll(s.configDir, 0o755); err != nil {
		return fmt.Errorf("failed to create temp config directory %s: %w", s.configDir, err)
	}
	if err := os.MkdirAll(s.exp.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", s.exp.OutputDir, err)
	}

	base, err := modelcfg.Load(s.exp.BaseConfig)
	if err != nil {
		return fmt.Errorf("failed to load base configuration: %w", err)
	}

	s.stamp = time.Now().Format("20060102-150405")

	if err := s.writeManifest(ctx); err != nil {
		return err
	}

	s.resolved, err = grid.Expand(ctx, base, s.exp, s.stamp)
	if err != nil {
		return fmt.Errorf("failed to expand ablation grid: %w", err)
	}

	for _, r := range s.resolved {
		file := filepath.Join(s.configDir, r.RunName+".json")
		if err := r.Config.Save(file); err != nil {
			return fmt.Errorf("failed to persist run config: %w", err)
		}
		s.files = append(s.files, file)
	}

	logger.Info("📋 Experiment prepared.",
		"experiment", s.exp.Name, "runs", len(s.files), "config_dir", s.configDir)
	return nil
}

// writeManifest records the grid-index → overrides mapping as a timestamped
// reproducibility artifact. The orchestrator itself never reads it back.
func (s *Session) writeManifest(ctx context.Context) error {
	schedule := make(modelcfg.Document, len(s.exp.Variants))
	for i, variant := range s.exp.Variants {
		schedule[strconv.Itoa(i)] = map[string]any(variant.Overrides)
	}

	path := filepath.Join(s.exp.OutputDir, fmt.Sprintf("ablation_schedule_%s.json", s.stamp))
	if err := schedule.Save(path); err != nil {
		return fmt.Errorf("failed to write schedule manifest: %w", err)
	}

	ctxlog.FromContext(ctx).Debug("Schedule manifest written.", "path", path, "grid_points", len(s.exp.Variants))
	return nil
}

// Files returns the persisted config file paths in dispatch order.
func (s *Session) Files() []string {
	return s.files
}

// Resolved returns the expanded run configurations.
func (s *Session) Resolved() []grid.Resolved {
	return s.resolved
}

// Stamp returns the run timestamp shared by every artifact of this session.
func (s *Session) Stamp() string {
	return s.stamp
}

// Close deletes every temporary config file this session wrote, then
// removes the temp config directory if and only if nothing else lives in
// it. Removal is best-effort: one failed delete does not stop the rest.
// Close runs its teardown exactly once; later calls return the first result.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		logger := ctxlog.FromContext(ctx)
		var errs []error

		for _, file := range s.files {
			if err := os.Remove(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
				logger.Error("Failed to remove temp config file.", "file", file, "error", err)
				errs = append(errs, err)
			}
		}

		entries, err := os.ReadDir(s.configDir)
		if err == nil && len(entries) == 0 {
			if err := os.Remove(s.configDir); err != nil {
				errs = append(errs, err)
			}
		}

		logger.Info("🧹 Temporary configs cleaned up.", "removed", len(s.files)-len(errs))
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}
