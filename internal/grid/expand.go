// Package grid expands an ablation experiment into fully resolved trainer
// configurations: one per (repetition, variant) pair, each with a unique run
// name and an isolated checkpoint directory.
package grid

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vftens/ablationgrid/internal/ctxlog"
	"github.com/vftens/ablationgrid/internal/experiment"
	"github.com/vftens/ablationgrid/internal/modelcfg"
)

// Resolved is one base configuration merged with one grid point and pinned
// to its own output locations. It is written to disk once and never mutated
// afterwards.
type Resolved struct {
	// RunName uniquely identifies the run within the experiment and doubles
	// as the config file stem: rep<r>_config<i>_dt<stamp>.
	RunName string

	// Config is the merged trainer configuration.
	Config modelcfg.Document

	// CheckpointDir is the isolated directory this run writes into.
	CheckpointDir string

	Repetition int
	GridIndex  int
}

// Expand produces repeat × len(variants) resolved configurations. For each
// pair the variant overrides are deep-merged onto a fresh copy of base, the
// configuration name and checkpoint paths are rewritten to the run's
// isolated location, and the checkpoint directory is created on disk.
// stamp is shared by every run of the experiment.
func Expand(ctx context.Context, base modelcfg.Document, exp *experiment.Experiment, stamp string) ([]Resolved, error) {
	logger := ctxlog.FromContext(ctx)

	// Merge once per grid point; repetitions reuse the merged document.
	merged := make([]modelcfg.Document, 0, len(exp.Variants))
	for _, variant := range exp.Variants {
		merged = append(merged, modelcfg.Merge(base, variant.Overrides))
	}

	resolved := make([]Resolved, 0, exp.Repeat*len(merged))
	for run := 0; run < exp.Repeat; run++ {
		for i, doc := range merged {
			r, err := resolve(doc, exp.OutputDir, run, i, stamp)
			if err != nil {
				return nil, err
			}
			resolved = append(resolved, r)
		}
	}

	logger.Debug("Grid expansion complete.",
		"variants", len(exp.Variants), "repeat", exp.Repeat, "resolved", len(resolved))
	return resolved, nil
}

// resolve copies doc and rewrites its identity fields for one run.
func resolve(doc modelcfg.Document, outputDir string, run, gridIndex int, stamp string) (Resolved, error) {
	c := doc.Copy()
	runName := fmt.Sprintf("rep%d_config%d_dt%s", run, gridIndex, stamp)

	name, _ := c.StringAt("name")
	c.SetPath(fmt.Sprintf("%s_%s", name, runName), "name")

	checkpoint, _ := c.StringAt("args", "checkpoint")
	out := filepath.Join(outputDir, checkpoint, runName)
	c.SetPath(out, "args", "checkpoint")

	// The resume file keeps its own name; only its directory moves into the
	// run's isolated checkpoint location.
	if pair, ok := c.StringSliceAt("args", "load_folder_file"); ok && len(pair) == 2 {
		c.SetPath([]any{out, pair[1]}, "args", "load_folder_file")
	}

	if err := os.MkdirAll(out, 0o755); err != nil {
		return Resolved{}, fmt.Errorf("failed to create checkpoint directory %s: %w", out, err)
	}

	return Resolved{
		RunName:       runName,
		Config:        c,
		CheckpointDir: out,
		Repetition:    run,
		GridIndex:     gridIndex,
	}, nil
}
