// Package experiment loads ablation experiment definitions from HCL. An
// experiment names a base trainer configuration, execution settings for the
// external trainer, and an ordered grid of hyperparameter override variants.
package experiment

import (
	"strings"
	"time"

	"github.com/vftens/ablationgrid/internal/modelcfg"
)

// DefaultTrainer is the command used to launch a training run when the
// experiment file does not override it.
const DefaultTrainer = "python Main.py"

// Variant is one point of the ablation grid: a named set of hyperparameter
// overrides that is deep-merged onto the base configuration.
type Variant struct {
	Name      string
	Overrides modelcfg.Document
}

// Experiment is the fully resolved definition of one ablation study.
type Experiment struct {
	// Name labels the study; it appears in log lines only.
	Name string

	// BaseConfig is the path to the base trainer configuration document.
	BaseConfig string

	// OutputDir receives the schedule manifest and, nested per run, every
	// checkpoint directory.
	OutputDir string

	// Trainer is the command prefix used to invoke the external trainer,
	// e.g. "python Main.py". Split on whitespace at dispatch time.
	Trainer string

	// Flags is appended verbatim to every trainer invocation.
	Flags string

	// Repeat is the number of repetitions per grid point.
	Repeat int

	// Workers bounds the number of concurrently running trainer processes.
	Workers int

	// Throttle is the delay inserted before each job submission so that
	// successive GPU-memory queries are less likely to race.
	Throttle time.Duration

	// Variants is the ordered ablation grid.
	Variants []Variant
}

// TrainerArgv returns the trainer command split into argv form.
func (e *Experiment) TrainerArgv() []string {
	return strings.Fields(e.Trainer)
}

// TotalRuns returns the number of training runs this experiment will spawn.
func (e *Experiment) TotalRuns() int {
	return e.Repeat * len(e.Variants)
}
