package experiment

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vftens/ablationgrid/internal/ctxlog"
	"github.com/vftens/ablationgrid/internal/fsutil"
	"github.com/vftens/ablationgrid/internal/modelcfg"
)

// Loader parses experiment definitions from HCL files.
type Loader struct{}

// NewLoader creates a new HCL experiment loader.
func NewLoader() *Loader {
	return &Loader{}
}

// fileRoot is a struct used to decode all top-level blocks from any file.
type fileRoot struct {
	Experiments []*experimentBlock `hcl:"experiment,block"`
	Variants    []*variantBlock    `hcl:"variant,block"`
	Remain      hcl.Body           `hcl:",remain"`
}

type experimentBlock struct {
	Name       string `hcl:"name,label"`
	BaseConfig string `hcl:"base_config"`
	OutputDir  string `hcl:"output_directory"`
	Trainer    string `hcl:"trainer,optional"`
	Flags      string `hcl:"flags,optional"`
	Repeat     int    `hcl:"repeat,optional"`
	Workers    int    `hcl:"workers,optional"`
	ThrottleMS int    `hcl:"throttle_ms,optional"`
}

type variantBlock struct {
	Name      string         `hcl:"name,label"`
	Overrides hcl.Expression `hcl:"overrides"`
}

// Load reads the experiment definition from path, which may be a single
// .hcl file or a directory searched recursively. Exactly one experiment
// block must exist across all files; variant blocks are collected in file
// order and form the ablation grid.
func (l *Loader) Load(ctx context.Context, path string) (*Experiment, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Experiment loader started.", "path", path)

	files, err := l.findFiles(path)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered experiment files.", "count", len(files))

	parser := hclparse.NewParser()
	var exp *Experiment
	var variants []Variant

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse experiment file %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode experiment file %s: %w", file, diags)
		}

		for _, block := range root.Experiments {
			if exp != nil {
				return nil, fmt.Errorf("duplicate experiment block %q in %s: only one experiment may be defined", block.Name, file)
			}
			exp = l.translateExperiment(block)
		}

		for _, block := range root.Variants {
			variant, err := l.translateVariant(block)
			if err != nil {
				return nil, fmt.Errorf("in %s: %w", file, err)
			}
			variants = append(variants, variant)
		}
	}

	if exp == nil {
		return nil, fmt.Errorf("no experiment block found under %s", path)
	}
	exp.Variants = variants

	logger.Debug("Experiment loading complete.",
		"experiment", exp.Name, "variants", len(exp.Variants), "repeat", exp.Repeat)
	return exp, nil
}

// findFiles resolves path into the list of HCL files to parse.
func (l *Loader) findFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot access experiment path %s: %w", path, err)
	}
	if info.IsDir() {
		files, err := fsutil.FindFilesByExtension(path, ".hcl")
		if err != nil {
			return nil, fmt.Errorf("failed to scan experiment directory %s: %w", path, err)
		}
		return files, nil
	}
	return []string{path}, nil
}

// translateExperiment applies defaults on top of the decoded block.
func (l *Loader) translateExperiment(block *experimentBlock) *Experiment {
	exp := &Experiment{
		Name:       block.Name,
		BaseConfig: block.BaseConfig,
		OutputDir:  block.OutputDir,
		Trainer:    block.Trainer,
		Flags:      block.Flags,
		Repeat:     block.Repeat,
		Workers:    block.Workers,
		Throttle:   time.Duration(block.ThrottleMS) * time.Millisecond,
	}
	if exp.Trainer == "" {
		exp.Trainer = DefaultTrainer
	}
	if exp.Repeat <= 0 {
		exp.Repeat = 1
	}
	if exp.Workers <= 0 {
		exp.Workers = 1
	}
	if block.ThrottleMS <= 0 {
		exp.Throttle = time.Second
	}
	return exp
}

// translateVariant evaluates the overrides expression and converts the
// resulting cty value into a native override document.
func (l *Loader) translateVariant(block *variantBlock) (Variant, error) {
	val, diags := block.Overrides.Value(nil)
	if diags.HasErrors() {
		return Variant{}, fmt.Errorf("failed to evaluate overrides for variant %q: %w", block.Name, diags)
	}

	native, err := ctyToNative(val)
	if err != nil {
		return Variant{}, fmt.Errorf("invalid overrides for variant %q: %w", block.Name, err)
	}
	overrides, ok := native.(map[string]any)
	if !ok {
		return Variant{}, fmt.Errorf("overrides for variant %q must be an object", block.Name)
	}

	return Variant{Name: block.Name, Overrides: modelcfg.Document(overrides)}, nil
}
