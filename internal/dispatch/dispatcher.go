// Package dispatch launches one external trainer process per persisted
// config file, bounded to a fixed number of concurrent workers. GPU
// placement is decided per job at launch time from current free memory;
// two workers launching in the same window may pick the same device, which
// is accepted as soft best-effort balancing. Cancellation is cooperative:
// an interrupt stops new launches but never signals running trainers.
package dispatch

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/vftens/ablationgrid/internal/ctxlog"
	"github.com/vftens/ablationgrid/internal/gpu"
	"gonum.org/v1/gonum/stat"
)

// pollInterval is how often the wait loop re-checks the aggregate done
// condition, and how long an interrupted dispatch waits before returning.
const pollInterval = time.Second

// Runner executes one blocking trainer invocation. The process's exit
// status is the trainer's own business; a non-nil error is reported back
// only so the dispatcher can log it.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// Options configures a Dispatcher.
type Options struct {
	// Workers bounds the number of concurrently running trainer processes.
	Workers int

	// Throttle is the delay before each job submission, giving the
	// previous worker time to start up and claim its GPU.
	Throttle time.Duration

	// Trainer is the argv prefix of the trainer command, e.g.
	// ["python", "Main.py"].
	Trainer []string

	// Flags is appended verbatim to every invocation.
	Flags string

	// GPUs supplies free-memory readings for device selection.
	GPUs gpu.Source

	// Runner performs the blocking process invocation.
	Runner Runner
}

// Dispatcher drives all training runs of one experiment to completion.
type Dispatcher struct {
	opts  Options
	flags []string

	cancelled atomic.Bool
}

// New creates a dispatcher. Workers below 1 are clamped to 1.
func New(opts Options) *Dispatcher {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Dispatcher{opts: opts, flags: strings.Fields(opts.Flags)}
}

// Cancel stops the dispatcher from authorizing new launches. Jobs whose
// trainer process is already running are left alone.
func (d *Dispatcher) Cancel() {
	d.cancelled.Store(true)
}

// Cancelled reports whether the cancellation token has been set.
func (d *Dispatcher) Cancelled() bool {
	return d.cancelled.Load()
}

// Run launches one trainer process per config file and blocks until every
// job reports done, or until ctx is cancelled. On cancellation it stops
// authorizing new launches, waits briefly for workers to notice, and
// returns nil; in-flight trainer processes keep running unobserved.
func (d *Dispatcher) Run(ctx context.Context, files []string) error {
	logger := ctxlog.FromContext(ctx)

	jobs := make([]*Job, len(files))
	for i, file := range files {
		jobs[i] = NewJob(file)
	}

	logger.Info("🚀 Constructing worker pool.", "queue_size", len(jobs), "workers", d.opts.Workers)

	queue := make(chan *Job)
	for w := 0; w < d.opts.Workers; w++ {
		go d.worker(ctx, queue, w)
	}

	// Stagger submissions so successive GPU-memory queries are less likely
	// to observe the same snapshot.
	go func() {
		defer close(queue)
		for _, job := range jobs {
			select {
			case <-time.After(d.opts.Throttle):
			case <-ctx.Done():
			}
			queue <- job
		}
	}()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for !allDone(jobs) {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			logger.Info("Interrupt received. Giving workers time to terminate.")
			d.Cancel()
			time.Sleep(pollInterval)
			logger.Info("Workers have exited.")
			return nil
		}
	}

	logger.Info("🏁 All trainer processes have exited.")
	return nil
}

// worker consumes jobs until the queue closes, running one blocking trainer
// invocation at a time.
func (d *Dispatcher) worker(ctx context.Context, queue <-chan *Job, workerID int) {
	logger := ctxlog.FromContext(ctx).With("workerID", workerID)
	for job := range queue {
		d.runJob(ctx, logger.With("config", job.ConfigFile), job)
	}
}

// runJob takes one job through its state machine. A job that is denied a
// launch, or whose GPU query fails, still reaches the exited state so the
// aggregate wait loop can finish.
func (d *Dispatcher) runJob(ctx context.Context, logger *slog.Logger, job *Job) {
	defer job.setState(StateExited)

	if d.cancelled.Load() {
		logger.Debug("Launch not authorized, skipping job.")
		return
	}

	args := append([]string{}, d.opts.Trainer[1:]...)
	args = append(args, "train", "-c", job.ConfigFile)
	args = append(args, d.flags...)

	// The experiment flags may already pin a device (or force CPU); only
	// pick a GPU when they do not.
	if !containsFlag(d.flags, "--gpu") {
		job.setState(StateGPUSelected)
		free, err := d.opts.GPUs.FreeMemory(ctx)
		if err != nil {
			logger.Error("GPU memory query failed, aborting this job.", "error", err)
			return
		}
		best := gpu.Pick(free)
		if best < 0 {
			logger.Error("No GPUs reported, aborting this job.")
			return
		}
		logger.Info("Best GPU to use.",
			"gpu", best, "free_mib", free[best], "mean_free_mib", stat.Mean(free, nil))
		args = append(args, "--gpu", strconv.Itoa(best))
	}

	job.setState(StateLaunched)
	logger.Info("▶️ Starting a run.", "cmd", d.opts.Trainer[0]+" "+strings.Join(args, " "))

	if err := d.opts.Runner.Run(ctx, d.opts.Trainer[0], args...); err != nil {
		// The trainer reports its own failures; we only trace the exit here.
		logger.Debug("Trainer process exited with error.", "error", err)
	}
}

// allDone reports whether every job has exited.
func allDone(jobs []*Job) bool {
	for _, job := range jobs {
		if !job.Done() {
			return false
		}
	}
	return true
}

func containsFlag(flags []string, name string) bool {
	for _, f := range flags {
		if f == name {
			return true
		}
	}
	return false
}
