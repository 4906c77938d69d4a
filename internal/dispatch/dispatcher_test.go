package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGPUs returns a fixed free-memory snapshot and counts queries.
type fakeGPUs struct {
	free    []float64
	queries atomic.Int32
}

func (f *fakeGPUs) FreeMemory(context.Context) ([]float64, error) {
	f.queries.Add(1)
	return f.free, nil
}

// countingRunner records every invocation and tracks the peak number of
// concurrently running calls.
type countingRunner struct {
	mu       sync.Mutex
	calls    [][]string
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func (r *countingRunner) Run(_ context.Context, name string, args ...string) error {
	cur := r.inFlight.Add(1)
	for {
		peak := r.peak.Load()
		if cur <= peak || r.peak.CompareAndSwap(peak, cur) {
			break
		}
	}
	defer r.inFlight.Add(-1)

	r.mu.Lock()
	r.calls = append(r.calls, append([]string{name}, args...))
	r.mu.Unlock()

	time.Sleep(r.delay)
	return nil
}

func (r *countingRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func configFiles(n int) []string {
	files := make([]string, n)
	for i := range files {
		files[i] = fmt.Sprintf("temp/rep0_config%d_dt20260825.json", i)
	}
	return files
}

func newTestDispatcher(workers int, runner Runner, gpus *fakeGPUs, flags string) *Dispatcher {
	return New(Options{
		Workers:  workers,
		Throttle: time.Millisecond,
		Trainer:  []string{"python", "Main.py"},
		Flags:    flags,
		GPUs:     gpus,
		Runner:   runner,
	})
}

func TestRun_AllJobsLaunchAndExit(t *testing.T) {
	t.Parallel()

	runner := &countingRunner{}
	d := newTestDispatcher(2, runner, &fakeGPUs{free: []float64{1000, 2000}}, "")

	err := d.Run(context.Background(), configFiles(3))
	require.NoError(t, err)
	assert.Equal(t, 3, runner.callCount())
}

func TestRun_ConcurrencyIsBoundedByWorkers(t *testing.T) {
	t.Parallel()

	runner := &countingRunner{delay: 80 * time.Millisecond}
	d := newTestDispatcher(2, runner, &fakeGPUs{free: []float64{1000}}, "")

	err := d.Run(context.Background(), configFiles(6))
	require.NoError(t, err)

	assert.Equal(t, 6, runner.callCount())
	assert.LessOrEqual(t, runner.peak.Load(), int32(2),
		"no instant may see more running trainers than workers")
}

func TestRun_CommandShape(t *testing.T) {
	t.Parallel()

	runner := &countingRunner{}
	d := newTestDispatcher(1, runner, &fakeGPUs{free: []float64{500, 9000}}, "--debug")

	err := d.Run(context.Background(), configFiles(1))
	require.NoError(t, err)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{
		"python", "Main.py", "train", "-c", "temp/rep0_config0_dt20260825.json",
		"--debug", "--gpu", "1",
	}, runner.calls[0])
}

func TestRun_GPUFlagInFlagsSuppressesSelection(t *testing.T) {
	t.Parallel()

	runner := &countingRunner{}
	gpus := &fakeGPUs{free: []float64{500, 9000}}
	d := newTestDispatcher(1, runner, gpus, "--gpu 3")

	err := d.Run(context.Background(), configFiles(1))
	require.NoError(t, err)

	assert.Zero(t, gpus.queries.Load(), "pinned device must skip the memory query")
	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{
		"python", "Main.py", "train", "-c", "temp/rep0_config0_dt20260825.json",
		"--gpu", "3",
	}, runner.calls[0])
}

func TestRun_CancelBlocksNewLaunches(t *testing.T) {
	t.Parallel()

	runner := &countingRunner{}
	d := newTestDispatcher(2, runner, &fakeGPUs{free: []float64{1000}}, "")
	d.Cancel()

	err := d.Run(context.Background(), configFiles(5))
	require.NoError(t, err)

	assert.Zero(t, runner.callCount(), "cancelled dispatcher must not authorize any launch")
}

func TestRun_ContextCancellationReturnsCleanly(t *testing.T) {
	t.Parallel()

	runner := &countingRunner{delay: 5 * time.Second}
	d := newTestDispatcher(1, runner, &fakeGPUs{free: []float64{1000}}, "")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := d.Run(ctx, configFiles(4))
	require.NoError(t, err, "an interrupt is a graceful stop, not an error")
	assert.Less(t, time.Since(start), 4*time.Second,
		"interrupted dispatch must not wait for running trainers")
	assert.True(t, d.Cancelled())
}

func TestRun_GPUQueryFailureAbortsOnlyThatJob(t *testing.T) {
	t.Parallel()

	runner := &countingRunner{}
	d := New(Options{
		Workers:  1,
		Throttle: time.Millisecond,
		Trainer:  []string{"python", "Main.py"},
		GPUs:     failingGPUs{},
		Runner:   runner,
	})

	err := d.Run(context.Background(), configFiles(2))
	require.NoError(t, err, "run still drains the queue")
	assert.Zero(t, runner.callCount())
}

type failingGPUs struct{}

func (failingGPUs) FreeMemory(context.Context) ([]float64, error) {
	return nil, fmt.Errorf("nvidia-smi not found")
}

func TestRun_NoFiles(t *testing.T) {
	t.Parallel()

	runner := &countingRunner{}
	d := newTestDispatcher(2, runner, &fakeGPUs{free: []float64{1000}}, "")

	require.NoError(t, d.Run(context.Background(), nil))
	assert.Zero(t, runner.callCount())
}

func TestJobStateMachine(t *testing.T) {
	t.Parallel()

	j := NewJob("temp/a.json")
	assert.Equal(t, StateQueued, j.State())
	assert.False(t, j.Done())

	j.setState(StateGPUSelected)
	j.setState(StateLaunched)
	j.setState(StateExited)
	assert.True(t, j.Done())
	assert.Equal(t, "exited", j.State().String())
}
