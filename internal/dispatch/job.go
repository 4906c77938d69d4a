package dispatch

import "sync/atomic"

// State tracks a job through its lifecycle: queued → gpu-selected →
// launched → exited. A job cancelled before launch jumps straight to
// exited.
type State int32

const (
	StateQueued State = iota
	StateGPUSelected
	StateLaunched
	StateExited
)

// String implements fmt.Stringer for log output.
func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateGPUSelected:
		return "gpu-selected"
	case StateLaunched:
		return "launched"
	case StateExited:
		return "exited"
	}
	return "unknown"
}

// Job pairs one persisted config file with the trainer invocation that
// consumes it. The dispatcher owns a job for its whole lifetime and only
// ever polls the aggregate "all exited" condition.
type Job struct {
	ConfigFile string

	state atomic.Int32
}

// NewJob creates a queued job for the given config file.
func NewJob(configFile string) *Job {
	return &Job{ConfigFile: configFile}
}

// State returns the job's current lifecycle state.
func (j *Job) State() State {
	return State(j.state.Load())
}

func (j *Job) setState(s State) {
	j.state.Store(int32(s))
}

// Done reports whether the job has exited, with or without a launch.
func (j *Job) Done() bool {
	return j.State() == StateExited
}
