package dispatch

import (
	"context"
	"os"
	"os/exec"
)

// ExecRunner invokes the trainer as a child process, inheriting the
// orchestrator's stdout and stderr so the trainer's own reporting stays
// visible. The context is deliberately not wired into the command: an
// interrupted dispatch must not kill trainers that are already running.
type ExecRunner struct{}

// Run blocks until the process exits and returns its exit error, if any.
func (ExecRunner) Run(_ context.Context, name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
