// Package media invokes ffprobe and ffmpeg to inspect and segment uploaded
// media files.
package media

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"

	"github.com/scribehq/scribe/internal/procs"
)

// CommandResult captures one external process invocation.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner abstracts process execution for testability.
type Runner interface {
	Run(ctx context.Context, jobID, name string, args ...string) (CommandResult, error)
}

// ExecRunner executes commands via os/exec, registering the live process
// with the job's process registry so cancellation can kill it.
type ExecRunner struct {
	Registry *procs.Registry
	Timeout  time.Duration
}

// Run executes one command and captures stdout/stderr and exit code.
func (r *ExecRunner) Run(ctx context.Context, jobID, name string, args ...string) (CommandResult, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return CommandResult{ExitCode: -1, Stderr: stderr.String()}, err
	}

	if r.Registry != nil {
		r.Registry.Register(jobID, cmd.Process)
		defer r.Registry.Unregister(jobID, cmd.Process)
	}

	err := cmd.Wait()
	result := CommandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}

	return result, nil
}
