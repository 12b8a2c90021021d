package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// LocalExec runs sessions directly on the host. It cannot enforce the egress
// policy and exists for development and tests; production runs docker.
type LocalExec struct{}

var _ Executor = (*LocalExec)(nil)

// NewLocalExec creates a local executor.
func NewLocalExec() *LocalExec {
	return &LocalExec{}
}

// Name implements Executor.
func (e *LocalExec) Name() ExecutorType { return ExecutorTypeLocal }

// Available implements Executor; local execution is always available.
func (e *LocalExec) Available() bool { return true }

// Run implements Executor.
func (e *LocalExec) Run(ctx context.Context, cmd []string, opts *Opts) (Result, error) {
	if len(cmd) == 0 {
		return Result{}, fmt.Errorf("command cannot be empty")
	}
	if opts == nil {
		def := DefaultOpts()
		opts = &def
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	execCmd := exec.CommandContext(ctx, cmd[0], cmd[1:]...)

	if opts.WorkDir != "" {
		if _, err := os.Stat(opts.WorkDir); os.IsNotExist(err) {
			return Result{}, fmt.Errorf("working directory does not exist: %s", opts.WorkDir)
		}
		execCmd.Dir = opts.WorkDir
	}
	if len(opts.Env) > 0 {
		execCmd.Env = append(os.Environ(), opts.Env...)
	}

	var stdout, stderr bytes.Buffer
	execCmd.Stdout = &stdout
	execCmd.Stderr = &stderr

	err := execCmd.Run()
	result := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		// A deadline kill surfaces as an ExitError too, so the context check
		// must come first or timeouts classify as plain exits.
		if ctx.Err() != nil {
			return result, fmt.Errorf("session timed out after %s: %w", opts.Timeout, ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, fmt.Errorf("running session command: %w", err)
	}
	return result, nil
}
