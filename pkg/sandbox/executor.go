// Package sandbox is the sandboxed execution boundary: executors that run
// review and fix sessions with no network egress, and the launcher that
// turns effect.SessionRequest into running sessions whose results come back
// to the owning actor as events.
package sandbox

import (
	"context"
	"time"
)

// ExecutorType represents the type of executor.
type ExecutorType string

const (
	ExecutorTypeLocal  ExecutorType = "local"
	ExecutorTypeDocker ExecutorType = "docker"
)

// Executor runs one session command to completion.
type Executor interface {
	// Run executes a command with the given options and returns the result.
	// A nonzero exit code is a Result, not an error; errors mean the command
	// could not be run at all.
	Run(ctx context.Context, cmd []string, opts *Opts) (Result, error)

	// Name returns the executor type for logging.
	Name() ExecutorType

	// Available reports whether this executor can be used in the current
	// environment.
	Available() bool
}

// Opts contains options for session execution.
//
//nolint:govet // logical field grouping preferred over memory optimization
type Opts struct {
	// Env contains environment variables (KEY=VALUE format).
	Env []string

	// ResourceLimits contains resource constraints.
	ResourceLimits *ResourceLimits

	// Timeout is the maximum duration for the session.
	Timeout time.Duration

	// WorkDir is the working directory for the command.
	WorkDir string

	// NetworkDisabled cuts all egress. The gateway socket is the session's
	// only way out; only the docker executor can actually enforce this.
	NetworkDisabled bool
}

// ResourceLimits defines resource constraints for session execution.
type ResourceLimits struct {
	// CPUs is the number of CPU cores to allocate (e.g. "2" or "1.5").
	CPUs string

	// Memory is the memory limit (e.g. "2g", "512m").
	Memory string

	// PIDs is the maximum number of processes.
	PIDs int64
}

// Result contains the outcome of one session command.
type Result struct {
	Stdout   string
	Stderr   string
	Duration time.Duration
	ExitCode int
}

// DefaultOpts returns the default session options: egress denied, bounded
// resources, half-hour budget.
func DefaultOpts() Opts {
	return Opts{
		Timeout:         30 * time.Minute,
		NetworkDisabled: true,
		ResourceLimits: &ResourceLimits{
			CPUs:   "2",
			Memory: "2g",
			PIDs:   1024,
		},
	}
}
