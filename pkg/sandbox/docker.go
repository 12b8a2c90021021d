package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"coordinator/pkg/proto"
)

// DockerExec runs sessions in throwaway containers via the docker CLI. This
// executor is what actually enforces the egress policy: NetworkDisabled maps
// to --network none, leaving the mounted gateway socket as the only way out.
type DockerExec struct {
	image string
}

var _ Executor = (*DockerExec)(nil)

// NewDockerExec creates a docker executor using the given image.
func NewDockerExec(image string) *DockerExec {
	return &DockerExec{image: image}
}

// Name implements Executor.
func (e *DockerExec) Name() ExecutorType { return ExecutorTypeDocker }

// Available implements Executor by checking the docker daemon responds.
func (e *DockerExec) Available() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return exec.CommandContext(ctx, "docker", "info").Run() == nil
}

// Run implements Executor.
func (e *DockerExec) Run(ctx context.Context, cmd []string, opts *Opts) (Result, error) {
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

	containerName := "session-" + proto.NewID()
	args := []string{"run", "--rm", "--name", containerName}
	args = append(args, "--security-opt", "no-new-privileges")

	if opts.NetworkDisabled {
		args = append(args, "--network", "none")
	}
	if opts.ResourceLimits != nil {
		if opts.ResourceLimits.CPUs != "" {
			args = append(args, "--cpus", opts.ResourceLimits.CPUs)
		}
		if opts.ResourceLimits.Memory != "" {
			args = append(args, "--memory", opts.ResourceLimits.Memory)
		}
		if opts.ResourceLimits.PIDs > 0 {
			args = append(args, "--pids-limit", strconv.FormatInt(opts.ResourceLimits.PIDs, 10))
		}
	}
	if opts.WorkDir != "" {
		args = append(args, "--volume", opts.WorkDir+":/workspace:rw", "--workdir", "/workspace")
	}
	args = append(args, "--tmpfs", "/tmp:exec,nodev,nosuid,size=100m")
	for _, env := range opts.Env {
		args = append(args, "--env", env)
	}
	args = append(args, e.image)
	args = append(args, cmd...)

	start := time.Now()
	dockerCmd := exec.CommandContext(ctx, "docker", args...)

	var stdout, stderr bytes.Buffer
	dockerCmd.Stdout = &stdout
	dockerCmd.Stderr = &stderr

	err := dockerCmd.Run()
	result := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		// A deadline kill surfaces as an ExitError too, so the context check
		// must come first or timeouts classify as plain exits. Context expiry
		// leaves the container to docker's cleanup; --rm reaps it once the
		// kill lands.
		if ctx.Err() != nil {
			return result, fmt.Errorf("session timed out after %s: %w", opts.Timeout, ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, fmt.Errorf("running docker session: %w", err)
	}
	return result, nil
}
