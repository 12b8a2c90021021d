package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalExecCapturesOutput(t *testing.T) {
	e := NewLocalExec()
	opts := DefaultOpts()

	result, err := e.Run(context.Background(), []string{"sh", "-c", "echo out; echo err 1>&2"}, &opts)
	require.NoError(t, err)
	assert.Equal(t, "out\n", result.Stdout)
	assert.Equal(t, "err\n", result.Stderr)
	assert.Zero(t, result.ExitCode)
}

func TestLocalExecNonzeroExit(t *testing.T) {
	e := NewLocalExec()
	opts := DefaultOpts()

	result, err := e.Run(context.Background(), []string{"sh", "-c", "exit 3"}, &opts)
	require.NoError(t, err)
	assert.Equal(t, 3, result.ExitCode)
}

func TestLocalExecTimeout(t *testing.T) {
	e := NewLocalExec()
	opts := DefaultOpts()
	opts.Timeout = 50 * time.Millisecond

	_, err := e.Run(context.Background(), []string{"sleep", "5"}, &opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocalExecTimeoutBeatsExitClassification(t *testing.T) {
	e := NewLocalExec()
	opts := DefaultOpts()
	opts.Timeout = 50 * time.Millisecond

	// The deadline kill makes Run return an ExitError; it must still
	// classify as a timeout, not a nonzero exit.
	result, err := e.Run(context.Background(), []string{"sh", "-c", "sleep 5; exit 0"}, &opts)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, result.ExitCode)
}

func TestLocalExecRejectsEmptyCommand(t *testing.T) {
	e := NewLocalExec()
	_, err := e.Run(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestLocalExecMissingWorkDir(t *testing.T) {
	e := NewLocalExec()
	opts := DefaultOpts()
	opts.WorkDir = "/nonexistent/path/for/test"

	_, err := e.Run(context.Background(), []string{"true"}, &opts)
	assert.Error(t, err)
}
