package process

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunnerRunSuccess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX shell assumptions do not hold on Windows")
	}
	r := &Runner{}
	result, err := r.Run(context.Background(), "echo hello", t.TempDir(), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, result.Stdout, "hello")
	assert.False(t, result.TimedOut)
}

func TestRunnerRunNonZeroExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX shell assumptions do not hold on Windows")
	}
	r := &Runner{}
	result, err := r.Run(context.Background(), "exit 3", t.TempDir(), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, result.ExitCode)
}

func TestRunnerRunCapturesStderr(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX shell assumptions do not hold on Windows")
	}
	r := &Runner{}
	result, err := r.Run(context.Background(), "echo oops >&2", t.TempDir(), 0)
	require.NoError(t, err)
	assert.Contains(t, result.Stderr, "oops")
	assert.Contains(t, result.Combined, "oops")
}

func TestRunnerRunTimesOut(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX shell assumptions do not hold on Windows")
	}
	r := &Runner{}
	result, err := r.Run(context.Background(), "sleep 5", t.TempDir(), 20*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, result.TimedOut)
}

func TestRunnerRunUsesWorkdir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX shell assumptions do not hold on Windows")
	}
	dir := t.TempDir()
	r := &Runner{}
	result, err := r.Run(context.Background(), "pwd", dir, 0)
	require.NoError(t, err)
	assert.Contains(t, result.Stdout, dir)
}
