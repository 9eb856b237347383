// Package process implements ports.Process by shelling out via os/exec to
// run verification and measurement commands.
package process

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"runtime"
	"time"

	"github.com/codewheel-dev/promptwheel/internal/ports"
)

// Runner shells out to run verification and measurement commands under a
// bounded timeout.
type Runner struct {
	// Shell overrides the interpreter used to run command. Empty selects
	// bash, falling back to sh, falling back to cmd on Windows.
	Shell string
	Env   []string
}

var _ ports.Process = (*Runner)(nil)

// Run executes command through a shell, bounding it by timeout (when
// positive) in addition to ctx's own deadline.
func (r *Runner) Run(ctx context.Context, command string, workdir string, timeout time.Duration) (ports.ProcessResult, error) {
	shell, shellArgs, err := r.resolveShell()
	if err != nil {
		return ports.ProcessResult{}, err
	}

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	args := append(append([]string{}, shellArgs...), command)
	cmd := exec.CommandContext(runCtx, shell, args...)
	cmd.Dir = workdir
	if r.Env != nil {
		cmd.Env = r.Env
	}

	var stdout, stderr, combined bytes.Buffer
	cmd.Stdout = &stdoutWriter{&stdout, &combined}
	cmd.Stderr = &stdoutWriter{&stderr, &combined}

	runErr := cmd.Run()

	result := ports.ProcessResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Combined: combined.String(),
	}
	if runCtx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
	}

	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
		result.ExitCode = 0
	case errors.As(runErr, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	case result.TimedOut:
		result.ExitCode = -1
	default:
		return result, runErr
	}

	return result, nil
}

// stdoutWriter fans a stream into both its own buffer and the shared
// combined-output buffer, mirroring how CombinedOutput interleaves stdout
// and stderr.
type stdoutWriter struct {
	own      *bytes.Buffer
	combined *bytes.Buffer
}

func (w *stdoutWriter) Write(p []byte) (int, error) {
	w.own.Write(p)
	return w.combined.Write(p)
}

func (r *Runner) resolveShell() (string, []string, error) {
	if r.Shell != "" {
		return r.Shell, []string{"-c"}, nil
	}
	if runtime.GOOS == "windows" {
		return "cmd", []string{"/C"}, nil
	}
	if path, err := exec.LookPath("bash"); err == nil {
		return path, []string{"-c"}, nil
	}
	if path, err := exec.LookPath("sh"); err == nil {
		return path, []string{"-c"}, nil
	}
	return "", nil, errors.New("no suitable shell found")
}
