// Package process implements the child-process supervisor: given a
// script path, working directory, and environment, it starts a child
// whose combined stdout+stderr is captured through a pipe, and reports
// the child's pid and exit status back to the caller. Grounded in the
// original laminar Run::step() fork/exec sequence and in the teacher's
// scheduler.Node process-execution/signal patterns.
package process

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/laminarci/laminar/internal/logger"
	"golang.org/x/sys/unix"
)

// FailedExecMessage is the line the scheduler appends to a run's captured
// output when exec itself cannot start the script, matching the
// original's "[laminar] Failed to execute <path>" behavior.
const FailedExecMessage = "[laminar] Failed to execute %s\n"

// Handle represents one running (or just-failed-to-start) child.
type Handle struct {
	PID    int
	Output *os.File // read end of the capture pipe; caller owns it

	cmd *exec.Cmd
}

// Start launches script with the given working directory and composed
// environment, redirecting its stdout and stderr into the write end of a
// pipe. The read end is returned open; the caller must close it once
// fully drained. If exec fails outright (e.g. the script does not exist
// or is not executable), Start returns a nil Handle and an error; the
// caller (the scheduler's stepRun) treats this the same as a script that
// ran and exited non-zero — ForkFailed/ExecFailed never escape as
// engine-level errors, per spec §7.
func Start(ctx context.Context, script, workDir string, env []string) (*Handle, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create capture pipe: %w", err)
	}

	cmd := exec.CommandContext(ctx, script)
	cmd.Dir = workDir
	cmd.Env = env
	cmd.Stdout = w
	cmd.Stderr = w
	// Place the child in its own process group so an abort can signal
	// the whole tree it may have spawned rather than just the immediate
	// child. No signal mask is set here.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		// No child exists whose stderr could carry the diagnostic, so
		// the caller appends FailedExecMessage to the run's captured
		// output itself.
		_ = w.Close()
		_ = r.Close()
		return nil, fmt.Errorf("%s: %w", script, err)
	}
	_ = w.Close()

	return &Handle{PID: cmd.Process.Pid, Output: r, cmd: cmd}, nil
}

// Wait blocks until the child exits and returns its exit status. It is
// meant to be called from a dedicated goroutine per run, feeding the
// result into the engine loop's reap channel rather than blocking the
// loop itself (see the scheduler's pump in internal/scheduler).
func (h *Handle) Wait() int {
	err := h.cmd.Wait()
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if ok := asExitError(err, &exitErr); ok {
		return exitErr.ExitCode()
	}
	// The process could not even be waited on (e.g. already reaped by
	// someone else); treat as failed.
	return 1
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}

// Signal sends sig to the child's entire process group, so that any
// grandchildren the script forked are reached too. Used by abort.
func (h *Handle) Signal(sig syscall.Signal) error {
	if h.cmd.Process == nil {
		return nil
	}
	return unix.Kill(-h.cmd.Process.Pid, sig)
}

// LogFailedExec writes the supervisor's diagnostic line through the
// engine's logger as well, so operators see it without needing to read
// captured build output.
func LogFailedExec(log logger.Logger, script string, err error) {
	log.Warnf("failed to execute %s: %v", script, err)
}
