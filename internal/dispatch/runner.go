package dispatch

import (
	"bytes"
	"context"
	"os/exec"
	"syscall"
)

// Runner executes a single command to completion, reporting its exit code.
// A deadline on ctx is treated as the timeout race losing to the clock: the
// implementation kills the process group (the REDESIGN FLAGS decision in
// SPEC_FULL.md — the original left the child running on timeout) and
// returns ctx.Err().
type Runner interface {
	Run(ctx context.Context, program string, args []string) (exitCode int, err error)
}

var _ Runner = (*ProcessRunner)(nil)

// ProcessRunner is the production Runner, grounded in the sandbox
// executor's process-group kill pattern: Setpgid so the whole group can be
// reaped with a single signal.
type ProcessRunner struct{}

func (ProcessRunner) Run(ctx context.Context, program string, args []string) (int, error) {
	cmd := exec.CommandContext(ctx, program, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if ctx.Err() == context.DeadlineExceeded {
		if cmd.Process != nil {
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		return -1, ctx.Err()
	}

	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			// A process killed by a signal (not our own deadline-kill, handled
			// above) reports ExitCode() == -1. Spec 4.5 Step 4 defaults the rc
			// to defaultSpawnFailRC in that case rather than propagating -1.
			if code := exitErr.ExitCode(); code != -1 {
				return code, nil
			}
			return defaultSpawnFailRC, nil
		}
		return -1, runErr
	}

	return 0, nil
}
