package dispatch

import (
	"context"
	"testing"
	"time"
)

func TestProcessRunner_Run_NormalExitCode(t *testing.T) {
	r := ProcessRunner{}
	code, err := r.Run(context.Background(), "sh", []string{"-c", "exit 7"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != 7 {
		t.Fatalf("expected exit code 7, got %d", code)
	}
}

func TestProcessRunner_Run_Success(t *testing.T) {
	r := ProcessRunner{}
	code, err := r.Run(context.Background(), "sh", []string{"-c", "exit 0"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
}

// A process killed by a signal reports ExitCode() == -1; spec 4.5 Step 4
// requires this to default to defaultSpawnFailRC (2) rather than -1, so
// that a configured nack_code of 2 can match a signal-killed command.
func TestProcessRunner_Run_SignalKilled_DefaultsToSpawnFailRC(t *testing.T) {
	r := ProcessRunner{}
	code, err := r.Run(context.Background(), "sh", []string{"-c", "kill -9 $$"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != defaultSpawnFailRC {
		t.Fatalf("expected signal-killed process to map to rc=%d, got %d", defaultSpawnFailRC, code)
	}
}

func TestProcessRunner_Run_DeadlineExceeded_KillsProcessGroup(t *testing.T) {
	r := ProcessRunner{}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	code, err := r.Run(ctx, "sh", []string{"-c", "sleep 5"})
	if err != context.DeadlineExceeded {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	if code != -1 {
		t.Fatalf("expected -1 on our own deadline-kill, got %d", code)
	}
}
