package worker

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/calderhq/calder/internal/platform/logger"
)

func newTestExecutor(timeout time.Duration) *Executor {
	return NewExecutor(timeout, SandboxConfig{}, logger.NewNop())
}

func TestExecuteSuccess(t *testing.T) {
	e := newTestExecutor(10 * time.Second)

	result := e.Execute(context.Background(), uuid.New(), "echo hello")
	if !result.Success {
		t.Fatalf("success: want=true got=false (stderr=%q)", result.Stderr)
	}
	if result.ExitCode != 0 {
		t.Fatalf("exit code: want=0 got=%d", result.ExitCode)
	}
	if strings.TrimSpace(result.Stdout) != "hello" {
		t.Fatalf("stdout: want=hello got=%q", result.Stdout)
	}
	if result.ErrorMessage() != nil {
		t.Fatalf("error message: want=nil got=%q", *result.ErrorMessage())
	}
}

func TestExecuteNonZeroExit(t *testing.T) {
	e := newTestExecutor(10 * time.Second)

	result := e.Execute(context.Background(), uuid.New(), "exit 3")
	if result.Success {
		t.Fatal("success: want=false got=true")
	}
	if result.ExitCode != 3 {
		t.Fatalf("exit code: want=3 got=%d", result.ExitCode)
	}
	msg := result.ErrorMessage()
	if msg == nil || *msg != "script exited with code 3" {
		t.Fatalf("error message: got=%v", msg)
	}
}

func TestExecuteStderrBecomesErrorMessage(t *testing.T) {
	e := newTestExecutor(10 * time.Second)

	result := e.Execute(context.Background(), uuid.New(), "echo boom >&2; exit 1")
	msg := result.ErrorMessage()
	if msg == nil || !strings.Contains(*msg, "boom") {
		t.Fatalf("error message: want stderr tail, got=%v", msg)
	}
}

func TestExecuteTimeoutKillsProcess(t *testing.T) {
	e := newTestExecutor(time.Second)

	start := time.Now()
	result := e.Execute(context.Background(), uuid.New(), "sleep 30")
	elapsed := time.Since(start)

	if elapsed > 10*time.Second {
		t.Fatalf("timeout did not kill the script (took %s)", elapsed)
	}
	if !result.TimedOut {
		t.Fatal("timed_out: want=true got=false")
	}
	if result.Success {
		t.Fatal("success: want=false got=true")
	}
	msg := result.ErrorMessage()
	if msg == nil || !strings.Contains(*msg, "timed out") {
		t.Fatalf("error message: want timeout text, got=%v", msg)
	}
}

func TestExecuteCapturesBoundedOutput(t *testing.T) {
	e := newTestExecutor(30 * time.Second)

	// Emits well over the capture bound.
	result := e.Execute(context.Background(), uuid.New(), "yes x | head -c 1000000")
	if !result.Success {
		t.Fatalf("success: want=true got=false (stderr=%q)", result.Stderr)
	}
	if len(result.Stdout) > maxCapturedOutput {
		t.Fatalf("stdout length: want<=%d got=%d", maxCapturedOutput, len(result.Stdout))
	}
}
