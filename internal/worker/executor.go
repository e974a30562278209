package worker

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/calderhq/calder/internal/platform/logger"
)

// maxCapturedOutput bounds how much stdout/stderr is kept per execution.
const maxCapturedOutput = 256 << 10

// Result is the outcome of one script execution.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Success  bool
	TimedOut bool

	timeout time.Duration
}

// ErrorMessage returns the message reported to the orchestrator, or nil for
// a successful execution. Failed runs report the stderr tail when there is
// one, otherwise the exit code; timeouts report the timeout.
func (r *Result) ErrorMessage() *string {
	if r.Success {
		return nil
	}
	var msg string
	switch {
	case r.TimedOut:
		msg = fmt.Sprintf("script execution timed out after %ds", int(r.timeout.Seconds()))
	case strings.TrimSpace(r.Stderr) != "":
		msg = tail(strings.TrimSpace(r.Stderr), 4096)
	default:
		msg = fmt.Sprintf("script exited with code %d", r.ExitCode)
	}
	return &msg
}

// Executor runs fragment scripts through /bin/sh with a hard timeout. The
// script runs in its own process group so the timeout kills the whole tree,
// not just the shell.
type Executor struct {
	timeout time.Duration
	sandbox SandboxConfig
	log     *logger.Logger
}

func NewExecutor(timeout time.Duration, sandbox SandboxConfig, baseLog *logger.Logger) *Executor {
	return &Executor{
		timeout: timeout,
		sandbox: sandbox,
		log:     baseLog.With("component", "Executor"),
	}
}

func (e *Executor) Execute(ctx context.Context, fragmentID uuid.UUID, script string) *Result {
	e.log.Info("executing script", "fragment_id", fragmentID, "sandbox", e.sandbox.Enabled)

	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var cmd *exec.Cmd
	if e.sandbox.Enabled {
		cmd = exec.CommandContext(execCtx, "bwrap", e.sandboxArgs(script)...)
	} else {
		cmd = exec.CommandContext(execCtx, "/bin/sh", "-c", script)
	}

	var stdout, stderr boundedBuffer
	stdout.limit = maxCapturedOutput
	stderr.limit = maxCapturedOutput
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		// Negative pid signals the whole process group.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	err := cmd.Run()
	timedOut := execCtx.Err() == context.DeadlineExceeded

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		TimedOut: timedOut,
		timeout:  e.timeout,
	}

	switch {
	case timedOut:
		result.ExitCode = -1
	case err == nil:
		result.ExitCode = 0
		result.Success = true
	default:
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
			result.Stderr = err.Error()
		}
	}

	e.log.Info("script finished",
		"fragment_id", fragmentID,
		"exit_code", result.ExitCode,
		"timed_out", result.TimedOut)
	return result
}

// sandboxArgs builds the bubblewrap invocation: read-only root, fresh /dev,
// /proc and /tmp, no network unless allowed, and an optional writable bind.
func (e *Executor) sandboxArgs(script string) []string {
	args := []string{
		"--ro-bind", "/", "/",
		"--dev", "/dev",
		"--proc", "/proc",
		"--tmpfs", "/tmp",
		"--die-with-parent",
		"--new-session",
	}
	if !e.sandbox.Network {
		args = append(args, "--unshare-net")
	}
	if e.sandbox.WritableDir != "" {
		args = append(args, "--bind", e.sandbox.WritableDir, e.sandbox.WritableDir)
	}
	return append(args, "/bin/sh", "-c", script)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// boundedBuffer keeps at most limit bytes and silently drops the rest.
type boundedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	if remaining := b.limit - b.buf.Len(); remaining > 0 {
		if len(p) > remaining {
			b.buf.Write(p[:remaining])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *boundedBuffer) String() string { return b.buf.String() }
