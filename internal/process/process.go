// Package process runs external tools (ffmpeg, ffprobe, rclone) as child
// processes bound to a context. Cancelling the context kills the child and
// the call returns an error matching ErrKilled.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// ErrKilled matches errors returned when a child was stopped by cancellation.
var ErrKilled = errors.New("process killed")

// defaultStderrLimit bounds how much stderr is kept for error reports.
const defaultStderrLimit = 8 * 1024

// Runner executes a binary and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// KilledError is returned when the context ended before or while the child ran.
type KilledError struct {
	Name string
	Err  error
}

// Error implements the error interface.
func (e *KilledError) Error() string {
	return fmt.Sprintf("%s killed: %v", e.Name, e.Err)
}

// Unwrap returns the context error.
func (e *KilledError) Unwrap() error { return e.Err }

// Is matches ErrKilled.
func (e *KilledError) Is(target error) bool { return target == ErrKilled }

// Killed reports true; it lets other packages detect kills without importing this one.
func (e *KilledError) Killed() bool { return true }

// ExitError is returned when a child exits unsuccessfully or cannot start.
type ExitError struct {
	Name   string
	Args   []string
	Stderr string
	Err    error
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s failed: %v", e.Name, e.Err)
	if last := lastLine(e.Stderr); last != "" {
		msg += ": " + last
	}
	return msg
}

// Unwrap returns the underlying exec error.
func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode returns the child's exit status, or -1 if it never ran to completion.
func (e *ExitError) ExitCode() int {
	var exitErr *exec.ExitError
	if errors.As(e.Err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// ExecRunner runs binaries with os/exec.
type ExecRunner struct {
	logger      *slog.Logger
	dir         string
	waitDelay   time.Duration
	stderrLimit int
}

// NewExecRunner creates a runner that logs to the default logger.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{
		logger:      slog.Default(),
		waitDelay:   5 * time.Second,
		stderrLimit: defaultStderrLimit,
	}
}

// WithLogger sets the logger.
func (r *ExecRunner) WithLogger(logger *slog.Logger) *ExecRunner {
	r.logger = logger
	return r
}

// WithDir sets the working directory children start in.
func (r *ExecRunner) WithDir(dir string) *ExecRunner {
	r.dir = dir
	return r
}

// WithWaitDelay bounds how long Run waits for output pipes after a kill.
func (r *ExecRunner) WithWaitDelay(d time.Duration) *ExecRunner {
	r.waitDelay = d
	return r
}

// Run executes name with args and returns its stdout.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &KilledError{Name: name, Err: err}
	}

	var stdout bytes.Buffer
	stderr := &tailBuffer{limit: r.stderrLimit}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.dir
	cmd.Stdout = &stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = r.waitDelay

	start := time.Now()
	r.logger.DebugContext(ctx, "starting process",
		slog.String("binary", name),
		slog.String("args", strings.Join(args, " ")),
	)

	err := cmd.Run()

	attrs := []any{
		slog.String("binary", name),
		slog.Duration("duration", time.Since(start)),
	}
	if err == nil {
		r.logger.DebugContext(ctx, "process completed", attrs...)
		return stdout.Bytes(), nil
	}

	if ctx.Err() != nil {
		r.logger.WarnContext(ctx, "process killed", attrs...)
		return stdout.Bytes(), &KilledError{Name: name, Err: ctx.Err()}
	}

	exitErr := &ExitError{Name: name, Args: args, Stderr: stderr.String(), Err: err}
	r.logger.DebugContext(ctx, "process failed", append(attrs,
		slog.Int("exit_code", exitErr.ExitCode()),
		slog.String("stderr", lastLine(exitErr.Stderr)),
	)...)
	return stdout.Bytes(), exitErr
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
