// Package process runs external command-line tools (ffmpeg, ffprobe, yt-dlp)
// with a wall-clock timeout and captured output.
package process

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const (
	// DefaultTimeout applies when a Command does not set its own.
	DefaultTimeout = 10 * time.Minute
	// defaultWaitDelay bounds how long Run waits for output pipes after the child is killed.
	defaultWaitDelay = 5 * time.Second
	// maxCaptured is the number of trailing bytes kept per output stream.
	maxCaptured = 256 << 10
)

// Static errors for process execution.
var (
	// ErrLaunch is returned when the binary cannot be found or started.
	ErrLaunch = errors.New("process: failed to launch")
	// ErrTimeout is returned when the command exceeds its timeout and is killed.
	ErrTimeout = errors.New("process: timed out")
	// ErrExit is returned when the command runs to completion with a non-zero exit code.
	ErrExit = errors.New("process: non-zero exit")
)

// Command describes one invocation of an external tool.
type Command struct {
	Name    string
	Args    []string
	Dir     string
	Timeout time.Duration
}

// String renders the command line for logs.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result is the captured outcome of a command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Error reports a failed command together with everything it printed.
type Error struct {
	Command Command
	Result  Result
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v (exit %d): %s", e.Command.Name, e.Err, e.Result.ExitCode, StderrTail(e.Result.Stderr, 512))
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Runner executes external commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	defaultTimeout time.Duration
	waitDelay      time.Duration
}

// Option configures an ExecRunner.
type Option func(*ExecRunner)

// WithDefaultTimeout sets the timeout used when a Command has none.
func WithDefaultTimeout(d time.Duration) Option {
	return func(r *ExecRunner) {
		if d > 0 {
			r.defaultTimeout = d
		}
	}
}

// WithWaitDelay sets how long to wait for I/O after the child has been killed.
func WithWaitDelay(d time.Duration) Option {
	return func(r *ExecRunner) {
		r.waitDelay = d
	}
}

// NewExecRunner creates an ExecRunner.
func NewExecRunner(opts ...Option) *ExecRunner {
	r := &ExecRunner{
		defaultTimeout: DefaultTimeout,
		waitDelay:      defaultWaitDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes cmd to completion. A non-nil error is always a *Error wrapping
// ErrLaunch, ErrTimeout, ErrExit or the parent context's error; the captured
// Result is returned either way.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// #nosec G204 - tool paths come from configuration, arguments are built by this program
	c := exec.CommandContext(runCtx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.WaitDelay = r.waitDelay
	setProcessGroup(c)

	stdout := newTailBuffer(maxCaptured)
	stderr := newTailBuffer(maxCaptured)
	c.Stdout = stdout
	c.Stderr = stderr

	start := time.Now()
	err := c.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if err == nil {
		return res, nil
	}

	res.ExitCode = -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
	}

	switch {
	case ctx.Err() != nil:
		return res, &Error{Command: cmd, Result: res, Err: ctx.Err()}
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return res, &Error{Command: cmd, Result: res, Err: fmt.Errorf("%w after %s", ErrTimeout, timeout)}
	case exitErr != nil:
		return res, &Error{Command: cmd, Result: res, Err: ErrExit}
	default:
		return res, &Error{Command: cmd, Result: res, Err: fmt.Errorf("%w: %w", ErrLaunch, err)}
	}
}

// StderrTail returns at most n trailing bytes of s, trimmed.
func StderrTail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	buf []byte
	limit int
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	return string(b.buf)
}
