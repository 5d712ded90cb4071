// Package processtest provides a scripted process.Runner for tests.
package processtest

import (
	"context"
	"sync"

	"github.com/vohoanvu/JRE-clipper-sub000/internal/process"
)

// Handler produces the outcome of one command.
type Handler func(ctx context.Context, cmd process.Command) (process.Result, error)

// Runner records every command it receives and delegates to Handler.
// A nil Handler succeeds with an empty Result.
type Runner struct {
	Handler Handler

	mu    sync.Mutex
	calls []process.Command
}

var _ process.Runner = (*Runner)(nil)

// Run implements process.Runner.
func (r *Runner) Run(ctx context.Context, cmd process.Command) (process.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	r.mu.Unlock()

	if r.Handler == nil {
		return process.Result{}, nil
	}
	return r.Handler(ctx, cmd)
}

// Calls returns a copy of the recorded commands.
func (r *Runner) Calls() []process.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]process.Command, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallsTo returns the recorded commands whose Name equals name.
func (r *Runner) CallsTo(name string) []process.Command {
	var out []process.Command
	for _, c := range r.Calls() {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Fail builds a non-zero-exit error carrying stderr, as ExecRunner reports it.
func Fail(cmd process.Command, stderr string) (process.Result, error) {
	res := process.Result{ExitCode: 1, Stderr: stderr}
	return res, &process.Error{Command: cmd, Result: res, Err: process.ErrExit}
}

// OutputPath returns the last argument of cmd, which is where ffmpeg writes.
func OutputPath(cmd process.Command) string {
	if len(cmd.Args) == 0 {
		return ""
	}
	return cmd.Args[len(cmd.Args)-1]
}
