// Package ffmpegtest provides a scripted ffmpeg.Runner for tests.
package ffmpegtest

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/breeze-rmm/recorder/internal/ffmpeg"
)

// Call records one invocation.
type Call struct {
	Path string
	Args []string
}

// Runner answers invocations with Handle, or with exit 0 and empty output
// when Handle is nil.
type Runner struct {
	Handle func(path string, args []string) (*ffmpeg.Result, error)

	mu    sync.Mutex
	calls []Call
}

func (r *Runner) Run(ctx context.Context, path string, args ...string) (*ffmpeg.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Path: path, Args: append([]string(nil), args...)})
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return &ffmpeg.Result{ExitCode: -1}, err
	}
	if r.Handle == nil {
		return &ffmpeg.Result{}, nil
	}
	return r.Handle(path, args)
}

// Calls returns a copy of the recorded invocations.
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// CallsTo returns the invocations whose executable base name is tool.
func (r *Runner) CallsTo(tool string) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if filepath.Base(c.Path) == tool {
			out = append(out, c)
		}
	}
	return out
}

// Fail builds the result/error pair of a tool that exited with code.
func Fail(tool string, code int, output string) (*ffmpeg.Result, error) {
	return &ffmpeg.Result{ExitCode: code, Output: output}, &ffmpeg.ExitError{Tool: tool, Code: code, Output: output}
}
