package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/breeze-rmm/recorder/internal/logging"
)

var log = logging.L("ffmpeg")

// MaxOutputSize bounds how much combined stdout/stderr is kept per run.
const MaxOutputSize = 256 * 1024

// Result is the outcome of a process that ran to completion.
type Result struct {
	ExitCode int
	Output   string
	Duration time.Duration
}

// Runner executes an external tool synchronously. A non-zero exit is
// reported as *ExitError together with the Result.
type Runner interface {
	Run(ctx context.Context, path string, args ...string) (*Result, error)
}

// ExecRunner runs tools with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, path string, args ...string) (*Result, error) {
	tool := filepath.Base(path)
	out := NewTailBuffer(MaxOutputSize)

	cmd := Command(ctx, path, args...)
	cmd.Stdout = out
	cmd.Stderr = out

	log.Debug("running", "tool", tool, "args", args)
	start := time.Now()
	err := cmd.Run()
	res := &Result{Output: out.String(), Duration: time.Since(start)}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, &ExitError{Tool: tool, Code: res.ExitCode, Output: res.Output}
		}
		res.ExitCode = -1
		return res, fmt.Errorf("run %s: %w", tool, err)
	}
	return res, nil
}

// Command builds an exec.Cmd in its own process group with no console
// window, so a cancelled context takes the whole tool tree down.
func Command(ctx context.Context, path string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, path, args...)
	configureProcess(cmd)
	cmd.Cancel = func() error { return terminate(cmd) }
	cmd.WaitDelay = 5 * time.Second
	return cmd
}

// TailBuffer keeps the last limit bytes written to it. ffmpeg prints the
// useful diagnostics at the end of its output. Safe for concurrent use.
type TailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func NewTailBuffer(limit int) *TailBuffer {
	return &TailBuffer{limit: limit}
}

func (w *TailBuffer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	if over := len(w.buf) - w.limit; over > 0 {
		w.buf = append(w.buf[:0], w.buf[over:]...)
	}
	return len(p), nil
}

func (w *TailBuffer) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return string(w.buf)
}
