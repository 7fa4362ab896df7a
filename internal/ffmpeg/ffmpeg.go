// Package ffmpeg runs the external ffmpeg and ffprobe executables the
// recorder delegates encoding, muxing and stream probing to.
package ffmpeg

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

const (
	// DefaultFFmpeg and DefaultFFprobe are looked up on PATH when no
	// explicit path is configured.
	DefaultFFmpeg  = "ffmpeg"
	DefaultFFprobe = "ffprobe"

	// HardwareEncoder is the codec whose presence in `ffmpeg -encoders`
	// marks hardware encoding as available.
	HardwareEncoder = "h264_nvenc"
)

// ErrNotFound is returned when a tool cannot be located.
var ErrNotFound = errors.New("executable not found")

// Locate resolves the configured path for a tool, falling back to name on
// PATH when configured is empty.
func Locate(configured, name string) (string, error) {
	candidate := strings.TrimSpace(configured)
	if candidate == "" {
		candidate = name
	}
	path, err := exec.LookPath(candidate)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrNotFound, candidate, err)
	}
	return path, nil
}

// ExitError reports a tool that ran but exited non-zero.
type ExitError struct {
	Tool   string
	Code   int
	Output string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d: %s", e.Tool, e.Code, Tail(e.Output, 600))
}

// Tail returns at most the last max bytes of s.
func Tail(s string, max int) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "no output"
	}
	if max <= 0 || len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}
