// Package capture records the system loopback audio stream and samples a
// fixed screen region at a constant frame rate. Each stream runs on its own
// goroutine and reports a structured result when it stops.
package capture

import (
	"errors"
	"fmt"
	"image"

	"github.com/breeze-rmm/recorder/internal/logging"
)

var log = logging.L("capture")

// ErrNoLoopbackDevice is returned when no system audio output can be
// captured.
var ErrNoLoopbackDevice = errors.New("no loopback audio device found")

// ErrFrameSize is returned when a grabbed frame does not match the
// configured region.
var ErrFrameSize = errors.New("captured frame size does not match region")

// Region is a screen rectangle in physical pixels.
type Region struct {
	Left   int
	Top    int
	Width  int
	Height int
}

// Rect returns the region in screen coordinates.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.Left, r.Top, r.Left+r.Width, r.Top+r.Height)
}

func (r Region) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", r.Width, r.Height, r.Left, r.Top)
}

// FrameBytes is the size of one packed BGR24 frame of the region.
func (r Region) FrameBytes() int {
	return r.Width * r.Height * 3
}
