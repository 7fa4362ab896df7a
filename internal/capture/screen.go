package capture

import (
	"image"

	"github.com/kbinani/screenshot"
)

// ScreenGrabber captures from the desktop in physical pixel coordinates.
type ScreenGrabber struct{}

func (ScreenGrabber) Grab(r Region) (*image.RGBA, error) {
	return screenshot.CaptureRect(r.Rect())
}

// DisplayBounds lists the bounds of every active display.
func DisplayBounds() []image.Rectangle {
	n := screenshot.NumActiveDisplays()
	bounds := make([]image.Rectangle, 0, n)
	for i := 0; i < n; i++ {
		bounds = append(bounds, screenshot.GetDisplayBounds(i))
	}
	return bounds
}
