package capture

import (
	"context"

	"github.com/breeze-rmm/recorder/internal/ffmpeg"
)

// LoopbackOptions controls loopback device discovery.
type LoopbackOptions struct {
	// Runner runs helper tools during discovery. Nil uses ffmpeg.ExecRunner.
	Runner ffmpeg.Runner
	// FFmpegPath is required on platforms that capture through ffmpeg.
	FFmpegPath string
	// Device selects a source by name instead of the default output.
	Device string
}

// FindLoopback returns the loopback device for the system's default audio
// output. It returns an error wrapping ErrNoLoopbackDevice when none exists.
func FindLoopback(ctx context.Context, opts LoopbackOptions) (LoopbackDevice, error) {
	if opts.Runner == nil {
		opts.Runner = ffmpeg.ExecRunner{}
	}
	dev, err := findLoopback(ctx, opts)
	if err != nil {
		return nil, err
	}
	log.Info("loopback device found", "device", dev.Name())
	return dev, nil
}
