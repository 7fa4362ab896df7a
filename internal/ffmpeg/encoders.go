package ffmpeg

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const encoderListTimeout = 5 * time.Second

// Encoders lists the video encoders compiled into ffmpeg.
func Encoders(ctx context.Context, r Runner, ffmpegPath string) (map[string]struct{}, error) {
	ctx, cancel := context.WithTimeout(ctx, encoderListTimeout)
	defer cancel()

	res, err := r.Run(ctx, ffmpegPath, "-hide_banner", "-encoders")
	if ctx.Err() != nil {
		return nil, fmt.Errorf("ffmpeg -encoders timeout after %s", encoderListTimeout)
	}
	if err != nil {
		return nil, fmt.Errorf("ffmpeg -encoders failed: %w", err)
	}
	return parseEncoders(res.Output), nil
}

// parseEncoders reads lines of the form " V....D h264_nvenc  NVIDIA ...".
func parseEncoders(out string) map[string]struct{} {
	encoders := make(map[string]struct{})
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		flags := fields[0]
		if len(flags) != 6 || flags[0] != 'V' || fields[1] == "=" {
			continue
		}
		encoders[fields[1]] = struct{}{}
	}
	return encoders
}

// HasEncoder reports whether ffmpeg lists the named encoder. Listing failures
// count as absent.
func HasEncoder(ctx context.Context, r Runner, ffmpegPath, name string) bool {
	encoders, err := Encoders(ctx, r, ffmpegPath)
	if err != nil {
		log.Debug("encoder listing failed", "encoder", name, "error", err)
		return false
	}
	_, ok := encoders[name]
	return ok
}
