// Package encode maps a quality tier and hardware availability to the
// ffmpeg video encoder settings used for the final artifact.
package encode

import (
	"context"
	"strings"

	"github.com/breeze-rmm/recorder/internal/ffmpeg"
	"github.com/breeze-rmm/recorder/internal/logging"
)

var log = logging.L("encode")

// Quality tiers.
const (
	TierHigh     = "high"
	TierInsane   = "insane"
	TierLossless = "lossless"
)

// Hardware availability overrides.
const (
	ModeAuto = "auto"
	ModeOn   = "on"
	ModeOff  = "off"
)

const (
	codecNVENC = ffmpeg.HardwareEncoder
	codecX264  = "libx264"
)

// Profile is the selected video encoder configuration. Treat as immutable;
// accessors return copies.
type Profile struct {
	Tier        string
	Codec       string
	PixelFormat string
	Hardware    bool
	options     []string
}

// Options returns the encoder tuning flags in order.
func (p Profile) Options() []string {
	return append([]string(nil), p.options...)
}

// Args returns the codec, tuning and pixel format flags for the output.
func (p Profile) Args() []string {
	args := make([]string, 0, len(p.options)+4)
	args = append(args, "-c:v", p.Codec)
	args = append(args, p.options...)
	return append(args, "-pix_fmt", p.PixelFormat)
}

// ChromaSubsampled reports whether the pixel format needs even frame
// dimensions.
func (p Profile) ChromaSubsampled() bool {
	return strings.HasPrefix(p.PixelFormat, "yuv420") || strings.HasPrefix(p.PixelFormat, "nv12")
}

// Select returns the profile for tier. Unknown tiers fall back to high.
func Select(tier string, hardware bool) Profile {
	tier = strings.ToLower(strings.TrimSpace(tier))

	switch tier {
	case TierLossless:
		if hardware {
			return Profile{Tier: tier, Codec: codecNVENC, PixelFormat: "yuv444p", Hardware: true,
				options: []string{"-preset", "p4", "-cq", "0", "-rc-lookahead", "32", "-bf", "3"}}
		}
		return Profile{Tier: tier, Codec: codecX264, PixelFormat: "yuv444p",
			options: []string{"-preset", "slow", "-crf", "0", "-profile:v", "high444"}}

	case TierInsane:
		if hardware {
			return Profile{Tier: tier, Codec: codecNVENC, PixelFormat: "yuv420p", Hardware: true,
				options: []string{"-preset", "p4", "-cq", "18", "-rc-lookahead", "32", "-bf", "3"}}
		}
		return Profile{Tier: tier, Codec: codecX264, PixelFormat: "yuv420p",
			options: []string{"-preset", "slower", "-crf", "12", "-x264-params",
				"ref=6:bframes=6:subme=9:me=umh:rc-lookahead=60:aq-mode=2:aq-strength=1.2:deblock=-1,-1:psy-rd=1.00,0.15"}}
	}

	if hardware {
		return Profile{Tier: TierHigh, Codec: codecNVENC, PixelFormat: "yuv420p", Hardware: true,
			options: []string{"-preset", "p4", "-cq", "20", "-rc-lookahead", "32", "-bf", "3"}}
	}
	return Profile{Tier: TierHigh, Codec: codecX264, PixelFormat: "yuv420p",
		options: []string{"-preset", "slow", "-crf", "14"}}
}

// HardwareAvailable resolves the auto/on/off override, probing ffmpeg's
// encoder list only in auto mode.
func HardwareAvailable(ctx context.Context, r ffmpeg.Runner, ffmpegPath, mode string) bool {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case ModeOn:
		return true
	case ModeOff:
		return false
	}
	ok := ffmpeg.HasEncoder(ctx, r, ffmpegPath, codecNVENC)
	log.Info("hardware encoder check", "encoder", codecNVENC, "available", ok)
	return ok
}
