package session

import (
	"strconv"
	"time"
)

// ComputeOffset returns videoStart - audioStart. A positive offset means
// audio started first and must be delayed to line up with the video.
func ComputeOffset(videoStart, audioStart time.Time) time.Duration {
	return videoStart.Sub(audioStart)
}

// offsetSeconds formats the magnitude of d for -itsoffset.
func offsetSeconds(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	return strconv.FormatFloat(d.Seconds(), 'f', 6, 64)
}
