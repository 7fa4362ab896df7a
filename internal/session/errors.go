package session

import "errors"

var (
	// ErrDeviceUnavailable aborts a run before any capture starts.
	ErrDeviceUnavailable = errors.New("loopback audio device unavailable")
	// ErrEmptyStream means a temporary stream was missing or empty after
	// capture stopped. Temporaries are left untouched.
	ErrEmptyStream = errors.New("captured stream is empty")
	// ErrProcessFailed wraps a non-zero exit from the mux or transcode
	// step. Temporaries are preserved for manual recovery.
	ErrProcessFailed = errors.New("external encoder failed")
)
