package config

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

var bitrateRegex = regexp.MustCompile(`^[1-9][0-9]*[kKmM]?$`)

var validQualities = map[string]bool{
	QualityHigh:     true,
	QualityInsane:   true,
	QualityLossless: true,
}

var validNVENCModes = map[string]bool{
	NVENCAuto: true,
	NVENCOn:   true,
	NVENCOff:  true,
}

var validIntermediates = map[string]bool{
	IntermediateRaw:  true,
	IntermediateFFV1: true,
}

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// ValidationResult separates problems that must stop a run from ones that
// were corrected in place.
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

func (r ValidationResult) HasFatals() bool {
	return len(r.Fatals) > 0
}

// ValidateTiered checks the config. Out-of-range numeric values are clamped
// and reported as warnings; values the recorder cannot act on are fatal.
func (c *Config) ValidateTiered() ValidationResult {
	var r ValidationResult

	c.Video.FPS = clamp(&r, "video.fps", c.Video.FPS, 1, 240)
	c.Audio.SampleRate = clamp(&r, "audio.sample_rate", c.Audio.SampleRate, 8000, 192000)
	c.Audio.BlockFrames = clamp(&r, "audio.block_frames", c.Audio.BlockFrames, 64, 16384)

	if c.Video.Region.Width <= 0 || c.Video.Region.Height <= 0 {
		r.Fatals = append(r.Fatals, fmt.Errorf("video.region size %dx%d must be positive", c.Video.Region.Width, c.Video.Region.Height))
	}

	c.Encoder.Quality = strings.ToLower(strings.TrimSpace(c.Encoder.Quality))
	if !validQualities[c.Encoder.Quality] {
		r.Fatals = append(r.Fatals, fmt.Errorf("encoder.quality %q is not valid (use high, insane, lossless)", c.Encoder.Quality))
	}

	c.Encoder.NVENC = strings.ToLower(strings.TrimSpace(c.Encoder.NVENC))
	if !validNVENCModes[c.Encoder.NVENC] {
		r.Fatals = append(r.Fatals, fmt.Errorf("encoder.nvenc %q is not valid (use auto, on, off)", c.Encoder.NVENC))
	}

	c.Video.Intermediate = strings.ToLower(strings.TrimSpace(c.Video.Intermediate))
	if !validIntermediates[c.Video.Intermediate] {
		r.Fatals = append(r.Fatals, fmt.Errorf("video.intermediate %q is not valid (use raw, ffv1)", c.Video.Intermediate))
	}

	if !bitrateRegex.MatchString(c.Audio.Bitrate) {
		r.Fatals = append(r.Fatals, fmt.Errorf("audio.bitrate %q is not a valid bitrate (e.g. 320k)", c.Audio.Bitrate))
	}

	if strings.TrimSpace(c.Output.Dir) == "" {
		r.Fatals = append(r.Fatals, fmt.Errorf("output.dir must be set"))
	}
	if strings.ContainsAny(c.Output.TempPrefix, `/\`) {
		r.Fatals = append(r.Fatals, fmt.Errorf("output.temp_prefix %q must not contain path separators", c.Output.TempPrefix))
	}
	if c.Output.TempPrefix == "" {
		r.Warnings = append(r.Warnings, fmt.Errorf("output.temp_prefix is empty, using temp_"))
		c.Output.TempPrefix = "temp_"
	}
	if c.Output.TimeLayout == "" {
		r.Warnings = append(r.Warnings, fmt.Errorf("output.time_layout is empty, using 02-01-2006_15-04"))
		c.Output.TimeLayout = "02-01-2006_15-04"
	}

	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level != "" && !validLogLevels[c.Log.Level] {
		r.Fatals = append(r.Fatals, fmt.Errorf("log.level %q is not valid (use debug, info, warn, error)", c.Log.Level))
	}
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	if c.Log.Format != "" && c.Log.Format != "text" && c.Log.Format != "json" {
		r.Fatals = append(r.Fatals, fmt.Errorf("log.format %q is not valid (use text or json)", c.Log.Format))
	}

	s3 := c.Publish.S3
	if s3.Bucket != "" && s3.Region == "" && s3.Endpoint == "" {
		r.Fatals = append(r.Fatals, fmt.Errorf("publish.s3.region or publish.s3.endpoint is required when a bucket is set"))
	}
	if (s3.AccessKeyID == "") != (s3.SecretAccessKey == "") {
		r.Fatals = append(r.Fatals, fmt.Errorf("publish.s3 access_key_id and secret_access_key must be set together"))
	}

	for _, err := range r.Warnings {
		slog.Warn("config validation", "error", err)
	}

	return r
}

func clamp(r *ValidationResult, key string, v, lo, hi int) int {
	if v < lo {
		r.Warnings = append(r.Warnings, fmt.Errorf("%s %d is below minimum %d, clamping", key, v, lo))
		return lo
	}
	if v > hi {
		r.Warnings = append(r.Warnings, fmt.Errorf("%s %d exceeds maximum %d, clamping", key, v, hi))
		return hi
	}
	return v
}
