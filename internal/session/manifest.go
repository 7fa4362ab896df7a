package session

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/breeze-rmm/recorder/internal/collectors"
)

// Manifest is the YAML sidecar describing a finished recording.
type Manifest struct {
	SessionID string    `yaml:"session_id"`
	Mode      Mode      `yaml:"mode"`
	CreatedAt time.Time `yaml:"created_at"`
	Output    string    `yaml:"output"`

	SampleRate   int    `yaml:"sample_rate"`
	AudioBitrate string `yaml:"audio_bitrate"`

	Video *ManifestVideo `yaml:"video,omitempty"`
	Audio ManifestAudio  `yaml:"audio"`

	OffsetSeconds float64 `yaml:"offset_seconds"`
	AudioVerified bool    `yaml:"audio_verified"`

	Process *collectors.ProcessResources `yaml:"process,omitempty"`
}

type ManifestVideo struct {
	Region         string  `yaml:"region"`
	FPS            int     `yaml:"fps"`
	Frames         int64   `yaml:"frames"`
	SkippedSlots   int64   `yaml:"skipped_slots"`
	EffectiveFPS   float64 `yaml:"effective_fps"`
	ElapsedSeconds float64 `yaml:"elapsed_seconds"`
	Quality        string  `yaml:"quality"`
	Codec          string  `yaml:"codec"`
	PixelFormat    string  `yaml:"pixel_format"`
	Hardware       bool    `yaml:"hardware"`
}

type ManifestAudio struct {
	Device          string  `yaml:"device"`
	Channels        int     `yaml:"channels"`
	Blocks          int     `yaml:"blocks"`
	RejectedBlocks  int     `yaml:"rejected_blocks"`
	DurationSeconds float64 `yaml:"duration_seconds"`
}

// NewManifest summarises an outcome.
func NewManifest(o *Outcome, bitrate string) *Manifest {
	s := o.Session
	m := &Manifest{
		SessionID:     s.ID,
		Mode:          s.Mode,
		CreatedAt:     s.Created.UTC().Truncate(time.Second),
		Output:        o.Final,
		SampleRate:    s.SampleRate,
		AudioBitrate:  bitrate,
		OffsetSeconds: o.Offset.Seconds(),
		AudioVerified: o.AudioVerified,
		Process:       o.Process,
		Audio: ManifestAudio{
			Device:          o.Audio.Device,
			Channels:        o.Audio.Channels,
			Blocks:          o.Audio.Blocks,
			RejectedBlocks:  o.Audio.Rejected,
			DurationSeconds: o.Audio.Duration().Seconds(),
		},
	}
	if s.Mode == ModeVideo {
		m.Video = &ManifestVideo{
			Region:         s.Region.String(),
			FPS:            s.FPS,
			Frames:         o.Video.Frames,
			SkippedSlots:   o.Video.SkippedSlots,
			EffectiveFPS:   o.Video.EffectiveFPS,
			ElapsedSeconds: o.Video.Elapsed.Seconds(),
			Quality:        o.Profile.Tier,
			Codec:          o.Profile.Codec,
			PixelFormat:    o.Profile.PixelFormat,
			Hardware:       o.Profile.Hardware,
		}
	}
	return m
}

// WriteManifest replaces path with m atomically.
func WriteManifest(path string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return writeFileAtomic(path, data)
}
