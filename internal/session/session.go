// Package session coordinates one recording run: it starts the loopback
// audio and screen captures, measures the skew between their first
// samples, and hands both temporaries to ffmpeg to produce the final file.
package session

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/breeze-rmm/recorder/internal/capture"
	"github.com/breeze-rmm/recorder/internal/config"
	"github.com/breeze-rmm/recorder/internal/logging"
)

var log = logging.L("session")

// Mode selects what a session records.
type Mode string

const (
	ModeVideo Mode = "video"
	ModeAudio Mode = "audio"
)

// Session is one recording run. All paths live in Dir and derive from Base;
// only Reserve changes them after New.
type Session struct {
	ID      string
	Mode    Mode
	Created time.Time
	Dir     string
	Base    string

	TempVideo string
	TempAudio string
	Final     string
	// FallbackWAV is the final artifact of an audio session when ffmpeg is
	// not available to transcode.
	FallbackWAV string

	Region      capture.Region
	FPS         int
	SampleRate  int
	BlockFrames int

	tempPrefix string
	videoExt   string
}

// New derives the session paths from cfg and the creation time.
func New(cfg config.Config, mode Mode, now time.Time) *Session {
	s := &Session{
		ID:         uuid.NewString(),
		Mode:       mode,
		Created:    now,
		Dir:        filepath.Clean(cfg.Output.Dir),
		tempPrefix: cfg.Output.TempPrefix,

		Region: capture.Region{
			Left:   cfg.Video.Region.Left,
			Top:    cfg.Video.Region.Top,
			Width:  cfg.Video.Region.Width,
			Height: cfg.Video.Region.Height,
		},
		FPS:         cfg.Video.FPS,
		SampleRate:  cfg.Audio.SampleRate,
		BlockFrames: cfg.Audio.BlockFrames,
	}
	if mode == ModeVideo {
		s.videoExt = ".bgr"
		if strings.EqualFold(cfg.Video.Intermediate, config.IntermediateFFV1) {
			s.videoExt = ".mkv"
		}
	}
	s.setBase(string(mode) + "_" + now.Format(cfg.Output.TimeLayout))
	return s
}

func (s *Session) setBase(base string) {
	s.Base = base
	tmp := s.tempPrefix + base
	s.TempAudio = filepath.Join(s.Dir, tmp+".wav")

	switch s.Mode {
	case ModeAudio:
		s.Final = filepath.Join(s.Dir, base+".m4a")
		s.FallbackWAV = filepath.Join(s.Dir, base+".wav")
	default:
		s.TempVideo = filepath.Join(s.Dir, tmp+s.videoExt)
		s.Final = filepath.Join(s.Dir, base+".mp4")
	}
}

// Reserve renames the session with a numeric suffix while any of its files
// already exist in Dir, so two runs in the same minute never share a path.
func (s *Session) Reserve() {
	base := s.Base
	for n := 2; s.taken(); n++ {
		s.setBase(base + "_" + strconv.Itoa(n))
	}
}

func (s *Session) taken() bool {
	paths := append(s.Temporaries(), s.Final, s.ManifestPath())
	if s.FallbackWAV != "" {
		paths = append(paths, s.FallbackWAV)
	}
	for _, p := range paths {
		if _, err := os.Lstat(p); err == nil {
			return true
		}
	}
	return false
}

// Temporaries lists the intermediate files the session creates.
func (s *Session) Temporaries() []string {
	if s.TempVideo == "" {
		return []string{s.TempAudio}
	}
	return []string{s.TempVideo, s.TempAudio}
}

// ManifestPath is the sidecar written next to the final artifact.
func (s *Session) ManifestPath() string {
	return filepath.Join(s.Dir, s.Base+".yaml")
}
