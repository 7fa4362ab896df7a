package session

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/breeze-rmm/recorder/internal/ffmpeg"
)

// TestRecordWithRealFFmpeg drives a two second session through a real
// ffmpeg using the reference geometry and checks the muxed result.
func TestRecordWithRealFFmpeg(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping real ffmpeg run in short mode")
	}
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not installed")
	}
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		t.Skip("ffprobe not installed")
	}

	cfg := testConfig(t)
	cfg.Video.Region.Width = 511
	cfg.Video.Region.Height = 889

	deps := testDeps(nil, &pacedDevice{})
	deps.Runner = ffmpeg.ExecRunner{}
	deps.FFmpegPath = ffmpegPath
	deps.FFprobePath = ffprobePath

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := NewCoordinator(cfg, deps).Record(ctx)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if out.Video.Frames < 58 || out.Video.Frames > 61 {
		t.Fatalf("video temporary held %d frames, want 58..61", out.Video.Frames)
	}
	if d := out.Audio.Duration(); d < 1950*time.Millisecond || d > 2050*time.Millisecond {
		t.Fatalf("audio temporary lasted %v, want 1.95s..2.05s", d)
	}
	if !out.AudioVerified {
		t.Fatal("final file has no audio stream")
	}

	ffprobe := func(args ...string) string {
		t.Helper()
		res, err := ffmpeg.ExecRunner{}.Run(context.Background(), ffprobePath, append([]string{"-v", "error"}, append(args, out.Final)...)...)
		if err != nil {
			t.Fatalf("ffprobe %v: %v", args, err)
		}
		return strings.TrimSpace(res.Output)
	}

	frames, err := strconv.Atoi(ffprobe("-count_frames", "-select_streams", "v:0",
		"-show_entries", "stream=nb_read_frames", "-of", "csv=p=0"))
	if err != nil {
		t.Fatal(err)
	}
	if diff := int64(frames) - out.Video.Frames; diff < -2 || diff > 2 {
		t.Fatalf("muxed video frames = %d, captured %d", frames, out.Video.Frames)
	}

	size := ffprobe("-select_streams", "v:0", "-show_entries", "stream=width,height", "-of", "csv=p=0:s=x")
	if size != "512x890" {
		t.Fatalf("video size = %s, want padded 512x890", size)
	}

	dur, err := strconv.ParseFloat(ffprobe("-select_streams", "a:0", "-show_entries", "stream=duration", "-of", "csv=p=0"), 64)
	if err != nil {
		t.Fatal(err)
	}
	// The offset and -shortest may trim or shift the muxed track slightly.
	if dur < 1.9 || dur > 2.1 {
		t.Fatalf("muxed audio duration = %.3fs, want about 2s", dur)
	}
}
