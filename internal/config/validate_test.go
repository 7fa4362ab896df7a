package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestDefaultMatchesReferenceSession(t *testing.T) {
	cfg := Default()
	if cfg.Audio.SampleRate != 48000 {
		t.Fatalf("SampleRate = %d, want 48000", cfg.Audio.SampleRate)
	}
	if cfg.Audio.BlockFrames != 1024 {
		t.Fatalf("BlockFrames = %d, want 1024", cfg.Audio.BlockFrames)
	}
	if cfg.Video.FPS != 30 {
		t.Fatalf("FPS = %d, want 30", cfg.Video.FPS)
	}
	if cfg.Video.Region != (Region{Left: 469, Top: 123, Width: 511, Height: 889}) {
		t.Fatalf("Region = %+v", cfg.Video.Region)
	}
	if cfg.Encoder.Quality != QualityInsane || cfg.Encoder.NVENC != NVENCAuto {
		t.Fatalf("encoder = %+v", cfg.Encoder)
	}
}

func TestValidateTieredFPSClampingIsWarning(t *testing.T) {
	cfg := Default()
	cfg.Video.FPS = 0
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped fps should be warning, not fatal: %v", result.Fatals)
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected warning for clamped fps")
	}
	if cfg.Video.FPS != 1 {
		t.Fatalf("FPS = %d, want 1 (clamped)", cfg.Video.FPS)
	}
}

func TestValidateTieredHighSampleRateClamping(t *testing.T) {
	cfg := Default()
	cfg.Audio.SampleRate = 1_000_000
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped sample rate should be warning: %v", result.Fatals)
	}
	if cfg.Audio.SampleRate != 192000 {
		t.Fatalf("SampleRate = %d, want 192000", cfg.Audio.SampleRate)
	}
}

func TestValidateTieredFatals(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"quality", func(c *Config) { c.Encoder.Quality = "ultra" }, "encoder.quality"},
		{"nvenc", func(c *Config) { c.Encoder.NVENC = "maybe" }, "encoder.nvenc"},
		{"intermediate", func(c *Config) { c.Video.Intermediate = "mjpeg" }, "video.intermediate"},
		{"region", func(c *Config) { c.Video.Region.Width = 0 }, "video.region"},
		{"bitrate", func(c *Config) { c.Audio.Bitrate = "loud" }, "audio.bitrate"},
		{"output", func(c *Config) { c.Output.Dir = " " }, "output.dir"},
		{"prefix", func(c *Config) { c.Output.TempPrefix = "a/b" }, "temp_prefix"},
		{"s3 region", func(c *Config) { c.Publish.S3.Bucket = "recordings" }, "publish.s3.region"},
		{"s3 keys", func(c *Config) { c.Publish.S3.AccessKeyID = "AKIA" }, "secret_access_key"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			result := cfg.ValidateTiered()
			if !result.HasFatals() {
				t.Fatalf("expected fatal for %s", tc.name)
			}
			found := false
			for _, err := range result.Fatals {
				if strings.Contains(err.Error(), tc.want) {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected %q in fatals, got %v", tc.want, result.Fatals)
			}
		})
	}
}

func TestValidateTieredNormalizesEnums(t *testing.T) {
	cfg := Default()
	cfg.Encoder.Quality = " HIGH "
	cfg.Encoder.NVENC = "Off"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("unexpected fatals: %v", result.Fatals)
	}
	if cfg.Encoder.Quality != QualityHigh || cfg.Encoder.NVENC != NVENCOff {
		t.Fatalf("encoder = %+v", cfg.Encoder)
	}
}

func TestValidateTieredLogSettings(t *testing.T) {
	cases := []struct {
		level, format string
		fatal         bool
	}{
		{"verbose", "text", true},
		{"info", "xml", true},
		{" WARNING ", "JSON", false},
		{"", "", false},
	}
	for _, tc := range cases {
		cfg := Default()
		cfg.Log.Level = tc.level
		cfg.Log.Format = tc.format
		if got := cfg.ValidateTiered().HasFatals(); got != tc.fatal {
			t.Errorf("level %q format %q: HasFatals = %v, want %v", tc.level, tc.format, got, tc.fatal)
		}
	}
}

func TestHasFatals(t *testing.T) {
	r := ValidationResult{}
	if r.HasFatals() {
		t.Fatal("HasFatals() on empty result should be false")
	}
	r.Fatals = append(r.Fatals, fmt.Errorf("test error"))
	if !r.HasFatals() {
		t.Fatal("HasFatals() should be true with a fatal error")
	}
}

func TestFatalAndWarningReportedTogether(t *testing.T) {
	cfg := Default()
	cfg.Encoder.Quality = "ultra" // fatal
	cfg.Video.FPS = 1000          // warning
	result := cfg.ValidateTiered()

	if len(result.Fatals) != 1 || len(result.Warnings) != 1 {
		t.Fatalf("fatals = %v, warnings = %v", result.Fatals, result.Warnings)
	}
}

func TestValidConfigHasNoErrors(t *testing.T) {
	result := Default().ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("valid config has fatals: %v", result.Fatals)
	}
	if len(result.Warnings) > 0 {
		t.Fatalf("valid config has warnings: %v", result.Warnings)
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "recorder.yaml")
	body := `
video:
  fps: 60
  region:
    left: 0
    top: 0
    width: 1280
    height: 720
encoder:
  quality: high
`
	if err := os.WriteFile(cfgFile, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("BREEZE_RECORDER_AUDIO_BITRATE", "192k")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("fps", 30, "")
	flags.String("quality", "insane", "")
	if err := flags.Parse([]string{"--fps=24"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgFile, flags)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Video.FPS != 24 {
		t.Fatalf("FPS = %d, want 24 (flag wins)", cfg.Video.FPS)
	}
	if cfg.Encoder.Quality != QualityHigh {
		t.Fatalf("Quality = %q, want high (file beats unset flag)", cfg.Encoder.Quality)
	}
	if cfg.Video.Region.Width != 1280 || cfg.Video.Region.Height != 720 {
		t.Fatalf("Region = %+v", cfg.Video.Region)
	}
	if cfg.Audio.Bitrate != "192k" {
		t.Fatalf("Bitrate = %q, want 192k from env", cfg.Audio.Bitrate)
	}
	if cfg.Audio.SampleRate != 48000 {
		t.Fatalf("SampleRate = %d, want default 48000", cfg.Audio.SampleRate)
	}
}
