package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/breeze-rmm/recorder/internal/collectors"
	"github.com/breeze-rmm/recorder/internal/config"
	"github.com/breeze-rmm/recorder/internal/ffmpeg"
	"github.com/breeze-rmm/recorder/internal/logging"
	"github.com/breeze-rmm/recorder/internal/publish"
	"github.com/breeze-rmm/recorder/internal/session"
)

var (
	version  = "0.1.0"
	cfgFile  string
	duration time.Duration
)

var log = logging.L("main")

// Exit codes.
const (
	exitOK = iota
	exitFailure
	exitConfig
	exitNoDevice
	exitEmptyStream
	exitProcessFailed
	exitNoFFmpeg
)

var errConfig = errors.New("invalid configuration")

var rootCmd = &cobra.Command{
	Use:           "breeze-recorder",
	Short:         "Breeze screen and system audio recorder",
	Long:          `Breeze Recorder - captures a screen region and loopback audio and muxes them into an MP4`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record the screen region with system audio until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRecording(cmd, session.ModeVideo)
	},
}

var audioCmd = &cobra.Command{
	Use:   "audio",
	Short: "Record system audio only until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRecording(cmd, session.ModeAudio)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Breeze Recorder v%s\n", version)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is <user config dir>/breeze-recorder/recorder.yaml)")
	pf.String("output", "", "directory for recordings")
	pf.Bool("keep-temp", false, "keep intermediate files after a successful run")
	pf.Bool("manifest", false, "write a YAML manifest next to each recording")
	pf.Int("sample-rate", 48000, "audio sample rate in Hz")
	pf.String("bitrate", "320k", "AAC bitrate")
	pf.String("device", "", "loopback source to record instead of the default output")
	pf.String("ffmpeg", "", "path to the ffmpeg executable")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "text", "log format (text, json)")
	pf.String("log-file", "", "also log to this file, with rotation")

	for _, c := range []*cobra.Command{recordCmd, audioCmd} {
		c.Flags().DurationVar(&duration, "duration", 0, "stop automatically after this long (0 waits for Ctrl+C)")
	}

	f := recordCmd.Flags()
	f.Int("fps", 30, "frames per second")
	f.Int("left", 469, "capture region left edge")
	f.Int("top", 123, "capture region top edge")
	f.Int("width", 511, "capture region width")
	f.Int("height", 889, "capture region height")
	f.String("intermediate", "raw", "video intermediate (raw, ffv1)")
	f.String("quality", "insane", "quality tier (high, insane, lossless)")
	f.String("nvenc", "auto", "hardware encoding (auto, on, off)")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(audioCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errConfig):
		return exitConfig
	case errors.Is(err, session.ErrDeviceUnavailable):
		return exitNoDevice
	case errors.Is(err, session.ErrEmptyStream):
		return exitEmptyStream
	case errors.Is(err, session.ErrProcessFailed):
		return exitProcessFailed
	case errors.Is(err, ffmpeg.ErrNotFound):
		return exitNoFFmpeg
	default:
		return exitFailure
	}
}

// loadConfig loads and validates configuration and initialises logging.
// The returned closer flushes the log file, if any.
func loadConfig(cmd *cobra.Command) (config.Config, io.Closer, error) {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("%w: %v", errConfig, err)
	}
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		return config.Config{}, nil, fmt.Errorf("%w: %v", errConfig, errors.Join(result.Fatals...))
	}

	out, closer, err := logging.Output(cfg.Log.File, cfg.Log.MaxSizeMB, cfg.Log.MaxBackups)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("%w: open log file: %v", errConfig, err)
	}
	logging.Init(cfg.Log.Format, cfg.Log.Level, out)
	return *cfg, closer, nil
}

// locateTools resolves ffmpeg and ffprobe. A missing tool is returned as an
// empty path; callers decide whether that is fatal.
func locateTools(cfg config.Config) (ffmpegPath, ffprobePath string) {
	ffmpegPath, err := ffmpeg.Locate(cfg.Encoder.FFmpegPath, ffmpeg.DefaultFFmpeg)
	if err != nil {
		log.Warn("ffmpeg not found", "error", err)
	}
	ffprobePath, err = ffmpeg.Locate(cfg.Encoder.FFprobePath, ffmpeg.DefaultFFprobe)
	if err != nil {
		log.Warn("ffprobe not found", "error", err)
	}
	return ffmpegPath, ffprobePath
}

func runRecording(cmd *cobra.Command, mode session.Mode) error {
	cfg, closer, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer closer.Close()

	ffmpegPath, ffprobePath := locateTools(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	deps := session.Deps{
		Runner:      ffmpeg.ExecRunner{},
		FFmpegPath:  ffmpegPath,
		FFprobePath: ffprobePath,
		Resources:   collectors.NewResourceCollector(),
	}
	if publish.Enabled(cfg.Publish.S3) {
		up, err := publish.NewS3Uploader(ctx, cfg.Publish.S3)
		if err != nil {
			return fmt.Errorf("%w: %v", errConfig, err)
		}
		deps.Publisher = up
	}

	coord := session.NewCoordinator(cfg, deps)
	if mode == session.ModeAudio {
		log.Info("recording system audio; press Ctrl+C to stop")
		out, err := coord.RecordAudio(ctx)
		return report(out, err)
	}
	log.Info("recording screen and system audio; press Ctrl+C to stop")
	out, err := coord.Record(ctx)
	return report(out, err)
}

func report(out *session.Outcome, err error) error {
	if err != nil {
		return err
	}
	fmt.Println(out.Final)
	if out.Manifest != "" {
		fmt.Println(out.Manifest)
	}
	for _, u := range out.Uploads {
		if u.Err == nil {
			fmt.Println(u.Location)
		}
	}
	return nil
}
