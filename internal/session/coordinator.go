package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/breeze-rmm/recorder/internal/capture"
	"github.com/breeze-rmm/recorder/internal/collectors"
	"github.com/breeze-rmm/recorder/internal/config"
	"github.com/breeze-rmm/recorder/internal/encode"
	"github.com/breeze-rmm/recorder/internal/ffmpeg"
	"github.com/breeze-rmm/recorder/internal/logging"
	"github.com/breeze-rmm/recorder/internal/publish"
)

// Publisher uploads finished files. Failures are reported per file and
// never fail the run.
type Publisher interface {
	PublishAll(ctx context.Context, paths ...string) []publish.Result
}

// Deps are the collaborators a Coordinator drives. FFmpegPath and
// FFprobePath are resolved executables; empty means the tool is absent.
type Deps struct {
	Runner      ffmpeg.Runner
	FFmpegPath  string
	FFprobePath string

	FindDevice   func(ctx context.Context) (capture.LoopbackDevice, error)
	Grabber      capture.Grabber
	NewVideoSink func(ctx context.Context, s *Session) (capture.FrameSink, error)
	// Hardware reports whether the hardware encoder may be used. Nil
	// resolves the configured auto/on/off mode against ffmpeg.
	Hardware func(ctx context.Context) bool

	Publisher Publisher
	Resources *collectors.ResourceCollector
	Now       func() time.Time
}

// Outcome is everything known about a run once it returns. It is non-nil
// whenever capture started, including failed runs.
type Outcome struct {
	Session       *Session
	Final         string
	Manifest      string
	Audio         capture.AudioResult
	Video         capture.VideoResult
	Offset        time.Duration
	Profile       encode.Profile
	AudioVerified bool
	Uploads       []publish.Result
	Process       *collectors.ProcessResources
}

// Coordinator runs recording sessions.
type Coordinator struct {
	cfg  config.Config
	deps Deps
}

func NewCoordinator(cfg config.Config, deps Deps) *Coordinator {
	if deps.Runner == nil {
		deps.Runner = ffmpeg.ExecRunner{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Grabber == nil {
		deps.Grabber = capture.ScreenGrabber{}
	}
	if deps.FindDevice == nil {
		deps.FindDevice = func(ctx context.Context) (capture.LoopbackDevice, error) {
			return capture.FindLoopback(ctx, capture.LoopbackOptions{
				Runner:     deps.Runner,
				FFmpegPath: deps.FFmpegPath,
				Device:     cfg.Audio.Device,
			})
		}
	}
	if deps.NewVideoSink == nil {
		deps.NewVideoSink = func(ctx context.Context, s *Session) (capture.FrameSink, error) {
			if cfg.Video.Intermediate == config.IntermediateFFV1 {
				return capture.StartFFV1Sink(ctx, deps.FFmpegPath, s.TempVideo, s.Region, s.FPS)
			}
			return capture.CreateRawFileSink(s.TempVideo, s.Region)
		}
	}
	if deps.Hardware == nil {
		deps.Hardware = func(ctx context.Context) bool {
			if deps.FFmpegPath == "" {
				return false
			}
			return encode.HardwareAvailable(ctx, deps.Runner, deps.FFmpegPath, cfg.Encoder.NVENC)
		}
	}
	return &Coordinator{cfg: cfg, deps: deps}
}

// Record captures screen and loopback audio until ctx is cancelled, then
// muxes them into the session's MP4. The mux itself is not cancelled by
// ctx.
func (c *Coordinator) Record(ctx context.Context) (*Outcome, error) {
	sess := New(c.cfg, ModeVideo, c.deps.Now())
	logger := logging.WithSession(log, sess.ID)
	ctx = logging.NewContext(ctx, logger)

	if c.deps.FFmpegPath == "" {
		return nil, fmt.Errorf("ffmpeg is required to mux video and audio: %w", ffmpeg.ErrNotFound)
	}
	dev, err := c.deps.FindDevice(ctx)
	if err != nil {
		logger.Error("no loopback device", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	profile := encode.Select(c.cfg.Encoder.Quality, c.deps.Hardware(ctx))
	out := &Outcome{Session: sess, Profile: profile}

	if err := os.MkdirAll(sess.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	sess.Reserve()

	logger.Info("recording started",
		"region", sess.Region.String(),
		"fps", sess.FPS,
		"sampleRate", sess.SampleRate,
		"quality", profile.Tier,
		"codec", profile.Codec,
		logging.KeyPath, sess.Final,
	)

	audio := capture.NewAudioCapture(dev, capture.AudioOptions{
		Path:        sess.TempAudio,
		SampleRate:  sess.SampleRate,
		BlockFrames: sess.BlockFrames,
	})
	audio.Start(context.WithoutCancel(ctx))

	sink, err := c.deps.NewVideoSink(ctx, sess)
	if err != nil {
		out.Audio = audio.Stop()
		return out, fmt.Errorf("open video sink: %w", err)
	}
	video := capture.NewVideoCapture(c.deps.Grabber, sink, capture.VideoOptions{Region: sess.Region, FPS: sess.FPS})
	out.Video = video.Run(ctx)
	out.Audio = audio.Stop()

	c.logStreams(logger, out)

	if err := requireStream(sess.TempVideo, out.Video.FirstFrame); err != nil {
		return out, fmt.Errorf("video: %w", err)
	}
	if err := requireStream(sess.TempAudio, out.Audio.FirstSample); err != nil {
		return out, fmt.Errorf("audio: %w", err)
	}

	out.Offset = ComputeOffset(out.Video.FirstFrame, out.Audio.FirstSample)
	logger.Info("measured stream offset", "offsetSeconds", fmt.Sprintf("%+.4f", out.Offset.Seconds()))

	var videoInput []string
	if c.cfg.Video.Intermediate != config.IntermediateFFV1 {
		videoInput = capture.RawVideoInputArgs(sess.Region, sess.FPS)
	}
	args := BuildMuxArgs(MuxJob{
		Video:        sess.TempVideo,
		VideoInput:   videoInput,
		Audio:        sess.TempAudio,
		Output:       sess.Final,
		Offset:       out.Offset,
		Profile:      profile,
		Region:       sess.Region,
		FPS:          sess.FPS,
		SampleRate:   sess.SampleRate,
		AudioBitrate: c.cfg.Audio.Bitrate,
	})

	finishCtx := context.WithoutCancel(ctx)
	if err := c.runEncoder(finishCtx, logger, sess, "mux", args); err != nil {
		return out, err
	}
	out.Final = sess.Final
	c.finish(finishCtx, logger, out)
	return out, nil
}

// RecordAudio captures loopback audio until ctx is cancelled and
// transcodes it to AAC. Without ffmpeg the WAV itself becomes the final
// artifact.
func (c *Coordinator) RecordAudio(ctx context.Context) (*Outcome, error) {
	sess := New(c.cfg, ModeAudio, c.deps.Now())
	logger := logging.WithSession(log, sess.ID)
	ctx = logging.NewContext(ctx, logger)

	dev, err := c.deps.FindDevice(ctx)
	if err != nil {
		logger.Error("no loopback device", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if err := os.MkdirAll(sess.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	sess.Reserve()
	out := &Outcome{Session: sess}

	target := sess.Final
	if c.deps.FFmpegPath == "" {
		target = sess.FallbackWAV
	}
	logger.Info("audio recording started", "sampleRate", sess.SampleRate, "bitrate", c.cfg.Audio.Bitrate, logging.KeyPath, target)

	audio := capture.NewAudioCapture(dev, capture.AudioOptions{
		Path:        sess.TempAudio,
		SampleRate:  sess.SampleRate,
		BlockFrames: sess.BlockFrames,
	})
	audio.Start(context.WithoutCancel(ctx))
	select {
	case <-ctx.Done():
	case <-audio.Done():
	}
	out.Audio = audio.Stop()
	c.logStreams(logger, out)

	if err := requireStream(sess.TempAudio, out.Audio.FirstSample); err != nil {
		return out, fmt.Errorf("audio: %w", err)
	}

	finishCtx := context.WithoutCancel(ctx)
	if c.deps.FFmpegPath == "" {
		logger.Warn("ffmpeg not found; keeping uncompressed WAV as the final file")
		if err := os.Rename(sess.TempAudio, sess.FallbackWAV); err != nil {
			return out, fmt.Errorf("promote wav: %w", err)
		}
		out.Final = sess.FallbackWAV
		c.finish(finishCtx, logger, out)
		return out, nil
	}

	args := BuildTranscodeArgs(sess.TempAudio, sess.Final, sess.SampleRate, c.cfg.Audio.Bitrate)
	if err := c.runEncoder(finishCtx, logger, sess, "transcode", args); err != nil {
		return out, err
	}
	out.Final = sess.Final
	c.finish(finishCtx, logger, out)
	return out, nil
}

func (c *Coordinator) runEncoder(ctx context.Context, logger *slog.Logger, sess *Session, step string, args []string) error {
	_, statErr := os.Stat(sess.Final)
	preexisting := statErr == nil
	start := time.Now()
	res, err := c.deps.Runner.Run(ctx, c.deps.FFmpegPath, args...)
	if err == nil {
		logger.Info(step+" finished", logging.KeyDurationMs, time.Since(start).Milliseconds(), logging.KeyPath, sess.Final)
		return nil
	}

	// A failed run may leave a truncated output behind. A file that was
	// there before the run is not ours to delete.
	if preexisting {
		logger.Warn("output path existed before "+step+"; leaving it in place", logging.KeyPath, sess.Final)
	} else if rmErr := os.Remove(sess.Final); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		logger.Warn("could not remove partial output", logging.KeyPath, sess.Final, "error", rmErr)
	}
	output := ""
	if res != nil {
		output = res.Output
	}
	logger.Error(step+" failed; temporaries preserved",
		"error", err,
		"output", ffmpeg.Tail(output, 2000),
		"temporaries", sess.Temporaries(),
	)
	return fmt.Errorf("%w: %s: %w", ErrProcessFailed, step, err)
}

// finish runs the steps after a final artifact exists. None of them can
// fail the run.
func (c *Coordinator) finish(ctx context.Context, logger *slog.Logger, out *Outcome) {
	sess := out.Session
	out.AudioVerified = c.verifyAudio(ctx, logger, out.Final)

	if c.cfg.Output.KeepTemp {
		logger.Info("keeping temporaries", "temporaries", sess.Temporaries())
	} else {
		removeTemporaries(logger, sess)
	}

	if c.deps.Resources != nil {
		if p, err := c.deps.Resources.Process(); err == nil {
			out.Process = p
		}
	}

	uploads := []string{out.Final}
	if c.cfg.Output.WriteManifest {
		path := sess.ManifestPath()
		if err := WriteManifest(path, NewManifest(out, c.cfg.Audio.Bitrate)); err != nil {
			logger.Warn("manifest not written", logging.KeyPath, path, "error", err)
		} else {
			out.Manifest = path
			uploads = append(uploads, path)
		}
	}

	if c.deps.Publisher != nil {
		out.Uploads = c.deps.Publisher.PublishAll(ctx, uploads...)
	}

	attrs := []any{logging.KeyPath, out.Final, "audioVerified", out.AudioVerified}
	if out.Process != nil {
		attrs = append(attrs, "cpuPercent", out.Process.CPUPercent, "rssMb", out.Process.RSSMB)
	}
	logger.Info("recording saved", attrs...)
}

// verifyAudio checks that path carries at least one audio stream. A
// missing or failing ffprobe is only a warning.
func (c *Coordinator) verifyAudio(ctx context.Context, logger *slog.Logger, path string) bool {
	if c.deps.FFprobePath == "" {
		logger.Warn("ffprobe not found; skipping audio stream check")
		return false
	}
	streams, err := ffmpeg.AudioStreamIndexes(ctx, c.deps.Runner, c.deps.FFprobePath, path)
	if err != nil {
		logger.Warn("audio stream check failed", logging.KeyPath, path, "error", err)
		return false
	}
	if len(streams) == 0 {
		logger.Warn("output has no audio stream", logging.KeyPath, path)
		return false
	}
	return true
}

func (c *Coordinator) logStreams(logger *slog.Logger, out *Outcome) {
	a := out.Audio
	attrs := []any{
		"channels", a.Channels,
		"blocks", a.Blocks,
		"rejectedBlocks", a.Rejected,
		"audioSeconds", fmt.Sprintf("%.2f", a.Duration().Seconds()),
	}
	if out.Session.Mode == ModeVideo {
		v := out.Video
		attrs = append(attrs,
			"frames", v.Frames,
			"skippedSlots", v.SkippedSlots,
			"videoSeconds", fmt.Sprintf("%.2f", v.Elapsed.Seconds()),
			"effectiveFps", fmt.Sprintf("%.2f", v.EffectiveFPS),
		)
		if v.Err != nil {
			logger.Warn("video capture degraded", "error", v.Err)
		}
	}
	if a.Err != nil {
		logger.Warn("audio capture degraded", "error", a.Err)
	}
	logger.Info("capture stopped", attrs...)
}

// requireStream fails when path is missing or empty, or the stream never
// produced its first sample.
func requireStream(path string, first time.Time) error {
	info, err := os.Stat(path)
	switch {
	case err != nil:
		return fmt.Errorf("%w: %s: %v", ErrEmptyStream, path, err)
	case info.Size() == 0:
		return fmt.Errorf("%w: %s is 0 bytes", ErrEmptyStream, path)
	case first.IsZero():
		return fmt.Errorf("%w: %s has no captured samples", ErrEmptyStream, path)
	}
	return nil
}

func removeTemporaries(logger *slog.Logger, sess *Session) {
	for _, p := range sess.Temporaries() {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("could not remove temporary", logging.KeyPath, p, "error", err)
		}
	}
}
