package capture

import (
	"context"
	"fmt"
	"image"
	"time"
)

// idleWait is how long the scheduler sleeps when the next frame slot has
// not arrived yet.
const idleWait = time.Millisecond

// Grabber captures one screen rectangle.
type Grabber interface {
	Grab(r Region) (*image.RGBA, error)
}

// FrameSink receives packed BGR24 frames of a fixed size.
type FrameSink interface {
	WriteFrame(frame []byte) error
	Close() error
}

// VideoOptions configures one CFR screen recording.
type VideoOptions struct {
	Region Region
	FPS    int
}

// VideoResult describes a finished screen recording. SkippedSlots counts
// frame slots that passed while a previous grab was still in progress;
// those slots are dropped, never filled with a repeated frame.
type VideoResult struct {
	Frames       int64
	SkippedSlots int64
	FirstFrame   time.Time
	Elapsed      time.Duration
	EffectiveFPS float64
	Metrics      MetricsSnapshot
	Err          error
}

// VideoCapture samples a screen region on a wall-clock schedule. Each loop
// iteration computes the frame slot for the current instant and grabs at
// most one frame for it.
type VideoCapture struct {
	grab    Grabber
	sink    FrameSink
	opts    VideoOptions
	metrics *StreamMetrics

	now   func() time.Time
	sleep func(time.Duration)
}

func NewVideoCapture(grab Grabber, sink FrameSink, opts VideoOptions) *VideoCapture {
	return &VideoCapture{
		grab:    grab,
		sink:    sink,
		opts:    opts,
		metrics: NewStreamMetrics(),
		now:     time.Now,
		sleep:   time.Sleep,
	}
}

// Metrics exposes live counters while Run is in progress.
func (v *VideoCapture) Metrics() *StreamMetrics {
	return v.metrics
}

// Run captures frames until ctx is done or a grab or write fails, then
// closes the sink.
func (v *VideoCapture) Run(ctx context.Context) (res VideoResult) {
	fps := int64(v.opts.FPS)
	if fps <= 0 {
		res.Err = fmt.Errorf("invalid frame rate %d", v.opts.FPS)
		return res
	}

	frame := make([]byte, v.opts.Region.FrameBytes())
	t0 := v.now()
	last := int64(-1)

	defer func() {
		if err := v.sink.Close(); err != nil && res.Err == nil {
			res.Err = fmt.Errorf("close video sink: %w", err)
		}
		res.Elapsed = v.now().Sub(t0)
		if secs := res.Elapsed.Seconds(); secs > 0 {
			res.EffectiveFPS = float64(res.Frames) / secs
		}
		res.Metrics = v.metrics.Snapshot()
		log.Info("video capture finished",
			"frames", res.Frames,
			"skippedSlots", res.SkippedSlots,
			"elapsed", res.Elapsed.Round(time.Millisecond).String(),
			"effectiveFps", fmt.Sprintf("%.2f", res.EffectiveFPS),
			"maxGrabMs", res.Metrics.MaxGrabMs,
		)
	}()

	for ctx.Err() == nil {
		idx := slotIndex(v.now().Sub(t0), fps)
		if idx <= last {
			v.metrics.RecordIdle()
			v.sleep(idleWait)
			continue
		}
		if last >= 0 && idx > last+1 {
			res.SkippedSlots += idx - last - 1
			v.metrics.RecordSkip(idx - last - 1)
		}

		start := v.now()
		img, err := v.grab.Grab(v.opts.Region)
		if err != nil {
			res.Err = fmt.Errorf("grab frame %d: %w", res.Frames, err)
			log.Warn("video capture stopped early", "frames", res.Frames, "error", err)
			return res
		}
		grabbedAt := v.now()
		v.metrics.RecordGrab(grabbedAt.Sub(start))

		if img.Rect.Dx() != v.opts.Region.Width || img.Rect.Dy() != v.opts.Region.Height {
			res.Err = fmt.Errorf("%w: got %dx%d, want %dx%d", ErrFrameSize,
				img.Rect.Dx(), img.Rect.Dy(), v.opts.Region.Width, v.opts.Region.Height)
			log.Warn("video capture stopped early", "frames", res.Frames, "error", res.Err)
			return res
		}
		if err := rgbaToBGR24(frame, img); err != nil {
			res.Err = err
			return res
		}
		converted := v.now()
		v.metrics.RecordConvert(converted.Sub(grabbedAt))

		if err := v.sink.WriteFrame(frame); err != nil {
			res.Err = fmt.Errorf("write frame %d: %w", res.Frames, err)
			log.Warn("video capture stopped early", "frames", res.Frames, "error", err)
			return res
		}
		v.metrics.RecordWrite(v.now().Sub(converted), len(frame))

		if res.Frames == 0 {
			res.FirstFrame = grabbedAt
		}
		res.Frames++
		last = idx
	}
	return res
}

// slotIndex returns floor(elapsed * fps) for elapsed >= 0.
func slotIndex(elapsed time.Duration, fps int64) int64 {
	if elapsed < 0 {
		return 0
	}
	return int64(elapsed) * fps / int64(time.Second)
}
