package capture

import (
	"context"
	"errors"
	"image"
	"math"
	"testing"
	"time"
)

// fakeClock advances only when the code under test sleeps or grabs, and
// cancels the run once the deadline is reached.
type fakeClock struct {
	t        time.Time
	deadline time.Time
	cancel   context.CancelFunc
}

func newFakeClock(run time.Duration, cancel context.CancelFunc) *fakeClock {
	start := time.Date(2025, 9, 7, 17, 13, 0, 0, time.UTC)
	return &fakeClock{t: start, deadline: start.Add(run), cancel: cancel}
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
	if !c.t.Before(c.deadline) {
		c.cancel()
	}
}

type fakeGrabber struct {
	clock *fakeClock
	cost  time.Duration
	calls int
	failAt int
	size   image.Point
}

func (g *fakeGrabber) Grab(r Region) (*image.RGBA, error) {
	g.calls++
	g.clock.advance(g.cost)
	if g.failAt > 0 && g.calls == g.failAt {
		return nil, errors.New("display lost")
	}
	size := image.Pt(r.Width, r.Height)
	if g.size != (image.Point{}) {
		size = g.size
	}
	img := image.NewRGBA(image.Rectangle{Max: size})
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = uint8(g.calls)
	}
	return img, nil
}

type memSink struct {
	frames [][]byte
	closed bool
}

func (s *memSink) WriteFrame(frame []byte) error {
	s.frames = append(s.frames, append([]byte(nil), frame...))
	return nil
}

func (s *memSink) Close() error {
	s.closed = true
	return nil
}

func runFakeVideo(t *testing.T, fps int, run, cost time.Duration, grab *fakeGrabber) (VideoResult, *memSink, *fakeClock) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := newFakeClock(run, cancel)
	grab.clock = clock
	grab.cost = cost
	sink := &memSink{}

	v := NewVideoCapture(grab, sink, VideoOptions{Region: Region{Width: 4, Height: 2}, FPS: fps})
	v.now = clock.now
	v.sleep = clock.advance
	return v.Run(ctx), sink, clock
}

func TestVideoCaptureFrameCountBounds(t *testing.T) {
	for _, fps := range []int{1, 24, 30, 60} {
		for _, run := range []time.Duration{500 * time.Millisecond, 2 * time.Second, 3100 * time.Millisecond} {
			res, sink, _ := runFakeVideo(t, fps, run, 2*time.Millisecond, &fakeGrabber{})
			if res.Err != nil {
				t.Fatalf("fps=%d run=%v: %v", fps, run, res.Err)
			}
			ideal := run.Seconds() * float64(fps)
			lo, hi := int64(math.Floor(ideal))-1, int64(math.Ceil(ideal))
			if res.Frames < lo || res.Frames > hi {
				t.Errorf("fps=%d run=%v: frames = %d, want [%d, %d]", fps, run, res.Frames, lo, hi)
			}
			if int64(len(sink.frames)) != res.Frames {
				t.Errorf("sink got %d frames, result says %d", len(sink.frames), res.Frames)
			}
			if !sink.closed {
				t.Error("sink not closed")
			}
		}
	}
}

func TestVideoCaptureReferenceSession(t *testing.T) {
	res, _, _ := runFakeVideo(t, 30, 2*time.Second, 5*time.Millisecond, &fakeGrabber{})
	if res.Frames < 58 || res.Frames > 61 {
		t.Fatalf("frames = %d, want 58..61", res.Frames)
	}
	if res.SkippedSlots != 0 {
		t.Fatalf("SkippedSlots = %d, want 0 with a cheap grab", res.SkippedSlots)
	}
	if res.Elapsed != 2*time.Second {
		t.Fatalf("Elapsed = %v, want 2s", res.Elapsed)
	}
	if math.Abs(res.EffectiveFPS-float64(res.Frames)/2) > 1e-9 {
		t.Fatalf("EffectiveFPS = %v", res.EffectiveFPS)
	}
}

func TestVideoCaptureDropsSlotsInsteadOfDuplicating(t *testing.T) {
	grab := &fakeGrabber{}
	res, sink, _ := runFakeVideo(t, 30, 2*time.Second, 80*time.Millisecond, grab)
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	if res.SkippedSlots == 0 {
		t.Fatal("expected skipped slots when a grab takes longer than a frame period")
	}
	if int64(grab.calls) != res.Frames {
		t.Fatalf("grabs = %d, frames = %d; every frame must come from its own grab", grab.calls, res.Frames)
	}
	for i, f := range sink.frames {
		// Red lands in the third byte of each BGR triplet.
		if f[2] != uint8(i+1) {
			t.Fatalf("frame %d carries grab %d", i, f[2])
		}
	}
	if total := res.Frames + res.SkippedSlots; total > 60 {
		t.Fatalf("frames + skipped = %d, exceeds the 60 slots of the run", total)
	}
	if res.Frames >= 60 {
		t.Fatalf("frames = %d, expected fewer than the nominal 60", res.Frames)
	}
}

func TestVideoCaptureFirstFrameIsFirstGrab(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock := newFakeClock(time.Second, cancel)
	start := clock.now()
	grab := &fakeGrabber{clock: clock, cost: 7 * time.Millisecond}

	v := NewVideoCapture(grab, &memSink{}, VideoOptions{Region: Region{Width: 2, Height: 2}, FPS: 10})
	v.now = clock.now
	v.sleep = clock.advance
	res := v.Run(ctx)

	if want := start.Add(7 * time.Millisecond); !res.FirstFrame.Equal(want) {
		t.Fatalf("FirstFrame = %v, want %v", res.FirstFrame, want)
	}
}

func TestVideoCaptureGrabError(t *testing.T) {
	grab := &fakeGrabber{failAt: 3}
	res, sink, _ := runFakeVideo(t, 30, time.Second, time.Millisecond, grab)
	if res.Err == nil {
		t.Fatal("expected grab error")
	}
	if res.Frames != 2 || len(sink.frames) != 2 {
		t.Fatalf("frames = %d, sink = %d, want 2", res.Frames, len(sink.frames))
	}
	if !sink.closed {
		t.Fatal("sink not closed after failure")
	}
}

func TestVideoCaptureRejectsWrongFrameSize(t *testing.T) {
	grab := &fakeGrabber{size: image.Pt(3, 3)}
	res, _, _ := runFakeVideo(t, 30, time.Second, time.Millisecond, grab)
	if !errors.Is(res.Err, ErrFrameSize) {
		t.Fatalf("Err = %v, want ErrFrameSize", res.Err)
	}
	if !res.FirstFrame.IsZero() {
		t.Fatal("FirstFrame set for a rejected frame")
	}
}

func TestVideoCaptureInvalidFPS(t *testing.T) {
	v := NewVideoCapture(&fakeGrabber{}, &memSink{}, VideoOptions{Region: Region{Width: 2, Height: 2}})
	if res := v.Run(context.Background()); res.Err == nil {
		t.Fatal("expected error for zero fps")
	}
}

func TestSlotIndex(t *testing.T) {
	tests := []struct {
		elapsed time.Duration
		fps     int64
		want    int64
	}{
		{0, 30, 0},
		{33 * time.Millisecond, 30, 0},
		{34 * time.Millisecond, 30, 1},
		{time.Second, 30, 30},
		{-time.Second, 30, 0},
		{1500 * time.Millisecond, 1, 1},
	}
	for _, tt := range tests {
		if got := slotIndex(tt.elapsed, tt.fps); got != tt.want {
			t.Errorf("slotIndex(%v, %d) = %d, want %d", tt.elapsed, tt.fps, got, tt.want)
		}
	}
}
