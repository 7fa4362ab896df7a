package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/breeze-rmm/recorder/internal/logging"
)

// DefaultBlockFrames is the number of frames per channel requested from the
// loopback device on every read.
const DefaultBlockFrames = 1024

// Block is one read from a loopback device. Samples are interleaved float32
// in [-1, 1]; a mono device reports Channels == 1.
type Block struct {
	Samples  []float32
	Channels int
}

// Frames returns the number of sample frames in the block.
func (b Block) Frames() int {
	if b.Channels <= 0 {
		return len(b.Samples)
	}
	return len(b.Samples) / b.Channels
}

// LoopbackDevice is a system audio output that can be opened as a recording
// session.
type LoopbackDevice interface {
	Name() string
	Open(sampleRate, blockFrames int) (Recorder, error)
}

// Recorder yields fixed-size blocks from an open loopback device. Record
// blocks until one block is available or ctx is done.
type Recorder interface {
	Record(ctx context.Context) (Block, error)
	Close() error
}

// AudioOptions configures one loopback recording.
type AudioOptions struct {
	Path        string
	SampleRate  int
	BlockFrames int
}

// AudioResult describes the stream a finished AudioCapture left on disk.
// Err is set when the loop stopped for any reason other than Stop; the
// stream may still hold the blocks captured before the failure.
type AudioResult struct {
	Path        string
	Device      string
	Channels    int
	SampleRate  int
	Blocks      int
	Rejected    int
	Frames      int64
	Bytes       int64
	FirstSample time.Time
	Err         error
}

// Duration is the length of the recorded PCM at the nominal sample rate.
func (r AudioResult) Duration() time.Duration {
	if r.SampleRate <= 0 {
		return 0
	}
	return time.Duration(r.Frames * int64(time.Second) / int64(r.SampleRate))
}

// AudioCapture records a loopback device into a PCM16 WAV file on its own
// goroutine. The channel count is fixed by the first block; later blocks of
// a different shape are rejected.
type AudioCapture struct {
	dev  LoopbackDevice
	opts AudioOptions
	now  func() time.Time

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	result  AudioResult
}

func NewAudioCapture(dev LoopbackDevice, opts AudioOptions) *AudioCapture {
	if opts.BlockFrames <= 0 {
		opts.BlockFrames = DefaultBlockFrames
	}
	return &AudioCapture{
		dev:  dev,
		opts: opts,
		now:  time.Now,
		done: make(chan struct{}),
	}
}

// Start launches the recording loop. It returns immediately; calling it
// more than once has no effect.
func (a *AudioCapture) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return
	}
	a.started = true

	ctx, a.cancel = context.WithCancel(ctx)
	go a.run(ctx)
}

// Stop signals the loop to exit after its current block and waits until it
// has returned and the WAV file is finalised. No bytes are written to the
// file after Stop returns.
func (a *AudioCapture) Stop() AudioResult {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return AudioResult{Path: a.opts.Path, SampleRate: a.opts.SampleRate, Err: errors.New("audio capture was never started")}
	}
	a.cancel()
	a.mu.Unlock()

	<-a.done
	return a.result
}

// Done is closed when the recording loop has exited.
func (a *AudioCapture) Done() <-chan struct{} {
	return a.done
}

func (a *AudioCapture) run(ctx context.Context) {
	defer close(a.done)

	res := &a.result
	res.Path = a.opts.Path
	res.Device = a.dev.Name()
	res.SampleRate = a.opts.SampleRate

	rec, err := a.dev.Open(a.opts.SampleRate, a.opts.BlockFrames)
	if err != nil {
		res.Err = fmt.Errorf("open loopback device %q: %w", res.Device, err)
		log.Error("audio capture failed to start", "device", res.Device, "error", err)
		return
	}
	defer func() {
		if err := rec.Close(); err != nil {
			log.Debug("closing loopback recorder", "error", err)
		}
	}()

	var sink *wavSink
	defer func() {
		if sink == nil {
			return
		}
		if err := sink.Close(); err != nil && res.Err == nil {
			res.Err = err
		}
		res.Bytes = sink.written
	}()

	pcm := make([]int16, 0, a.opts.BlockFrames*2)
	for ctx.Err() == nil {
		block, err := rec.Record(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			res.Err = fmt.Errorf("read loopback block: %w", err)
			log.Warn("audio capture stopped early", "blocks", res.Blocks, "error", err)
			return
		}

		channels := block.Channels
		if channels <= 0 {
			channels = 1
		}
		if len(block.Samples) == 0 || len(block.Samples)%channels != 0 {
			res.Rejected++
			log.Debug("rejecting malformed audio block", "samples", len(block.Samples), "channels", channels)
			continue
		}

		if sink == nil {
			sink, err = createWAVSink(a.opts.Path, channels, a.opts.SampleRate)
			if err != nil {
				res.Err = err
				log.Error("audio capture failed to open sink", logging.KeyPath, a.opts.Path, "error", err)
				return
			}
			res.Channels = channels
			log.Info("audio stream negotiated", "device", res.Device, "channels", channels, "sampleRate", a.opts.SampleRate)
		} else if channels != res.Channels {
			res.Rejected++
			log.Warn("rejecting audio block with unexpected channel count", "got", channels, "want", res.Channels)
			continue
		}

		pcm = ToPCM16(pcm[:0], block.Samples)
		if err := sink.Write(pcm); err != nil {
			res.Err = err
			log.Warn("audio capture stopped early", "blocks", res.Blocks, "error", err)
			return
		}
		if res.FirstSample.IsZero() {
			res.FirstSample = a.now()
		}
		res.Blocks++
		res.Frames += int64(len(block.Samples) / channels)
	}
}
