package capture

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/breeze-rmm/recorder/internal/ffmpeg"
)

const defaultPulseChannels = 2

// pulseSource is one entry of `pactl list short sources`.
type pulseSource struct {
	Name     string
	Channels int
}

func (s pulseSource) monitor() bool {
	return strings.HasSuffix(s.Name, ".monitor")
}

// parsePulseSources parses `pactl list short sources`. Each line is
// "index name driver sample-spec state", tab separated; the sample spec
// looks like "s16le 2ch 48000Hz".
func parsePulseSources(out string) []pulseSource {
	var sources []pulseSource
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(strings.TrimSpace(line), "\t")
		if len(fields) < 2 || fields[1] == "" {
			continue
		}
		src := pulseSource{Name: fields[1], Channels: defaultPulseChannels}
		if len(fields) >= 4 {
			for _, part := range strings.Fields(fields[3]) {
				if n, err := strconv.Atoi(strings.TrimSuffix(part, "ch")); err == nil && strings.HasSuffix(part, "ch") && n > 0 {
					src.Channels = n
				}
			}
		}
		sources = append(sources, src)
	}
	return sources
}

// pickPulseMonitor chooses the monitor of defaultSink, then the first
// monitor source. An explicit name wins over both.
func pickPulseMonitor(sources []pulseSource, defaultSink, explicit string) (pulseSource, bool) {
	if explicit != "" {
		for _, s := range sources {
			if s.Name == explicit {
				return s, true
			}
		}
		return pulseSource{Name: explicit, Channels: defaultPulseChannels}, true
	}
	if defaultSink != "" {
		want := defaultSink + ".monitor"
		for _, s := range sources {
			if s.Name == want {
				return s, true
			}
		}
	}
	for _, s := range sources {
		if s.monitor() {
			return s, true
		}
	}
	return pulseSource{}, false
}

func findPulseMonitor(ctx context.Context, opts LoopbackOptions) (LoopbackDevice, error) {
	if opts.FFmpegPath == "" {
		return nil, fmt.Errorf("%w: ffmpeg is required to capture from PulseAudio", ErrNoLoopbackDevice)
	}
	pactl, err := ffmpeg.Locate("", "pactl")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoLoopbackDevice, err)
	}

	var defaultSink string
	if res, err := opts.Runner.Run(ctx, pactl, "get-default-sink"); err == nil {
		defaultSink = strings.TrimSpace(res.Output)
	} else {
		log.Debug("pactl get-default-sink failed", "error", err)
	}

	res, err := opts.Runner.Run(ctx, pactl, "list", "short", "sources")
	if err != nil {
		return nil, fmt.Errorf("%w: list sources: %v", ErrNoLoopbackDevice, err)
	}
	src, ok := pickPulseMonitor(parsePulseSources(res.Output), defaultSink, opts.Device)
	if !ok {
		return nil, ErrNoLoopbackDevice
	}
	return &pulseDevice{source: src, ffmpegPath: opts.FFmpegPath}, nil
}

// pulseDevice records a PulseAudio/PipeWire monitor source through an
// ffmpeg child that emits interleaved f32le on stdout.
type pulseDevice struct {
	source     pulseSource
	ffmpegPath string
}

func (d *pulseDevice) Name() string { return d.source.Name }

func pulseArgs(source string, channels, sampleRate, blockFrames int) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-f", "pulse",
		"-sample_rate", strconv.Itoa(sampleRate),
		"-channels", strconv.Itoa(channels),
		"-fragment_size", strconv.Itoa(blockFrames * channels * 4),
		"-i", source,
		"-f", "f32le", "-ac", strconv.Itoa(channels), "-ar", strconv.Itoa(sampleRate),
		"pipe:1",
	}
}

func (d *pulseDevice) Open(sampleRate, blockFrames int) (Recorder, error) {
	ctx, cancel := context.WithCancel(context.Background())
	stderr := ffmpeg.NewTailBuffer(4096)

	cmd := ffmpeg.Command(ctx, d.ffmpegPath, pulseArgs(d.source.Name, d.source.Channels, sampleRate, blockFrames)...)
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start pulse capture: %w", err)
	}

	return &streamRecorder{
		r:        bufio.NewReaderSize(stdout, blockFrames*d.source.Channels*4),
		raw:      make([]byte, blockFrames*d.source.Channels*4),
		stdout:   stdout,
		channels: d.source.Channels,
		stderr:   stderr,
		cmd:      cmd,
		cancel:   cancel,
	}, nil
}

// streamRecorder cuts an f32le byte stream into blocks. Cancelling the
// context of a pending Record stops the child and closes stdout, so a
// stalled source cannot hold the read.
type streamRecorder struct {
	r        io.Reader
	raw      []byte
	stdout   io.Closer
	channels int
	stderr   *ffmpeg.TailBuffer
	cmd      *exec.Cmd
	cancel   context.CancelFunc
}

func (s *streamRecorder) Record(ctx context.Context) (Block, error) {
	if err := ctx.Err(); err != nil {
		return Block{}, err
	}
	stop := context.AfterFunc(ctx, s.interrupt)
	defer stop()

	if _, err := io.ReadFull(s.r, s.raw); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Block{}, ctxErr
		}
		if s.stderr != nil {
			return Block{}, fmt.Errorf("%w: %s", err, ffmpeg.Tail(s.stderr.String(), 300))
		}
		return Block{}, err
	}
	return Block{Samples: decodeF32LE(s.raw), Channels: s.channels}, nil
}

func (s *streamRecorder) interrupt() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.stdout != nil {
		_ = s.stdout.Close()
	}
}

func (s *streamRecorder) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.cmd != nil {
		// The child is killed on purpose; its exit status carries no information.
		_ = s.cmd.Wait()
	}
	return nil
}

func decodeF32LE(raw []byte) []float32 {
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out
}
