package capture

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

const pactlSources = "55\talsa_input.usb-mic.analog-mono\tPipeWire\ts16le 1ch 48000Hz\tSUSPENDED\n" +
	"56\talsa_output.pci-0000_00_1f.3.analog-stereo.monitor\tPipeWire\ts32le 2ch 48000Hz\tRUNNING\n" +
	"57\thdmi-surround.monitor\tPipeWire\tfloat32le 6ch 48000Hz\tIDLE\n"

func TestParsePulseSources(t *testing.T) {
	got := parsePulseSources(pactlSources + "\n   \n")
	want := []pulseSource{
		{Name: "alsa_input.usb-mic.analog-mono", Channels: 1},
		{Name: "alsa_output.pci-0000_00_1f.3.analog-stereo.monitor", Channels: 2},
		{Name: "hdmi-surround.monitor", Channels: 6},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("parsePulseSources mismatch (-want +got):\n%s", diff)
	}
}

func TestPickPulseMonitor(t *testing.T) {
	sources := parsePulseSources(pactlSources)
	tests := []struct {
		name        string
		defaultSink string
		explicit    string
		want        string
		wantCh      int
		ok          bool
	}{
		{"default sink monitor", "hdmi-surround", "", "hdmi-surround.monitor", 6, true},
		{"first monitor fallback", "unknown-sink", "", "alsa_output.pci-0000_00_1f.3.analog-stereo.monitor", 2, true},
		{"no default sink", "", "", "alsa_output.pci-0000_00_1f.3.analog-stereo.monitor", 2, true},
		{"explicit known", "hdmi-surround", "alsa_input.usb-mic.analog-mono", "alsa_input.usb-mic.analog-mono", 1, true},
		{"explicit unknown", "", "custom.monitor", "custom.monitor", defaultPulseChannels, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := pickPulseMonitor(sources, tt.defaultSink, tt.explicit)
			if ok != tt.ok || got.Name != tt.want || got.Channels != tt.wantCh {
				t.Fatalf("got %+v ok=%v, want %s/%d ok=%v", got, ok, tt.want, tt.wantCh, tt.ok)
			}
		})
	}

	if _, ok := pickPulseMonitor(sources[:1], "", ""); ok {
		t.Fatal("expected no monitor among input-only sources")
	}
}

func TestPulseArgs(t *testing.T) {
	got := pulseArgs("sink.monitor", 2, 48000, 1024)
	want := []string{
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-f", "pulse", "-sample_rate", "48000", "-channels", "2", "-fragment_size", "8192",
		"-i", "sink.monitor",
		"-f", "f32le", "-ac", "2", "-ar", "48000", "pipe:1",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("pulseArgs mismatch (-want +got):\n%s", diff)
	}
}

func TestStreamRecorderCutsBlocks(t *testing.T) {
	samples := []float32{0.5, -0.5, 1, -1, 0.25, 0}
	var raw bytes.Buffer
	for _, s := range samples {
		binary.Write(&raw, binary.LittleEndian, math.Float32bits(s))
	}

	// Two stereo frames per block; the trailing frame is incomplete.
	rec := &streamRecorder{r: &raw, raw: make([]byte, 2*2*4), channels: 2}
	b, err := rec.Record(context.Background())
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if diff := cmp.Diff(samples[:4], b.Samples); diff != "" || b.Channels != 2 {
		t.Fatalf("block mismatch (-want +got):\n%s", diff)
	}
	if _, err := rec.Record(context.Background()); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("second Record err = %v, want unexpected EOF", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestStreamRecorderHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := &streamRecorder{r: bytes.NewReader(make([]byte, 64)), raw: make([]byte, 8), channels: 1}
	if _, err := rec.Record(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Record err = %v, want context.Canceled", err)
	}
}

// streamDevice opens a fixed recorder.
type streamDevice struct{ rec Recorder }

func (d streamDevice) Name() string { return "stream" }

func (d streamDevice) Open(int, int) (Recorder, error) { return d.rec, nil }

func TestStopUnblocksStalledStream(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	block := make([]byte, 4*4)
	written := make(chan struct{})
	go func() {
		// One block, then the source goes quiet without closing.
		_, _ = pw.Write(block)
		close(written)
	}()

	rec := &streamRecorder{r: pr, raw: make([]byte, len(block)), stdout: pr, channels: 1}
	path := filepath.Join(t.TempDir(), "stalled.wav")
	c := NewAudioCapture(streamDevice{rec: rec}, AudioOptions{Path: path, SampleRate: 48000, BlockFrames: 4})
	c.Start(context.Background())

	select {
	case <-written:
	case <-time.After(5 * time.Second):
		t.Fatal("first block was never read")
	}

	stopped := make(chan AudioResult, 1)
	go func() { stopped <- c.Stop() }()
	select {
	case res := <-stopped:
		if res.Blocks != 1 {
			t.Fatalf("Blocks = %d, want 1", res.Blocks)
		}
		if res.Err != nil {
			t.Fatalf("Err = %v, want nil after Stop", res.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop still blocked 2s after cancellation")
	}
}

func TestStreamRecorderCancelDuringRead(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	rec := &streamRecorder{r: pr, raw: make([]byte, 8), stdout: pr, channels: 1}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	if _, err := rec.Record(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Record err = %v, want context.Canceled", err)
	}
}
