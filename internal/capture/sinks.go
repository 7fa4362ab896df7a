package capture

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/breeze-rmm/recorder/internal/ffmpeg"
	"github.com/breeze-rmm/recorder/internal/logging"
)

// RawVideoInputArgs are the ffmpeg input options that describe a stream of
// packed BGR24 frames of region at fps.
func RawVideoInputArgs(region Region, fps int) []string {
	return []string{
		"-f", "rawvideo",
		"-pixel_format", "bgr24",
		"-video_size", fmt.Sprintf("%dx%d", region.Width, region.Height),
		"-framerate", strconv.Itoa(fps),
	}
}

// RawFileSink appends frames to a headerless BGR24 file.
type RawFileSink struct {
	f         *os.File
	w         *bufio.Writer
	frameSize int
}

func CreateRawFileSink(path string, region Region) (*RawFileSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create raw video: %w", err)
	}
	return &RawFileSink{
		f:         f,
		w:         bufio.NewWriterSize(f, region.FrameBytes()),
		frameSize: region.FrameBytes(),
	}, nil
}

func (s *RawFileSink) WriteFrame(frame []byte) error {
	if len(frame) != s.frameSize {
		return fmt.Errorf("%w: frame is %d bytes, want %d", ErrFrameSize, len(frame), s.frameSize)
	}
	_, err := s.w.Write(frame)
	return err
}

func (s *RawFileSink) Close() error {
	flushErr := s.w.Flush()
	closeErr := s.f.Close()
	if flushErr != nil {
		return fmt.Errorf("flush raw video: %w", flushErr)
	}
	return closeErr
}

// PipeSink streams frames into an ffmpeg child that writes a lossless FFV1
// Matroska file. The child keeps running until Close, independent of the
// capture stop signal.
type PipeSink struct {
	stdin     io.WriteCloser
	wait      func() error
	out       *ffmpeg.TailBuffer
	frameSize int
}

// FFV1Args returns the ffmpeg arguments PipeSink runs with.
func FFV1Args(path string, region Region, fps int) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-y"}
	args = append(args, RawVideoInputArgs(region, fps)...)
	return append(args, "-i", "pipe:0", "-c:v", "ffv1", "-level", "3", path)
}

func StartFFV1Sink(ctx context.Context, ffmpegPath, path string, region Region, fps int) (*PipeSink, error) {
	out := ffmpeg.NewTailBuffer(ffmpeg.MaxOutputSize)
	cmd := ffmpeg.Command(context.WithoutCancel(ctx), ffmpegPath, FFV1Args(path, region, fps)...)
	cmd.Stdout = out
	cmd.Stderr = out

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffv1 stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffv1 encoder: %w", err)
	}
	log.Debug("ffv1 intermediate started", "pid", cmd.Process.Pid, logging.KeyPath, path)

	return &PipeSink{
		stdin:     stdin,
		wait:      cmd.Wait,
		out:       out,
		frameSize: region.FrameBytes(),
	}, nil
}

func (s *PipeSink) WriteFrame(frame []byte) error {
	if len(frame) != s.frameSize {
		return fmt.Errorf("%w: frame is %d bytes, want %d", ErrFrameSize, len(frame), s.frameSize)
	}
	if _, err := s.stdin.Write(frame); err != nil {
		return fmt.Errorf("ffv1 pipe: %w: %s", err, ffmpeg.Tail(s.out.String(), 300))
	}
	return nil
}

func (s *PipeSink) Close() error {
	closeErr := s.stdin.Close()
	if err := s.wait(); err != nil {
		return fmt.Errorf("ffv1 encoder: %w: %s", err, ffmpeg.Tail(s.out.String(), 300))
	}
	return closeErr
}
