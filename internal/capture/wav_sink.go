package capture

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavFormatPCM = 1

// wavSink writes interleaved PCM16 to a WAV file. The RIFF sizes are
// finalised on Close.
type wavSink struct {
	f       *os.File
	enc     *wav.Encoder
	buf     *audio.IntBuffer
	written int64
}

func createWAVSink(path string, channels, sampleRate int) (*wavSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create wav: %w", err)
	}
	return &wavSink{
		f:   f,
		enc: wav.NewEncoder(f, sampleRate, 16, channels, wavFormatPCM),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
			SourceBitDepth: 16,
		},
	}, nil
}

func (s *wavSink) Write(pcm []int16) error {
	data := s.buf.Data[:0]
	for _, v := range pcm {
		data = append(data, int(v))
	}
	s.buf.Data = data

	if err := s.enc.Write(s.buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	s.written += int64(len(pcm)) * 2
	return nil
}

func (s *wavSink) Close() error {
	encErr := s.enc.Close()
	closeErr := s.f.Close()
	if encErr != nil {
		return fmt.Errorf("finalize wav: %w", encErr)
	}
	return closeErr
}
