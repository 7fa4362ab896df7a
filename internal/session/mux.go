package session

import (
	"strconv"
	"time"

	"github.com/breeze-rmm/recorder/internal/capture"
	"github.com/breeze-rmm/recorder/internal/encode"
)

// evenPadFilter rounds odd frame sizes up for chroma-subsampled formats.
const evenPadFilter = "pad=ceil(iw/2)*2:ceil(ih/2)*2"

// driftCorrection resamples audio to follow its timestamps and starts it at
// zero.
const driftCorrection = "aresample=async=1:first_pts=0"

// MuxJob describes one video + audio mux.
type MuxJob struct {
	Video string
	// VideoInput holds format options placed before the video -i, needed
	// for headerless intermediates.
	VideoInput []string
	Audio      string
	Output     string

	Offset       time.Duration
	Profile      encode.Profile
	Region       capture.Region
	FPS          int
	SampleRate   int
	AudioBitrate string
}

// BuildMuxArgs returns the ffmpeg arguments for job. Input 0 is always the
// video and input 1 the audio; the offset delays whichever stream started
// first.
func BuildMuxArgs(job MuxJob) []string {
	args := []string{"-hide_banner", "-y"}

	if job.Offset < 0 {
		args = append(args, "-itsoffset", offsetSeconds(job.Offset))
	}
	args = append(args, job.VideoInput...)
	args = append(args, "-i", job.Video)

	if job.Offset > 0 {
		args = append(args, "-itsoffset", offsetSeconds(job.Offset))
	}
	args = append(args, "-i", job.Audio)

	args = append(args, "-map", "0:v:0", "-map", "1:a:0")
	if job.Profile.ChromaSubsampled() && (job.Region.Width%2 != 0 || job.Region.Height%2 != 0) {
		args = append(args, "-vf", evenPadFilter)
	}
	args = append(args, job.Profile.Args()...)
	args = append(args,
		"-r", strconv.Itoa(job.FPS),
		"-fps_mode", "cfr",
		"-c:a", "aac",
		"-b:a", job.AudioBitrate,
		"-ar", strconv.Itoa(job.SampleRate),
		"-ac", "2",
		"-af", driftCorrection,
		"-shortest",
		"-movflags", "+faststart",
		job.Output,
	)
	return args
}

// BuildTranscodeArgs returns the ffmpeg arguments that compress a WAV to
// stereo AAC.
func BuildTranscodeArgs(wav, output string, sampleRate int, bitrate string) []string {
	return []string{
		"-hide_banner", "-y",
		"-i", wav,
		"-c:a", "aac",
		"-b:a", bitrate,
		"-ar", strconv.Itoa(sampleRate),
		"-ac", "2",
		"-movflags", "+faststart",
		output,
	}
}
