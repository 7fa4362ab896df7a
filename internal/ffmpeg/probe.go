package ffmpeg

import (
	"context"
	"strings"
)

// AudioStreamIndexes returns the indexes of the audio streams ffprobe finds
// in path.
func AudioStreamIndexes(ctx context.Context, r Runner, ffprobePath, path string) ([]string, error) {
	res, err := r.Run(ctx, ffprobePath,
		"-v", "error",
		"-select_streams", "a",
		"-show_entries", "stream=index",
		"-of", "csv=p=0",
		path,
	)
	if err != nil {
		return nil, err
	}

	var idx []string
	for _, line := range strings.Split(res.Output, "\n") {
		if s := strings.TrimSpace(line); s != "" {
			idx = append(idx, s)
		}
	}
	return idx, nil
}
