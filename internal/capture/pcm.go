package capture

import "math"

const pcm16Scale = 32767.0

// ToPCM16 clips each sample to [-1, 1], scales it to the signed 16-bit
// range and appends the results to dst.
func ToPCM16(dst []int16, src []float32) []int16 {
	for _, x := range src {
		dst = append(dst, sampleToPCM16(x))
	}
	return dst
}

func sampleToPCM16(x float32) int16 {
	v := float64(x)
	switch {
	case math.IsNaN(v):
		return 0
	case v > 1:
		v = 1
	case v < -1:
		v = -1
	}
	return int16(math.Round(v * pcm16Scale))
}
