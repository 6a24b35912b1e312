package audiocapture

import "math"

// SilenceThreshold is the RMS level below which a recording is treated as
// silent. Levels are normalized to [0, 1].
const SilenceThreshold = 0.01

// RMS returns the normalized root mean square of samples.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / math.MaxInt16
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
