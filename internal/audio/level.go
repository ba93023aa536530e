package audio

import "math"

// levelFloorDB is the silence floor for normalisation; -60 dBFS maps to 0.
const levelFloorDB = 60.0

// Level computes a normalized loudness value in [0, 1] from a buffer of
// samples: RMS converted to dBFS and scaled against the silence floor.
func Level(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms <= 0 {
		return 0
	}
	db := 20 * math.Log10(rms)
	level := (db + levelFloorDB) / levelFloorDB
	if level < 0 {
		return 0
	}
	if level > 1 {
		return 1
	}
	return level
}
