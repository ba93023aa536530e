// Package audio implements the capture side of the pipeline: sample format
// conversion, level metering, WAV persistence, the capture recorder, and
// playback.
package audio

import "time"

// Format describes interleaved float32 PCM audio.
type Format struct {
	SampleRate int
	Channels   int
}

// EngineFormat is the fixed format the recognition engine consumes.
var EngineFormat = Format{SampleRate: 16000, Channels: 1}

// Valid reports whether the format is usable.
func (f Format) Valid() bool {
	return f.SampleRate > 0 && f.Channels > 0
}

// Buffer is a chunk of interleaved float32 samples.
type Buffer struct {
	Format  Format
	Samples []float32
}

// Frames returns the number of sample frames (samples per channel).
func (b Buffer) Frames() int {
	if b.Format.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Format.Channels
}

// Duration returns the playback time covered by the buffer.
func (b Buffer) Duration() time.Duration {
	if !b.Format.Valid() {
		return 0
	}
	return time.Duration(float64(b.Frames()) / float64(b.Format.SampleRate) * float64(time.Second))
}
