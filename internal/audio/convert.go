package audio

import (
	"errors"
	"fmt"
)

// ErrFormatConversion marks a per-buffer conversion failure. Callers drop the
// offending buffer and keep the stream alive.
var ErrFormatConversion = errors.New("audio: format conversion failed")

// Converter resamples and downmixes buffers from a device-native format to a
// target format. It is stateful: fractional read position and the input tail
// carry across buffers so resampling stays continuous at chunk boundaries.
// Not safe for concurrent use; the capture tap is the single caller.
type Converter struct {
	src Format
	dst Format

	pos  float64
	hist []float32
}

// NewConverter validates the formats and returns a converter.
func NewConverter(src, dst Format) (*Converter, error) {
	if !src.Valid() {
		return nil, fmt.Errorf("%w: invalid source format %+v", ErrFormatConversion, src)
	}
	if !dst.Valid() || dst.Channels != 1 {
		return nil, fmt.Errorf("%w: invalid target format %+v", ErrFormatConversion, dst)
	}
	return &Converter{src: src, dst: dst}, nil
}

// Convert transforms one buffer to the target format.
func (c *Converter) Convert(in Buffer) (Buffer, error) {
	if in.Format != c.src {
		return Buffer{}, fmt.Errorf("%w: buffer format %+v does not match device format %+v",
			ErrFormatConversion, in.Format, c.src)
	}
	if c.src.Channels > 1 && len(in.Samples)%c.src.Channels != 0 {
		return Buffer{}, fmt.Errorf("%w: %d samples not aligned to %d channels",
			ErrFormatConversion, len(in.Samples), c.src.Channels)
	}

	mono := downmix(in.Samples, c.src.Channels)
	if c.src.SampleRate == c.dst.SampleRate {
		return Buffer{Format: c.dst, Samples: mono}, nil
	}

	input := make([]float32, 0, len(c.hist)+len(mono))
	input = append(input, c.hist...)
	input = append(input, mono...)

	step := float64(c.src.SampleRate) / float64(c.dst.SampleRate)
	out := make([]float32, 0, int(float64(len(mono))/step)+2)

	pos := c.pos
	for int(pos)+1 < len(input) {
		i := int(pos)
		frac := float32(pos - float64(i))
		out = append(out, input[i]*(1-frac)+input[i+1]*frac)
		pos += step
	}

	keep := int(pos)
	if keep > len(input) {
		keep = len(input)
	}
	c.hist = append([]float32(nil), input[keep:]...)
	c.pos = pos - float64(keep)

	return Buffer{Format: c.dst, Samples: out}, nil
}

func downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return append([]float32(nil), samples...)
	}
	frames := len(samples) / channels
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += samples[i*channels+ch]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}
