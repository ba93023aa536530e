package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
)

const wavHeaderSize = 44

// WAVWriter streams 16-bit PCM into a WAV container. The header is written
// with zero sizes up front and patched on Close, so the file exists on disk
// before the first buffer lands. Close is idempotent.
type WAVWriter struct {
	mu     sync.Mutex
	f      *os.File
	format Format

	dataLen int
	frames  int
	closed  bool
}

// CreateWAV creates the file and writes the provisional header.
func CreateWAV(path string, format Format) (*WAVWriter, error) {
	if !format.Valid() {
		return nil, fmt.Errorf("audio: invalid wav format %+v", format)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("audio: create %s: %w", path, err)
	}
	w := &WAVWriter{f: f, format: format}
	if err := w.writeHeader(); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return w, nil
}

// WriteBuffer appends one converted buffer, synchronously.
func (w *WAVWriter) WriteBuffer(b Buffer) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("audio: wav writer is closed")
	}
	if b.Format != w.format {
		return fmt.Errorf("%w: wav writer expects %+v, got %+v", ErrFormatConversion, w.format, b.Format)
	}

	pcm := make([]byte, len(b.Samples)*2)
	for i, s := range b.Samples {
		v := s
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		binary.LittleEndian.PutUint16(pcm[2*i:], uint16(int16(math.Round(float64(v)*32767))))
	}
	if _, err := w.f.Write(pcm); err != nil {
		return fmt.Errorf("audio: write wav data: %w", err)
	}
	w.dataLen += len(pcm)
	w.frames += b.Frames()
	return nil
}

// Duration returns the accumulated audio duration in seconds.
func (w *WAVWriter) Duration() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return float64(w.frames) / float64(w.format.SampleRate)
}

// Close patches the header sizes, flushes, and closes the file. Safe to call
// more than once.
func (w *WAVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		w.f.Close()
		return fmt.Errorf("audio: finalise wav: %w", err)
	}
	if err := w.writeHeaderLocked(); err != nil {
		w.f.Close()
		return err
	}
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return fmt.Errorf("audio: sync wav: %w", err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("audio: close wav: %w", err)
	}
	return nil
}

func (w *WAVWriter) writeHeader() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeHeaderLocked()
}

func (w *WAVWriter) writeHeaderLocked() error {
	const bitsPerSample = 16
	byteRate := w.format.SampleRate * w.format.Channels * bitsPerSample / 8
	blockAlign := w.format.Channels * bitsPerSample / 8

	header := make([]byte, wavHeaderSize)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+w.dataLen))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1)
	binary.LittleEndian.PutUint16(header[22:24], uint16(w.format.Channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(w.format.SampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(w.dataLen))

	if _, err := w.f.Write(header); err != nil {
		return fmt.Errorf("audio: write wav header: %w", err)
	}
	return nil
}

// ReadWAV loads a 16-bit PCM WAV file into a float32 buffer. Playback opens
// its own handle; it never shares the capture writer's.
func ReadWAV(path string) (Buffer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Buffer{}, fmt.Errorf("audio: read %s: %w", path, err)
	}
	if len(raw) < wavHeaderSize || string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		return Buffer{}, fmt.Errorf("audio: %s is not a wav file", path)
	}
	audioFormat := binary.LittleEndian.Uint16(raw[20:22])
	if audioFormat != 1 {
		return Buffer{}, fmt.Errorf("audio: %s: unsupported wav format %d", path, audioFormat)
	}
	channels := int(binary.LittleEndian.Uint16(raw[22:24]))
	sampleRate := int(binary.LittleEndian.Uint32(raw[24:28]))
	bits := int(binary.LittleEndian.Uint16(raw[34:36]))
	if bits != 16 {
		return Buffer{}, fmt.Errorf("audio: %s: unsupported bit depth %d", path, bits)
	}
	dataLen := int(binary.LittleEndian.Uint32(raw[40:44]))
	data := raw[wavHeaderSize:]
	if dataLen < len(data) {
		data = data[:dataLen]
	}

	samples := make([]float32, len(data)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(data[2*i:]))) / 32768.0
	}
	return Buffer{
		Format:  Format{SampleRate: sampleRate, Channels: channels},
		Samples: samples,
	}, nil
}

// WAVDuration returns the duration in seconds of a WAV file without decoding
// its samples.
func WAVDuration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("audio: open %s: %w", path, err)
	}
	defer f.Close()

	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		return 0, fmt.Errorf("audio: read wav header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return 0, fmt.Errorf("audio: %s is not a wav file", path)
	}
	byteRate := binary.LittleEndian.Uint32(header[28:32])
	dataLen := binary.LittleEndian.Uint32(header[40:44])
	if byteRate == 0 {
		return 0, fmt.Errorf("audio: %s: zero byte rate", path)
	}
	return float64(dataLen) / float64(byteRate), nil
}
