package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/voicelog/voicelog/internal/telemetry"
)

// streamDepth bounds the buffer channel between the capture tap and the
// recognition consumer. The tap never blocks; when the consumer falls this
// far behind, buffers are dropped and counted.
const streamDepth = 64

// Recorder owns the audio device tap, the conversion step, the on-disk WAV
// writer, and the converted-buffer stream consumed by recognition. One
// recording session and one playback session may be active at a time.
type Recorder struct {
	mic     Microphone
	dir     string
	target  Format
	log     *slog.Logger
	metrics *telemetry.Recorder

	mu        sync.Mutex
	device    Device
	writer    *WAVWriter
	out       chan Buffer
	session   *telemetry.SessionMetrics
	audioPath string
	recording bool

	player *Player

	level atomic.Uint64
}

// NewRecorder returns a recorder that stores recordings under dir and
// converts captured audio to the engine format.
func NewRecorder(mic Microphone, dir string, logger *slog.Logger, metrics *telemetry.Recorder) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		mic:     mic,
		dir:     dir,
		target:  EngineFormat,
		log:     logger.With("component", "audio.Recorder"),
		metrics: metrics,
	}
}

// Authorize queries microphone permission, prompting at most once.
func (r *Recorder) Authorize(ctx context.Context) (bool, error) {
	return r.mic.Authorize(ctx)
}

// Start begins a recording session and returns the converted-buffer stream.
// The WAV file exists before the first buffer is delivered. Device setup
// failures are retried once with a fresh device before being surfaced.
func (r *Recorder) Start(ctx context.Context) (<-chan Buffer, error) {
	granted, err := r.mic.Authorize(ctx)
	if err != nil {
		return nil, fmt.Errorf("audio: authorize: %w", err)
	}
	if !granted {
		return nil, ErrPermissionDenied
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recording {
		return nil, fmt.Errorf("audio: recording already in progress")
	}

	device, err := r.mic.Open(ctx)
	if err != nil {
		return nil, wrapDeviceErr(err)
	}

	conv, err := NewConverter(device.Format(), r.target)
	if err != nil {
		device.Stop()
		return nil, err
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		device.Stop()
		return nil, fmt.Errorf("audio: create recordings dir: %w", err)
	}
	path := filepath.Join(r.dir, fmt.Sprintf("rec-%s.wav", uuid.NewString()))
	writer, err := CreateWAV(path, r.target)
	if err != nil {
		device.Stop()
		return nil, err
	}

	out := make(chan Buffer, streamDepth)
	session := r.metrics.StartSession(filepath.Base(path))
	tap := r.makeTap(conv, writer, out, session)

	if err := device.Start(tap); err != nil {
		// One retry with the device force-reset before surfacing failure.
		r.log.Warn("device start failed, retrying with fresh device", "error", err)
		device.Stop()
		device, err = r.reopenAndStart(ctx, tap)
		if err != nil {
			writer.Close()
			os.Remove(path)
			session.Finish(err)
			return nil, err
		}
	}

	r.device = device
	r.writer = writer
	r.out = out
	r.session = session
	r.audioPath = path
	r.recording = true

	r.log.Info("recording started", "file", path, "device_rate", device.Format().SampleRate)
	return out, nil
}

func (r *Recorder) reopenAndStart(ctx context.Context, tap func(Buffer)) (Device, error) {
	device, err := r.mic.Open(ctx)
	if err != nil {
		return nil, wrapDeviceErr(err)
	}
	if err := device.Start(tap); err != nil {
		device.Stop()
		return nil, wrapDeviceErr(err)
	}
	return device, nil
}

// makeTap builds the capture callback. It runs on the realtime audio thread:
// convert, synchronous file write, level computation, non-blocking yield.
func (r *Recorder) makeTap(conv *Converter, writer *WAVWriter, out chan Buffer, session *telemetry.SessionMetrics) func(Buffer) {
	return func(in Buffer) {
		converted, err := conv.Convert(in)
		if err != nil {
			// One bad buffer must not kill a recording.
			r.log.Warn("dropping buffer", "error", err)
			session.RecordDropped("conversion")
			return
		}
		if len(converted.Samples) == 0 {
			return
		}
		if err := writer.WriteBuffer(converted); err != nil {
			r.log.Warn("wav write failed", "error", err)
		}
		r.level.Store(math.Float64bits(Level(converted.Samples)))
		session.RecordBuffer(len(converted.Samples))

		select {
		case out <- converted:
		default:
			session.RecordDropped("overflow")
		}
	}
}

// Stop ends the recording session: removes the tap, finalises the WAV file,
// and closes the stream. Idempotent; safe to call when never started.
func (r *Recorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return
	}
	r.recording = false

	if err := r.device.Stop(); err != nil {
		r.log.Warn("device stop failed", "error", err)
	}
	if err := r.writer.Close(); err != nil {
		r.log.Warn("wav close failed", "error", err)
	}
	close(r.out)
	r.session.Finish(nil)

	r.device = nil
	r.writer = nil
	r.out = nil
	r.session = nil
	r.level.Store(0)

	r.log.Info("recording stopped", "file", r.audioPath)
}

// Level returns the most recent normalized input level.
func (r *Recorder) Level() float64 {
	return math.Float64frombits(r.level.Load())
}

// AudioPath returns the file of the current or last recording session.
func (r *Recorder) AudioPath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.audioPath
}

// RecordedDuration returns the accumulated duration written so far, in
// seconds.
func (r *Recorder) RecordedDuration() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer == nil {
		return 0
	}
	return r.writer.Duration()
}

// Play schedules full-file playback of the last recording on an independent
// file handle.
func (r *Recorder) Play() error {
	r.mu.Lock()
	path := r.audioPath
	recording := r.recording
	r.mu.Unlock()

	if path == "" {
		return fmt.Errorf("audio: nothing recorded yet")
	}
	if recording {
		return fmt.Errorf("audio: cannot play while recording")
	}

	player, err := NewPlayer(path)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.player != nil && r.player.Playing() {
		return fmt.Errorf("audio: playback already in progress")
	}
	r.player = player
	r.player.Start()
	return nil
}

// StopPlaying halts playback. Safe to call when not playing.
func (r *Recorder) StopPlaying() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.player != nil {
		r.player.Stop()
	}
}

// PlaybackElapsed reports the elapsed playback time in seconds, taken from
// the player's clock.
func (r *Recorder) PlaybackElapsed() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.player == nil {
		return 0
	}
	return r.player.Elapsed().Seconds()
}

func wrapDeviceErr(err error) error {
	if errors.Is(err, ErrDeviceUnavailable) || errors.Is(err, ErrPermissionDenied) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
}
