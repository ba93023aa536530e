package telemetry

import (
	"log/slog"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

// Recorder tracks pipeline-level telemetry across recording sessions.
type Recorder struct {
	log *slog.Logger

	totalSessions         atomic.Uint64
	activeSessions        atomic.Int64
	totalBuffers          atomic.Uint64
	totalSamples          atomic.Uint64
	totalDroppedBuffers   atomic.Uint64
	totalTranscripts      atomic.Uint64
	totalFinalTranscripts atomic.Uint64
	totalTranslations     atomic.Uint64
	totalFinalPasses      atomic.Uint64
}

// Snapshot captures cumulative metrics recorded so far.
type Snapshot struct {
	TotalSessions         uint64
	ActiveSessions        int64
	TotalBuffers          uint64
	TotalSamples          uint64
	TotalDroppedBuffers   uint64
	TotalTranscripts      uint64
	TotalFinalTranscripts uint64
	TotalTranslations     uint64
	TotalFinalPasses      uint64
}

// NewRecorder constructs a Recorder using the provided logger.
func NewRecorder(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		log: logger.With("component", "telemetry.Recorder"),
	}
}

// Snapshot returns an immutable view of the recorder totals.
func (r *Recorder) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	return Snapshot{
		TotalSessions:         r.totalSessions.Load(),
		ActiveSessions:        r.activeSessions.Load(),
		TotalBuffers:          r.totalBuffers.Load(),
		TotalSamples:          r.totalSamples.Load(),
		TotalDroppedBuffers:   r.totalDroppedBuffers.Load(),
		TotalTranscripts:      r.totalTranscripts.Load(),
		TotalFinalTranscripts: r.totalFinalTranscripts.Load(),
		TotalTranslations:     r.totalTranslations.Load(),
		TotalFinalPasses:      r.totalFinalPasses.Load(),
	}
}

// SessionMetrics accumulates statistics for a single recording session.
type SessionMetrics struct {
	recorder *Recorder
	log      *slog.Logger

	recordID string

	started          time.Time
	buffers          int
	samples          int
	dropped          int
	transcripts      int
	finalTranscripts int
	translations     int
	closed           atomic.Bool
}

// StartSession initialises a SessionMetrics instance bound to the recorder.
func (r *Recorder) StartSession(recordID string) *SessionMetrics {
	if r == nil {
		return nil
	}

	r.totalSessions.Add(1)
	r.activeSessions.Add(1)

	return &SessionMetrics{
		recorder: r,
		log:      r.log.With("record_id", recordID),
		recordID: recordID,
		started:  time.Now(),
	}
}

// RecordBuffer updates counters for a converted capture buffer.
func (s *SessionMetrics) RecordBuffer(samples int) {
	if s == nil || samples <= 0 {
		return
	}
	s.buffers++
	s.samples += samples
	s.recorder.totalBuffers.Add(1)
	s.recorder.totalSamples.Add(uint64(samples))
}

// RecordDropped counts a buffer lost to conversion failure or stream overflow.
func (s *SessionMetrics) RecordDropped(reason string) {
	if s == nil {
		return
	}
	s.dropped++
	s.recorder.totalDroppedBuffers.Add(1)
	s.log.Debug("buffer dropped", "reason", reason)
}

// RecordTranscript stores statistics for an emitted recognition result.
func (s *SessionMetrics) RecordTranscript(text string, final bool) {
	if s == nil {
		return
	}
	s.transcripts++
	if final {
		s.finalTranscripts++
		s.recorder.totalFinalTranscripts.Add(1)
	}
	s.recorder.totalTranscripts.Add(1)

	s.log.Debug("transcript emitted",
		"final", final,
		"chars", len(text),
		"runes", utf8.RuneCountInString(text),
	)
}

// RecordTranslation counts a completed translation call.
func (s *SessionMetrics) RecordTranslation(final bool) {
	if s == nil {
		return
	}
	s.translations++
	s.recorder.totalTranslations.Add(1)
	if final {
		s.recorder.totalFinalPasses.Add(1)
	}
}

// Finish logs a summary and updates active session counters.
func (s *SessionMetrics) Finish(err error) {
	if s == nil {
		return
	}
	if !s.closed.CompareAndSwap(false, true) {
		return
	}

	defer s.recorder.activeSessions.Add(-1)

	duration := time.Since(s.started)
	args := []any{
		"duration_ms", duration.Milliseconds(),
		"buffers", s.buffers,
		"samples", s.samples,
		"dropped", s.dropped,
		"transcripts", s.transcripts,
		"final_transcripts", s.finalTranscripts,
		"translations", s.translations,
	}

	if err != nil {
		s.log.Error("session completed with error", append(args, "error", err)...)
		return
	}

	s.log.Info("session completed", args...)
}
