// Package translate wraps an externally supplied translation session whose
// lifetime is owned by the surrounding UI. The session can become invalid at
// any moment, so every call re-checks validity before and after the await
// point and treats invalidation as a status transition, not an error.
package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/voicelog/voicelog/internal/journal"
	"github.com/voicelog/voicelog/internal/telemetry"
)

var (
	// ErrSessionInvalidated is returned by a Session whose owning view went
	// away mid-call. It is absorbed into a status reset, never surfaced as a
	// user-facing failure.
	ErrSessionInvalidated = errors.New("translate: session invalidated")
	// ErrNoSession indicates no translation session is installed.
	ErrNoSession = errors.New("translate: no session installed")
)

// Session is the external translation engine handle. Translate blocks until
// the engine responds; lifecycle cancellation must surface as
// ErrSessionInvalidated so it can be told apart from a real failure.
type Session interface {
	Translate(ctx context.Context, text string) (string, error)
}

// SessionManager performs incremental and final full-text translation into
// the durable record with idempotence and cancellation safety. Translation
// calls are strictly single-flight.
type SessionManager struct {
	log *slog.Logger

	mu             sync.Mutex
	session        Session
	epoch          uint64
	status         Status
	inFlight       bool
	lastTranslated string
	hasResult      bool
	record         *journal.Record
	metrics        *telemetry.SessionMetrics
}

// NewSessionManager returns a manager writing into the given record.
func NewSessionManager(record *journal.Record, logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		log:    logger.With("component", "translate.SessionManager"),
		status: StatusNotDownloaded,
		record: record,
	}
}

// BindMetrics attaches per-session telemetry. Optional.
func (m *SessionManager) BindMetrics(metrics *telemetry.SessionMetrics) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = metrics
}

// SetSession installs an externally supplied session and marks the manager
// ready.
func (m *SessionManager) SetSession(s Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = s
	m.status = StatusReady
}

// MarkDownloading flags the asset-preparation phase.
func (m *SessionManager) MarkDownloading() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = StatusDownloading
}

// ClearSession invalidates the held session immediately. Safe to call
// concurrently with an in-flight translate call: the epoch bump makes the
// in-flight completion discard its result instead of touching the record.
func (m *SessionManager) ClearSession() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked()
}

func (m *SessionManager) clearLocked() {
	m.session = nil
	m.epoch++
	m.status = StatusNotDownloaded
}

// Status returns the current availability state.
func (m *SessionManager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Translated returns the durable translated text.
func (m *SessionManager) Translated() journal.Text {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record.Translated
}

// TranslateIncremental translates the suffix of the finalized transcript not
// yet covered by the last-translated snapshot and appends the result to the
// durable translated text. Skips silently when the suffix is empty or a
// translation is already in flight.
func (m *SessionManager) TranslateIncremental(ctx context.Context, fullText string) error {
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return ErrNoSession
	}
	suffix := fullText
	if strings.HasPrefix(fullText, m.lastTranslated) {
		suffix = fullText[len(m.lastTranslated):]
	}
	if strings.TrimSpace(suffix) == "" {
		m.mu.Unlock()
		return nil
	}
	if m.inFlight {
		m.mu.Unlock()
		return nil
	}
	m.inFlight = true
	session := m.session
	epoch := m.epoch
	m.mu.Unlock()

	translated, err := session.Translate(ctx, suffix)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight = false

	if epoch != m.epoch || m.session == nil {
		// Session was cleared while the call was outstanding; abandon the
		// result without touching durable state.
		m.log.Debug("discarding stale translation result")
		return nil
	}
	if err != nil {
		return m.translateErrLocked(err)
	}

	if !m.record.Translated.IsEmpty() && !strings.HasPrefix(translated, " ") {
		translated = " " + translated
	}
	m.record.Translated.Append(journal.Run{Text: translated})
	m.record.Touch()
	m.lastTranslated = fullText
	m.hasResult = true
	m.status = StatusReady
	m.metrics.RecordTranslation(false)
	return nil
}

// TranslateFinal runs the consolidating pass over the complete transcript and
// replaces the durable translated text wholesale. On failure whatever
// translation currently exists is preserved.
func (m *SessionManager) TranslateFinal(ctx context.Context, fullText string) error {
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return ErrNoSession
	}
	if strings.TrimSpace(fullText) == "" {
		m.mu.Unlock()
		return nil
	}
	if m.inFlight {
		m.mu.Unlock()
		return nil
	}
	m.inFlight = true
	session := m.session
	epoch := m.epoch
	m.mu.Unlock()

	translated, err := session.Translate(ctx, fullText)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight = false

	if epoch != m.epoch || m.session == nil {
		m.log.Debug("discarding stale final translation result")
		return nil
	}
	if err != nil {
		return m.translateErrLocked(err)
	}

	m.record.Translated = journal.Text{Runs: []journal.Run{{Text: translated}}}
	m.record.Touch()
	m.lastTranslated = fullText
	m.hasResult = true
	m.status = StatusReady
	m.metrics.RecordTranslation(true)
	return nil
}

// Retry resets the in-flight flag and status, then re-runs incremental
// translation. Usable only while a session is installed.
func (m *SessionManager) Retry(ctx context.Context, fullText string) error {
	m.mu.Lock()
	if m.session == nil {
		m.status = StatusNotDownloaded
		m.mu.Unlock()
		return ErrNoSession
	}
	m.inFlight = false
	m.status = StatusReady
	m.mu.Unlock()

	return m.TranslateIncremental(ctx, fullText)
}

func (m *SessionManager) translateErrLocked(err error) error {
	if errors.Is(err, ErrSessionInvalidated) {
		// The owning view went away; expected, recoverable, not a failure.
		m.log.Info("translation session invalidated, clearing")
		m.clearLocked()
		return nil
	}
	if !m.hasResult {
		m.status = StatusFailed
	}
	// A prior good result stays visible; never regress it over a transient
	// error.
	return fmt.Errorf("translate: %w", err)
}
