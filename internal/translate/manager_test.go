package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voicelog/voicelog/internal/journal"
)

// fakeSession translates by upper-casing. A gate channel, when set, blocks
// Translate until released so tests can hold a call in flight.
type fakeSession struct {
	mu    sync.Mutex
	calls []string
	err   error
	gate  chan struct{}
}

func (s *fakeSession) Translate(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, text)
	err := s.err
	gate := s.gate
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return strings.ToUpper(text), nil
}

func (s *fakeSession) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func newTestManager() (*SessionManager, *journal.Record) {
	record := journal.NewRecord()
	return NewSessionManager(record, nil), record
}

func TestTranslateIncrementalAppendsSuffixOnly(t *testing.T) {
	m, record := newTestManager()
	session := &fakeSession{}
	m.SetSession(session)

	if err := m.TranslateIncremental(context.Background(), "hello"); err != nil {
		t.Fatalf("first increment: %v", err)
	}
	if err := m.TranslateIncremental(context.Background(), "hello world"); err != nil {
		t.Fatalf("second increment: %v", err)
	}

	if got := record.Translated.String(); got != "HELLO WORLD" {
		t.Fatalf("unexpected translation: %q", got)
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	if len(session.calls) != 2 || session.calls[1] != " world" {
		t.Fatalf("expected only the new suffix on the second call, got %v", session.calls)
	}
}

func TestTranslateIncrementalSkipsEmptySuffix(t *testing.T) {
	m, _ := newTestManager()
	session := &fakeSession{}
	m.SetSession(session)

	if err := m.TranslateIncremental(context.Background(), "hello"); err != nil {
		t.Fatalf("increment: %v", err)
	}
	// Same text again: nothing new to translate.
	if err := m.TranslateIncremental(context.Background(), "hello"); err != nil {
		t.Fatalf("repeat increment: %v", err)
	}
	if session.callCount() != 1 {
		t.Fatalf("expected a single engine call, got %d", session.callCount())
	}
}

func TestTranslateSingleFlight(t *testing.T) {
	m, _ := newTestManager()
	gate := make(chan struct{})
	session := &fakeSession{gate: gate}
	m.SetSession(session)

	done := make(chan error, 1)
	go func() {
		done <- m.TranslateIncremental(context.Background(), "first")
	}()
	waitForCalls(t, session, 1)

	// A second call while the first is outstanding is silently skipped.
	if err := m.TranslateIncremental(context.Background(), "first second"); err != nil {
		t.Fatalf("overlapping increment: %v", err)
	}
	if session.callCount() != 1 {
		t.Fatalf("expected overlapping call to be skipped, got %d calls", session.callCount())
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("gated increment: %v", err)
	}
}

func TestClearSessionDiscardsInFlightResult(t *testing.T) {
	m, record := newTestManager()
	gate := make(chan struct{})
	session := &fakeSession{gate: gate}
	m.SetSession(session)

	done := make(chan error, 1)
	go func() {
		done <- m.TranslateIncremental(context.Background(), "hello")
	}()
	waitForCalls(t, session, 1)

	m.ClearSession()
	close(gate)

	if err := <-done; err != nil {
		t.Fatalf("increment after clear must not error: %v", err)
	}
	if !record.Translated.IsEmpty() {
		t.Fatalf("stale result must not reach the record, got %q", record.Translated.String())
	}
	if got := m.Status(); got != StatusNotDownloaded {
		t.Fatalf("expected StatusNotDownloaded after clear, got %v", got)
	}
}

func TestTranslateFinalReplacesWholesale(t *testing.T) {
	m, record := newTestManager()
	session := &fakeSession{}
	m.SetSession(session)

	if err := m.TranslateIncremental(context.Background(), "piece one"); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := m.TranslateIncremental(context.Background(), "piece one piece two"); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := m.TranslateFinal(context.Background(), "piece one piece two"); err != nil {
		t.Fatalf("final: %v", err)
	}

	if got := record.Translated.String(); got != "PIECE ONE PIECE TWO" {
		t.Fatalf("expected final pass to replace stitched text, got %q", got)
	}
	if len(record.Translated.Runs) != 1 {
		t.Fatalf("expected a single consolidated run, got %d", len(record.Translated.Runs))
	}
}

func TestTranslateFailureKeepsPriorResult(t *testing.T) {
	m, record := newTestManager()
	session := &fakeSession{}
	m.SetSession(session)

	if err := m.TranslateIncremental(context.Background(), "hello"); err != nil {
		t.Fatalf("increment: %v", err)
	}

	session.mu.Lock()
	session.err = fmt.Errorf("engine exploded")
	session.mu.Unlock()

	if err := m.TranslateIncremental(context.Background(), "hello world"); err == nil {
		t.Fatalf("expected failure to surface")
	}
	if got := record.Translated.String(); got != "HELLO" {
		t.Fatalf("prior result must survive a failure, got %q", got)
	}
	if got := m.Status(); got != StatusReady {
		t.Fatalf("status must stay Ready after a prior success, got %v", got)
	}
}

func TestTranslateFailureWithoutPriorResult(t *testing.T) {
	m, _ := newTestManager()
	session := &fakeSession{err: fmt.Errorf("engine exploded")}
	m.SetSession(session)

	if err := m.TranslateIncremental(context.Background(), "hello"); err == nil {
		t.Fatalf("expected failure to surface")
	}
	if got := m.Status(); got != StatusFailed {
		t.Fatalf("expected StatusFailed with no prior result, got %v", got)
	}
}

func TestSessionInvalidationIsNotFailure(t *testing.T) {
	m, record := newTestManager()
	session := &fakeSession{err: ErrSessionInvalidated}
	m.SetSession(session)

	if err := m.TranslateIncremental(context.Background(), "hello"); err != nil {
		t.Fatalf("invalidation must be absorbed, got %v", err)
	}
	if got := m.Status(); got != StatusNotDownloaded {
		t.Fatalf("expected StatusNotDownloaded after invalidation, got %v", got)
	}
	if !record.Translated.IsEmpty() {
		t.Fatalf("no translation expected, got %q", record.Translated.String())
	}
}

func TestRetryWithoutSessionFailsFast(t *testing.T) {
	m, _ := newTestManager()
	if err := m.Retry(context.Background(), "hello"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if got := m.Status(); got != StatusNotDownloaded {
		t.Fatalf("expected StatusNotDownloaded, got %v", got)
	}
}

func TestRetryRecoversFromFailure(t *testing.T) {
	m, record := newTestManager()
	session := &fakeSession{err: fmt.Errorf("transient")}
	m.SetSession(session)

	if err := m.TranslateIncremental(context.Background(), "hello"); err == nil {
		t.Fatalf("expected initial failure")
	}
	if got := m.Status(); got != StatusFailed {
		t.Fatalf("expected StatusFailed, got %v", got)
	}

	session.mu.Lock()
	session.err = nil
	session.mu.Unlock()

	if err := m.Retry(context.Background(), "hello"); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if got := record.Translated.String(); got != "HELLO" {
		t.Fatalf("expected retry to translate, got %q", got)
	}
	if got := m.Status(); got != StatusReady {
		t.Fatalf("expected StatusReady after retry, got %v", got)
	}
}

func waitForCalls(t *testing.T, session *fakeSession, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if session.callCount() >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d engine calls", n)
}
