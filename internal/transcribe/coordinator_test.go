package transcribe

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/text/language"

	"github.com/voicelog/voicelog/internal/audio"
	"github.com/voicelog/voicelog/internal/journal"
	"github.com/voicelog/voicelog/internal/recognition"
	"github.com/voicelog/voicelog/internal/telemetry"
	"github.com/voicelog/voicelog/internal/translate"
)

type scriptEngine struct {
	results chan recognition.Result

	mu       sync.Mutex
	fed      int
	finished bool
}

func newScriptEngine() *scriptEngine {
	return &scriptEngine{results: make(chan recognition.Result, 16)}
}

func (e *scriptEngine) Feed(ctx context.Context, buf audio.Buffer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fed++
	return nil
}

func (e *scriptEngine) Results() <-chan recognition.Result { return e.results }

func (e *scriptEngine) Finish(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.finished {
		e.finished = true
		close(e.results)
	}
	return nil
}

func (e *scriptEngine) Close() error { return nil }

func (e *scriptEngine) emit(res recognition.Result) { e.results <- res }

type scriptService struct {
	engine    *scriptEngine
	supported []language.Tag
}

func (s *scriptService) SupportedLocales() []language.Tag { return s.supported }

func (s *scriptService) EnsureModel(ctx context.Context, tag language.Tag, progress func(float64)) error {
	if progress != nil {
		progress(1)
	}
	return nil
}

func (s *scriptService) Open(ctx context.Context, tag language.Tag, format audio.Format) (recognition.Engine, error) {
	return s.engine, nil
}

type upperSession struct{}

func (upperSession) Translate(ctx context.Context, text string) (string, error) {
	return strings.ToUpper(text), nil
}

// gatedSession blocks every Translate call on the gate so a test can hold a
// translation in flight, and records the texts it was asked to translate.
type gatedSession struct {
	gate chan struct{}

	mu    sync.Mutex
	calls []string
}

func (s *gatedSession) Translate(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, text)
	s.mu.Unlock()
	<-s.gate
	return strings.ToUpper(text), nil
}

func (s *gatedSession) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type harness struct {
	coord   *Coordinator
	engine  *scriptEngine
	record  *journal.Record
	manager *translate.SessionManager
	buffers chan audio.Buffer
}

func newHarness(t *testing.T, supported ...language.Tag) *harness {
	t.Helper()
	if len(supported) == 0 {
		supported = []language.Tag{language.AmericanEnglish}
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	engine := newScriptEngine()
	record := journal.NewRecord()
	manager := translate.NewSessionManager(record, logger)
	coord := NewCoordinator(
		&scriptService{engine: engine, supported: supported},
		manager, record, logger, telemetry.NewRecorder(logger),
	)
	buffers := make(chan audio.Buffer)
	t.Cleanup(func() { close(buffers) })
	return &harness{coord: coord, engine: engine, record: record, manager: manager, buffers: buffers}
}

func (h *harness) setUpAndStart(t *testing.T, locale string) {
	t.Helper()
	if err := h.coord.SetUp(context.Background(), locale, nil); err != nil {
		t.Fatalf("SetUp: %v", err)
	}
	if err := h.coord.Start(context.Background(), h.buffers); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestCoordinatorVolatileReplaces(t *testing.T) {
	h := newHarness(t)

	var mu sync.Mutex
	var seen []string
	h.coord.OnVolatile(func(text string) {
		mu.Lock()
		seen = append(seen, text)
		mu.Unlock()
	})

	h.setUpAndStart(t, "en-US")

	h.engine.emit(recognition.Result{Runs: []recognition.Run{{Text: "one"}}})
	h.engine.emit(recognition.Result{Runs: []recognition.Run{{Text: "one two"}}})

	waitFor(t, "second volatile update", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	})

	if got := h.coord.Volatile(); got != "one two" {
		t.Fatalf("expected latest guess to replace, got %q", got)
	}
	if !h.record.Text.IsEmpty() {
		t.Fatalf("volatile results must not reach the durable transcript, got %q", h.record.Text.String())
	}
}

func TestCoordinatorFinalAppendsAndIndexes(t *testing.T) {
	h := newHarness(t)

	finals := make(chan journal.Text, 4)
	h.coord.OnFinal(func(text journal.Text) { finals <- text })

	h.setUpAndStart(t, "en-US")

	h.engine.emit(recognition.Result{Runs: []recognition.Run{{Text: "draft"}}})
	h.engine.emit(recognition.Result{
		Final: true,
		Runs: []recognition.Run{
			{Text: "hello ", Audio: &journal.TimeRange{Start: 0, End: 1.2}},
			{Text: "world", Audio: &journal.TimeRange{Start: 1.2, End: 2.0}},
		},
	})

	var snapshot journal.Text
	select {
	case snapshot = <-finals:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for final notification")
	}

	if got := snapshot.String(); got != "hello world" {
		t.Fatalf("unexpected finalized text: %q", got)
	}
	if got := h.coord.Volatile(); got != "" {
		t.Fatalf("volatile must clear when a segment finalises, got %q", got)
	}

	ranges, err := h.record.Index.Ranges(h.record.Text.Len())
	if err != nil {
		t.Fatalf("Ranges: %v", err)
	}
	if len(ranges) != 2 {
		t.Fatalf("expected 2 time ranges, got %d", len(ranges))
	}
	if ranges[0].Span.Start != 0 || ranges[0].Span.End != 6 {
		t.Fatalf("unexpected first span: %+v", ranges[0].Span)
	}
	if ranges[1].Span.Start != 6 || ranges[1].Span.End != 11 {
		t.Fatalf("unexpected second span: %+v", ranges[1].Span)
	}
	if ranges[1].Start != 1.2 || ranges[1].End != 2.0 {
		t.Fatalf("unexpected second range times: %+v", ranges[1])
	}
}

func TestCoordinatorFinishRunsFinalTranslation(t *testing.T) {
	h := newHarness(t)
	h.manager.SetSession(upperSession{})
	h.setUpAndStart(t, "en-US")

	h.engine.emit(recognition.Result{
		Final: true,
		Runs:  []recognition.Run{{Text: "good morning", Audio: &journal.TimeRange{Start: 0, End: 1}}},
	})

	// The incremental pass runs asynchronously after the final segment.
	waitFor(t, "incremental translation", func() bool {
		return !h.manager.Translated().IsEmpty()
	})

	if err := h.coord.Finish(context.Background()); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	if got := h.manager.Translated().String(); got != "GOOD MORNING" {
		t.Fatalf("expected final pass translation, got %q", got)
	}
	if !h.record.Done {
		t.Fatalf("expected record marked done")
	}
	if got := h.coord.State(); got != StateStopped {
		t.Fatalf("expected stopped state, got %v", got)
	}

	// Finish is idempotent.
	if err := h.coord.Finish(context.Background()); err != nil {
		t.Fatalf("second Finish: %v", err)
	}
}

func TestCoordinatorFinishWaitsForInFlightIncremental(t *testing.T) {
	h := newHarness(t)
	session := &gatedSession{gate: make(chan struct{})}
	h.manager.SetSession(session)
	h.setUpAndStart(t, "en-US")

	h.engine.emit(recognition.Result{
		Final: true,
		Runs:  []recognition.Run{{Text: "good morning", Audio: &journal.TimeRange{Start: 0, End: 1}}},
	})

	// Hold the incremental call in flight, then finish while it is stuck.
	waitFor(t, "incremental translation to start", func() bool {
		return session.callCount() == 1
	})

	finished := make(chan error, 1)
	go func() { finished <- h.coord.Finish(context.Background()) }()

	select {
	case err := <-finished:
		t.Fatalf("Finish returned before the in-flight translation settled: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(session.gate)
	select {
	case err := <-finished:
		if err != nil {
			t.Fatalf("Finish: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Finish never completed")
	}

	// The final pass must have run over the full text, not been skipped in
	// favour of the stitched incremental fragments.
	if got := h.manager.Translated().String(); got != "GOOD MORNING" {
		t.Fatalf("expected final-pass translation, got %q", got)
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	if len(session.calls) != 2 || session.calls[1] != "good morning" {
		t.Fatalf("expected a final full-text call after the increment, got %v", session.calls)
	}
}

func TestCoordinatorLocaleFallback(t *testing.T) {
	h := newHarness(t, language.AmericanEnglish, language.Japanese)
	if err := h.coord.SetUp(context.Background(), "fr-FR", nil); err != nil {
		t.Fatalf("SetUp: %v", err)
	}
	tag, fellBack := h.coord.Locale()
	if !fellBack {
		t.Fatalf("expected locale fallback for fr-FR")
	}
	if tag != language.AmericanEnglish {
		t.Fatalf("expected fallback to en-US, got %v", tag)
	}
}

func TestCoordinatorSetUpRequiresIdle(t *testing.T) {
	h := newHarness(t)
	h.setUpAndStart(t, "en-US")
	if err := h.coord.SetUp(context.Background(), "en-US", nil); err == nil {
		t.Fatalf("expected SetUp to fail while recognizing")
	}
}

func TestCoordinatorResetKeepsIndex(t *testing.T) {
	h := newHarness(t)
	h.setUpAndStart(t, "en-US")

	finals := make(chan journal.Text, 1)
	h.coord.OnFinal(func(text journal.Text) { finals <- text })
	h.engine.emit(recognition.Result{
		Final: true,
		Runs:  []recognition.Run{{Text: "hello", Audio: &journal.TimeRange{Start: 0, End: 1}}},
	})
	select {
	case <-finals:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for final notification")
	}
	if err := h.coord.Finish(context.Background()); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	h.coord.Reset()

	if got := h.coord.State(); got != StateIdle {
		t.Fatalf("expected idle after reset, got %v", got)
	}
	if !h.record.Text.IsEmpty() {
		t.Fatalf("expected transcript cleared, got %q", h.record.Text.String())
	}
	if h.record.Index.Len() != 1 {
		t.Fatalf("expected time-range index preserved, got %d", h.record.Index.Len())
	}
	// Stale spans are invisible through the filtered read.
	ranges, err := h.record.Index.Ranges(h.record.Text.Len())
	if err != nil {
		t.Fatalf("Ranges: %v", err)
	}
	if len(ranges) != 0 {
		t.Fatalf("expected stale spans filtered out, got %v", ranges)
	}
}
