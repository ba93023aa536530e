// Package transcribe coordinates a recording session: it consumes the
// converted-buffer stream, maintains volatile and finalized transcript state,
// extracts audio time ranges as segments finalise, and drives incremental and
// final translation.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/text/language"

	"github.com/voicelog/voicelog/internal/audio"
	"github.com/voicelog/voicelog/internal/journal"
	"github.com/voicelog/voicelog/internal/recognition"
	"github.com/voicelog/voicelog/internal/telemetry"
	"github.com/voicelog/voicelog/internal/translate"
)

// State tracks the per-session machine: Idle → Recognizing → Finalizing →
// Stopped.
type State int

const (
	StateIdle State = iota
	StateRecognizing
	StateFinalizing
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecognizing:
		return "recognizing"
	case StateFinalizing:
		return "finalizing"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Coordinator owns one recognition session for one record.
type Coordinator struct {
	svc        recognition.Service
	translator *translate.SessionManager
	record     *journal.Record
	log        *slog.Logger
	telemetry  *telemetry.Recorder

	mu             sync.Mutex
	state          State
	engine         recognition.Engine
	locale         language.Tag
	localeFellBack bool
	volatile       string
	onVolatile     func(string)
	onFinal        func(journal.Text)
	session        *telemetry.SessionMetrics

	consumeCancel context.CancelFunc
	consumeDone   chan struct{}
	translateWG   sync.WaitGroup
	finishOnce    sync.Once
}

// NewCoordinator wires the coordinator to a recognition backend, the
// translation manager, and the durable record.
func NewCoordinator(svc recognition.Service, translator *translate.SessionManager, record *journal.Record, logger *slog.Logger, tel *telemetry.Recorder) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		svc:        svc,
		translator: translator,
		record:     record,
		log:        logger.With("component", "transcribe.Coordinator", "record_id", record.ID),
		telemetry:  tel,
	}
}

// OnVolatile registers an observer for volatile transcript updates. Volatile
// values replace each other; they are never part of the durable transcript.
func (c *Coordinator) OnVolatile(fn func(string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onVolatile = fn
}

// OnFinal registers an observer for the finalized transcript after each
// appended segment.
func (c *Coordinator) OnFinal(fn func(journal.Text)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFinal = fn
}

// SetUp validates the requested locale, installs the model asset if required
// (reporting progress), and opens a recognition session bound to the engine
// format. Transitions Idle → Recognizing.
func (c *Coordinator) SetUp(ctx context.Context, requestedLocale string, progress func(float64)) error {
	c.mu.Lock()
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("transcribe: cannot set up in state %s", state)
	}
	c.mu.Unlock()

	tag, fellBack, err := recognition.ResolveLocale(requestedLocale, c.svc.SupportedLocales())
	if err != nil {
		return err
	}
	if fellBack {
		c.log.Warn("requested locale unsupported, falling back",
			"requested", requestedLocale, "locale", tag.String())
	}

	if err := c.svc.EnsureModel(ctx, tag, progress); err != nil {
		return err
	}

	engine, err := c.svc.Open(ctx, tag, audio.EngineFormat)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.engine = engine
	c.locale = tag
	c.localeFellBack = fellBack
	c.state = StateRecognizing
	c.log.Info("transcriber ready", "locale", tag.String(), "fell_back", fellBack)
	return nil
}

// Start consumes the converted-buffer stream: one goroutine feeds the engine
// in capture order, another consumes recognition results.
func (c *Coordinator) Start(ctx context.Context, buffers <-chan audio.Buffer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRecognizing {
		return fmt.Errorf("transcribe: cannot start in state %s", c.state)
	}
	if c.consumeDone != nil {
		return fmt.Errorf("transcribe: already started")
	}

	consumeCtx, cancel := context.WithCancel(context.Background())
	c.consumeCancel = cancel
	c.consumeDone = make(chan struct{})
	c.session = c.telemetry.StartSession(c.record.ID)
	c.translator.BindMetrics(c.session)

	engine := c.engine
	go c.feedLoop(ctx, engine, buffers)
	go c.consumeLoop(consumeCtx, engine)
	return nil
}

func (c *Coordinator) feedLoop(ctx context.Context, engine recognition.Engine, buffers <-chan audio.Buffer) {
	for buf := range buffers {
		if err := engine.Feed(ctx, buf); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.log.Warn("feed failed", "error", err)
			return
		}
	}
}

func (c *Coordinator) consumeLoop(ctx context.Context, engine recognition.Engine) {
	defer close(c.consumeDone)
	for {
		select {
		case res, ok := <-engine.Results():
			if !ok {
				return
			}
			c.handleResult(ctx, res)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Coordinator) handleResult(ctx context.Context, res recognition.Result) {
	if res.Err != nil {
		// Fatal to the session: finish gracefully with what we have.
		c.log.Error("recognition stream failed", "error", res.Err)
		go c.Finish(context.Background())
		return
	}

	if !res.Final {
		// Volatile results supersede the previous guess, never append.
		text := res.Text()
		c.mu.Lock()
		c.volatile = text
		notify := c.onVolatile
		c.mu.Unlock()
		c.session.RecordTranscript(text, false)
		if notify != nil {
			notify(text)
		}
		return
	}

	c.mu.Lock()
	var ranges []journal.TimedRange
	for _, run := range res.Runs {
		start := c.record.Text.Len()
		c.record.Text.Append(journal.Run{Text: run.Text, Audio: run.Audio})
		if run.Audio != nil {
			ranges = append(ranges, journal.TimedRange{
				Start: run.Audio.Start,
				End:   run.Audio.End,
				Span:  journal.Span{Start: start, End: c.record.Text.Len()},
			})
		}
	}
	c.volatile = ""
	c.record.Touch()
	if err := c.record.Index.Append(ranges...); err != nil {
		c.log.Warn("time range append failed", "error", err)
	}
	done := c.record.Done
	fullText := c.record.Text.String()
	snapshot := c.record.Text
	notifyFinal := c.onFinal
	notifyVolatile := c.onVolatile
	c.mu.Unlock()

	c.session.RecordTranscript(res.Text(), true)
	if notifyVolatile != nil {
		notifyVolatile("")
	}
	if notifyFinal != nil {
		notifyFinal(snapshot)
	}

	if !done {
		c.translateWG.Add(1)
		go func() {
			defer c.translateWG.Done()
			if err := c.translator.TranslateIncremental(ctx, fullText); err != nil && !errors.Is(err, translate.ErrNoSession) {
				c.log.Warn("incremental translation failed", "error", err)
			}
		}()
	}
}

// Finish signals end-of-input, waits for the engine to drain, cancels the
// result consumer, and runs the final full-text translation pass, which
// overwrites any incremental result. Transitions to Stopped; idempotent.
func (c *Coordinator) Finish(ctx context.Context) error {
	var err error
	c.finishOnce.Do(func() {
		err = c.finish(ctx)
	})
	return err
}

func (c *Coordinator) finish(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateRecognizing {
		state := c.state
		c.mu.Unlock()
		if state == StateStopped {
			return nil
		}
		return fmt.Errorf("transcribe: cannot finish in state %s", state)
	}
	c.state = StateFinalizing
	engine := c.engine
	cancel := c.consumeCancel
	done := c.consumeDone
	c.mu.Unlock()

	if engine != nil {
		if err := engine.Finish(ctx); err != nil {
			c.log.Warn("engine drain failed", "error", err)
		}
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
		}
	}
	if cancel != nil {
		cancel()
	}

	// Outstanding incremental calls must settle first: TranslateFinal is
	// single-flight and would otherwise skip, leaving the stitched fragments
	// as the permanent result.
	c.translateWG.Wait()

	c.mu.Lock()
	fullText := c.record.Text.String()
	c.mu.Unlock()

	// Final pass over complete context replaces the concatenation of
	// independently translated fragments.
	if err := c.translator.TranslateFinal(ctx, fullText); err != nil && !errors.Is(err, translate.ErrNoSession) {
		c.log.Warn("final translation failed, keeping incremental result", "error", err)
	}

	c.mu.Lock()
	c.record.Done = true
	c.record.Touch()
	c.state = StateStopped
	session := c.session
	c.mu.Unlock()

	if engine != nil {
		if err := engine.Close(); err != nil {
			c.log.Warn("engine close failed", "error", err)
		}
	}
	session.Finish(nil)
	c.log.Info("transcription finished")
	return nil
}

// Reset clears volatile and finalized transcript state and the record's text
// for a corrected re-recording. The persisted time-range index is
// intentionally kept; stale spans are filtered when the index is read.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.volatile = ""
	c.record.ResetText()
	if c.engine != nil {
		if err := c.engine.Close(); err != nil {
			c.log.Warn("engine close failed", "error", err)
		}
		c.engine = nil
	}
	c.consumeCancel = nil
	c.consumeDone = nil
	c.state = StateIdle
	c.finishOnce = sync.Once{}
	c.log.Info("transcription reset")
}

// State returns the current session state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Volatile returns the current unstable transcript guess.
func (c *Coordinator) Volatile() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volatile
}

// Locale returns the negotiated recognition locale and whether it was a
// fallback from the requested one.
func (c *Coordinator) Locale() (language.Tag, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.locale, c.localeFellBack
}
