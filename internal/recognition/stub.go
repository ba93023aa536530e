package recognition

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/text/language"

	"github.com/voicelog/voicelog/internal/audio"
	"github.com/voicelog/voicelog/internal/journal"
)

// StubService produces deterministic transcripts without a real engine. It
// allows exercising the coordinator and daemon wiring before a recognition
// backend is configured.
type StubService struct {
	log *slog.Logger
}

// NewStubService returns a Service backed by stub engines.
func NewStubService(logger *slog.Logger) *StubService {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubService{log: logger.With("component", "recognition.stub")}
}

// SupportedLocales implements the Service interface.
func (s *StubService) SupportedLocales() []language.Tag {
	return []language.Tag{language.AmericanEnglish, language.BritishEnglish}
}

// EnsureModel implements the Service interface; the stub has no asset to
// install.
func (s *StubService) EnsureModel(ctx context.Context, tag language.Tag, progress func(float64)) error {
	report(progress, 1)
	return nil
}

// Open implements the Service interface.
func (s *StubService) Open(ctx context.Context, tag language.Tag, format audio.Format) (Engine, error) {
	if !format.Valid() {
		return nil, fmt.Errorf("%w: invalid format %+v", ErrStreamFailed, format)
	}
	return &StubEngine{
		log:     s.log.With("locale", tag.String()),
		format:  format,
		results: make(chan Result, 16),
	}, nil
}

// StubEngine emits one volatile result per fed buffer and a single finalised
// segment, spanning the accumulated audio, on Finish.
type StubEngine struct {
	log     *slog.Logger
	format  audio.Format
	results chan Result

	mu       sync.Mutex
	frames   int
	buffers  int
	finished bool
}

// Feed implements the Engine interface. The send happens under the mutex so a
// concurrent Finish or Close cannot close the results channel mid-send.
func (e *StubEngine) Feed(ctx context.Context, buf audio.Buffer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finished {
		return fmt.Errorf("recognition: stub engine already finished")
	}
	e.frames += buf.Frames()
	e.buffers++
	text := fmt.Sprintf("[stub] heard %d buffers", e.buffers)

	select {
	case e.results <- Result{Runs: []Run{{Text: text}}}:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Results implements the Engine interface.
func (e *StubEngine) Results() <-chan Result {
	return e.results
}

// Finish implements the Engine interface: it drains instantly, emitting one
// final segment that covers the accumulated audio.
func (e *StubEngine) Finish(ctx context.Context) error {
	e.mu.Lock()
	if e.finished {
		e.mu.Unlock()
		return nil
	}
	e.finished = true
	frames := e.frames
	buffers := e.buffers
	e.mu.Unlock()

	if buffers > 0 {
		seconds := float64(frames) / float64(e.format.SampleRate)
		text := fmt.Sprintf("[stub] transcript of %d buffers", buffers)
		res := Result{
			Runs: []Run{{
				Text:  text,
				Audio: &journal.TimeRange{Start: 0, End: seconds},
			}},
			Final: true,
		}
		select {
		case e.results <- res:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	close(e.results)
	e.log.Debug("stub engine finished", "buffers", buffers, "frames", frames)
	return nil
}

// Close implements the Engine interface.
func (e *StubEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.finished {
		e.finished = true
		close(e.results)
	}
	return nil
}
