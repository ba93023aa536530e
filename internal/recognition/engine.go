// Package recognition defines the contract the pipeline requires from a
// speech-recognition engine and provides the locale policy, model asset
// management, a remote websocket engine, and a stub implementation.
package recognition

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/text/language"

	"github.com/voicelog/voicelog/internal/audio"
	"github.com/voicelog/voicelog/internal/journal"
)

var (
	// ErrLocaleUnsupported indicates the requested locale cannot be recognised.
	ErrLocaleUnsupported = errors.New("recognition: locale unsupported")
	// ErrModelInstall indicates the on-device model asset could not be prepared.
	ErrModelInstall = errors.New("recognition: model install failed")
	// ErrStreamFailed indicates the recognition stream died; the session must
	// finish gracefully.
	ErrStreamFailed = errors.New("recognition: stream failed")
)

// Run is a styled run of recognised text, optionally carrying the audio
// playback time range the engine attributed to it.
type Run struct {
	Text  string
	Audio *journal.TimeRange
}

// Result is one recognition update. Non-final results are advisory and
// supersede the previous non-final value; final results are stable. Err is
// set when the stream itself failed.
type Result struct {
	Runs  []Run
	Final bool
	Err   error
}

// Text returns the plain-text concatenation of the result's runs.
func (r Result) Text() string {
	var b strings.Builder
	for _, run := range r.Runs {
		b.WriteString(run.Text)
	}
	return b.String()
}

// Engine is an open recognition session bound to a locale and audio format.
// Feed delivers buffers in capture order from a single producer; Results is
// consumed by a single consumer and closes after Finish drains the engine or
// the stream dies.
type Engine interface {
	Feed(ctx context.Context, buf audio.Buffer) error
	Results() <-chan Result
	// Finish signals end-of-input and waits for the engine to fully drain.
	Finish(ctx context.Context) error
	Close() error
}

// Service is a pluggable recognition backend.
type Service interface {
	// SupportedLocales lists locales the engine can recognise.
	SupportedLocales() []language.Tag
	// EnsureModel downloads/installs the model asset for the locale if
	// required, reporting progress in [0, 1].
	EnsureModel(ctx context.Context, tag language.Tag, progress func(float64)) error
	// Open starts a recognition session negotiated to the given format.
	Open(ctx context.Context, tag language.Tag, format audio.Format) (Engine, error)
}
