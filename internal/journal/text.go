// Package journal holds the durable voice log entities: the record, its rich
// transcript text, and the audio time-range index used for playback
// highlighting.
package journal

import (
	"strings"
	"unicode/utf8"
)

// TimeRange is a span of audio playback time in seconds.
type TimeRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Span is a half-open range of rune offsets into a Text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Run is a styled run of transcript text. Audio carries the playback time
// range the recognition engine attributed to the run, when available.
type Run struct {
	Text  string     `json:"text"`
	Audio *TimeRange `json:"audio,omitempty"`
}

// Text is an ordered sequence of styled runs. During an active recording
// session mutation is append-only; Reset replaces the whole value.
type Text struct {
	Runs []Run `json:"runs"`
}

// Append adds runs to the end of the text.
func (t *Text) Append(runs ...Run) {
	t.Runs = append(t.Runs, runs...)
}

// String returns the plain-text concatenation of all runs.
func (t Text) String() string {
	var b strings.Builder
	for _, r := range t.Runs {
		b.WriteString(r.Text)
	}
	return b.String()
}

// Len returns the length of the text in runes.
func (t Text) Len() int {
	n := 0
	for _, r := range t.Runs {
		n += utf8.RuneCountInString(r.Text)
	}
	return n
}

// IsEmpty reports whether the text has no content.
func (t Text) IsEmpty() bool {
	for _, r := range t.Runs {
		if r.Text != "" {
			return false
		}
	}
	return true
}

// Reset discards all runs.
func (t *Text) Reset() {
	t.Runs = nil
}
