package journal

import (
	"time"

	"github.com/google/uuid"
)

// Record is the durable voice log entry. Text is the authoritative
// transcript; Translated is written only by the translation subsystem. The
// two are mutated from disjoint completion callbacks (coordinator and
// translator respectively), never concurrently with themselves.
type Record struct {
	ID         string
	Title      string
	Text       Text
	Translated Text
	Index      TimeRangeIndex
	// AudioFile references the persisted recording. Set once per recording
	// session before capture begins, cleared on reset.
	AudioFile string
	// Done is false while recording or freshly created and flips to true
	// exactly once when the session finishes.
	Done      bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewRecord returns a blank record ready for a fresh recording session.
func NewRecord() *Record {
	now := time.Now()
	return &Record{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ResetText clears the transcript and its translation for a corrected
// re-recording. The time-range index is intentionally preserved so the UI
// does not flash an empty highlight state; stale spans are filtered on read
// instead (see TimeRangeIndex.Ranges).
func (r *Record) ResetText() {
	r.Text.Reset()
	r.Translated.Reset()
	r.AudioFile = ""
	r.Done = false
	r.UpdatedAt = time.Now()
}

// Touch bumps the update timestamp.
func (r *Record) Touch() {
	r.UpdatedAt = time.Now()
}
