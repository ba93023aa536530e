package journal

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// TimedRange ties an audio playback time range to a span of the transcript.
type TimedRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Span  Span    `json:"span"`
}

// TimeRangeIndex is a persisted mapping from transcript spans to audio
// playback timestamps, built incrementally as recognition finalises segments.
// It is stored as a single encoded blob; decoding is cached and only repeated
// when the blob changes, so reads on every playback tick stay cheap.
type TimeRangeIndex struct {
	mu      sync.Mutex
	blob    []byte
	decoded []TimedRange
	fresh   bool
}

// SetBlob installs a previously persisted encoding and invalidates the cache.
func (x *TimeRangeIndex) SetBlob(blob []byte) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.blob = blob
	x.decoded = nil
	x.fresh = false
}

// Blob returns the current encoded form.
func (x *TimeRangeIndex) Blob() []byte {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.blob
}

// Append merges new ranges into the set, re-sorts by start time, and
// re-encodes the blob.
func (x *TimeRangeIndex) Append(ranges ...TimedRange) error {
	if len(ranges) == 0 {
		return nil
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.decodeLocked(); err != nil {
		return err
	}
	x.decoded = append(x.decoded, ranges...)
	sort.SliceStable(x.decoded, func(i, j int) bool {
		return x.decoded[i].Start < x.decoded[j].Start
	})
	blob, err := json.Marshal(x.decoded)
	if err != nil {
		return fmt.Errorf("journal: encode time ranges: %w", err)
	}
	x.blob = blob
	x.fresh = true
	return nil
}

// Ranges returns the decoded ranges sorted by start time. Ranges whose span
// extends past textLen runes are filtered out: a reset re-recording keeps the
// old index until new segments land, so the blob may briefly describe a
// longer, older transcript. Pass a negative textLen to skip filtering.
func (x *TimeRangeIndex) Ranges(textLen int) ([]TimedRange, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.decodeLocked(); err != nil {
		return nil, err
	}
	if textLen < 0 {
		out := make([]TimedRange, len(x.decoded))
		copy(out, x.decoded)
		return out, nil
	}
	out := make([]TimedRange, 0, len(x.decoded))
	for _, r := range x.decoded {
		if r.Span.End <= textLen {
			out = append(out, r)
		}
	}
	return out, nil
}

// Len returns the number of stored ranges, including stale ones.
func (x *TimeRangeIndex) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.decodeLocked(); err != nil {
		return 0
	}
	return len(x.decoded)
}

// EffectiveDuration returns the playback duration in seconds. The end of the
// last range wins over the raw file duration when it is larger, because it
// marks where word-level highlighting data actually ends.
func (x *TimeRangeIndex) EffectiveDuration(rawFileSeconds float64) float64 {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.decodeLocked(); err != nil || len(x.decoded) == 0 {
		return rawFileSeconds
	}
	last := x.decoded[len(x.decoded)-1].End
	if last > rawFileSeconds {
		return last
	}
	return rawFileSeconds
}

func (x *TimeRangeIndex) decodeLocked() error {
	if x.fresh {
		return nil
	}
	x.decoded = nil
	if len(x.blob) > 0 {
		if err := json.Unmarshal(x.blob, &x.decoded); err != nil {
			return fmt.Errorf("journal: decode time ranges: %w", err)
		}
	}
	x.fresh = true
	return nil
}
