package audio

import (
	"sync"
	"time"
)

// Player schedules full-file playback of a finished recording. Elapsed time
// is derived from the player's own clock rather than a separately maintained
// counter, so it cannot drift from what was actually scheduled.
type Player struct {
	mu       sync.Mutex
	path     string
	duration time.Duration
	started  time.Time
	playing  bool
}

// NewPlayer opens the recording on its own handle, independent of any live
// capture writer, and reads its duration.
func NewPlayer(path string) (*Player, error) {
	seconds, err := WAVDuration(path)
	if err != nil {
		return nil, err
	}
	return &Player{
		path:     path,
		duration: time.Duration(seconds * float64(time.Second)),
	}, nil
}

// Start schedules playback from the beginning.
func (p *Player) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = time.Now()
	p.playing = true
}

// Stop halts playback.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
}

// Playing reports whether playback is still in progress.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing && time.Since(p.started) < p.duration
}

// Elapsed returns the current playback position, clamped to the file
// duration.
func (p *Player) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return 0
	}
	elapsed := time.Since(p.started)
	if elapsed > p.duration {
		return p.duration
	}
	return elapsed
}

// Duration returns the raw file duration.
func (p *Player) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration
}

// Path returns the file being played.
func (p *Player) Path() string {
	return p.path
}
