package recognition

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"golang.org/x/text/language"

	"github.com/voicelog/voicelog/internal/audio"
	"github.com/voicelog/voicelog/internal/journal"
)

// RemoteService streams audio to a recognition server over a websocket.
type RemoteService struct {
	baseURL  string
	manager  *Manager
	manifest Manifest
	log      *slog.Logger
}

// NewRemoteService returns a Service backed by the recognition server at
// baseURL. The manager prepares server-side model assets locally so a session
// can start without a cold download.
func NewRemoteService(baseURL string, manager *Manager, manifest Manifest, logger *slog.Logger) *RemoteService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteService{
		baseURL:  baseURL,
		manager:  manager,
		manifest: manifest,
		log:      logger.With("component", "recognition.Remote"),
	}
}

// SupportedLocales implements the Service interface.
func (s *RemoteService) SupportedLocales() []language.Tag {
	return s.manifest.Locales()
}

// EnsureModel implements the Service interface.
func (s *RemoteService) EnsureModel(ctx context.Context, tag language.Tag, progress func(float64)) error {
	if s.manager == nil {
		report(progress, 1)
		return nil
	}
	_, err := s.manager.EnsureLocale(ctx, tag, progress)
	return err
}

// Open implements the Service interface.
func (s *RemoteService) Open(ctx context.Context, tag language.Tag, format audio.Format) (Engine, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse engine url: %v", ErrStreamFailed, err)
	}
	q := u.Query()
	q.Set("locale", tag.String())
	q.Set("sample_rate", strconv.Itoa(format.SampleRate))
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrStreamFailed, u.String(), err)
	}

	engine := &RemoteEngine{
		conn:    conn,
		log:     s.log.With("locale", tag.String()),
		results: make(chan Result, 16),
		done:    make(chan struct{}),
	}
	go engine.readPump()
	return engine, nil
}

// Wire frames. Audio payloads are 16-bit little-endian PCM; JSON []byte
// fields travel base64-encoded.
type clientFrame struct {
	Type  string `json:"type"` // "audio" | "flush"
	Audio []byte `json:"audio,omitempty"`
}

type wireRun struct {
	Text  string   `json:"text"`
	Start *float64 `json:"start,omitempty"`
	End   *float64 `json:"end,omitempty"`
}

type serverFrame struct {
	Type  string    `json:"type"` // "result" | "error"
	Runs  []wireRun `json:"runs,omitempty"`
	Final bool      `json:"final,omitempty"`
	Error string    `json:"error,omitempty"`
}

// RemoteEngine is one live websocket recognition session.
type RemoteEngine struct {
	conn *websocket.Conn
	log  *slog.Logger

	writeMu sync.Mutex
	flushed atomic.Bool
	closed  atomic.Bool

	results chan Result
	done    chan struct{}
}

// Feed implements the Engine interface.
func (e *RemoteEngine) Feed(ctx context.Context, buf audio.Buffer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	frame := clientFrame{Type: "audio", Audio: pcm16Bytes(buf.Samples)}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if err := e.conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("%w: send audio: %v", ErrStreamFailed, err)
	}
	return nil
}

// Results implements the Engine interface.
func (e *RemoteEngine) Results() <-chan Result {
	return e.results
}

// Finish signals end-of-input with a flush frame and waits for the server to
// drain: remaining results arrive on the results channel, then the server
// closes the connection.
func (e *RemoteEngine) Finish(ctx context.Context) error {
	if !e.flushed.CompareAndSwap(false, true) {
		return nil
	}
	e.writeMu.Lock()
	err := e.conn.WriteJSON(clientFrame{Type: "flush"})
	e.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: send flush: %v", ErrStreamFailed, err)
	}

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Engine interface.
func (e *RemoteEngine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	return e.conn.Close()
}

func (e *RemoteEngine) readPump() {
	defer close(e.done)
	defer close(e.results)
	for {
		var frame serverFrame
		if err := e.conn.ReadJSON(&frame); err != nil {
			// A close after flush is the normal drain; anything else is a
			// dead stream.
			if !e.flushed.Load() && !e.closed.Load() {
				e.results <- Result{Err: fmt.Errorf("%w: %v", ErrStreamFailed, err)}
			}
			return
		}

		switch frame.Type {
		case "result":
			res := Result{Final: frame.Final}
			for _, wr := range frame.Runs {
				run := Run{Text: wr.Text}
				if wr.Start != nil && wr.End != nil {
					run.Audio = &journal.TimeRange{Start: *wr.Start, End: *wr.End}
				}
				res.Runs = append(res.Runs, run)
			}
			if res.Final && cleanTranscript(res.Text()) == "" {
				continue
			}
			e.results <- res
		case "error":
			e.results <- Result{Err: fmt.Errorf("%w: %s", ErrStreamFailed, frame.Error)}
		default:
			e.log.Warn("unknown server frame", "type", frame.Type)
		}
	}
}

func pcm16Bytes(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := s
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(math.Round(float64(v)*32767))))
	}
	return out
}
