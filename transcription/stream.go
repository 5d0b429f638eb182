package transcription

import (
	"context"
	stderrors "errors"
	"io"
	"iter"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/kbukum/sonago/errors"
	"github.com/kbukum/sonago/httpclient/ndjson"
)

// EventType is the "type" field of a streaming event.
type EventType string

const (
	EventProgress EventType = "progress"
	EventSegment  EventType = "segment"
	EventResult   EventType = "result"
	EventError    EventType = "error"
)

// Event is one line of a streaming transcription. Which fields are set
// depends on Type.
type Event struct {
	Type     EventType `json:"type"`
	Progress int       `json:"progress,omitempty"`
	Start    float64   `json:"start,omitempty"`
	End      float64   `json:"end,omitempty"`
	Text     string    `json:"text,omitempty"`
	Speaker  *int      `json:"speaker,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// Segment returns the segment carried by a segment event.
func (e Event) Segment() Segment {
	return Segment{Start: e.Start, End: e.End, Text: e.Text, Speaker: e.Speaker}
}

// Stream is a lazy, single-consumption sequence of events read from a
// streaming response. It implements provider.Iterator[Event].
//
// The stream ends at end of body, on a malformed line (STREAM_DECODE), or on
// a server error event (TRANSCRIPTION_FAILED). Once ended, Next returns
// (Event{}, false, nil). Events already returned stay valid.
type Stream struct {
	r       ndjson.Reader
	observe func(Event)

	mu     sync.Mutex // serializes Next
	done   bool
	closed atomic.Bool
}

// StreamOption configures a Stream.
type StreamOption func(*Stream)

// WithEventObserver calls fn for every decoded event, including error events.
func WithEventObserver(fn func(Event)) StreamOption {
	return func(s *Stream) { s.observe = fn }
}

// NewStream reads events from r. The stream owns r.
func NewStream(r ndjson.Reader, opts ...StreamOption) *Stream {
	s := &Stream{r: r}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Next returns the next event. Cancelling ctx aborts a blocked read and ends
// the stream.
func (s *Stream) Next(ctx context.Context) (Event, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done || s.closed.Load() {
		return Event{}, false, nil
	}
	if err := ctx.Err(); err != nil {
		s.finish()
		return Event{}, false, errors.Timeout("transcription stream").WithCause(err)
	}

	stop := context.AfterFunc(ctx, func() { _ = s.r.Close() })
	ev, _, err := ndjson.Decode[Event](s.r)
	stop()

	if err != nil {
		s.finish()
		var syntaxErr *ndjson.SyntaxError
		switch {
		case stderrors.Is(err, io.EOF):
			return Event{}, false, nil
		case ctx.Err() != nil:
			return Event{}, false, errors.Timeout("transcription stream").WithCause(ctx.Err())
		case s.closed.Load():
			return Event{}, false, nil
		case errors.IsAppError(err):
			appErr, _ := errors.AsAppError(err)
			return Event{}, false, appErr
		case stderrors.As(err, &syntaxErr):
			return Event{}, false, errors.StreamDecode(syntaxErr.Line, syntaxErr.Err)
		default:
			return Event{}, false, errors.ConnectionFailed("sona server").WithCause(err)
		}
	}

	if s.observe != nil {
		s.observe(ev)
	}
	if ev.Type == EventError {
		s.finish()
		return Event{}, false, errors.TranscriptionFailed(ev.Message)
	}
	return ev, true, nil
}

// Close releases the response body. Safe to call concurrently with Next and
// more than once.
func (s *Stream) Close() error {
	s.closed.Store(true)
	return s.r.Close()
}

func (s *Stream) finish() {
	s.done = true
	_ = s.r.Close()
}

// All returns an iterator over the remaining events. Iteration stops after
// the first error, which is yielded with a zero Event. The stream is closed
// when iteration ends.
func (s *Stream) All(ctx context.Context) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		defer func() { _ = s.Close() }()
		for {
			ev, ok, err := s.Next(ctx)
			if err != nil {
				yield(Event{}, err)
				return
			}
			if !ok || !yield(ev, nil) {
				return
			}
		}
	}
}

// Collect drains the stream into a Transcript. Text comes from the result
// event, or is joined from the segments when the server sent none. On error
// the transcript built so far is returned with it.
func (s *Stream) Collect(ctx context.Context) (*Transcript, error) {
	t := &Transcript{}
	sawResult := false
	for ev, err := range s.All(ctx) {
		if err != nil {
			return t, err
		}
		switch ev.Type {
		case EventSegment:
			t.Segments = append(t.Segments, ev.Segment())
		case EventResult:
			t.Text = ev.Text
			sawResult = true
		}
	}
	if !sawResult {
		parts := make([]string, len(t.Segments))
		for i, seg := range t.Segments {
			parts[i] = seg.Text
		}
		t.Text = strings.Join(parts, "")
	}
	return t, nil
}
