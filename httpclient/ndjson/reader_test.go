package ndjson

import (
	"errors"
	"io"
	"strings"
	"testing"
)

// mockReadCloser wraps a string reader as an io.ReadCloser.
type mockReadCloser struct {
	*strings.Reader
	closed int
}

func (m *mockReadCloser) Close() error {
	m.closed++
	return nil
}

func newMockBody(s string) *mockReadCloser {
	return &mockReadCloser{Reader: strings.NewReader(s)}
}

type event struct {
	Type string  `json:"type"`
	Text string  `json:"text"`
	P    float64 `json:"progress"`
}

func TestReader_SkipsBlankLines(t *testing.T) {
	r := NewReader(newMockBody("\n{\"type\":\"progress\"}\n\n  \r\n{\"type\":\"result\"}"))
	defer r.Close()

	var got []string
	for {
		line, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = append(got, string(line))
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(got), got)
	}
	if got[1] != `{"type":"result"}` {
		t.Errorf("trailing line without newline = %q", got[1])
	}
}

func TestDecode_Events(t *testing.T) {
	r := NewReader(newMockBody(`{"type":"progress","progress":50}
{"type":"result","text":"hello"}
`))
	defer r.Close()

	ev, _, err := Decode[event](r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Type != "progress" || ev.P != 50 {
		t.Errorf("first event = %+v", ev)
	}

	ev, _, err = Decode[event](r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Text != "hello" {
		t.Errorf("second event = %+v", ev)
	}

	if _, _, err := Decode[event](r); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestDecode_Malformed(t *testing.T) {
	r := NewReader(newMockBody("{\"type\":\"progress\"}\nnot json\n"))
	defer r.Close()

	if _, _, err := Decode[event](r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, line, err := Decode[event](r)
	var syn *SyntaxError
	if !errors.As(err, &syn) {
		t.Fatalf("expected SyntaxError, got %v", err)
	}
	if string(line) != "not json" || string(syn.Line) != "not json" {
		t.Errorf("expected raw line, got %q / %q", line, syn.Line)
	}
}

func TestReader_LongLine(t *testing.T) {
	text := strings.Repeat("a", 200_000)
	r := NewReader(newMockBody(`{"type":"result","text":"` + text + `"}` + "\n"))
	defer r.Close()

	ev, _, err := Decode[event](r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ev.Text) != len(text) {
		t.Errorf("text length = %d, want %d", len(ev.Text), len(text))
	}
}

func TestReader_CloseOnce(t *testing.T) {
	body := newMockBody("")
	r := NewReader(body)
	_ = r.Close()
	_ = r.Close()
	if body.closed != 1 {
		t.Errorf("expected body closed once, got %d", body.closed)
	}
}
