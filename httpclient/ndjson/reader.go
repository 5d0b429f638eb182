// Package ndjson provides a reader for newline-delimited JSON streams.
package ndjson

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"sync"
)

// MaxLineSize bounds a single line. Final transcription results can carry the
// whole transcript text on one line.
const MaxLineSize = 16 << 20

// Reader reads newline-delimited JSON values from a stream, one line at a
// time. It never buffers more than the current line.
type Reader interface {
	// Next returns the next non-blank line. Returns io.EOF when the stream ends.
	// The returned slice is only valid until the following call.
	Next() ([]byte, error)
	// Close releases the underlying resources.
	Close() error
}

type reader struct {
	scanner *bufio.Scanner
	body    io.ReadCloser

	once     sync.Once
	closeErr error
}

// NewReader creates an ndjson reader from a readable stream.
func NewReader(body io.ReadCloser) Reader {
	s := bufio.NewScanner(body)
	s.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	return &reader{scanner: s, body: body}
}

// Next returns the next non-blank line. Returns io.EOF when the stream ends.
func (r *reader) Next() ([]byte, error) {
	for r.scanner.Scan() {
		line := bytes.TrimSpace(r.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		return line, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Close releases the underlying stream.
func (r *reader) Close() error {
	r.once.Do(func() { r.closeErr = r.body.Close() })
	return r.closeErr
}

// Decode reads the next line and unmarshals it into a T. Decode errors are
// returned together with the raw line.
func Decode[T any](r Reader) (T, []byte, error) {
	var v T
	line, err := r.Next()
	if err != nil {
		return v, nil, err
	}
	if err := json.Unmarshal(line, &v); err != nil {
		return v, line, &SyntaxError{Line: append([]byte(nil), line...), Err: err}
	}
	return v, line, nil
}

// SyntaxError reports a line that is not valid JSON for the target type.
type SyntaxError struct {
	Line []byte
	Err  error
}

func (e *SyntaxError) Error() string { return "ndjson: malformed line: " + e.Err.Error() }

func (e *SyntaxError) Unwrap() error { return e.Err }
