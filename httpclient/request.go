package httpclient

import (
	"io"
	"sync"
)

// Request describes an outbound HTTP request.
type Request struct {
	// Method is the HTTP method (GET, POST, PUT, PATCH, DELETE, etc).
	Method string
	// Path is appended to the client's BaseURL. Can be a full URL if BaseURL is empty.
	Path string
	// Headers are request-specific headers (merged with client defaults).
	Headers map[string]string
	// Query are URL query parameters.
	Query map[string]string
	// Body is the request body. Accepts *MultipartBody, io.Reader, []byte,
	// string, or any value that will be JSON-encoded.
	Body any
}

// Response is the result of an HTTP request.
type Response struct {
	// StatusCode is the HTTP status code.
	StatusCode int
	// Headers are the response headers.
	Headers map[string]string
	// Body is the raw response body.
	Body []byte
}

// IsSuccess returns true if the status code is 2xx.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// StreamResponse wraps a streaming HTTP response.
type StreamResponse struct {
	// StatusCode is the HTTP status code.
	StatusCode int
	// Headers are the response headers.
	Headers map[string]string
	// Body is the raw streaming body. Read it incrementally.
	Body io.ReadCloser

	once    sync.Once
	err     error
	release func()
}

// Close releases all resources associated with the stream. Safe to call
// more than once.
func (r *StreamResponse) Close() error {
	r.once.Do(func() {
		if r.Body != nil {
			r.err = r.Body.Close()
		}
		if r.release != nil {
			r.release()
		}
	})
	return r.err
}

// Read reads from Body, so a StreamResponse can be handed to line readers
// that take ownership of closing it.
func (r *StreamResponse) Read(p []byte) (int, error) {
	return r.Body.Read(p)
}
