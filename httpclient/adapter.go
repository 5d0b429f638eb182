package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/kbukum/sonago/resilience"
)

// Adapter is a configurable HTTP adapter with JSON, multipart and streaming
// support. It tracks open streams so Close can abort them.
type Adapter struct {
	httpClient   *http.Client
	streamClient *http.Client
	config       Config

	mu      sync.Mutex
	streams map[*StreamResponse]struct{}
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithTransport replaces the HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(a *Adapter) {
		a.httpClient.Transport = rt
		a.streamClient.Transport = rt
	}
}

// New creates a new HTTP adapter with the given configuration.
func New(cfg Config, opts ...Option) (*Adapter, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()

	a := &Adapter{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.clientTimeout(),
		},
		// Streaming requests are bounded by their context only.
		streamClient: &http.Client{Transport: transport},
		config:       cfg,
		streams:      make(map[*StreamResponse]struct{}),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

// Do executes an HTTP request and returns the complete response.
// Non-2xx responses are returned together with a classified *Error.
func (a *Adapter) Do(ctx context.Context, req Request) (*Response, error) {
	if a.config.Retry != nil {
		return resilience.Retry(ctx, *a.config.Retry, func() (*Response, error) {
			return a.executeRequest(ctx, req)
		})
	}
	return a.executeRequest(ctx, req)
}

// DoStream executes an HTTP request and returns a streaming response.
// The caller must close the returned StreamResponse when done.
// Retry is never applied to streaming requests.
func (a *Adapter) DoStream(ctx context.Context, req Request) (*StreamResponse, error) {
	httpReq, err := a.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := a.streamClient.Do(httpReq)
	if err != nil {
		return nil, transportError(ctx, err)
	}

	// Check for error status before starting to stream
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, StatusError(resp.StatusCode, body)
	}

	sr := &StreamResponse{
		StatusCode: resp.StatusCode,
		Headers:    flattenHeaders(resp.Header),
		Body:       resp.Body,
	}
	sr.release = func() { a.untrack(sr) }
	a.track(sr)
	return sr, nil
}

// Unwrap returns the underlying *http.Client for advanced use cases.
func (a *Adapter) Unwrap() *http.Client {
	return a.httpClient
}

// Name returns the adapter name.
func (a *Adapter) Name() string {
	return a.config.Name
}

// BaseURL returns the configured base URL.
func (a *Adapter) BaseURL() string {
	return a.config.BaseURL
}

// Close closes every open stream and idle connection.
func (a *Adapter) Close(_ context.Context) error {
	a.mu.Lock()
	open := make([]*StreamResponse, 0, len(a.streams))
	for s := range a.streams {
		open = append(open, s)
	}
	a.mu.Unlock()

	for _, s := range open {
		_ = s.Close()
	}
	a.httpClient.CloseIdleConnections()
	return nil
}

func (a *Adapter) track(s *StreamResponse) {
	a.mu.Lock()
	a.streams[s] = struct{}{}
	a.mu.Unlock()
}

func (a *Adapter) untrack(s *StreamResponse) {
	a.mu.Lock()
	delete(a.streams, s)
	a.mu.Unlock()
}

// executeRequest builds and sends the HTTP request.
func (a *Adapter) executeRequest(ctx context.Context, req Request) (*Response, error) {
	httpReq, err := a.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(ctx, fmt.Errorf("read response body: %w", err))
	}

	result := &Response{
		StatusCode: resp.StatusCode,
		Headers:    flattenHeaders(resp.Header),
		Body:       body,
	}

	if statusErr := StatusError(resp.StatusCode, body); statusErr != nil {
		return result, statusErr
	}

	return result, nil
}

// buildRequest constructs an *http.Request from the adapter config and request.
func (a *Adapter) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	url := req.Path
	if a.config.BaseURL != "" && !strings.HasPrefix(req.Path, "http://") && !strings.HasPrefix(req.Path, "https://") {
		url = strings.TrimRight(a.config.BaseURL, "/") + "/" + strings.TrimLeft(req.Path, "/")
	}

	body, contentType, err := encodeBody(req.Body)
	if err != nil {
		return nil, NewRequestError("encode body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, body)
	if err != nil {
		if c, ok := body.(io.Closer); ok {
			_ = c.Close()
		}
		return nil, NewRequestError("create request: %w", err)
	}

	if len(req.Query) > 0 {
		q := httpReq.URL.Query()
		for k, v := range req.Query {
			q.Set(k, v)
		}
		httpReq.URL.RawQuery = q.Encode()
	}

	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}
	// Request-specific headers override defaults.
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	if body != nil && httpReq.Header.Get("Content-Type") == "" && contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	return httpReq, nil
}

// transportError classifies a failed round trip.
func transportError(ctx context.Context, err error) *Error {
	if ctx.Err() != nil || isTimeout(err) {
		return NewTimeoutError(err)
	}
	return NewConnectionError(err)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// encodeBody converts a body value into an io.Reader and content type.
func encodeBody(body any) (io.Reader, string, error) {
	if body == nil {
		return nil, "", nil
	}
	switch v := body.(type) {
	case *MultipartBody:
		r, ct := v.encode()
		return r, ct, nil
	case io.Reader:
		return v, "", nil
	case []byte:
		return bytes.NewReader(v), "", nil
	case string:
		return strings.NewReader(v), "text/plain", nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

// flattenHeaders converts multi-value headers to single-value.
func flattenHeaders(h http.Header) map[string]string {
	result := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			result[k] = v[0]
		}
	}
	return result
}
