package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
)

// TypedResponse is a 2xx response whose JSON body was decoded into Data.
type TypedResponse[T any] struct {
	StatusCode int
	Headers    map[string]string
	Data       T
}

// RequestOption adjusts a single request.
type RequestOption func(*Request)

// WithHeader sets a request header.
func WithHeader(key, value string) RequestOption {
	return func(r *Request) {
		if r.Headers == nil {
			r.Headers = make(map[string]string)
		}
		r.Headers[key] = value
	}
}

// WithQueryParam sets a query parameter.
func WithQueryParam(key, value string) RequestOption {
	return func(r *Request) {
		if r.Query == nil {
			r.Query = make(map[string]string)
		}
		r.Query[key] = value
	}
}

// Get sends a GET and decodes the JSON answer.
func Get[T any](a *Adapter, ctx context.Context, path string, opts ...RequestOption) (*TypedResponse[T], error) {
	return doJSON[T](a, ctx, http.MethodGet, path, nil, opts...)
}

// Post sends body as JSON and decodes the JSON answer.
func Post[T any](a *Adapter, ctx context.Context, path string, body any, opts ...RequestOption) (*TypedResponse[T], error) {
	return doJSON[T](a, ctx, http.MethodPost, path, body, opts...)
}

// Delete sends a DELETE and decodes the JSON answer.
func Delete[T any](a *Adapter, ctx context.Context, path string, opts ...RequestOption) (*TypedResponse[T], error) {
	return doJSON[T](a, ctx, http.MethodDelete, path, nil, opts...)
}

// doJSON returns the *Error from Do untouched on failure. An empty 2xx body
// leaves Data at its zero value; an undecodable one is a KindDecode error.
func doJSON[T any](a *Adapter, ctx context.Context, method, path string, body any, opts ...RequestOption) (*TypedResponse[T], error) {
	req := Request{Method: method, Path: path, Body: body}
	for _, opt := range opts {
		opt(&req)
	}

	resp, err := a.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	out := &TypedResponse[T]{StatusCode: resp.StatusCode, Headers: resp.Headers}
	if len(resp.Body) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(resp.Body, &out.Data); err != nil {
		return nil, &Error{Kind: KindDecode, StatusCode: resp.StatusCode, Body: resp.Body, Err: err}
	}
	return out, nil
}
