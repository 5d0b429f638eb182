package httpclient

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind tells where a request failed.
type Kind int

const (
	// KindRequest means the request could not be built. Nothing was sent.
	KindRequest Kind = iota
	// KindConnection means the server could not be reached or the
	// connection broke mid-response.
	KindConnection
	// KindTimeout means the request deadline or the caller's context ended.
	KindTimeout
	// KindStatus means the server answered with a non-2xx status.
	KindStatus
	// KindDecode means a 2xx body could not be decoded.
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindConnection:
		return "connection"
	case KindTimeout:
		return "timeout"
	case KindStatus:
		return "status"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Error is returned by every Adapter call.
type Error struct {
	Kind Kind
	// StatusCode is set for KindStatus and KindDecode.
	StatusCode int
	// Body is the response body, when one was read.
	Body []byte
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return "httpclient: " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether repeating the request may succeed: transport
// failures, a busy server (429) and 502-504.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindConnection, KindTimeout:
		return true
	case KindStatus:
		switch e.StatusCode {
		case http.StatusTooManyRequests, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
	}
	return false
}

// NewTimeoutError wraps err as KindTimeout.
func NewTimeoutError(err error) *Error {
	return &Error{Kind: KindTimeout, Err: err}
}

// NewConnectionError wraps err as KindConnection.
func NewConnectionError(err error) *Error {
	return &Error{Kind: KindConnection, Err: err}
}

// NewRequestError reports a request that could not be built.
func NewRequestError(format string, args ...any) *Error {
	return &Error{Kind: KindRequest, Err: fmt.Errorf(format, args...)}
}

// StatusError returns a KindStatus error for a non-2xx status, or nil.
func StatusError(status int, body []byte) *Error {
	if status >= 200 && status < 300 {
		return nil
	}
	return &Error{
		Kind:       KindStatus,
		StatusCode: status,
		Body:       body,
		Err:        errors.New(http.StatusText(status)),
	}
}

func kindOf(err error) (Kind, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return 0, false
	}
	return e.Kind, true
}

// IsTimeout reports a KindTimeout error.
func IsTimeout(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindTimeout
}

// IsConnection reports a KindConnection error.
func IsConnection(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindConnection
}

// StatusOf returns the HTTP status of a KindStatus error.
func StatusOf(err error) (int, bool) {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindStatus {
		return e.StatusCode, true
	}
	return 0, false
}

// IsRetryable reports whether err is an *Error worth retrying.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable()
}
