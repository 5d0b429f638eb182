package errors

import (
	"fmt"
	"net/http"
	"time"
)

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// HTTPStatus is the recommended HTTP status code for this error.
	HTTPStatus int `json:"-"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetails merges the provided details into the error and returns the receiver.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Retryable:  IsRetryableCode(code),
	}
}

// --- Common Error Constructors ---

// ServiceUnavailable creates a new AppError for a service that is temporarily unavailable.
func ServiceUnavailable(service string) *AppError {
	return &AppError{
		Code: ErrCodeServiceUnavailable, Message: fmt.Sprintf("The %s is temporarily unavailable.", service),
		HTTPStatus: http.StatusServiceUnavailable, Retryable: true,
		Details: map[string]any{"service": service},
	}
}

// ConnectionFailed creates a new AppError for a failed connection to a service.
func ConnectionFailed(service string) *AppError {
	return &AppError{
		Code: ErrCodeConnectionFailed, Message: fmt.Sprintf("Unable to connect to %s.", service),
		HTTPStatus: http.StatusServiceUnavailable, Retryable: true,
		Details: map[string]any{"service": service},
	}
}

// Timeout creates a new AppError for a request that timed out.
func Timeout(operation string) *AppError {
	return &AppError{
		Code: ErrCodeTimeout, Message: fmt.Sprintf("%s took too long.", operation),
		HTTPStatus: http.StatusGatewayTimeout, Retryable: true,
		Details: map[string]any{"operation": operation},
	}
}

// InvalidInput creates a new AppError for invalid input.
func InvalidInput(field, reason string) *AppError {
	details := make(map[string]any)
	if field != "" {
		details["field"] = field
	}
	return &AppError{
		Code: ErrCodeInvalidInput, Message: fmt.Sprintf("Invalid input: %s", reason),
		HTTPStatus: http.StatusBadRequest, Retryable: false, Details: details,
	}
}

// Validation creates a new AppError for validation errors.
func Validation(message string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidInput, Message: message,
		HTTPStatus: http.StatusBadRequest, Retryable: false,
	}
}

// MissingField creates a new AppError for a missing required field.
func MissingField(field string) *AppError {
	return &AppError{
		Code: ErrCodeMissingField, Message: fmt.Sprintf("Missing required field: %s", field),
		HTTPStatus: http.StatusBadRequest, Retryable: false,
		Details: map[string]any{"field": field},
	}
}

// Internal creates a new AppError for an internal server error.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "An unexpected error occurred.",
		HTTPStatus: http.StatusInternalServerError, Retryable: false, Cause: cause,
	}
}

// Wrap converts any error into an AppError. AppErrors anywhere in the chain are
// returned as-is; other errors become INTERNAL_ERROR with the error as cause.
func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := AsAppError(err); ok {
		return appErr
	}
	return Internal(err)
}

// --- Sona lifecycle errors ---

// LaunchFailed creates a new AppError for a server process that could not be
// started or exited before it became ready.
func LaunchFailed(binary, reason string) *AppError {
	details := map[string]any{}
	if binary != "" {
		details["binary"] = binary
	}
	return &AppError{
		Code: ErrCodeLaunchFailed, Message: fmt.Sprintf("Failed to launch server: %s", reason),
		HTTPStatus: http.StatusInternalServerError, Retryable: false, Details: details,
	}
}

// StartupTimeout creates a new AppError for a server that did not reach the
// given stage within the allotted time.
func StartupTimeout(stage string, after time.Duration) *AppError {
	return &AppError{
		Code: ErrCodeStartupTimeout, Message: fmt.Sprintf("Server did not become %s within %s.", stage, after),
		HTTPStatus: http.StatusGatewayTimeout, Retryable: true,
		Details: map[string]any{"stage": stage, "timeout": after.String()},
	}
}

// SessionClosed creates a new AppError for use of a closed session or client.
func SessionClosed() *AppError {
	return &AppError{
		Code: ErrCodeSessionClosed, Message: "The session is closed.",
		HTTPStatus: http.StatusGone, Retryable: false,
	}
}

// InvalidState creates a new AppError for an operation that is not allowed in
// the current lifecycle state.
func InvalidState(operation, state string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidState, Message: fmt.Sprintf("Cannot %s in state %s.", operation, state),
		HTTPStatus: http.StatusConflict, Retryable: false,
		Details: map[string]any{"operation": operation, "state": state},
	}
}

// --- Sona protocol errors ---

// AudioNotFound creates a new AppError for an audio file missing at call time.
func AudioNotFound(path string) *AppError {
	return &AppError{
		Code: ErrCodeAudioNotFound, Message: fmt.Sprintf("Audio file not found: %s", path),
		HTTPStatus: http.StatusNotFound, Retryable: false,
		Details: map[string]any{"path": path},
	}
}

// Protocol creates a new AppError for a non-success server response. The
// status and raw body are kept in Details.
func Protocol(status int, body []byte) *AppError {
	return &AppError{
		Code: ErrCodeProtocol, Message: fmt.Sprintf("Server responded with status %d.", status),
		HTTPStatus: http.StatusBadGateway, Retryable: false,
		Details: map[string]any{"status": status, "body": string(body)},
	}
}

// StreamDecode creates a new AppError for a streamed line that is not valid JSON.
func StreamDecode(line []byte, cause error) *AppError {
	return &AppError{
		Code: ErrCodeStreamDecode, Message: "Malformed line in transcription stream.",
		HTTPStatus: http.StatusBadGateway, Retryable: false,
		Details: map[string]any{"line": string(line)}, Cause: cause,
	}
}

// DecodeFailed creates a new AppError for a success response whose body does
// not match the expected shape.
func DecodeFailed(status int, body []byte, cause error) *AppError {
	return &AppError{
		Code: ErrCodeDecodeFailed, Message: "Server response could not be decoded.",
		HTTPStatus: http.StatusBadGateway, Retryable: false,
		Details: map[string]any{"status": status, "body": string(body)}, Cause: cause,
	}
}

// TranscriptionFailed creates a new AppError for an error event sent by the
// server while streaming.
func TranscriptionFailed(message string) *AppError {
	return &AppError{
		Code: ErrCodeTranscriptionFailed, Message: fmt.Sprintf("Transcription failed: %s", message),
		HTTPStatus: http.StatusBadGateway, Retryable: false,
		Details: map[string]any{"server_message": message},
	}
}
