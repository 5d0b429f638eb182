package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Connection/Availability errors (retryable)
const (
	// ErrCodeServiceUnavailable indicates the server is temporarily unavailable.
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	// ErrCodeConnectionFailed indicates a failed connection to the server.
	ErrCodeConnectionFailed ErrorCode = "CONNECTION_FAILED"
	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeStartupTimeout indicates the server did not become reachable in time.
	ErrCodeStartupTimeout ErrorCode = "STARTUP_TIMEOUT"
)

// Process lifecycle errors
const (
	// ErrCodeLaunchFailed indicates the server binary could not be found, failed
	// to execute, or exited before it was ready.
	ErrCodeLaunchFailed ErrorCode = "LAUNCH_FAILED"
	// ErrCodeSessionClosed indicates an operation on a closed session or client.
	ErrCodeSessionClosed ErrorCode = "SESSION_CLOSED"
	// ErrCodeInvalidState indicates a lifecycle call made in the wrong state.
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"
)

// Protocol errors
const (
	// ErrCodeProtocol indicates the server answered with a non-success status.
	ErrCodeProtocol ErrorCode = "PROTOCOL_ERROR"
	// ErrCodeStreamDecode indicates a streamed line could not be decoded.
	ErrCodeStreamDecode ErrorCode = "STREAM_DECODE"
	// ErrCodeDecodeFailed indicates a success response whose body could not be decoded.
	ErrCodeDecodeFailed ErrorCode = "DECODE_FAILED"
	// ErrCodeTranscriptionFailed indicates the server reported a failure mid-stream.
	ErrCodeTranscriptionFailed ErrorCode = "TRANSCRIPTION_FAILED"
)

// Validation errors
const (
	// ErrCodeInvalidInput indicates the input is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeMissingField indicates a required field is missing.
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"
	// ErrCodeAudioNotFound indicates the audio file does not exist.
	ErrCodeAudioNotFound ErrorCode = "AUDIO_NOT_FOUND"
)

// Internal errors
const (
	// ErrCodeInternal indicates an internal error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeServiceUnavailable: true,
	ErrCodeConnectionFailed:   true,
	ErrCodeTimeout:            true,
	ErrCodeStartupTimeout:     true,
	ErrCodeInternal:           false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
