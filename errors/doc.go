// Package errors provides the structured error type shared by the Sona
// supervisor, protocol client, and session. Every failure carries a
// machine-readable code, an HTTP status hint, and retryable detection.
package errors
