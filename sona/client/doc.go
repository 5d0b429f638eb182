// Package client talks to a running Sona server over HTTP.
//
// A Client is bound to one base URL and performs no I/O until a method is
// called. Every call carries an X-Request-ID header, is traced and measured
// through the observability package, and maps failures onto the errors
// package taxonomy:
//
//   - non-2xx answers become PROTOCOL_ERROR with the status and body
//   - transport failures become CONNECTION_FAILED or TIMEOUT
//   - calls after Close fail with SESSION_CLOSED
//
// Transcribe returns a transcription.Result whose variant depends only on
// the request's Format and Stream fields.
package client
