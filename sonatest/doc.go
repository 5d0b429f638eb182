// Package sonatest provides an in-process fake of the Sona server API for
// tests, and RunServer, a minimal server binary entry point used by
// supervisor tests through the helper-process pattern.
//
// The fake keeps one loaded model, counts hits per path, records the last
// transcription form and answers every response format the real server
// supports. Segments carry a speaker only when diarize_model is sent.
package sonatest
