// Package transcription defines the request and result types of a
// transcription call and the provider interface backends implement.
//
// A Result is exactly one of three variants, chosen only by the request's
// Format and Stream flag:
//
//	switch r := result.(type) {
//	case *transcription.Transcript: // json, verbose_json, unrecognized formats
//	case transcription.Text:        // text, srt, vtt
//	case *transcription.Stream:     // Stream: true
//	}
package transcription
