// Package httpclient provides the HTTP adapter used to talk to a local Sona
// server: JSON requests, streamed multipart uploads, streaming responses, and
// status classification into typed errors.
//
// The ndjson subpackage reads newline-delimited JSON bodies returned by
// DoStream.
//
// # Basic Usage
//
//	a, err := httpclient.New(httpclient.Config{
//	    BaseURL: "http://127.0.0.1:41233",
//	    Timeout: -1, // no client deadline, contexts govern
//	})
//
//	resp, err := httpclient.Get[Status](a, ctx, "/health")
package httpclient
