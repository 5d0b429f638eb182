// Package provider defines generic provider interfaces and middleware.
//
// Two interaction patterns are supported:
//   - RequestResponse[I, O]: one input, one output
//   - Stream[I, O]: one input, an Iterator of outputs
//
// Providers that hold resources implement Closeable. Cross-cutting behavior
// is added with Middleware and composed with Chain:
//
//	wrapped := provider.Chain(
//	    provider.WithLogging[In, Out](log),
//	    provider.WithMetrics[In, Out](metrics),
//	    provider.WithTracing[In, Out]("sonago"),
//	)(raw)
//
// Registry maps names to factories so callers can select a backend by
// configuration.
package provider
