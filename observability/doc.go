// Package observability wires OpenTelemetry tracing and metrics for the
// client and the server supervisor.
//
// Export is opt-in:
//
//	shutdown, err := observability.Setup(ctx, observability.Config{Enabled: true})
//	defer shutdown(ctx)
//
// Without Setup, spans and instruments go to the global no-op providers.
package observability
