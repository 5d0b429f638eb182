package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/sonago/logger"
)

// InitMeter installs a global meter provider exporting over OTLP/HTTP.
// The returned provider must be shut down on exit.
func InitMeter(ctx context.Context, cfg *Config) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if cfg.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logger.Get("observability").Info("meter initialized", logger.Fields(
		"endpoint", cfg.Endpoint,
		"interval", cfg.Interval.String(),
	))
	return mp, nil
}

// Meter returns the package meter from the global provider.
func Meter() metric.Meter {
	return otel.Meter(tracerName)
}

// Metrics holds the instruments recorded by the client and supervisor.
type Metrics struct {
	requestTotal      metric.Int64Counter
	requestDuration   metric.Float64Histogram
	requestActive     metric.Int64UpDownCounter
	operationTotal    metric.Int64Counter
	operationDuration metric.Float64Histogram
	launchDuration    metric.Float64Histogram
	streamEvents      metric.Int64Counter
	errorTotal        metric.Int64Counter
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)

	if m.requestTotal, err = meter.Int64Counter("sona.request.total",
		metric.WithDescription("Requests sent to the sona server")); err != nil {
		return nil, fmt.Errorf("creating sona.request.total counter: %w", err)
	}
	if m.requestDuration, err = meter.Float64Histogram("sona.request.duration",
		metric.WithDescription("Duration of requests to the sona server"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("creating sona.request.duration histogram: %w", err)
	}
	if m.requestActive, err = meter.Int64UpDownCounter("sona.request.active",
		metric.WithDescription("Requests currently in flight")); err != nil {
		return nil, fmt.Errorf("creating sona.request.active gauge: %w", err)
	}
	if m.operationTotal, err = meter.Int64Counter("sona.operation.total",
		metric.WithDescription("Provider operations")); err != nil {
		return nil, fmt.Errorf("creating sona.operation.total counter: %w", err)
	}
	if m.operationDuration, err = meter.Float64Histogram("sona.operation.duration",
		metric.WithDescription("Duration of provider operations"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("creating sona.operation.duration histogram: %w", err)
	}
	if m.launchDuration, err = meter.Float64Histogram("sona.launch.duration",
		metric.WithDescription("Time from spawn until the server is ready"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("creating sona.launch.duration histogram: %w", err)
	}
	if m.streamEvents, err = meter.Int64Counter("sona.stream.events",
		metric.WithDescription("Streaming transcription events received")); err != nil {
		return nil, fmt.Errorf("creating sona.stream.events counter: %w", err)
	}
	if m.errorTotal, err = meter.Int64Counter("sona.error.total",
		metric.WithDescription("Errors by code and component")); err != nil {
		return nil, fmt.Errorf("creating sona.error.total counter: %w", err)
	}

	return &m, nil
}

// RecordRequestStart increments the in-flight request count.
func (m *Metrics) RecordRequestStart(ctx context.Context) {
	m.requestActive.Add(ctx, 1)
}

// RecordRequestEnd decrements in-flight requests and records the completed one.
func (m *Metrics) RecordRequestEnd(ctx context.Context, service, method, status string, duration time.Duration) {
	m.requestActive.Add(ctx, -1)
	m.requestTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("method", method),
		attribute.String("status", status),
	))
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("method", method),
	))
}

// RecordOperation records a provider operation.
func (m *Metrics) RecordOperation(ctx context.Context, service, operation, status string, duration time.Duration) {
	m.operationTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("operation", operation),
		attribute.String("status", status),
	))
	m.operationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("operation", operation),
	))
}

// RecordLaunch records how long a server took to become ready.
func (m *Metrics) RecordLaunch(ctx context.Context, status string, duration time.Duration) {
	m.launchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("status", status),
	))
}

// RecordStreamEvent counts one streaming event by type.
func (m *Metrics) RecordStreamEvent(ctx context.Context, eventType string) {
	m.streamEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("type", eventType)))
}

// RecordError records an error by code and component.
func (m *Metrics) RecordError(ctx context.Context, code, component string) {
	m.errorTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("code", code),
		attribute.String("component", component),
	))
}
