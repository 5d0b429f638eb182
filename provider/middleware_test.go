package provider_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/kbukum/sonago/errors"
	"github.com/kbukum/sonago/logger"
	"github.com/kbukum/sonago/observability"
	"github.com/kbukum/sonago/provider"
)

// tagging records the order in which wrapped providers see a call.
type tagging struct {
	provider.RequestResponse[string, string]
	tag   string
	trail *[]string
}

func (t *tagging) Execute(ctx context.Context, in string) (string, error) {
	*t.trail = append(*t.trail, t.tag)
	return t.RequestResponse.Execute(ctx, in)
}

func tag(name string, trail *[]string) provider.Middleware[string, string] {
	return func(inner provider.RequestResponse[string, string]) provider.RequestResponse[string, string] {
		return &tagging{RequestResponse: inner, tag: name, trail: trail}
	}
}

func TestChain(t *testing.T) {
	tests := []struct {
		name string
		tags []string
	}{
		{name: "empty"},
		{name: "single", tags: []string{"log"}},
		{name: "outermost first", tags: []string{"log", "metrics", "trace"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var trail []string
			mws := make([]provider.Middleware[string, string], 0, len(tc.tags))
			for _, name := range tc.tags {
				mws = append(mws, tag(name, &trail))
			}

			p := provider.Chain(mws...)(&echoProvider{name: "sona"})
			out, err := p.Execute(context.Background(), "a.wav")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out != "echo:a.wav" {
				t.Fatalf("expected echo:a.wav, got %q", out)
			}
			if strings.Join(trail, ",") != strings.Join(tc.tags, ",") {
				t.Fatalf("expected order %v, got %v", tc.tags, trail)
			}
			if p.Name() != "sona" {
				t.Fatalf("expected wrapped name sona, got %q", p.Name())
			}
		})
	}
}

func TestWithLogging(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&logger.Config{Level: "debug", Format: "json"}, "test", &buf)

	ok := provider.WithLogging[string, string](log)(&echoProvider{name: "sona"})
	if _, err := ok.Execute(context.Background(), "a.wav"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok.IsAvailable(context.Background()) {
		t.Fatal("expected IsAvailable to delegate")
	}

	failing := provider.WithLogging[string, string](log)(&failingProvider{})
	if _, err := failing.Execute(context.Background(), "a.wav"); err == nil {
		t.Fatal("expected error from failing provider")
	}
	if failing.IsAvailable(context.Background()) {
		t.Fatal("expected IsAvailable to delegate")
	}

	out := buf.String()
	for _, want := range []string{`"provider execute ok"`, `"provider execute failed"`, `"provider":"sona"`, "intentional failure"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected log output to contain %s, got %s", want, out)
		}
	}
}

type codedFailure struct{ echoProvider }

func (codedFailure) Execute(context.Context, string) (string, error) {
	return "", errors.SessionClosed()
}

func TestWithMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	metrics, err := observability.NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}

	ctx := context.Background()
	ok := provider.WithMetrics[string, string](metrics)(&echoProvider{name: "sona"})
	if _, err := ok.Execute(ctx, "a.wav"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := provider.WithMetrics[string, string](metrics)(&codedFailure{echoProvider{name: "sona"}})
	if _, err := bad.Execute(ctx, "a.wav"); !errors.IsCode(err, errors.ErrCodeSessionClosed) {
		t.Fatalf("expected the error to pass through, got %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var ops int64
	var code string
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, isSum := m.Data.(metricdata.Sum[int64])
			if !isSum {
				continue
			}
			switch m.Name {
			case "sona.operation.total":
				for _, dp := range sum.DataPoints {
					ops += dp.Value
				}
			case "sona.error.total":
				if v, found := sum.DataPoints[0].Attributes.Value(attribute.Key("code")); found {
					code = v.AsString()
				}
			}
		}
	}
	if ops != 2 {
		t.Errorf("expected 2 operations, got %d", ops)
	}
	if code != string(errors.ErrCodeSessionClosed) {
		t.Errorf("expected error recorded with code SESSION_CLOSED, got %q", code)
	}
}

func TestWithTracing(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})

	ctx := context.Background()
	ok := provider.WithTracing[string, string]("sonago")(&echoProvider{name: "sona"})
	if _, err := ok.Execute(ctx, "a.wav"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := provider.WithTracing[string, string]("sonago")(&failingProvider{})
	if _, err := bad.Execute(ctx, "a.wav"); err == nil {
		t.Fatal("expected error from failing provider")
	}

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name != "sonago.sona" || spans[0].Status.Code == codes.Error {
		t.Errorf("unexpected first span %s (%v)", spans[0].Name, spans[0].Status)
	}
	if spans[1].Name != "sonago.fail" || spans[1].Status.Code != codes.Error {
		t.Errorf("expected failed span sonago.fail, got %s (%v)", spans[1].Name, spans[1].Status)
	}
}
