package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestRecordError(t *testing.T) {
	_, span := Tracer().Start(context.Background(), "test")
	defer span.End()

	boom := errors.New("boom")
	if err := RecordError(span, boom); !errors.Is(err, boom) {
		t.Fatalf("RecordError: got %v", err)
	}
	if err := RecordError(span, nil); err != nil {
		t.Fatalf("RecordError(nil): got %v", err)
	}
	OK(span)
}

func TestInstall_ExportsSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	exp := tracetest.NewInMemoryExporter()
	closer := Install("agent-test", sdktrace.WithSyncer(exp))

	_, span := Tracer().Start(context.Background(), "settle")
	_ = RecordError(span, errors.New("boom"))
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans=%d, want 1", len(spans))
	}
	if spans[0].Name != "settle" || spans[0].Status.Code != codes.Error {
		t.Fatalf("span=%s status=%v", spans[0].Name, spans[0].Status)
	}
	var service string
	for _, kv := range spans[0].Resource.Attributes() {
		if kv.Key == "service.name" {
			service = kv.Value.AsString()
		}
	}
	if service != "agent-test" {
		t.Fatalf("service.name=%q", service)
	}
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestResolvedExporter(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "")

	if got := (Config{}).ResolvedExporter(); got != ExporterNone {
		t.Fatalf("default exporter=%q", got)
	}
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4318")
	if got := (Config{}).ResolvedExporter(); got != ExporterOTLP {
		t.Fatalf("env endpoint exporter=%q", got)
	}
	if got := (Config{Exporter: "None"}).ResolvedExporter(); got != ExporterNone {
		t.Fatalf("explicit exporter=%q", got)
	}
	if err := (Config{Exporter: "zipkin"}).Validate(); err == nil {
		t.Fatalf("expected error for unknown exporter")
	}
}

func TestInit_NoneIsNoop(t *testing.T) {
	prev := otel.GetTracerProvider()
	closer, err := Init(context.Background(), Config{Exporter: ExporterNone})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if otel.GetTracerProvider() != prev {
		t.Fatalf("provider replaced for exporter none")
	}
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
