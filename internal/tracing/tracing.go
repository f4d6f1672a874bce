// Package tracing holds the module tracer, span error helpers and the
// exporter pipeline installed by the CLI. Spans go to the global otel
// provider, which is a no-op until Init installs one.
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/Abdullah1738/itheum-agent"
	DefaultServiceName  = "itheum-agent"

	ExporterNone = "none"
	ExporterOTLP = "otlp"

	shutdownTimeout = 5 * time.Second
)

type Config struct {
	// Exporter is "none" or "otlp". Empty follows OTEL_TRACES_EXPORTER, then
	// enables otlp when OTEL_EXPORTER_OTLP_ENDPOINT is set.
	Exporter string `yaml:"exporter"`
	// Endpoint is the OTLP/HTTP collector (host:port). Empty uses the
	// OTEL_EXPORTER_OTLP_* environment, then localhost:4318.
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// ResolvedExporter applies the environment fallbacks to Exporter.
func (c Config) ResolvedExporter() string {
	if v := strings.ToLower(strings.TrimSpace(c.Exporter)); v != "" {
		return v
	}
	if v := strings.ToLower(strings.TrimSpace(os.Getenv("OTEL_TRACES_EXPORTER"))); v != "" {
		return v
	}
	if strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")) != "" ||
		strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT")) != "" {
		return ExporterOTLP
	}
	return ExporterNone
}

func (c Config) Validate() error {
	switch e := c.ResolvedExporter(); e {
	case ExporterNone, ExporterOTLP:
		return nil
	default:
		return fmt.Errorf("unknown trace exporter %q", e)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type providerCloser struct {
	tp *sdktrace.TracerProvider
}

// Close flushes buffered spans and stops the provider.
func (p providerCloser) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return p.tp.Shutdown(ctx)
}

// Init installs the global tracer provider described by cfg. The returned
// closer flushes and shuts it down; with no exporter it does nothing.
func Init(ctx context.Context, cfg Config) (io.Closer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ResolvedExporter() == ExporterNone {
		return nopCloser{}, nil
	}

	var opts []otlptracehttp.Option
	if cfg.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otlp trace exporter: %w", err)
	}
	return Install(cfg.ServiceName, sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(time.Second))), nil
}

// Install sets a tracer provider built from opts as the global provider.
func Install(serviceName string, opts ...sdktrace.TracerProviderOption) io.Closer {
	if serviceName == "" {
		serviceName = DefaultServiceName
	}
	opts = append([]sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
	}, opts...)
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return providerCloser{tp: tp}
}

func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// RecordError attaches err to span and returns it.
func RecordError(span trace.Span, err error) error {
	if err == nil {
		return nil
	}
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err)
	return err
}

func OK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
