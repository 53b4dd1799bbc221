// Package observability sets up OpenTelemetry tracing and the Prometheus
// metrics exposed on /metrics.
package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"kalium.io/kalium/internal/config"
)

// Version is reported as service.version.
var Version = "dev"

// TracerName is the instrumentation scope of the service spans.
const TracerName = "kalium.io/kalium"

// Tracing owns the tracer provider and its shutdown.
type Tracing struct {
	Provider trace.TracerProvider
	shutdown []func(context.Context) error
}

// SetupTracing installs the global propagator and, when enabled, an OTLP/HTTP
// exporting tracer provider. Disabled tracing installs a no-op provider.
func SetupTracing(ctx context.Context, cfg config.TracingConfig) (*Tracing, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.Enabled {
		tp := noop.NewTracerProvider()
		otel.SetTracerProvider(tp)
		return &Tracing{Provider: tp}, nil
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(Version),
	)

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithURLPath(cfg.URLPath),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithMaxQueueSize(2048),
			sdktrace.WithBatchTimeout(5*time.Second),
		),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(tp)

	return &Tracing{Provider: tp, shutdown: []func(context.Context) error{tp.Shutdown}}, nil
}

// Tracer returns the service tracer.
func (t *Tracing) Tracer() trace.Tracer {
	return t.Provider.Tracer(TracerName)
}

// Shutdown flushes pending spans.
func (t *Tracing) Shutdown(ctx context.Context) error {
	var errs error
	for i := len(t.shutdown) - 1; i >= 0; i-- {
		errs = errors.Join(errs, t.shutdown[i](ctx))
	}
	t.shutdown = nil
	return errs
}
