// Package telemetry wires OpenTelemetry tracing for the event core.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Options selects the OTLP/HTTP collector.
type Options struct {
	// Endpoint is the collector URL, e.g. http://localhost:4318. Empty
	// disables tracing.
	Endpoint string
	// Disabled turns tracing off even when Endpoint is set.
	Disabled bool
	// SampleRatio in (0, 1) samples a fraction of traces; anything else
	// samples every trace.
	SampleRatio float64
}

// Setup installs a global tracer provider exporting to opts.Endpoint.
//
// Tracing is opt-in: with an empty endpoint or Disabled set, Setup returns a
// no-op shutdown function and leaves the global provider untouched.
//
// The returned shutdown function flushes pending spans and should be deferred
// by the caller.
func Setup(ctx context.Context, serviceName, version string, opts Options) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }
	if opts.Disabled || opts.Endpoint == "" {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(opts.Endpoint))
	if err != nil {
		return noop, fmt.Errorf("create otlp exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return noop, fmt.Errorf("build otel resource: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if opts.SampleRatio > 0 && opts.SampleRatio < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.SampleRatio))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}
