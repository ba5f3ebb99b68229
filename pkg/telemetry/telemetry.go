// Package telemetry configures OpenTelemetry tracing for loadout.
//
// Tracing is off unless an exporter is configured. With the standard
// OTEL_EXPORTER_OTLP_ENDPOINT or OTEL_EXPORTER_OTLP_TRACES_ENDPOINT
// environment variables set, spans are exported over OTLP/gRPC.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(context.Context) error

// Opt configures [Setup].
type Opt func(*options)

type options struct {
	exporter sdktrace.SpanExporter
	sampler  sdktrace.Sampler
	lookup   func(string) (string, bool)
}

// WithExporter sets the span exporter, skipping environment detection.
func WithExporter(exp sdktrace.SpanExporter) Opt {
	return func(o *options) {
		o.exporter = exp
	}
}

// WithSampler sets the sampler. Spans are always sampled by default.
func WithSampler(s sdktrace.Sampler) Opt {
	return func(o *options) {
		o.sampler = s
	}
}

// WithLookupEnv sets the function used to read environment variables.
func WithLookupEnv(lookup func(string) (string, bool)) Opt {
	return func(o *options) {
		o.lookup = lookup
	}
}

// Enabled reports whether an OTLP endpoint is configured in the environment.
func Enabled(lookup func(string) (string, bool)) bool {
	for _, name := range []string{"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"} {
		if v, ok := lookup(name); ok && v != "" {
			return true
		}
	}

	return false
}

// Setup installs a global tracer provider. The returned [ShutdownFunc] must
// be called before exit; it is a no-op when tracing is disabled.
func Setup(ctx context.Context, opts ...Opt) (ShutdownFunc, error) {
	o := &options{
		sampler: sdktrace.AlwaysSample(),
		lookup:  os.LookupEnv,
	}
	for _, opt := range opts {
		opt(o)
	}

	exp := o.exporter
	if exp == nil {
		if !Enabled(o.lookup) {
			return func(context.Context) error { return nil }, nil
		}

		var err error

		exp, err = otlptracegrpc.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("create otlp exporter: %w", err)
		}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(o.sampler),
	)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		return errors.Join(tp.ForceFlush(ctx), tp.Shutdown(ctx))
	}, nil
}
