// Package telemetry provides OpenTelemetry tracing for scan and
// verification passes.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Telemetry wraps a tracer and its shutdown hook.
type Telemetry struct {
	tracer   trace.Tracer
	shutdown func(context.Context) error
}

// Setup configures an OTLP trace exporter. An empty endpoint yields a
// noop tracer so callers never branch on whether tracing is on.
func Setup(ctx context.Context, endpoint, serviceVersion string) (*Telemetry, error) {
	const serviceName = "certscope"
	if endpoint == "" {
		return &Telemetry{
			tracer:   noop.NewTracerProvider().Tracer(serviceName),
			shutdown: func(context.Context) error { return nil },
		}, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return &Telemetry{tracer: tp.Tracer(serviceName), shutdown: tp.Shutdown}, nil
}

// Shutdown flushes pending spans.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return t.shutdown(ctx)
}

// StartScan opens a span covering one scan pass of a job.
func (t *Telemetry) StartScan(ctx context.Context, job string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "scan",
		trace.WithAttributes(attribute.String("certscope.job", job)))
}

// StartVerify opens a span covering one chain verification pass.
func (t *Telemetry) StartVerify(ctx context.Context) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "verify")
}
