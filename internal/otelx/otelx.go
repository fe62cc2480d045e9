// Package otelx wires the process-global OpenTelemetry tracer provider
// and propagators for the delivery server.
package otelx

import (
	"context"
	"crypto/tls"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc/credentials"
)

type Options struct {
	Enabled  bool
	Endpoint string
	Insecure bool

	// Sample is the head sampling ratio applied to root spans.
	// Children follow their parent's decision.
	Sample float64

	Service   string
	Component string
	Version   string
}

// Init installs the global tracer provider and W3C propagators. The
// returned shutdown flushes queued spans and is never nil, so callers
// can defer it before checking the error.
func Init(ctx context.Context, o Options) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	if !o.Enabled {
		// An SDK provider with no exporter still mints span IDs, so
		// trace headers and log correlation keep working when nothing
		// ships spans off the box.
		otel.SetTracerProvider(sdktrace.NewTracerProvider())
		return noop, nil
	}

	exp, err := newExporter(ctx, o.Endpoint, o.Insecure)
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(
			sdktrace.TraceIDRatioBased(o.Sample),
		)),
		sdktrace.WithBatcher(exp,
			sdktrace.WithMaxQueueSize(2048),
			sdktrace.WithBatchTimeout(5*time.Second),
		),
		sdktrace.WithResource(newResource(ctx, o)),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// newExporter dials the OTLP collector over gRPC. The collector runs
// next to the server and fans out to the site's tracing backend, which
// keeps the dial short and local.
func newExporter(ctx context.Context, endpoint string, insecure bool) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(endpoint),
	}
	if insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	} else {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(
			credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12}),
		))
	}

	// otlptracegrpc.New blocks with no deadline of its own.
	dialCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return otlptracegrpc.New(dialCtx, opts...)
}

func newResource(ctx context.Context, o Options) *resource.Resource {
	// A detector conflict still yields a usable partial resource.
	res, _ := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithOS(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(o.Service+"."+o.Component),
			semconv.ServiceVersionKey.String(o.Version),
		),
	)
	return res
}
