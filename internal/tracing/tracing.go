// Package tracing bootstraps an OTLP/gRPC trace exporter for the
// analysis core, grounded on the teacher's cmd/gateway/main.go#initTracer.
// Tracing is strictly optional: with no endpoint configured, Init
// returns nil values and installs no provider, and the rest of the system
// runs unmonitored rather than refusing to start.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Config selects where spans are exported.
type Config struct {
	Endpoint       string
	ServiceName    string
	ServiceVersion string
}

// Init connects to cfg.Endpoint over gRPC and installs a batching
// TracerProvider as the global provider. If cfg.Endpoint is empty it
// returns (nil, nil, nil): callers fall back to otel.Tracer's
// process-wide no-op provider.
func Init(ctx context.Context, cfg Config) (trace.Tracer, func(context.Context) error, error) {
	if cfg.Endpoint == "" {
		return nil, nil, nil
	}

	conn, err := grpc.NewClient(cfg.Endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, err
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, nil, err
	}

	name := cfg.ServiceName
	if name == "" {
		name = "harvest"
	}
	version := cfg.ServiceVersion
	if version == "" {
		version = "0.1.0"
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(name),
		semconv.ServiceVersion(version),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Tracer("harvest/session"), tp.Shutdown, nil
}
