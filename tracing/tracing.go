// Package tracing installs the global OpenTelemetry tracer provider the
// settlement spans are recorded through.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// Shutdown flushes and stops span export.
type Shutdown func(context.Context) error

// Setup exports spans over OTLP/gRPC to endpoint and makes that the global
// provider. An empty endpoint leaves the no-op global provider in place.
func Setup(ctx context.Context, endpoint, service string, logger *zap.Logger) (Shutdown, error) {
	if endpoint == "" {
		logger.Info("tracing disabled, no OTLP endpoint")
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpointURL(endpoint))
	if err != nil {
		return nil, fmt.Errorf("tracing: otlp exporter: %w", err)
	}
	tp := NewProvider(exp, service)
	otel.SetTracerProvider(tp)
	logger.Info("tracing enabled", zap.String("endpoint", endpoint), zap.String("service", service))
	return tp.Shutdown, nil
}

// NewProvider batches spans to exp, tagged with the service name.
func NewProvider(exp sdktrace.SpanExporter, service string) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", service))),
	)
}
