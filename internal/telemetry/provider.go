package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ServiceName identifies the simulation in exported telemetry.
const ServiceName = "friendmap"

// Environment variables that switch export on.
const (
	EnvEndpoint = "FRIENDMAP_OTEL_ENDPOINT"
	EnvEnabled  = "FRIENDMAP_OTEL_ENABLED"
)

// endpoint returns the OTLP/HTTP base URL, or "" when export is off.
func endpoint() string {
	if strings.EqualFold(os.Getenv(EnvEnabled), "false") {
		return ""
	}
	return os.Getenv(EnvEndpoint)
}

// Setup exports replica spans and counters over OTLP/HTTP to the URL in
// FRIENDMAP_OTEL_ENDPOINT, registering global tracer and meter providers.
// With no endpoint, or FRIENDMAP_OTEL_ENABLED=false, nothing is registered
// and the global providers stay no-ops.
//
// The returned function flushes both providers; callers defer it.
func Setup(ctx context.Context, serviceName string) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	url := endpoint()
	if url == "" {
		return noop, nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return noop, fmt.Errorf("telemetry resource: %w", err)
	}

	spans, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(url))
	if err != nil {
		return noop, fmt.Errorf("trace exporter: %w", err)
	}
	counters, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpointURL(url))
	if err != nil {
		return noop, errors.Join(fmt.Errorf("metric exporter: %w", err), spans.Shutdown(ctx))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spans),
		sdktrace.WithResource(res),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(counters)),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return func(ctx context.Context) error {
		// final counter export runs before the tracer closes
		return errors.Join(mp.Shutdown(ctx), tp.Shutdown(ctx))
	}, nil
}
