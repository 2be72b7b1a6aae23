// Package telemetry installs the process-wide OpenTelemetry tracer provider.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	loggingpkg "github.com/drblury/relayflow/internal/runtime/logging"
	"github.com/drblury/relayflow/internal/runtime/tracing"
)

// ShutdownFunc flushes pending spans and stops the tracer provider.
type ShutdownFunc func(context.Context) error

func noop(context.Context) error { return nil }

// Setup registers the W3C trace context and baggage propagator and an SDK
// tracer provider, so traces start even when nothing is exported. When
// endpoint is set spans are batched to it over OTLP/HTTP.
func Setup(ctx context.Context, serviceName, endpoint string, logger loggingpkg.ServiceLogger) (ShutdownFunc, error) {
	otel.SetTextMapPropagator(tracing.Propagator())

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return noop, fmt.Errorf("describe resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	}
	if endpoint != "" {
		exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
		if err != nil {
			return noop, fmt.Errorf("create otlp exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)

	if logger != nil {
		if endpoint == "" {
			logger.Debug("Trace export disabled", loggingpkg.LogFields{"service": serviceName})
		} else {
			logger.Info("Trace export enabled", loggingpkg.LogFields{
				"service":  serviceName,
				"endpoint": endpoint,
			})
		}
	}
	return tp.Shutdown, nil
}
