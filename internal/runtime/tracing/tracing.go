// Package tracing carries OpenTelemetry trace context across the asynchronous
// hop between a publisher and its consumers. Headers are W3C traceparent,
// tracestate and baggage, stored as plain strings in message metadata.
package tracing

import (
	"context"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName identifies spans created by relayflow.
const TracerName = "github.com/drblury/relayflow"

const traceParentHeader = "traceparent"

// ErrMalformedTraceParent is returned by Extract when a traceparent header is
// present but cannot be decoded. The returned context is still usable.
var ErrMalformedTraceParent = errors.New("relayflow: malformed traceparent header")

var propagator propagation.TextMapPropagator = propagation.NewCompositeTextMapPropagator(
	propagation.TraceContext{},
	propagation.Baggage{},
)

// Propagator returns the composite TraceContext and Baggage propagator.
func Propagator() propagation.TextMapPropagator {
	return propagator
}

// Inject writes the trace context and baggage carried by ctx into headers.
func Inject(ctx context.Context, headers map[string]string) {
	if headers == nil {
		return
	}
	propagator.Inject(ctx, propagation.MapCarrier(headers))
}

// Extract returns ctx enriched with the remote span context and baggage found
// in headers. Missing headers are not an error.
func Extract(ctx context.Context, headers map[string]string) (context.Context, error) {
	carrier := propagation.MapCarrier(headers)
	extracted := propagator.Extract(ctx, carrier)
	if headers[traceParentHeader] != "" {
		remote := propagation.TraceContext{}.Extract(context.Background(), carrier)
		if !trace.SpanContextFromContext(remote).IsValid() {
			return extracted, ErrMalformedTraceParent
		}
	}
	return extracted, nil
}

// StartPublish starts a producer span named Pub:<destination>. Inject the
// returned context into the outgoing message before sending it.
func StartPublish(ctx context.Context, destination string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, semconv.MessagingDestinationName(destination))
	return tracer().Start(ctx, "Pub:"+destination,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attrs...),
	)
}

// StartConsume extracts the publisher's context from headers and starts a
// consumer span Sub:<source> as its child. Any span already active in ctx is
// ignored; a message without trace headers starts a new root. The returned
// error is the one reported by Extract.
func StartConsume(ctx context.Context, headers map[string]string, source string, attrs ...attribute.KeyValue) (context.Context, trace.Span, error) {
	ctx = trace.ContextWithSpanContext(ctx, trace.SpanContext{})
	ctx, err := Extract(ctx, headers)

	opts := []trace.SpanStartOption{
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(append(attrs, semconv.MessagingDestinationName(source))...),
	}
	if !trace.SpanContextFromContext(ctx).IsValid() {
		opts = append(opts, trace.WithNewRoot())
	}

	ctx, span := tracer().Start(ctx, "Sub:"+source, opts...)
	return ctx, span, err
}

// StartHTTP starts a server span Http:<route> continuing the trace carried by
// the inbound request headers.
func StartHTTP(ctx context.Context, headers http.Header, method, route string) (context.Context, trace.Span) {
	ctx = propagator.Extract(ctx, propagation.HeaderCarrier(headers))
	return tracer().Start(ctx, "Http:"+route,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			semconv.HTTPRequestMethodKey.String(method),
			semconv.HTTPRoute(route),
		),
	)
}

// CorrelationID returns the span attribute recording a correlation id.
func CorrelationID(id string) attribute.KeyValue {
	return semconv.MessagingMessageConversationID(id)
}

// TraceID returns the hex trace id of the span in ctx, or "" when none.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

func tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
