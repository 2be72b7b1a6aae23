package tracing

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newRecorder(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(previous)
	})
	return exporter
}

func TestInjectExtractRoundTrip(t *testing.T) {
	newRecorder(t)

	member, err := baggage.NewMember("tenant", "acme")
	require.NoError(t, err)
	bag, err := baggage.New(member)
	require.NoError(t, err)

	ctx := baggage.ContextWithBaggage(context.Background(), bag)
	ctx, span := StartPublish(ctx, "search")
	defer span.End()

	headers := map[string]string{}
	Inject(ctx, headers)

	assert.Contains(t, headers, "traceparent")
	assert.Contains(t, headers, "baggage")

	extracted, err := Extract(context.Background(), headers)
	require.NoError(t, err)

	remote := trace.SpanContextFromContext(extracted)
	assert.True(t, remote.IsRemote())
	assert.Equal(t, span.SpanContext().TraceID(), remote.TraceID())
	assert.Equal(t, span.SpanContext().SpanID(), remote.SpanID())
	assert.True(t, remote.IsSampled())
	assert.Equal(t, "acme", baggage.FromContext(extracted).Member("tenant").Value())
}

func TestInjectNilHeaders(t *testing.T) {
	assert.NotPanics(t, func() { Inject(context.Background(), nil) })
}

func TestExtract(t *testing.T) {
	t.Run("missing headers", func(t *testing.T) {
		ctx, err := Extract(context.Background(), map[string]string{})
		require.NoError(t, err)
		assert.False(t, trace.SpanContextFromContext(ctx).IsValid())
	})

	t.Run("malformed traceparent", func(t *testing.T) {
		ctx, err := Extract(context.Background(), map[string]string{"traceparent": "not-a-trace"})
		assert.ErrorIs(t, err, ErrMalformedTraceParent)
		require.NotNil(t, ctx)
		assert.False(t, trace.SpanContextFromContext(ctx).IsValid())
	})
}

func TestStartConsumeParentsOnExtractedContext(t *testing.T) {
	exporter := newRecorder(t)

	pubCtx, pubSpan := StartPublish(context.Background(), "search", CorrelationID("01J"))
	headers := map[string]string{}
	Inject(pubCtx, headers)
	pubSpan.End()

	ambientCtx, ambient := otel.Tracer("test").Start(context.Background(), "ambient")
	defer ambient.End()

	_, consumeSpan, err := StartConsume(ambientCtx, headers, "search")
	require.NoError(t, err)
	consumeSpan.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	pub := spans[0]
	sub := spans[1]
	assert.Equal(t, "Pub:search", pub.Name)
	assert.Equal(t, trace.SpanKindProducer, pub.SpanKind)
	assert.Equal(t, "Sub:search", sub.Name)
	assert.Equal(t, trace.SpanKindConsumer, sub.SpanKind)
	assert.Equal(t, pub.SpanContext.TraceID(), sub.SpanContext.TraceID())
	assert.Equal(t, pub.SpanContext.SpanID(), sub.Parent.SpanID())
	assert.NotEqual(t, ambient.SpanContext().TraceID(), sub.SpanContext.TraceID())

	var destination string
	for _, attr := range pub.Attributes {
		if attr.Key == "messaging.destination.name" {
			destination = attr.Value.AsString()
		}
	}
	assert.Equal(t, "search", destination)
}

func TestStartConsumeWithoutHeadersStartsRoot(t *testing.T) {
	exporter := newRecorder(t)

	ambientCtx, ambient := otel.Tracer("test").Start(context.Background(), "ambient")
	_, span, err := StartConsume(ambientCtx, nil, "gateway.response")
	require.NoError(t, err)
	span.End()
	ambient.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "Sub:gateway.response", spans[0].Name)
	assert.False(t, spans[0].Parent.IsValid())
}

func TestStartHTTPContinuesInboundTrace(t *testing.T) {
	exporter := newRecorder(t)

	pubCtx, upstream := StartPublish(context.Background(), "client")
	headers := http.Header{}
	Propagator().Inject(pubCtx, propagation.HeaderCarrier(headers))
	upstream.End()

	ctx, span := StartHTTP(context.Background(), headers, http.MethodGet, "/search")
	span.End()

	assert.Equal(t, upstream.SpanContext().TraceID().String(), TraceID(ctx))
	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "Http:/search", spans[1].Name)
	assert.Equal(t, trace.SpanKindServer, spans[1].SpanKind)
	assert.Equal(t, upstream.SpanContext().SpanID(), spans[1].Parent.SpanID())
}

func TestTraceID(t *testing.T) {
	newRecorder(t)

	assert.Empty(t, TraceID(context.Background()))

	ctx, span := StartPublish(context.Background(), "search")
	defer span.End()
	assert.Equal(t, span.SpanContext().TraceID().String(), TraceID(ctx))
	assert.Len(t, TraceID(ctx), 32)
}
