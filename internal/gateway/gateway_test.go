package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/drblury/relayflow/internal/runtime/correlation"
	"github.com/drblury/relayflow/internal/runtime/fanout"
	"github.com/drblury/relayflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/relayflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/relayflow/internal/runtime/metadata"
)

// stubWorkers answers every request with "Response: <query>" through the bus,
// except the queries listed in silent.
type stubWorkers struct {
	bus *correlation.Bus

	mu     sync.Mutex
	silent map[string]bool
	fail   bool
	seen   []message.Metadata
}

func (w *stubWorkers) Publish(_ string, msgs ...*message.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail {
		return errors.New("broker unavailable")
	}
	for _, msg := range msgs {
		w.seen = append(w.seen, maps.Clone(msg.Metadata))
		query := string(msg.Payload)
		if w.silent[query] {
			continue
		}
		reply := message.NewMessage(msg.UUID+"-reply", []byte("Response: "+query))
		reply.Metadata.Set(metadatapkg.CorrelationIDKey, msg.Metadata.Get(metadatapkg.CorrelationIDKey))
		go func() { _ = w.bus.HandleReply(reply) }()
	}
	return nil
}

func (w *stubWorkers) Close() error { return nil }

func (w *stubWorkers) requests() []message.Metadata {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]message.Metadata(nil), w.seen...)
}

func testLogger() loggingpkg.ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type fixture struct {
	gateway  *Gateway
	bus      *correlation.Bus
	workers  *stubWorkers
	registry *prometheus.Registry
}

func newFixture(t *testing.T, post fanout.PostProcessor, timeout time.Duration, silent ...string) *fixture {
	t.Helper()

	workers := &stubWorkers{silent: map[string]bool{}}
	for _, q := range silent {
		workers.silent[q] = true
	}
	bus, err := correlation.NewBus(workers, correlation.BusConfig{RequestTopic: "search", ReplyTopic: "gateway.response"}, testLogger())
	require.NoError(t, err)
	workers.bus = bus
	bus.MarkReady()

	agg, err := fanout.NewAggregator(bus, post, testLogger())
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	gw, err := New(agg, bus, Config{Timeout: timeout, Mode: gin.TestMode}, testLogger(), registry)
	require.NoError(t, err)

	return &fixture{gateway: gw, bus: bus, workers: workers, registry: registry}
}

func (f *fixture) get(t *testing.T, target string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.gateway.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) outcomes(outcome string) float64 {
	return testutil.ToFloat64(f.gateway.requests.WithLabelValues(outcome))
}

func sortedLines(body string) []string {
	lines := strings.Split(strings.TrimSuffix(body, "\n"), "\n")
	sort.Strings(lines)
	return lines
}

func TestNewValidation(t *testing.T) {
	f := newFixture(t, nil, time.Second)

	_, err := New(nil, f.bus, Config{}, testLogger(), prometheus.NewRegistry())
	assert.Error(t, err)
	_, err = New(f.gateway.agg, nil, Config{}, testLogger(), prometheus.NewRegistry())
	assert.Error(t, err)
	_, err = New(f.gateway.agg, f.bus, Config{}, nil, prometheus.NewRegistry())
	assert.Error(t, err)
}

func TestNewDefaultsAndSharedCollector(t *testing.T) {
	f := newFixture(t, nil, 0)
	assert.Equal(t, DefaultTimeout, f.gateway.cfg.Timeout)

	again, err := New(f.gateway.agg, f.bus, Config{Mode: gin.TestMode}, testLogger(), f.registry)
	require.NoError(t, err)
	assert.Same(t, f.gateway.requests, again.requests)
}

func TestSplitQuery(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"5|7", []string{"5", "7"}},
		{" 5 | | 7 |", []string{"5", "7"}},
		{"", []string{}},
		{"|||", []string{}},
		{"single", []string{"single"}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitQuery(tt.raw))
		})
	}
}

func TestSearchReturnsEveryReply(t *testing.T) {
	f := newFixture(t, nil, time.Second)

	rec := f.get(t, "/search?query=5|%207%20||9")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasSuffix(rec.Body.String(), "\n"))
	assert.Equal(t, []string{"Response: 5", "Response: 7", "Response: 9"}, sortedLines(rec.Body.String()))
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Zero(t, f.bus.Pending())
	assert.Equal(t, float64(1), f.outcomes(OutcomeOK))
}

func TestSearchWithoutQueries(t *testing.T) {
	f := newFixture(t, nil, time.Second)

	rec := f.get(t, "/search?query=%20|%20")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Empty(t, f.workers.requests())
}

func TestSearchJSONFormat(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(previous)
	})

	f := newFixture(t, nil, time.Second)
	rec := f.get(t, "/search?query=1&format=json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body searchResponse
	require.NoError(t, jsoncodec.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"Response: 1"}, body.Results)
	assert.Len(t, body.TraceID, 32)
	assert.Equal(t, body.TraceID, rec.Header().Get("traceId"))

	empty := f.get(t, "/search?format=json")
	assert.JSONEq(t, `{"results":[],"trace_id":"`+empty.Header().Get("traceId")+`"}`, empty.Body.String())
}

func TestSearchTimesOutWhenAReplyIsMissing(t *testing.T) {
	f := newFixture(t, nil, 50*time.Millisecond, "9")

	start := time.Now()
	rec := f.get(t, "/search?query=5|9")

	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, http.StatusRequestTimeout, rec.Code)
	assert.Equal(t, "timeout", rec.Body.String())
	assert.Zero(t, f.bus.Pending(), "abandoned queries release their callbacks")
	assert.Equal(t, float64(1), f.outcomes(OutcomeTimeout))
}

func TestSearchTimesOutOnInjectedFault(t *testing.T) {
	f := newFixture(t, fanout.NewFaultInjector([]string{"7"}), 50*time.Millisecond)

	rec := f.get(t, "/search?query=5|7")

	assert.Equal(t, http.StatusRequestTimeout, rec.Code)
	assert.Equal(t, "timeout", rec.Body.String())
}

func TestSearchUnavailableWhenNothingIsPublished(t *testing.T) {
	f := newFixture(t, nil, time.Second)
	f.workers.fail = true

	rec := f.get(t, "/search?query=5|7")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Zero(t, f.bus.Pending())
	assert.Equal(t, float64(1), f.outcomes(OutcomeUnavailable))
}

func TestSearchCancelledByCaller(t *testing.T) {
	f := newFixture(t, nil, time.Second, "5")

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/search?query=5", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	time.AfterFunc(20*time.Millisecond, cancel)

	f.gateway.Handler().ServeHTTP(rec, req)

	assert.Equal(t, statusClientClosedRequest, rec.Code)
	assert.Equal(t, float64(1), f.outcomes(OutcomeCancelled))
}

func TestSearchForwardsDirectives(t *testing.T) {
	f := newFixture(t, nil, time.Second)

	rec := f.get(t, "/search?query=5|7", "load-worker", "0", "X-Other", "1")
	require.Equal(t, http.StatusOK, rec.Code)

	requests := f.workers.requests()
	require.Len(t, requests, 2)
	for _, md := range requests {
		assert.Equal(t, "0", md.Get("load-worker"))
		assert.Empty(t, md.Get("Load-Worker"))
		assert.Empty(t, md.Get("X-Other"))
		assert.Equal(t, "gateway.response", md.Get(metadatapkg.ReplyToKey))
		assert.NotEmpty(t, md.Get(metadatapkg.CorrelationIDKey))
	}
}

func TestSearchHonoursGatewayDelays(t *testing.T) {
	f := newFixture(t, nil, time.Second)

	start := time.Now()
	rec := f.get(t, "/search?query=1", "load-gateway-before", "40", "load-gateway-after", "40")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestSearchContinuesInboundTrace(t *testing.T) {
	f := newFixture(t, nil, time.Second)

	rec := f.get(t, "/search?query=1", "traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")

	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", rec.Header().Get("traceId"))
	for _, md := range f.workers.requests() {
		assert.Contains(t, md.Get(metadatapkg.TraceParentKey), "4bf92f3577b34da6a3ce929d0e0e4736")
	}
}

func TestHealthz(t *testing.T) {
	workers := &stubWorkers{}
	bus, err := correlation.NewBus(workers, correlation.BusConfig{RequestTopic: "search", ReplyTopic: "gateway.response"}, testLogger())
	require.NoError(t, err)
	agg, err := fanout.NewAggregator(bus, nil, testLogger())
	require.NoError(t, err)
	gw, err := New(agg, bus, Config{Mode: gin.TestMode}, testLogger(), prometheus.NewRegistry())
	require.NoError(t, err)

	probe := func() int {
		rec := httptest.NewRecorder()
		gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		return rec.Code
	}

	assert.Equal(t, http.StatusServiceUnavailable, probe())
	bus.MarkReady()
	assert.Equal(t, http.StatusOK, probe())
}
