package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/relayflow/internal/runtime"
	"github.com/drblury/relayflow/internal/runtime/config"
	"github.com/drblury/relayflow/internal/runtime/correlation"
	"github.com/drblury/relayflow/internal/runtime/fanout"
	transportpkg "github.com/drblury/relayflow/internal/runtime/transport"
	"github.com/drblury/relayflow/internal/runtime/worker"
	newtransport "github.com/drblury/relayflow/transport"
)

// TestRoundTripThroughRouter runs a gateway and two worker roles on one
// in-process broker. Both roles answer every query but only the first answer
// per query reaches the caller.
func TestRoundTripThroughRouter(t *testing.T) {
	ps := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, watermill.NopLogger{})
	conf := &config.Config{PubSubSystem: "channel", RequestTopic: "search", ReplyTopic: "gateway.response"}

	svc, err := runtime.NewService(conf, testLogger(), context.Background(), runtime.ServiceDependencies{
		TransportFactory:     transportpkg.Shared(ps, ps, newtransport.ChannelCapabilities),
		DisableSignalHandler: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	bus, err := correlation.NewBus(svc.Publisher(), correlation.BusConfig{RequestTopic: "search", ReplyTopic: "gateway.response"}, testLogger())
	require.NoError(t, err)
	require.NoError(t, bus.Attach(svc))

	for _, role := range []string{"worker", "indexer"} {
		role := role
		handler := worker.QueryHandlerFunc(func(_ context.Context, id int32) (string, error) {
			return fmt.Sprintf("%s: %d", role, id), nil
		})
		d, err := worker.NewDispatcher(svc.Publisher(), handler, worker.DispatcherConfig{Role: role}, testLogger(), nil)
		require.NoError(t, err)
		_, err = d.Register(svc, "search")
		require.NoError(t, err)
	}

	agg, err := fanout.NewAggregator(bus, nil, testLogger())
	require.NoError(t, err)
	gw, err := New(agg, bus, Config{Timeout: 2 * time.Second, Mode: gin.TestMode}, testLogger(), prometheus.NewRegistry())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.Start(ctx) }()
	<-svc.Running()
	bus.MarkReady()

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search?query=3|4", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	lines := sortedLines(rec.Body.String())
	require.Len(t, lines, 2)
	var ids []string
	for _, line := range lines {
		role, id, ok := strings.Cut(line, ": ")
		require.True(t, ok, line)
		assert.Contains(t, []string{"worker", "indexer"}, role)
		ids = append(ids, id)
	}
	assert.ElementsMatch(t, []string{"3", "4"}, ids)
}
