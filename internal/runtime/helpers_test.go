package runtime

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/relayflow/internal/runtime/config"
	loggingpkg "github.com/drblury/relayflow/internal/runtime/logging"
	transportpkg "github.com/drblury/relayflow/internal/runtime/transport"
	newtransport "github.com/drblury/relayflow/transport"
)

func newTestLogger() loggingpkg.ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

func testConfig() *configpkg.Config {
	return &configpkg.Config{
		PubSubSystem:         "channel",
		RequestTopic:         "search",
		ReplyTopic:           "gateway.response",
		WorkerRole:           "worker",
		WorkerCredit:         1,
		ConnectRetryInterval: time.Millisecond,
	}
}

// newTestService builds a Service over a private in-memory pubsub.
func newTestService(t *testing.T, mutate ...func(*configpkg.Config, *ServiceDependencies)) *Service {
	t.Helper()

	ps := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, watermill.NopLogger{})
	conf := testConfig()
	deps := ServiceDependencies{
		TransportFactory:     transportpkg.Shared(ps, ps, newtransport.ChannelCapabilities),
		MetricsRegistry:      prometheus.NewRegistry(),
		DisableSignalHandler: true,
	}
	for _, m := range mutate {
		m(conf, &deps)
	}

	svc, err := NewService(conf, newTestLogger(), context.Background(), deps)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

type loggedEntry struct {
	level  string
	msg    string
	fields loggingpkg.LogFields
	err    error
}

type recordingLogger struct {
	mu      *sync.Mutex
	entries *[]loggedEntry
	base    loggingpkg.LogFields
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{mu: &sync.Mutex{}, entries: &[]loggedEntry{}}
}

func (r *recordingLogger) With(fields loggingpkg.LogFields) loggingpkg.ServiceLogger {
	return &recordingLogger{mu: r.mu, entries: r.entries, base: r.merge(fields)}
}

func (r *recordingLogger) Debug(msg string, fields loggingpkg.LogFields) {
	r.record("debug", msg, nil, fields)
}

func (r *recordingLogger) Info(msg string, fields loggingpkg.LogFields) {
	r.record("info", msg, nil, fields)
}

func (r *recordingLogger) Error(msg string, err error, fields loggingpkg.LogFields) {
	r.record("error", msg, err, fields)
}

func (r *recordingLogger) Trace(msg string, fields loggingpkg.LogFields) {
	r.record("trace", msg, nil, fields)
}

func (r *recordingLogger) merge(fields loggingpkg.LogFields) loggingpkg.LogFields {
	out := loggingpkg.LogFields{}
	for k, v := range r.base {
		out[k] = v
	}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func (r *recordingLogger) record(level, msg string, err error, fields loggingpkg.LogFields) {
	r.mu.Lock()
	defer r.mu.Unlock()
	*r.entries = append(*r.entries, loggedEntry{level: level, msg: msg, fields: r.merge(fields), err: err})
}

func (r *recordingLogger) find(msg string) (loggedEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range *r.entries {
		if e.msg == msg {
			return e, true
		}
	}
	return loggedEntry{}, false
}

func (r *recordingLogger) count(msg string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range *r.entries {
		if e.msg == msg {
			n++
		}
	}
	return n
}
