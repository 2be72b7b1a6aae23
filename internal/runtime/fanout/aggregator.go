// Package fanout scatters queries over a correlation bus and gathers their
// replies into a stream that closes once every query has been answered.
package fanout

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/drblury/relayflow/internal/runtime/correlation"
	errspkg "github.com/drblury/relayflow/internal/runtime/errors"
	idspkg "github.com/drblury/relayflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/relayflow/internal/runtime/logging"
)

// Publisher sends one query and routes its reply to onComplete.
// *correlation.Bus satisfies it.
type Publisher interface {
	PublishWithID(ctx context.Context, id, query string, onComplete correlation.Callback) error
	Forget(id string) bool
}

// Aggregator creates sessions that share one publisher and post-processor.
type Aggregator struct {
	bus    Publisher
	post   PostProcessor
	logger loggingpkg.ServiceLogger
}

// NewAggregator returns an Aggregator. A nil post-processor passes replies
// through unchanged.
func NewAggregator(bus Publisher, post PostProcessor, logger loggingpkg.ServiceLogger) (*Aggregator, error) {
	if bus == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	if logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if post == nil {
		post = PassThrough
	}
	return &Aggregator{bus: bus, post: post, logger: logger}, nil
}

// NewSession starts an empty aggregation.
func (a *Aggregator) NewSession() *Session {
	return &Session{
		agg:     a,
		pending: make(map[string]string),
	}
}

// Session is one scatter-gather round. Queue every query first, then Run.
type Session struct {
	agg *Aggregator

	mu      sync.Mutex
	pending map[string]string
	order   []string
	out     chan string
	started bool
	closed  bool
}

// Queue records query under a fresh correlation id and returns the id.
// Queries queued after Run are ignored and yield "".
func (s *Session) Queue(query string) string {
	id := idspkg.NewCorrelationID()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		s.agg.logger.Error("Query queued after run", errspkg.ErrSessionStarted, loggingpkg.LogFields{
			"query": query,
		})
		return ""
	}
	s.pending[id] = query
	s.order = append(s.order, id)
	return id
}

// Run publishes every queued query and returns the result stream. The stream
// has one buffered slot per query and is closed when the last pending query is
// answered. It is closed immediately when nothing was queued.
//
// A query whose publish fails stays pending, so the stream never closes and
// the caller's deadline decides the outcome. Run only returns an error when no
// query could be published at all; the session is abandoned in that case.
func (s *Session) Run(ctx context.Context) (<-chan string, error) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil, errspkg.ErrSessionStarted
	}
	s.started = true
	s.out = make(chan string, len(s.pending))
	if len(s.pending) == 0 {
		s.closed = true
		close(s.out)
		s.mu.Unlock()
		return s.out, nil
	}
	batch := make([]string, len(s.order))
	copy(batch, s.order)
	queries := make(map[string]string, len(s.pending))
	for id, query := range s.pending {
		queries[id] = query
	}
	out := s.out
	s.mu.Unlock()

	var errs []error
	for _, id := range batch {
		if err := s.agg.bus.PublishWithID(ctx, id, queries[id], s.onReply); err != nil {
			s.agg.logger.Error("Failed to publish query", err, loggingpkg.LogFields{
				"correlation_id": id,
			})
			errs = append(errs, err)
		}
	}

	if len(errs) == len(batch) {
		s.Abandon()
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func (s *Session) onReply(ctx context.Context, id string, payload []byte) {
	result := s.agg.post.Process(payload)
	if result.Fault != nil {
		s.agg.logger.Error("Reply rejected by post-processor", result.Fault, loggingpkg.LogFields{
			"correlation_id": id,
		})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if _, ok := s.pending[id]; !ok {
		return
	}
	delete(s.pending, id)
	s.out <- result.Payload
	if len(s.pending) == 0 {
		s.closed = true
		close(s.out)
	}
}

// Abandon tears the session down. The stream is closed if it is still open,
// later replies are discarded and the callbacks of outstanding queries are
// released from the publisher. Call Outstanding first to inspect them.
func (s *Session) Abandon() {
	s.mu.Lock()
	if !s.closed && s.out != nil {
		close(s.out)
	}
	s.closed = true
	outstanding := make([]string, 0, len(s.pending))
	for id := range s.pending {
		outstanding = append(outstanding, id)
	}
	s.pending = make(map[string]string)
	started := s.started
	s.mu.Unlock()

	if !started {
		return
	}
	for _, id := range outstanding {
		s.agg.bus.Forget(id)
	}
}

// Outstanding returns the ids still awaiting a reply, sorted.
func (s *Session) Outstanding() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
