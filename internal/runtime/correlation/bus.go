// Package correlation turns fire-and-forget publishes into request/reply
// exchanges. Each outgoing request carries a correlation id and the address
// replies must be sent to; a reply is routed back to the one-shot callback
// registered under its id.
package correlation

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel/codes"

	"github.com/drblury/relayflow/internal/runtime"
	"github.com/drblury/relayflow/internal/runtime/directives"
	errspkg "github.com/drblury/relayflow/internal/runtime/errors"
	idspkg "github.com/drblury/relayflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/relayflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/relayflow/internal/runtime/metadata"
	"github.com/drblury/relayflow/internal/runtime/tracing"
)

// BusConfig names the topics a Bus publishes to and listens on.
type BusConfig struct {
	// RequestTopic receives every outgoing query.
	RequestTopic string
	// ReplyTopic is written into reply_to and is where HandleReply is attached.
	ReplyTopic string
}

// Bus publishes queries and routes replies to their callbacks.
type Bus struct {
	publisher message.Publisher
	cfg       BusConfig
	logger    loggingpkg.ServiceLogger
	registry  *Registry

	ready  atomic.Bool
	closed atomic.Bool
}

// NewBus validates its collaborators and returns a Bus that rejects publishes
// until MarkReady is called.
func NewBus(publisher message.Publisher, cfg BusConfig, logger loggingpkg.ServiceLogger) (*Bus, error) {
	if publisher == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	if cfg.RequestTopic == "" || cfg.ReplyTopic == "" {
		return nil, fmt.Errorf("correlation bus: %w", errspkg.ErrTopicRequired)
	}
	if logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	return &Bus{
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.With(loggingpkg.LogFields{"component": "correlation_bus"}),
		registry:  NewRegistry(),
	}, nil
}

// ReplyHandlerName is the router handler name replies are consumed under.
const ReplyHandlerName = "correlation-replies"

// Attach consumes the reply topic on svc and routes every reply through
// HandleReply.
func (b *Bus) Attach(svc *runtime.Service) error {
	return runtime.RegisterMessageHandler(svc, runtime.MessageHandlerRegistration{
		Name:         ReplyHandlerName,
		ConsumeQueue: b.cfg.ReplyTopic,
		Handler:      b.HandleReply,
	})
}

// Config returns the topics the bus was built with.
func (b *Bus) Config() BusConfig {
	return b.cfg
}

// MarkReady allows publishes. Call it once the transport has connected and
// HandleReply is subscribed to the reply topic.
func (b *Bus) MarkReady() {
	b.ready.Store(true)
	b.logger.Info("Correlation bus ready", loggingpkg.LogFields{
		"request_topic": b.cfg.RequestTopic,
		"reply_topic":   b.cfg.ReplyTopic,
	})
}

// Ready reports whether publishes are currently accepted.
func (b *Bus) Ready() bool {
	return b.ready.Load() && !b.closed.Load()
}

// Close rejects new publishes. Callbacks already registered still fire if
// their reply arrives.
func (b *Bus) Close() error {
	b.closed.Store(true)
	return nil
}

// Pending returns the number of requests awaiting a reply.
func (b *Bus) Pending() int {
	return b.registry.Len()
}

// Forget drops the callback for id without invoking it. A reply that arrives
// later is treated as unroutable.
func (b *Bus) Forget(id string) bool {
	return b.registry.Remove(id)
}

// Publish sends query under a fresh correlation id and returns that id.
func (b *Bus) Publish(ctx context.Context, query string, onComplete Callback) (string, error) {
	id := idspkg.NewCorrelationID()
	if err := b.PublishWithID(ctx, id, query, onComplete); err != nil {
		return "", err
	}
	return id, nil
}

// PublishWithID sends query under a caller-chosen correlation id. The callback
// is registered before the send; a failed send unregisters it.
func (b *Bus) PublishWithID(ctx context.Context, id, query string, onComplete Callback) error {
	if !b.Ready() {
		return errspkg.ErrBusNotReady
	}
	if onComplete == nil {
		return errspkg.ErrHandlerRequired
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := b.registry.Register(id, onComplete); err != nil {
		return err
	}

	topic := b.cfg.RequestTopic
	ctx, span := tracing.StartPublish(ctx, topic, tracing.CorrelationID(id))
	defer span.End()

	msg := b.newRequest(ctx, id, query)
	if err := b.publisher.Publish(topic, msg); err != nil {
		b.registry.Remove(id)
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		return &errspkg.PublishError{Topic: topic, CorrelationID: id, Err: err}
	}

	b.logger.Debug("Request published", loggingpkg.LogFields{
		"correlation_id": id,
		"topic":          topic,
		"trace_id":       tracing.TraceID(ctx),
	})
	return nil
}

func (b *Bus) newRequest(ctx context.Context, id, query string) *message.Message {
	md := directives.FromContext(ctx)
	md[metadatapkg.CorrelationIDKey] = id
	md[metadatapkg.ReplyToKey] = b.cfg.ReplyTopic
	tracing.Inject(ctx, md)

	msg := message.NewMessage(idspkg.CreateULID(), []byte(query))
	msg.Metadata = metadatapkg.ToWatermill(md)
	msg.SetContext(ctx)
	return msg
}

// HandleReply routes a reply to its callback. It never fails: replies without
// a correlation id or without a pending registration are logged and dropped
// so the transport acknowledges them.
func (b *Bus) HandleReply(msg *message.Message) error {
	id := metadatapkg.Metadata(msg.Metadata).CorrelationID()
	if id == "" {
		b.logger.Info("Dropping reply without correlation id", loggingpkg.LogFields{
			"message_uuid": msg.UUID,
		})
		return nil
	}

	cb, ok := b.registry.Take(id)
	if !ok {
		b.logger.Info("Dropping reply with no pending request", loggingpkg.LogFields{
			"correlation_id": id,
		})
		return nil
	}

	b.invoke(msg.Context(), cb, id, msg.Payload)
	return nil
}

func (b *Bus) invoke(ctx context.Context, cb Callback, id string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Reply callback panicked", fmt.Errorf("panic: %v", r), loggingpkg.LogFields{
				"correlation_id": id,
			})
		}
	}()
	cb(ctx, id, payload)
}
