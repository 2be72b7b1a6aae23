// Package worker consumes broadcast queries, answers each one through a
// QueryHandler and publishes the answer to the address the request names.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

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

// DefaultRole is both the default consumer role and the directive role every
// worker honours.
const DefaultRole = "worker"

// DefaultErrorMarker is the reply payload sent when a query fails.
const DefaultErrorMarker = "error"

// QueryHandler answers one query.
type QueryHandler interface {
	Search(ctx context.Context, id int32) (string, error)
}

// QueryHandlerFunc adapts a function to QueryHandler.
type QueryHandlerFunc func(ctx context.Context, id int32) (string, error)

func (f QueryHandlerFunc) Search(ctx context.Context, id int32) (string, error) { return f(ctx, id) }

// DispatcherConfig tunes a Dispatcher.
type DispatcherConfig struct {
	// Role names the consumer role; it selects the delay directives to honour
	// and prefixes handler names.
	Role string
	// Credit is the number of requests the worker may hold unacknowledged.
	Credit int
	// ErrorMarker replaces the reply payload when the handler fails.
	ErrorMarker string
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.Role == "" {
		c.Role = DefaultRole
	}
	if c.Credit < 1 {
		c.Credit = 1
	}
	if c.ErrorMarker == "" {
		c.ErrorMarker = DefaultErrorMarker
	}
	return c
}

// Dispatcher handles request messages. Each Handle call answers one request
// and returns only after its reply was published, so the transport holds back
// the next delivery until then.
type Dispatcher struct {
	publisher message.Publisher
	handler   QueryHandler
	cfg       DispatcherConfig
	logger    loggingpkg.ServiceLogger
	reporter  *Reporter
}

// NewDispatcher validates its collaborators. reporter may be nil.
func NewDispatcher(publisher message.Publisher, handler QueryHandler, cfg DispatcherConfig, logger loggingpkg.ServiceLogger, reporter *Reporter) (*Dispatcher, error) {
	if publisher == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	if handler == nil {
		return nil, errspkg.ErrQueryHandlerRequired
	}
	if logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	cfg = cfg.withDefaults()
	return &Dispatcher{
		publisher: publisher,
		handler:   handler,
		cfg:       cfg,
		logger:    logger.With(loggingpkg.LogFields{"component": "worker", "role": cfg.Role}),
		reporter:  reporter,
	}, nil
}

// Config returns the effective configuration.
func (d *Dispatcher) Config() DispatcherConfig {
	return d.cfg
}

// Handle answers one request. Handler failures still produce a reply carrying
// the error marker. Only a failed reply publish is returned as an error, which
// makes the transport redeliver the request.
func (d *Dispatcher) Handle(msg *message.Message) error {
	start := time.Now()
	ctx := msg.Context()
	md := metadatapkg.Metadata(msg.Metadata)
	id := md.CorrelationID()
	log := d.logger.With(loggingpkg.LogFields{"correlation_id": id})

	d.reporter.RecordRequest()

	replyTo := md.ReplyTo()
	if replyTo == "" {
		log.Error("Dropping request", errspkg.ErrReplyAddressMissing, loggingpkg.LogFields{
			"message_uuid": msg.UUID,
		})
		d.reporter.RecordResponse(false, time.Since(start))
		return nil
	}

	if err := directives.Sleep(ctx, d.delay(msg.Metadata)); err != nil {
		d.reporter.RecordResponse(false, time.Since(start))
		return err
	}

	content, ok := d.answer(ctx, log, msg.Payload)
	if err := d.reply(ctx, replyTo, id, content, msg.Metadata); err != nil {
		d.reporter.RecordResponse(false, time.Since(start))
		log.Error("Failed to publish reply", err, loggingpkg.LogFields{"reply_to": replyTo})
		return err
	}

	d.reporter.RecordResponse(ok, time.Since(start))
	fields := loggingpkg.LogFields{
		"reply_to":   replyTo,
		"successful": ok,
	}
	if minted, valid := idspkg.CorrelationTime(id); valid {
		fields["age_ms"] = time.Since(minted).Milliseconds()
	}
	log.Debug("Reply published", fields)
	return nil
}

// delay returns the directive delay for this worker's role, falling back to
// directives addressed to every worker.
func (d *Dispatcher) delay(headers map[string]string) time.Duration {
	set := directives.Parse(headers)
	if delay := set.Delay(d.cfg.Role, directives.PhaseAny); delay > 0 {
		return delay
	}
	if d.cfg.Role != DefaultRole {
		return set.Delay(DefaultRole, directives.PhaseAny)
	}
	return 0
}

func (d *Dispatcher) answer(ctx context.Context, log loggingpkg.ServiceLogger, payload []byte) (string, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(string(payload)), 10, 32)
	if err != nil {
		log.Error("Query is not a valid id", err, loggingpkg.LogFields{"payload": string(payload)})
		return d.cfg.ErrorMarker, false
	}

	content, err := d.handler.Search(ctx, int32(id))
	if err != nil {
		log.Error("Query failed", err, loggingpkg.LogFields{"id": id})
		return d.cfg.ErrorMarker, false
	}
	return content, true
}

func (d *Dispatcher) reply(ctx context.Context, replyTo, id, content string, request message.Metadata) error {
	ctx, span := tracing.StartPublish(ctx, replyTo, tracing.CorrelationID(id))
	defer span.End()

	md := directives.FromHeaders(request)
	md[metadatapkg.CorrelationIDKey] = id
	tracing.Inject(ctx, md)

	out := message.NewMessage(idspkg.CreateULID(), []byte(content))
	out.Metadata = metadatapkg.ToWatermill(md)
	out.SetContext(ctx)

	if err := d.publisher.Publish(replyTo, out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		return &errspkg.PublishError{Topic: replyTo, CorrelationID: id, Err: err}
	}
	return nil
}

// HandlerName returns the router handler name of consumer slot n.
func (d *Dispatcher) HandlerName(topic string, n int) string {
	return fmt.Sprintf("%s-%s-%d", d.cfg.Role, topic, n)
}

// Register subscribes the dispatcher to topic. It adds one consumer per unit
// of credit when the transport lets consumers of a role compete, otherwise a
// single consumer. It returns the number of consumers registered.
func (d *Dispatcher) Register(svc *runtime.Service, topic string) (int, error) {
	if svc == nil {
		return 0, errspkg.ErrServiceRequired
	}
	if topic == "" {
		return 0, errspkg.ErrTopicRequired
	}

	caps := svc.Capabilities()
	slots := caps.ConsumerSlots(d.cfg.Credit)
	if slots < d.cfg.Credit {
		d.logger.Info("Transport cannot share a role between consumers, running one", loggingpkg.LogFields{
			"transport": caps.Name,
			"credit":    d.cfg.Credit,
		})
	}

	for n := 0; n < slots; n++ {
		err := runtime.RegisterMessageHandler(svc, runtime.MessageHandlerRegistration{
			Name:         d.HandlerName(topic, n),
			ConsumeQueue: topic,
			Handler:      d.Handle,
		})
		if err != nil {
			return n, err
		}
	}
	return slots, nil
}
