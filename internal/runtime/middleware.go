package runtime

import (
	"errors"

	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/codes"

	loggingpkg "github.com/drblury/relayflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/relayflow/internal/runtime/metadata"
	"github.com/drblury/relayflow/internal/runtime/tracing"
)

const metricsNamespace = "relayflow"

// MiddlewareBuilder constructs a handler middleware using the provided service instance.
type MiddlewareBuilder func(*Service) (message.HandlerMiddleware, error)

// MiddlewareRegistration captures how a middleware should be registered on a Service router.
type MiddlewareRegistration struct {
	Name       string
	Middleware message.HandlerMiddleware
	Builder    MiddlewareBuilder
}

// DefaultMiddlewares returns the standard middleware chain used by the Service constructor.
func DefaultMiddlewares() []MiddlewareRegistration {
	return []MiddlewareRegistration{
		ConsumeTracingMiddleware(),
		LogMessagesMiddleware(nil),
		MetricsMiddleware(),
		RecovererMiddleware(),
	}
}

// MetricsMiddleware instruments the router, its publishers and subscribers
// with Prometheus metrics and serves them on MetricsPort.
func MetricsMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "metrics",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			if !s.Conf.MetricsEnabled {
				return nil, nil
			}

			metricsBuilder := metrics.NewPrometheusMetricsBuilder(s.registerer, metricsNamespace, s.Conf.PubSubSystem)
			metricsBuilder.AddPrometheusRouterMetrics(s.router)

			if s.Conf.MetricsPort > 0 {
				s.RegisterHTTPHandler(s.Conf.MetricsPort, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
			}
			return nil, nil
		},
	}
}

// LogMessagesMiddleware logs the payload and metadata of handled messages at
// debug level.
func LogMessagesMiddleware(logger loggingpkg.ServiceLogger) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "log_messages",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			l := logger
			if l == nil {
				l = s.Logger
			}
			if l == nil {
				return nil, errors.New("log messages middleware requires a logger")
			}
			return logMessagesMiddleware(l), nil
		},
	}
}

// ConsumeTracingMiddleware starts a consumer span parented on the trace
// context carried in the message headers and installs it as the message
// context, so handlers continue the sender's trace through msg.Context().
func ConsumeTracingMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "consume_tracing",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			return consumeTracingMiddleware(s.Logger), nil
		},
	}
}

// RecovererMiddleware converts handler panics into errors so the message is nacked.
func RecovererMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "recoverer",
		Middleware: middleware.Recoverer,
	}
}

// RegisterMiddleware attaches the supplied middleware to the router.
func (s *Service) RegisterMiddleware(cfg MiddlewareRegistration) error {
	if s.router == nil {
		return errors.New("router is not initialised")
	}

	var mw message.HandlerMiddleware
	switch {
	case cfg.Middleware != nil:
		mw = cfg.Middleware
	case cfg.Builder != nil:
		var err error
		mw, err = cfg.Builder(s)
		if err != nil {
			return err
		}
	default:
		return errors.New("middleware registration requires Middleware or Builder")
	}

	if mw == nil {
		return nil
	}

	s.router.AddMiddleware(mw)
	return nil
}

func logMessagesMiddleware(logger loggingpkg.ServiceLogger) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			logger.Debug("Processing message", loggingpkg.LogFields{
				"message_uuid":   msg.UUID,
				"correlation_id": metadatapkg.Metadata(msg.Metadata).CorrelationID(),
				"handler":        message.HandlerNameFromCtx(msg.Context()),
				"payload":        string(msg.Payload),
				"metadata":       msg.Metadata,
			})
			return h(msg)
		}
	}
}

func consumeTracingMiddleware(logger loggingpkg.ServiceLogger) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			topic := message.SubscribeTopicFromCtx(msg.Context())
			correlationID := metadatapkg.Metadata(msg.Metadata).CorrelationID()

			ctx, span, err := tracing.StartConsume(msg.Context(), msg.Metadata, topic, tracing.CorrelationID(correlationID))
			defer span.End()
			if err != nil {
				logger.Debug("Ignoring unreadable trace context", loggingpkg.LogFields{
					"correlation_id": correlationID,
					"topic":          topic,
					"error":          err.Error(),
				})
			}
			msg.SetContext(ctx)

			msgs, err := h(msg)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return msgs, err
		}
	}
}
