package relayflow

import (
	runtimepkg "github.com/drblury/relayflow/internal/runtime"
	configpkg "github.com/drblury/relayflow/internal/runtime/config"
	"github.com/drblury/relayflow/internal/runtime/correlation"
	"github.com/drblury/relayflow/internal/runtime/directives"
	errspkg "github.com/drblury/relayflow/internal/runtime/errors"
	"github.com/drblury/relayflow/internal/runtime/fanout"
	idspkg "github.com/drblury/relayflow/internal/runtime/ids"
	"github.com/drblury/relayflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/relayflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/relayflow/internal/runtime/metadata"
	"github.com/drblury/relayflow/internal/runtime/tracing"
	transportpkg "github.com/drblury/relayflow/internal/runtime/transport"
	"github.com/drblury/relayflow/internal/runtime/worker"
	newtransport "github.com/drblury/relayflow/transport"
)

type (
	Config              = configpkg.Config
	Service             = runtimepkg.Service
	ServiceDependencies = runtimepkg.ServiceDependencies
	Transport           = transportpkg.Transport
	TransportFactory    = transportpkg.Factory

	MessageHandlerRegistration = runtimepkg.MessageHandlerRegistration
	MiddlewareBuilder          = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration     = runtimepkg.MiddlewareRegistration

	Metadata = metadatapkg.Metadata

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	HandlerInfo          = runtimepkg.HandlerInfo
	HandlerStats         = runtimepkg.HandlerStats
	HandlerStatsSnapshot = runtimepkg.HandlerStatsSnapshot

	ConfigValidationError = errspkg.ConfigValidationError
	PublishError          = errspkg.PublishError

	// Job lifecycle hooks
	JobContext = runtimepkg.JobContext
	JobHooks   = runtimepkg.JobHooks

	// Error classification
	ErrorClassifier = runtimepkg.ErrorClassifier
	ErrorCategory   = runtimepkg.ErrorCategory

	// Request/response over pub/sub
	Bus           = correlation.Bus
	BusConfig     = correlation.BusConfig
	Callback      = correlation.Callback
	Aggregator    = fanout.Aggregator
	Session       = fanout.Session
	PostProcessor = fanout.PostProcessor
	Result        = fanout.Result
	InjectedFault = fanout.InjectedFault
	FaultInjector = fanout.FaultInjector

	// Workers
	Dispatcher       = worker.Dispatcher
	DispatcherConfig = worker.DispatcherConfig
	QueryHandler     = worker.QueryHandler
	QueryHandlerFunc = worker.QueryHandlerFunc
	Reporter         = worker.Reporter

	// Load-test directives
	Directive    = directives.Directive
	DirectiveSet = directives.Set

	// Modular transport registry
	TransportBuilder      = newtransport.Builder
	TransportConfig       = newtransport.Config
	TransportRegistry     = newtransport.Registry
	TransportCapabilities = newtransport.Capabilities
)

var (
	NewService     = runtimepkg.NewService
	LoadConfig     = configpkg.Load
	ValidateConfig = configpkg.ValidateConfig

	RegisterMessageHandler = runtimepkg.RegisterMessageHandler

	DefaultMiddlewares       = runtimepkg.DefaultMiddlewares
	LogMessagesMiddleware    = runtimepkg.LogMessagesMiddleware
	ConsumeTracingMiddleware = runtimepkg.ConsumeTracingMiddleware
	MetricsMiddleware        = runtimepkg.MetricsMiddleware
	RecovererMiddleware      = runtimepkg.RecovererMiddleware

	// Job lifecycle hooks
	JobHooksMiddleware = runtimepkg.JobHooksMiddleware
	LoggingHooks       = runtimepkg.LoggingHooks

	NewBus           = correlation.NewBus
	NewAggregator    = fanout.NewAggregator
	NewFaultInjector = fanout.NewFaultInjector
	PassThrough      = fanout.PassThrough
	// Collect bounds the read of a session stream by a deadline.
	Collect = fanout.Collect

	NewDispatcher = worker.NewDispatcher
	NewReporter   = worker.NewReporter

	ParseDirectives        = directives.Parse
	WithForwardedDirective = directives.WithForwarded

	InjectTraceContext  = tracing.Inject
	ExtractTraceContext = tracing.Extract

	// Transports. Import individual transports via:
	// _ "github.com/drblury/relayflow/transport/rabbitmq"
	DefaultTransportFactory  = transportpkg.DefaultFactory
	SharedTransport          = transportpkg.Shared
	DefaultTransportRegistry = newtransport.DefaultRegistry
	RegisterTransport        = newtransport.Register
	BuildTransport           = newtransport.Build
	GetCapabilities          = newtransport.GetCapabilities

	Marshal   = jsoncodec.Marshal
	Unmarshal = jsoncodec.Unmarshal
	Encode    = jsoncodec.Encode

	ErrServiceRequired        = errspkg.ErrServiceRequired
	ErrHandlerRequired        = errspkg.ErrHandlerRequired
	ErrConsumeQueueRequired   = errspkg.ErrConsumeQueueRequired
	ErrHandlerNameRequired    = errspkg.ErrHandlerNameRequired
	ErrDuplicateHandlerName   = errspkg.ErrDuplicateHandlerName
	ErrPublisherRequired      = errspkg.ErrPublisherRequired
	ErrTopicRequired          = errspkg.ErrTopicRequired
	ErrConfigRequired         = errspkg.ErrConfigRequired
	ErrLoggerRequired         = errspkg.ErrLoggerRequired
	ErrBusNotReady            = errspkg.ErrBusNotReady
	ErrDuplicateCorrelationID = errspkg.ErrDuplicateCorrelationID
	ErrDeadlineExceeded       = errspkg.ErrDeadlineExceeded
	ErrSessionStarted         = errspkg.ErrSessionStarted

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NewZapServiceLogger  = loggingpkg.NewZapServiceLogger

	NewMetadata = metadatapkg.New

	CreateULID       = idspkg.CreateULID
	NewCorrelationID = idspkg.NewCorrelationID
)

// Metadata keys carried by requests and replies.
const (
	MetadataKeyCorrelationID = metadatapkg.CorrelationIDKey
	MetadataKeyReplyTo       = metadatapkg.ReplyToKey
	MetadataKeyTraceParent   = metadatapkg.TraceParentKey
	MetadataKeyTraceState    = metadatapkg.TraceStateKey
	MetadataKeyBaggage       = metadatapkg.BaggageKey

	// DirectivePrefix starts every load-test directive header.
	DirectivePrefix = directives.Prefix
)

// Error category constants for ErrorClassifier.
const (
	ErrorCategoryNone       = runtimepkg.ErrorCategoryNone
	ErrorCategoryTransport  = runtimepkg.ErrorCategoryTransport
	ErrorCategoryDownstream = runtimepkg.ErrorCategoryDownstream
	ErrorCategoryOther      = runtimepkg.ErrorCategoryOther
)
