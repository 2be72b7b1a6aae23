package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"
	"github.com/prometheus/client_golang/prometheus"

	configpkg "github.com/drblury/relayflow/internal/runtime/config"
	errspkg "github.com/drblury/relayflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/relayflow/internal/runtime/logging"
	transportpkg "github.com/drblury/relayflow/internal/runtime/transport"
	newtransport "github.com/drblury/relayflow/transport"
)

const (
	defaultConnectRetryInterval = 5 * time.Second
	httpShutdownTimeout         = 5 * time.Second
)

var routerRun = func(router *message.Router, ctx context.Context) error {
	return router.Run(ctx)
}

// ServiceDependencies holds the optional collaborators that the Service can use.
type ServiceDependencies struct {
	Middlewares               []MiddlewareRegistration // Appended after the default middleware chain.
	DisableDefaultMiddlewares bool                     // Skips registering the default middleware chain when true.
	TransportFactory          transportpkg.Factory
	ErrorClassifier           ErrorClassifier
	// Hooks are invoked around every handled message when any is set.
	Hooks JobHooks
	// MetricsRegistry replaces the global Prometheus registry when set.
	MetricsRegistry *prometheus.Registry
	// DisableSignalHandler keeps the router from closing on SIGINT/SIGTERM.
	DisableSignalHandler bool
}

// Service wires a Watermill router, publisher, subscriber, and middleware chain.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	publisher    message.Publisher
	subscriber   message.Subscriber
	capabilities newtransport.Capabilities
	router       *message.Router

	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer

	handlers   []*HandlerInfo
	handlersMu sync.RWMutex

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex

	errorClassifier ErrorClassifier
}

// NewService connects the configured transport and builds the router. The
// transport is retried every ConnectRetryInterval until it comes up or ctx is
// cancelled. Register handlers on the returned Service before calling Start.
func NewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) (*Service, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}

	wmLogger := loggingpkg.NewWatermillAdapter(log)
	log.Info("Creating event service", loggingpkg.LogFields{
		"pubsub_system": conf.PubSubSystem,
		"config":        conf,
	})

	factory := deps.TransportFactory
	if factory == nil {
		if !newtransport.DefaultRegistry.Has(conf.PubSubSystem) {
			return nil, fmt.Errorf("unknown transport %q (registered: %v)", conf.PubSubSystem, newtransport.DefaultRegistry.Names())
		}
		factory = transportpkg.DefaultFactory()
	}

	transport, err := connectTransport(ctx, factory, conf, wmLogger, log)
	if err != nil {
		return nil, err
	}

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("create router: %w", err), closeTransport(transport))
	}

	s := &Service{
		Conf:            conf,
		Logger:          log,
		publisher:       transport.Publisher,
		subscriber:      transport.Subscriber,
		capabilities:    transport.Capabilities,
		router:          router,
		errorClassifier: deps.ErrorClassifier,
		registerer:      prometheus.DefaultRegisterer,
		gatherer:        prometheus.DefaultGatherer,
	}
	if deps.MetricsRegistry != nil {
		s.registerer = deps.MetricsRegistry
		s.gatherer = deps.MetricsRegistry
	}

	if !deps.DisableSignalHandler {
		s.router.AddPlugin(plugin.SignalsHandler)
	}

	if err := s.registerConfiguredMiddlewares(deps); err != nil {
		return nil, errors.Join(err, closeTransport(transport))
	}
	s.registerHandlersEndpoint()

	return s, nil
}

// connectTransport keeps building the transport until it succeeds. Brokers
// that are still starting up are expected, so failures are only logged.
func connectTransport(ctx context.Context, factory transportpkg.Factory, conf *configpkg.Config, wmLogger watermill.LoggerAdapter, log loggingpkg.ServiceLogger) (transportpkg.Transport, error) {
	interval := conf.ConnectRetryInterval
	if interval <= 0 {
		interval = defaultConnectRetryInterval
	}

	for attempt := 1; ; attempt++ {
		transport, err := factory.Build(ctx, conf, wmLogger)
		if err == nil {
			log.Info("Transport connected", loggingpkg.LogFields{
				"pubsub_system": conf.PubSubSystem,
				"attempts":      attempt,
			})
			return transport, nil
		}

		log.Error("Transport unavailable, retrying", err, loggingpkg.LogFields{
			"pubsub_system": conf.PubSubSystem,
			"attempt":       attempt,
			"retry_in":      interval.String(),
		})

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return transportpkg.Transport{}, fmt.Errorf("connect %s transport: %w", conf.PubSubSystem, ctx.Err())
		case <-timer.C:
		}
	}
}

func closeTransport(t transportpkg.Transport) error {
	var errs []error
	if t.Subscriber != nil {
		errs = append(errs, t.Subscriber.Close())
	}
	if t.Publisher != nil {
		errs = append(errs, t.Publisher.Close())
	}
	return errors.Join(errs...)
}

// Start runs the HTTP servers and the router until ctx is cancelled or the
// router is closed.
func (s *Service) Start(ctx context.Context) error {
	servers := s.startHTTPServers()
	defer s.shutdownHTTPServers(servers)
	return routerRun(s.router, ctx)
}

// Running is closed once every registered handler is subscribed.
func (s *Service) Running() chan struct{} {
	return s.router.Running()
}

// Close stops the router and releases the transport. A router that never
// ran is left alone, closing it would block for the whole close timeout.
func (s *Service) Close() error {
	var routerErr error
	if s.router.IsRunning() {
		routerErr = s.router.Close()
	}
	return errors.Join(routerErr, closeTransport(transportpkg.Transport{
		Publisher:  s.publisher,
		Subscriber: s.subscriber,
	}))
}

func (s *Service) Publisher() message.Publisher {
	return s.publisher
}

func (s *Service) Subscriber() message.Subscriber {
	return s.subscriber
}

// Capabilities reports what the connected transport supports.
func (s *Service) Capabilities() newtransport.Capabilities {
	return s.capabilities
}

func (s *Service) registerConfiguredMiddlewares(deps ServiceDependencies) error {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares)+1)
	registrations = append(registrations, defaults...)
	if !deps.Hooks.empty() {
		registrations = append(registrations, JobHooksMiddleware(deps.Hooks))
	}
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := s.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("register middleware %s: %w", name, err)
		}
	}
	return nil
}

func (s *Service) getErrorClassifier() ErrorClassifier {
	if s.errorClassifier == nil {
		return defaultErrorClassifier
	}
	return s.errorClassifier
}

// RegisterHTTPHandler mounts handler on the server listening on port. Servers
// are started by Start.
func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := s.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (s *Service) startHTTPServers() []*http.Server {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	servers := make([]*http.Server, 0, len(s.httpServers))
	for port, mux := range s.httpServers {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		servers = append(servers, srv)

		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": srv.Addr})
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.Logger.Error("HTTP server failed", err, loggingpkg.LogFields{"address": srv.Addr})
			}
		}()
	}
	return servers
}

func (s *Service) shutdownHTTPServers(servers []*http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()

	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			s.Logger.Error("HTTP server shutdown failed", err, loggingpkg.LogFields{"address": srv.Addr})
		}
	}
}
