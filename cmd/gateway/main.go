// Command gateway serves GET /search and scatters each query to the workers.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/drblury/relayflow/internal/gateway"
	"github.com/drblury/relayflow/internal/runtime"
	"github.com/drblury/relayflow/internal/runtime/config"
	"github.com/drblury/relayflow/internal/runtime/correlation"
	"github.com/drblury/relayflow/internal/runtime/fanout"
	"github.com/drblury/relayflow/internal/runtime/logging"
	"github.com/drblury/relayflow/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "gateway:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conf, err := config.Load()
	if err != nil {
		return err
	}

	zl, err := logging.NewProductionZapLogger(conf.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()
	logger := logging.NewZapServiceLogger(zl).With(logging.LogFields{"service": "gateway"})

	shutdown, err := telemetry.Setup(ctx, conf.ServiceName+"-gateway", conf.OTELEndpoint, logger)
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc, err := runtime.NewService(conf, logger, ctx, runtime.ServiceDependencies{
		MetricsRegistry:      registry,
		DisableSignalHandler: true,
	})
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	bus, err := correlation.NewBus(svc.Publisher(), correlation.BusConfig{
		RequestTopic: conf.RequestTopic,
		ReplyTopic:   conf.ReplyTopic,
	}, logger)
	if err != nil {
		return err
	}
	defer func() { _ = bus.Close() }()
	if err := bus.Attach(svc); err != nil {
		return err
	}

	agg, err := fanout.NewAggregator(bus, fanout.NewFaultInjector(conf.FaultTokens), logger)
	if err != nil {
		return err
	}
	gw, err := gateway.New(agg, bus, gateway.Config{Timeout: conf.GatewayTimeout}, logger, registry)
	if err != nil {
		return err
	}
	svc.RegisterHTTPHandler(conf.HTTPPort, "/", gw.Handler())

	errCh := make(chan error, 1)
	go func() { errCh <- svc.Start(ctx) }()

	select {
	case <-svc.Running():
		// Replies published before the reply handler subscribed would be lost.
		bus.MarkReady()
		logger.Info("Gateway ready", logging.LogFields{
			"http_port":     conf.HTTPPort,
			"request_topic": conf.RequestTopic,
			"reply_topic":   conf.ReplyTopic,
			"timeout":       conf.GatewayTimeout.String(),
		})
	case err := <-errCh:
		return err
	}

	return <-errCh
}
