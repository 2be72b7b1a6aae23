// Command worker answers search requests by calling the searcher.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/drblury/relayflow/internal/runtime"
	"github.com/drblury/relayflow/internal/runtime/config"
	"github.com/drblury/relayflow/internal/runtime/logging"
	"github.com/drblury/relayflow/internal/runtime/worker"
	"github.com/drblury/relayflow/internal/searcher"
	"github.com/drblury/relayflow/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "worker:", err)
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
	logger := logging.NewZapServiceLogger(zl).With(logging.LogFields{
		"service": "worker",
		"role":    conf.WorkerRole,
	})

	shutdown, err := telemetry.Setup(ctx, conf.ServiceName+"-"+conf.WorkerRole, conf.OTELEndpoint, logger)
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reporter := worker.NewReporter(registry)
	if err := reporter.Register(); err != nil {
		return err
	}

	client, err := searcher.Dial(conf.SearcherAddress)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	svc, err := runtime.NewService(conf, logger, ctx, runtime.ServiceDependencies{
		Hooks:                runtime.LoggingHooks(logger),
		MetricsRegistry:      registry,
		DisableSignalHandler: true,
	})
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	dispatcher, err := worker.NewDispatcher(svc.Publisher(), client, worker.DispatcherConfig{
		Role:   conf.WorkerRole,
		Credit: conf.WorkerCredit,
	}, logger, reporter)
	if err != nil {
		return err
	}
	consumers, err := dispatcher.Register(svc, conf.RequestTopic)
	if err != nil {
		return err
	}

	logger.Info("Worker consuming", logging.LogFields{
		"topic":     conf.RequestTopic,
		"consumers": consumers,
		"searcher":  conf.SearcherAddress,
	})
	return svc.Start(ctx)
}
