// Command searcher serves the Search RPC the workers call.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/drblury/relayflow/internal/runtime/config"
	"github.com/drblury/relayflow/internal/runtime/logging"
	"github.com/drblury/relayflow/internal/searcher"
	"github.com/drblury/relayflow/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "searcher:", err)
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
	logger := logging.NewZapServiceLogger(zl).With(logging.LogFields{"service": "searcher"})

	shutdown, err := telemetry.Setup(ctx, conf.ServiceName+"-searcher", conf.OTELEndpoint, logger)
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()

	lis, err := net.Listen("tcp", conf.SearcherListen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", conf.SearcherListen, err)
	}

	srv := searcher.NewGRPCServer(logger)
	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	logger.Info("Searcher listening", logging.LogFields{"address": lis.Addr().String()})
	return srv.Serve(lis)
}
