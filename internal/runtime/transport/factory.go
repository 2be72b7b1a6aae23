package transport

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/relayflow/internal/runtime/config"
	newtransport "github.com/drblury/relayflow/transport"

	// Registers the built-in transports.
	_ "github.com/drblury/relayflow/transport/transports"
)

// Transport combines a publisher and subscriber pair produced by a factory,
// together with what the backend supports.
type Transport struct {
	Publisher    message.Publisher
	Subscriber   message.Subscriber
	Capabilities newtransport.Capabilities
}

// Factory abstracts how relayflow initialises message transports.
type Factory interface {
	Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error)
}

// FactoryFunc adapts a plain function to Factory.
type FactoryFunc func(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error)

func (f FactoryFunc) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	return f(ctx, conf, logger)
}

// DefaultFactory returns the built-in transport factory that uses the
// modular transport registry.
func DefaultFactory() Factory {
	return defaultFactory{}
}

type defaultFactory struct{}

func (defaultFactory) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	if conf == nil {
		return Transport{}, fmt.Errorf("config is required")
	}

	t, caps, err := newtransport.BuildWithCapabilities(ctx, conf, logger)
	if err != nil {
		return Transport{}, err
	}

	return Transport{
		Publisher:    t.Publisher,
		Subscriber:   t.Subscriber,
		Capabilities: caps,
	}, nil
}

// Shared returns a factory that hands out the same publisher and subscriber
// to every service built from it. Processes hosting the gateway and workers
// together use it so both sides see one in-memory broker.
func Shared(pub message.Publisher, sub message.Subscriber, caps newtransport.Capabilities) Factory {
	return FactoryFunc(func(context.Context, *config.Config, watermill.LoggerAdapter) (Transport, error) {
		if pub == nil || sub == nil {
			return Transport{}, fmt.Errorf("shared transport: publisher and subscriber are required")
		}
		return Transport{Publisher: pub, Subscriber: sub, Capabilities: caps}, nil
	})
}
