package rabbitmq

import (
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"

	"github.com/drblury/relayflow/transport"
)

// Topology maps topics onto AMQP objects. Broadcast topics are fanout
// exchanges bound to one durable queue per consumer role, so every role gets
// a copy and instances of a role compete on their queue. Any other topic is
// a durable queue of the same name reached through the default exchange.
type Topology struct {
	Broadcast []string
	Role      string
}

// NewTopology derives the topology from the transport config.
func NewTopology(cfg transport.Config) Topology {
	return Topology{
		Broadcast: cfg.GetBroadcastTopics(),
		Role:      cfg.GetConsumerRole(),
	}
}

func (t Topology) isBroadcast(topic string) bool {
	for _, b := range t.Broadcast {
		if b == topic {
			return true
		}
	}
	return false
}

// ExchangeName returns the exchange for topic. An empty name selects the
// default exchange, which is never declared.
func (t Topology) ExchangeName(topic string) string {
	if t.isBroadcast(topic) {
		return topic
	}
	return ""
}

// QueueName returns the queue a subscriber of topic consumes from.
func (t Topology) QueueName(topic string) string {
	if t.isBroadcast(topic) {
		return transport.RoleQueueName(topic, t.Role)
	}
	return topic
}

// RoutingKey returns the publish routing key for topic. Fanout exchanges
// ignore it; the default exchange routes on the queue name.
func (t Topology) RoutingKey(topic string) string {
	if t.isBroadcast(topic) {
		return ""
	}
	return topic
}

// Config builds the watermill-amqp configuration for url. Each subscription
// holds a single unacknowledged delivery.
func (t Topology) Config(url string) amqp.Config {
	cfg := amqp.NewDurablePubSubConfig(url, t.QueueName)
	cfg.Exchange.GenerateName = t.ExchangeName
	cfg.QueueBind.GenerateRoutingKey = func(topic string) string { return "" }
	cfg.Publish.GenerateRoutingKey = t.RoutingKey
	cfg.Consume.Qos.PrefetchCount = 1
	cfg.Marshaler = ReplyMarshaler{}
	return cfg
}
