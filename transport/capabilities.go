package transport

// Capabilities describes the features supported by a transport backend.
// Use this to introspect what operations are available at runtime.
type Capabilities struct {
	// SupportsAck indicates the transport supports explicit message acknowledgment.
	SupportsAck bool

	// SupportsNack indicates the transport supports negative acknowledgment (redelivery).
	SupportsNack bool

	// SupportsOrdering indicates the transport guarantees message ordering.
	SupportsOrdering bool

	// SupportsTracing indicates the transport carries string headers end to end,
	// which the trace context codec relies on.
	SupportsTracing bool

	// SupportsBroadcast indicates that each consumer role receives its own copy
	// of a broadcast topic.
	SupportsBroadcast bool

	// SupportsCompetingConsumers indicates that several subscriptions within one
	// role share deliveries instead of each receiving every message. When false
	// a worker runs a single consumer regardless of its credit.
	SupportsCompetingConsumers bool

	// SupportsReplyProperties indicates correlation id and reply address travel
	// as native message properties rather than plain headers.
	SupportsReplyProperties bool

	// MaxMessageSize is the maximum message size in bytes (0 = unlimited/unknown).
	MaxMessageSize int64

	// Name is the human-readable name of the transport.
	Name string
}

// SupportsReliableDelivery returns true if the transport supports at-least-once
// delivery semantics (ack + nack).
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

// ConsumerSlots returns how many concurrent consumers a worker with the given
// credit may run. Each consumer holds at most one unacknowledged delivery.
func (c Capabilities) ConsumerSlots(credit int) int {
	if credit < 1 || !c.SupportsCompetingConsumers {
		return 1
	}
	return credit
}

// Predefined capability sets for the built-in transports.
var (
	// ChannelCapabilities for in-memory Go channel transport. Every subscription
	// receives every message, so competing consumers are not available.
	ChannelCapabilities = Capabilities{
		Name:                       "channel",
		SupportsAck:                true,
		SupportsNack:               true,
		SupportsOrdering:           true,
		SupportsTracing:            true,
		SupportsBroadcast:          true,
		SupportsCompetingConsumers: false,
	}

	// KafkaCapabilities for Apache Kafka transport. The consumer group is the
	// consumer role.
	KafkaCapabilities = Capabilities{
		Name:                       "kafka",
		SupportsAck:                true,
		SupportsNack:               false,
		SupportsOrdering:           true,
		SupportsTracing:            true,
		SupportsBroadcast:          true,
		SupportsCompetingConsumers: true,
		MaxMessageSize:             1048576, // Default 1MB
	}

	// RabbitMQCapabilities for RabbitMQ/AMQP transport.
	RabbitMQCapabilities = Capabilities{
		Name:                       "rabbitmq",
		SupportsAck:                true,
		SupportsNack:               true,
		SupportsOrdering:           true,
		SupportsTracing:            true,
		SupportsBroadcast:          true,
		SupportsCompetingConsumers: true,
		SupportsReplyProperties:    true,
	}

	// NATSCapabilities for NATS Core transport. Queue groups are named after
	// the consumer role.
	NATSCapabilities = Capabilities{
		Name:                       "nats",
		SupportsAck:                false,
		SupportsNack:               false,
		SupportsOrdering:           false,
		SupportsTracing:            true,
		SupportsBroadcast:          true,
		SupportsCompetingConsumers: true,
		MaxMessageSize:             1048576, // Default 1MB
	}

	// AWSCapabilities for AWS SNS/SQS transport. Each role subscribes its own
	// SQS queue to the SNS topic.
	AWSCapabilities = Capabilities{
		Name:                       "aws",
		SupportsAck:                true,
		SupportsNack:               true,
		SupportsOrdering:           false,
		SupportsTracing:            true,
		SupportsBroadcast:          true,
		SupportsCompetingConsumers: true,
		MaxMessageSize:             262144, // 256KB
	}

	// HTTPCapabilities for HTTP-based transport.
	HTTPCapabilities = Capabilities{
		Name:                       "http",
		SupportsAck:                false,
		SupportsNack:               false,
		SupportsOrdering:           false,
		SupportsTracing:            true,
		SupportsBroadcast:          false,
		SupportsCompetingConsumers: false,
	}
)

// GetCapabilities returns the capabilities for a transport by name.
// Uses the registry to look up capabilities registered by each transport package.
// Returns a zero Capabilities struct if the transport is unknown.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}
