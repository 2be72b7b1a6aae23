// Package transport defines the core interfaces and types for relayflow transports.
// Each transport implementation (kafka, rabbitmq, aws, etc.) lives in its own
// sub-package and registers itself with the transport registry.
package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Transport combines a publisher and subscriber pair produced by a factory.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Builder is the function signature for creating a transport from config.
// Each transport package should provide a Builder function that can be registered.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Config provides the configuration values needed by transports.
// This interface allows transports to access only the config they need
// without depending on the full config package.
type Config interface {
	// GetPubSubSystem returns the transport type name.
	GetPubSubSystem() string

	// GetBroadcastTopics lists topics every consumer role receives a full copy
	// of. All other topics are point-to-point.
	GetBroadcastTopics() []string
	// GetConsumerRole names the competing-consumer group of this process.
	GetConsumerRole() string

	// Kafka
	GetKafkaBrokers() []string
	GetKafkaConsumerGroup() string

	// RabbitMQ
	GetRabbitMQURL() string

	// NATS
	GetNATSURL() string

	// HTTP
	GetHTTPServerAddress() string
	GetHTTPPublisherURL() string

	// AWS
	GetAWSRegion() string
	GetAWSAccountID() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string
}

// CapabilitiesProvider is implemented by transports that can report their capabilities.
type CapabilitiesProvider interface {
	Capabilities() Capabilities
}

// IsBroadcast reports whether topic is one of the config's broadcast topics.
func IsBroadcast(cfg Config, topic string) bool {
	if cfg == nil {
		return false
	}
	for _, t := range cfg.GetBroadcastTopics() {
		if t == topic {
			return true
		}
	}
	return false
}

// RoleQueueName returns the per-role queue that receives a broadcast topic.
func RoleQueueName(topic, role string) string {
	if role == "" {
		return topic
	}
	return topic + "." + role
}
