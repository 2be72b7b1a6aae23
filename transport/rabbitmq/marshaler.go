package rabbitmq

import (
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	amqp091 "github.com/rabbitmq/amqp091-go"

	"github.com/drblury/relayflow/internal/runtime/metadata"
)

// ReplyMarshaler carries the correlation id and reply address as native AMQP
// properties in addition to the watermill headers.
type ReplyMarshaler struct {
	amqp.DefaultMarshaler
}

func (m ReplyMarshaler) Marshal(msg *message.Message) (amqp091.Publishing, error) {
	publishing, err := m.DefaultMarshaler.Marshal(msg)
	if err != nil {
		return publishing, err
	}
	publishing.CorrelationId = msg.Metadata.Get(metadata.CorrelationIDKey)
	publishing.ReplyTo = msg.Metadata.Get(metadata.ReplyToKey)
	return publishing, nil
}

func (m ReplyMarshaler) Unmarshal(delivery amqp091.Delivery) (*message.Message, error) {
	msg, err := m.DefaultMarshaler.Unmarshal(delivery)
	if err != nil {
		return nil, err
	}
	// Deliveries from non-watermill producers only carry the properties.
	if delivery.CorrelationId != "" && msg.Metadata.Get(metadata.CorrelationIDKey) == "" {
		msg.Metadata.Set(metadata.CorrelationIDKey, delivery.CorrelationId)
	}
	if delivery.ReplyTo != "" && msg.Metadata.Get(metadata.ReplyToKey) == "" {
		msg.Metadata.Set(metadata.ReplyToKey, delivery.ReplyTo)
	}
	return msg, nil
}
