package fanout

import (
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/relayflow/internal/runtime/correlation"
	metadatapkg "github.com/drblury/relayflow/internal/runtime/metadata"
)

// loopbackPublisher answers every request synchronously by handing a reply
// straight back to the bus.
type loopbackPublisher struct {
	bus *correlation.Bus
}

func (p *loopbackPublisher) Publish(topic string, msgs ...*message.Message) error {
	for _, msg := range msgs {
		reply := message.NewMessage(msg.UUID+"-reply", append([]byte("Response: "), msg.Payload...))
		reply.Metadata.Set(metadatapkg.CorrelationIDKey, msg.Metadata.Get(metadatapkg.CorrelationIDKey))
		go func() { _ = p.bus.HandleReply(reply) }()
	}
	return nil
}

func (p *loopbackPublisher) Close() error { return nil }
