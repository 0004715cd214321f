// Package bus is the in-process publish/subscribe fabric connecting the
// serial link service to command sources and telemetry consumers.
package bus

import (
	"log/slog"

	"github.com/cskr/pubsub"
)

const subscriberBuffer = 128

type Subscription chan any

type MessageBus interface {
	Publish(topic string, msg any)
	Subscribe(topic string) Subscription
	Unsubscribe(ch Subscription, topics ...string)
	Close()
}

type PubSubBus struct {
	ps     *pubsub.PubSub
	logger *slog.Logger
}

func New(logger *slog.Logger) *PubSubBus {
	return &PubSubBus{
		ps:     pubsub.New(subscriberBuffer),
		logger: logger,
	}
}

// Publish delivers msg to current subscribers without blocking: a consumer
// whose buffer is full misses the message. Telemetry is a stream of fresh
// samples and the control loop must never stall on a slow consumer.
func (b *PubSubBus) Publish(topic string, msg any) {
	b.ps.TryPub(msg, topic)
}

func (b *PubSubBus) Subscribe(topic string) Subscription {
	ch := b.ps.Sub(topic)
	b.logger.Debug("subscribe", "topic", topic)
	return ch
}

func (b *PubSubBus) Unsubscribe(ch Subscription, topics ...string) {
	if len(topics) == 0 {
		b.ps.Unsub(ch)
		return
	}
	b.ps.Unsub(ch, topics...)
}

func (b *PubSubBus) Close() {
	b.ps.Shutdown()
}
