package broker

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Redis adapts a Redis pub/sub connection to the Broker interface.
// One PubSub connection carries every subscribed channel; a single
// receive goroutine feeds the handler.
type Redis struct {
	client  *redis.Client
	pubsub  *redis.PubSub
	handler Handler
	logger  zerolog.Logger

	mu     sync.Mutex
	closed bool
}

func NewRedis(ctx context.Context, client *redis.Client, h Handler, logger zerolog.Logger) *Redis {
	b := &Redis{
		client:  client,
		pubsub:  client.Subscribe(ctx), // no channels yet, added dynamically
		handler: h,
		logger:  logger,
	}
	go b.receive()
	return b
}

func (b *Redis) receive() {
	// Channel() terminates when the PubSub is closed.
	for msg := range b.pubsub.Channel() {
		if b.handler != nil {
			b.handler(msg.Channel, []byte(msg.Payload))
		}
	}
	b.logger.Debug().Msg("redis receive loop stopped")
}

func (b *Redis) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.client.Publish(ctx, channel, payload).Err()
}

func (b *Redis) Subscribe(ctx context.Context, channel string) error {
	return b.pubsub.Subscribe(ctx, channel)
}

func (b *Redis) Unsubscribe(ctx context.Context, channel string) error {
	return b.pubsub.Unsubscribe(ctx, channel)
}

func (b *Redis) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.pubsub.Close()
}
