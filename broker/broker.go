package broker

import "context"

// Handler receives every message delivered on a subscribed channel.
// A single handler per broker instance routes by channel name.
type Handler func(channel string, payload []byte)

// Broker is the shared publish/subscribe bus that fans events out
// across server instances. Publish order is preserved within a single
// channel; there is no ordering guarantee across channels.
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) error
	Unsubscribe(ctx context.Context, channel string) error
	Close() error
}
