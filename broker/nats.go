package broker

import (
	"context"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATS adapts a NATS connection to the Broker interface. Channel
// names are used verbatim as subjects; each subscription carries its
// own *nats.Subscription so dynamic unsubscribe is per channel.
type NATS struct {
	conn    *nats.Conn
	handler Handler
	logger  zerolog.Logger

	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

func NewNATS(conn *nats.Conn, h Handler, logger zerolog.Logger) *NATS {
	return &NATS{
		conn:    conn,
		handler: h,
		logger:  logger,
		subs:    map[string]*nats.Subscription{},
	}
}

func (b *NATS) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.conn.Publish(channel, payload)
}

func (b *NATS) Subscribe(ctx context.Context, channel string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[channel]; ok {
		return nil
	}
	sub, err := b.conn.Subscribe(channel, func(msg *nats.Msg) {
		if b.handler != nil {
			b.handler(msg.Subject, msg.Data)
		}
	})
	if err != nil {
		return err
	}
	b.subs[channel] = sub
	return nil
}

func (b *NATS) Unsubscribe(ctx context.Context, channel string) error {
	b.mu.Lock()
	sub, ok := b.subs[channel]
	delete(b.subs, channel)
	b.mu.Unlock()
	if !ok {
		return nil
	}
	return sub.Unsubscribe()
}

func (b *NATS) Close() error {
	b.mu.Lock()
	b.subs = map[string]*nats.Subscription{}
	b.mu.Unlock()
	// Drain flushes in-flight messages before closing the connection.
	return b.conn.Drain()
}
