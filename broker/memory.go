package broker

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("broker closed")

// Bus is an in-process broker shared by any number of attached
// instances. It exists so the relay can run single-node without Redis
// and so multi-instance behaviour is testable without a live broker.
// Delivery is synchronous in the publisher's goroutine, which keeps
// per-channel ordering trivially correct.
type Bus struct {
	mu       sync.RWMutex
	attached map[*Memory]struct{}
}

func NewBus() *Bus {
	return &Bus{attached: map[*Memory]struct{}{}}
}

// Attach creates a broker endpoint on the bus with its own handler
// and subscription set, standing in for one server instance.
func (b *Bus) Attach(h Handler) *Memory {
	m := &Memory{bus: b, handler: h, channels: map[string]struct{}{}}
	b.mu.Lock()
	b.attached[m] = struct{}{}
	b.mu.Unlock()
	return m
}

func (b *Bus) publish(channel string, payload []byte) {
	b.mu.RLock()
	targets := make([]*Memory, 0, len(b.attached))
	for m := range b.attached {
		if m.subscribed(channel) {
			targets = append(targets, m)
		}
	}
	b.mu.RUnlock()

	for _, m := range targets {
		if m.handler != nil {
			m.handler(channel, payload)
		}
	}
}

func (b *Bus) detach(m *Memory) {
	b.mu.Lock()
	delete(b.attached, m)
	b.mu.Unlock()
}

// Memory is one instance's endpoint on a Bus.
type Memory struct {
	bus     *Bus
	handler Handler

	mu       sync.RWMutex
	closed   bool
	channels map[string]struct{}
}

func (m *Memory) Publish(ctx context.Context, channel string, payload []byte) error {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	// Copy: the payload outlives the caller once delivered to handlers.
	cp := append([]byte(nil), payload...)
	m.bus.publish(channel, cp)
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.channels[channel] = struct{}{}
	return nil
}

func (m *Memory) Unsubscribe(ctx context.Context, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.channels, channel)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.channels = map[string]struct{}{}
	m.mu.Unlock()
	m.bus.detach(m)
	return nil
}

func (m *Memory) subscribed(channel string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.channels[channel]
	return ok
}
