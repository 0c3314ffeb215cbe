package history

import (
	"context"
	"sync"

	"github.com/FilipGjorgjeski/klepetalnica/relay"
)

// Memory is a capped in-process chat archive, enough for single-node
// runs and tests. Events are kept newest-first per room.
type Memory struct {
	mu    sync.RWMutex
	limit int
	rooms map[string][]relay.RoomEvent
}

func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = 100
	}
	return &Memory{limit: limit, rooms: map[string][]relay.RoomEvent{}}
}

func (m *Memory) AppendChat(_ context.Context, ev relay.RoomEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := append([]relay.RoomEvent{ev}, m.rooms[ev.RoomID]...)
	if len(events) > m.limit {
		events = events[:m.limit]
	}
	m.rooms[ev.RoomID] = events
	return nil
}

// Recent returns up to limit events, newest first.
func (m *Memory) Recent(_ context.Context, roomID string, limit int) ([]relay.RoomEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := m.rooms[roomID]
	if limit <= 0 || limit > len(events) {
		limit = len(events)
	}
	res := make([]relay.RoomEvent, limit)
	copy(res, events[:limit])
	return res, nil
}
