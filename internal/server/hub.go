package server

import "sync"

// hub.go is the delivery mechanism between the relay and the
// per-connection write loops. Each session gets its own buffered
// queue so one slow connection cannot hold up fan-out to the rest.
type subscription struct {
	ch chan []byte
}

// Hub implements the relay's delivery sink over per-session queues.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]*subscription
}

func NewHub() *Hub {
	return &Hub{subs: map[string]*subscription{}}
}

// Add registers a session's outbound queue and returns the channel a
// write loop should drain plus a remove func that closes it.
func (h *Hub) Add(sessionID string) (ch <-chan []byte, remove func()) {
	sub := &subscription{ch: make(chan []byte, 256)}

	h.mu.Lock()
	h.subs[sessionID] = sub
	h.mu.Unlock()

	remove = func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if s, ok := h.subs[sessionID]; ok && s == sub {
			delete(h.subs, sessionID)
			close(s.ch)
		}
	}
	return sub.ch, remove
}

// Deliver queues a payload for one session. Unknown sessions are
// ignored; a full queue drops the payload rather than blocking. The
// send stays inside the read lock so it cannot race the close in a
// concurrent remove.
func (h *Hub) Deliver(sessionID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sub, ok := h.subs[sessionID]
	if !ok {
		return
	}
	select {
	case sub.ch <- payload:
	default:
		// Delivery is best-effort if a session is too slow.
	}
}

// Count returns the number of registered sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
