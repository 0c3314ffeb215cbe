package relay

import (
	"sync"
	"time"

	"github.com/FilipGjorgjeski/klepetalnica/internal/metrics"
)

// Session is this instance's record of one live client connection.
// Sessions are owned by the instance holding the socket and are never
// shared across instances.
type Session struct {
	ID          string
	DisplayName string
	ConnectedAt time.Time
}

// SessionRegistry is the single source of truth for which sessions
// are connected to this server instance.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: map[string]Session{}}
}

// RegisterConnect records a new connection. Re-registering an id
// overwrites the previous record.
func (r *SessionRegistry) RegisterConnect(sessionID, displayName string) Session {
	s := Session{ID: sessionID, DisplayName: displayName, ConnectedAt: time.Now().UTC()}
	r.mu.Lock()
	r.sessions[sessionID] = s
	n := len(r.sessions)
	r.mu.Unlock()
	metrics.SessionsConnected.Set(float64(n))
	return s
}

func (r *SessionRegistry) Get(sessionID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

// Remove drops a session and reports whether it existed.
func (r *SessionRegistry) Remove(sessionID string) (Session, bool) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	n := len(r.sessions)
	r.mu.Unlock()
	metrics.SessionsConnected.Set(float64(n))
	return s, ok
}

// IDs returns the ids of every locally connected session.
func (r *SessionRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
