package relay

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/FilipGjorgjeski/klepetalnica/internal/metrics"
)

// Rooms owns the per-room local membership state machine. A room has
// no explicit constructor: its entry springs into existence on the
// first local join and is pruned when the last local session leaves,
// so the emptiness check has a single source of truth. The
// ABSENT->POPULATED and POPULATED->ABSENT transitions are the only
// points that drive the ChannelSubscriber.
//
// The mutex guards the membership maps and the transition decision;
// event publication happens outside it so the broker never stalls
// membership updates. Subscribe/unsubscribe triggers fire inside the
// locked section: the transition decision and the subscriber call
// must not be separable by a racing inverse transition, or the
// subscribed-iff-populated invariant breaks.
type Rooms struct {
	subs     *ChannelSubscriber
	pub      *Publisher
	sessions *SessionRegistry
	logger   zerolog.Logger

	mu        sync.Mutex
	rooms     map[string]*room
	bySession map[string]string // sessionID -> roomID
}

type room struct {
	members map[string]struct{}
}

func NewRooms(subs *ChannelSubscriber, pub *Publisher, sessions *SessionRegistry, logger zerolog.Logger) *Rooms {
	return &Rooms{
		subs:      subs,
		pub:       pub,
		sessions:  sessions,
		logger:    logger,
		rooms:     map[string]*room{},
		bySession: map[string]string{},
	}
}

// Join adds the session to the room's local set. A session may occupy
// one room at a time: joining while in another room leaves that room
// first. Every join emits a JOIN event with the post-join local
// count; only the first local join subscribes the room channel.
func (r *Rooms) Join(ctx context.Context, roomID, sessionID, displayName string) {
	r.mu.Lock()
	prev, ok := r.bySession[sessionID]
	r.mu.Unlock()
	if ok && prev != roomID {
		r.Leave(ctx, prev, sessionID)
	}

	r.mu.Lock()
	rm, ok := r.rooms[roomID]
	if !ok {
		rm = &room{members: map[string]struct{}{}}
		r.rooms[roomID] = rm
	}
	first := len(rm.members) == 0
	rm.members[sessionID] = struct{}{}
	r.bySession[sessionID] = roomID
	count := len(rm.members)
	if first {
		r.subs.Subscribe(ctx, roomID)
	}
	metrics.RoomsPopulated.Set(float64(len(r.rooms)))
	r.mu.Unlock()

	r.logger.Info().Str("room", roomID).Str("session", sessionID).Int("participants", count).Msg("join")
	r.pub.PublishRoomEvent(ctx, NewJoinEvent(roomID, sessionID, displayName, count))
}

// Leave removes the session from the room's local set and reports
// whether anything was removed. A leave for a session that is not a
// local member is a benign no-op: it happens in ordinary races such
// as a disconnect crossing a room switch. The LEAVE event carries the
// post-leave count, including zero for the last leaver; the empty
// room is pruned and its channel unsubscribed, with no extra event
// for the transition itself.
func (r *Rooms) Leave(ctx context.Context, roomID, sessionID string) bool {
	r.mu.Lock()
	rm, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		r.logger.Warn().Str("room", roomID).Str("session", sessionID).Msg("leave for absent room ignored")
		return false
	}
	if _, member := rm.members[sessionID]; !member {
		r.mu.Unlock()
		r.logger.Warn().Str("room", roomID).Str("session", sessionID).Msg("leave for non-member ignored")
		return false
	}
	delete(rm.members, sessionID)
	if r.bySession[sessionID] == roomID {
		delete(r.bySession, sessionID)
	}
	count := len(rm.members)
	if count == 0 {
		delete(r.rooms, roomID)
		r.subs.Unsubscribe(ctx, roomID)
	}
	metrics.RoomsPopulated.Set(float64(len(r.rooms)))
	r.mu.Unlock()

	displayName := ""
	if s, ok := r.sessions.Get(sessionID); ok {
		displayName = s.DisplayName
	}
	r.logger.Info().Str("room", roomID).Str("session", sessionID).Int("participants", count).Msg("leave")
	r.pub.PublishRoomEvent(ctx, NewLeaveEvent(roomID, sessionID, displayName, count))
	return true
}

// DisconnectSession drains the session out of its current room, if
// any. Idempotent: unknown or already-clean sessions are no-ops.
func (r *Rooms) DisconnectSession(ctx context.Context, sessionID string) bool {
	r.mu.Lock()
	roomID, ok := r.bySession[sessionID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	return r.Leave(ctx, roomID, sessionID)
}

// SendChat emits a CHAT event for the room, provided the session's
// recorded current room matches. A mismatch is logged and dropped so
// stale clients cannot speak into rooms they are not joined to.
func (r *Rooms) SendChat(ctx context.Context, roomID, sessionID, text string) bool {
	sess, ok := r.sessions.Get(sessionID)
	if !ok {
		r.logger.Warn().Str("session", sessionID).Msg("chat from unknown session dropped")
		return false
	}
	r.mu.Lock()
	current, ok := r.bySession[sessionID]
	r.mu.Unlock()
	if !ok || current != roomID {
		r.logger.Warn().Str("room", roomID).Str("session", sessionID).Str("current", current).Msg("chat for unjoined room dropped")
		return false
	}
	r.pub.PublishRoomEvent(ctx, NewChatEvent(roomID, sessionID, sess.DisplayName, text))
	return true
}

// CurrentRoom returns the session's room, if it is in one.
func (r *Rooms) CurrentRoom(sessionID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	roomID, ok := r.bySession[sessionID]
	return roomID, ok
}

// LocalMembers returns the sessions locally joined to the room.
func (r *Rooms) LocalMembers(roomID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	members := make([]string, 0, len(rm.members))
	for id := range rm.members {
		members = append(members, id)
	}
	return members
}

// ParticipantCount returns the local participant count for the room.
// The cluster-wide total is intentionally not tracked anywhere.
func (r *Rooms) ParticipantCount(roomID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[roomID]
	if !ok {
		return 0
	}
	return len(rm.members)
}

// RoomCount returns the number of locally populated rooms.
func (r *Rooms) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}
