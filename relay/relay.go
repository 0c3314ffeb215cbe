package relay

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/FilipGjorgjeski/klepetalnica/broker"
)

// Config wires a Relay. Broker, Sink and ServerID are required;
// History and Presence are optional collaborators.
type Config struct {
	Broker   broker.Broker
	Sink     Sink
	ServerID string
	History  HistoryStore
	Presence PresenceMirror
	Logger   zerolog.Logger
}

// Relay is one server instance's view of the distributed room relay:
// local sessions and membership, the dynamic broker subscriptions
// that bound fan-in to locally active rooms, and the publisher and
// dispatcher that move events through the shared broker. Instances
// coordinate only through the broker.
type Relay struct {
	serverID string
	broker   broker.Broker
	sessions *SessionRegistry
	rooms    *Rooms
	subs     *ChannelSubscriber
	pub      *Publisher
	disp     *Dispatcher
	presence PresenceMirror
	history  HistoryStore
	logger   zerolog.Logger
}

func New(cfg Config) *Relay {
	logger := cfg.Logger
	presence := cfg.Presence
	if presence == nil {
		presence = NoopPresence{}
	}

	sessions := NewSessionRegistry()
	subs := NewChannelSubscriber(cfg.Broker, logger.With().Str("component", "subscriber").Logger())
	pub := NewPublisher(cfg.Broker, cfg.ServerID, logger.With().Str("component", "publisher").Logger())
	rooms := NewRooms(subs, pub, sessions, logger.With().Str("component", "rooms").Logger())
	disp := NewDispatcher(rooms, sessions, cfg.Sink, cfg.History, logger.With().Str("component", "dispatcher").Logger())

	return &Relay{
		serverID: cfg.ServerID,
		broker:   cfg.Broker,
		sessions: sessions,
		rooms:    rooms,
		subs:     subs,
		pub:      pub,
		disp:     disp,
		presence: presence,
		history:  cfg.History,
		logger:   logger,
	}
}

// Start subscribes the fixed global channels. Room channels follow
// membership dynamically after this.
func (r *Relay) Start(ctx context.Context) error {
	return r.subs.SubscribeGlobals(ctx)
}

// Handle is the broker message entry point; bind it as the broker's
// handler.
func (r *Relay) Handle(channel string, payload []byte) {
	r.disp.Handle(channel, payload)
}

// Connect registers a new local session and announces it cluster-wide.
func (r *Relay) Connect(ctx context.Context, sessionID, displayName string) Session {
	s := r.sessions.RegisterConnect(sessionID, displayName)
	r.presence.SessionConnected(ctx, sessionID, displayName)
	r.pub.PublishSessionConnect(ctx, sessionID, displayName)
	r.logger.Info().Str("session", sessionID).Str("name", displayName).Msg("session connected")
	return s
}

// Join moves the session into the room, leaving its previous room
// first if it was in one.
func (r *Relay) Join(ctx context.Context, roomID, sessionID, displayName string) {
	prev, hadPrev := r.rooms.CurrentRoom(sessionID)
	r.rooms.Join(ctx, roomID, sessionID, displayName)
	if hadPrev && prev != roomID {
		r.presence.Left(ctx, prev, sessionID)
	}
	r.presence.Joined(ctx, roomID, sessionID)
}

// Leave removes the session from the room; reports whether anything
// was removed.
func (r *Relay) Leave(ctx context.Context, roomID, sessionID string) bool {
	removed := r.rooms.Leave(ctx, roomID, sessionID)
	if removed {
		r.presence.Left(ctx, roomID, sessionID)
	}
	return removed
}

// SendChat publishes a chat event for the room; reports whether the
// event was emitted.
func (r *Relay) SendChat(ctx context.Context, roomID, sessionID, text string) bool {
	return r.rooms.SendChat(ctx, roomID, sessionID, text)
}

// Disconnect synchronously drains the session out of its room and
// deregisters it, then announces the disconnect cluster-wide.
func (r *Relay) Disconnect(ctx context.Context, sessionID string) {
	lastRoom, hadRoom := r.rooms.CurrentRoom(sessionID)
	r.rooms.DisconnectSession(ctx, sessionID)
	if hadRoom {
		r.presence.Left(ctx, lastRoom, sessionID)
	}
	s, existed := r.sessions.Remove(sessionID)
	if !existed {
		return
	}
	r.presence.SessionDisconnected(ctx, sessionID)
	r.pub.PublishSessionDisconnect(ctx, sessionID, s.DisplayName, lastRoom)
	r.logger.Info().Str("session", sessionID).Str("last_room", lastRoom).Msg("session disconnected")
}

// Broadcast publishes a cluster-wide message on the global channel.
func (r *Relay) Broadcast(ctx context.Context, messageType, message string) {
	r.pub.PublishGlobalBroadcast(ctx, messageType, message)
}

// Notify publishes a system notification cluster-wide.
func (r *Relay) Notify(ctx context.Context, notification, level string) {
	r.pub.PublishSystemNotification(ctx, notification, level)
}

// RecentHistory returns the latest archived chat events for a room.
func (r *Relay) RecentHistory(ctx context.Context, roomID string, limit int) ([]RoomEvent, error) {
	if r.history == nil {
		return nil, nil
	}
	return r.history.Recent(ctx, roomID, limit)
}

// Sessions exposes the local session registry.
func (r *Relay) Sessions() *SessionRegistry { return r.sessions }

// Rooms exposes the local membership manager.
func (r *Relay) Rooms() *Rooms { return r.rooms }

// Subscriptions exposes the dynamic channel subscriber.
func (r *Relay) Subscriptions() *ChannelSubscriber { return r.subs }

// Close releases the broker connection.
func (r *Relay) Close() error {
	return r.broker.Close()
}
