package relay

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/FilipGjorgjeski/klepetalnica/internal/metrics"
)

// Sink is the per-connection transport the relay fans out into. The
// dispatcher calls Deliver once per locally targeted session per
// event; the sink owns per-session failure handling, so one slow or
// broken connection never blocks the others.
type Sink interface {
	Deliver(sessionID string, payload []byte)
}

// HistoryStore archives chat traffic. Consumed via simple get/put
// calls; failures never affect delivery.
type HistoryStore interface {
	AppendChat(ctx context.Context, ev RoomEvent) error
	Recent(ctx context.Context, roomID string, limit int) ([]RoomEvent, error)
}

// Dispatcher is the single process-wide broker handler. Every
// subscribed channel funnels here; the event is decoded against the
// schema for its channel category and fanned out to the local
// sessions that should see it. The handler also receives this
// instance's own publications, which is required: publishing does not
// deliver locally, the loopback does.
type Dispatcher struct {
	rooms    *Rooms
	sessions *SessionRegistry
	sink     Sink
	history  HistoryStore
	logger   zerolog.Logger

	handlers map[Category]func(roomID string, payload []byte)
}

func NewDispatcher(rooms *Rooms, sessions *SessionRegistry, sink Sink, history HistoryStore, logger zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		rooms:    rooms,
		sessions: sessions,
		sink:     sink,
		history:  history,
		logger:   logger,
	}
	d.handlers = map[Category]func(string, []byte){
		CategoryRoom:              d.handleRoom,
		CategorySessionConnect:    d.handleLifecycle,
		CategorySessionDisconnect: d.handleLifecycle,
		CategoryGlobalBroadcast:   d.handleBroadcast,
		CategorySystemNotify:      d.handleBroadcast,
	}
	return d
}

// Handle routes one broker message. It never panics and never stops
// the subscription: a malformed message is logged and dropped so the
// next one still flows.
func (d *Dispatcher) Handle(channel string, payload []byte) {
	cat, roomID := Classify(channel)
	h, ok := d.handlers[cat]
	if !ok {
		metrics.EventsDropped.WithLabelValues("unknown_channel").Inc()
		d.logger.Warn().Str("channel", channel).Msg("message on unknown channel dropped")
		return
	}
	metrics.EventsReceived.WithLabelValues(cat.String()).Inc()
	h(roomID, payload)
}

func (d *Dispatcher) handleRoom(roomID string, payload []byte) {
	ev, err := DecodeRoomEvent(payload)
	if err != nil {
		metrics.EventsDropped.WithLabelValues("decode_failed").Inc()
		d.logger.Warn().Err(err).Str("room", roomID).Msg("undecodable room event dropped")
		return
	}

	if d.history != nil && ev.Type == EventChat {
		if err := d.history.AppendChat(context.Background(), ev); err != nil {
			d.logger.Warn().Err(err).Str("room", roomID).Msg("history append failed")
		}
	}

	members := d.rooms.LocalMembers(roomID)
	for _, sessionID := range members {
		d.sink.Deliver(sessionID, payload)
		metrics.LocalDeliveries.Inc()
	}
	d.logger.Debug().Str("room", roomID).Str("type", string(ev.Type)).Int("targets", len(members)).Msg("room event fanned out")
}

// handleLifecycle records cross-instance session traffic. Lifecycle
// events are observability only: no local state changes, no fan-out.
func (d *Dispatcher) handleLifecycle(_ string, payload []byte) {
	ev, err := DecodeLifecycleEvent(payload)
	if err != nil {
		metrics.EventsDropped.WithLabelValues("decode_failed").Inc()
		d.logger.Warn().Err(err).Msg("undecodable lifecycle event dropped")
		return
	}
	d.logger.Debug().
		Str("type", string(ev.Type)).
		Str("session", ev.SessionID).
		Str("server", ev.ServerID).
		Str("room", ev.RoomID).
		Msg("lifecycle event")
}

func (d *Dispatcher) handleBroadcast(_ string, payload []byte) {
	ev, err := DecodeBroadcastEvent(payload)
	if err != nil {
		metrics.EventsDropped.WithLabelValues("decode_failed").Inc()
		d.logger.Warn().Err(err).Msg("undecodable broadcast dropped")
		return
	}

	ids := d.sessions.IDs()
	for _, sessionID := range ids {
		d.sink.Deliver(sessionID, payload)
		metrics.LocalDeliveries.Inc()
	}
	d.logger.Debug().Str("type", string(ev.Type)).Int("targets", len(ids)).Msg("broadcast fanned out")
}
