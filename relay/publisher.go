package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/FilipGjorgjeski/klepetalnica/broker"
	"github.com/FilipGjorgjeski/klepetalnica/internal/metrics"
)

const publishTimeout = 2 * time.Second

// Publisher serializes events and fires them at the broker. Every
// publish is best-effort: a broker failure is logged and the event is
// dropped. There is no retry or outbox.
type Publisher struct {
	broker   broker.Broker
	serverID string
	logger   zerolog.Logger
}

func NewPublisher(b broker.Broker, serverID string, logger zerolog.Logger) *Publisher {
	return &Publisher{broker: b, serverID: serverID, logger: logger}
}

func (p *Publisher) PublishRoomEvent(ctx context.Context, ev RoomEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error().Err(err).Str("room", ev.RoomID).Msg("room event marshal failed")
		return
	}
	p.send(ctx, RoomChannel(ev.RoomID), CategoryRoom, payload)
}

func (p *Publisher) PublishSessionConnect(ctx context.Context, sessionID, displayName string) {
	ev := LifecycleEvent{
		Type:      EventSessionConnect,
		SessionID: sessionID,
		Sender:    displayName,
		ServerID:  p.serverID,
		Timestamp: nowMillis(),
	}
	p.sendJSON(ctx, ChannelSessionConnect, CategorySessionConnect, ev)
}

func (p *Publisher) PublishSessionDisconnect(ctx context.Context, sessionID, displayName, lastRoom string) {
	ev := LifecycleEvent{
		Type:      EventSessionDisconnect,
		SessionID: sessionID,
		Sender:    displayName,
		RoomID:    lastRoom,
		ServerID:  p.serverID,
		Timestamp: nowMillis(),
	}
	p.sendJSON(ctx, ChannelSessionDisconnect, CategorySessionDisconnect, ev)
}

// PublishGlobalBroadcast relays a cluster-wide message; messageType
// distinguishes announcements from other broadcast kinds.
func (p *Publisher) PublishGlobalBroadcast(ctx context.Context, messageType, message string) {
	ev := BroadcastEvent{
		Type:      EventType(messageType),
		Message:   message,
		ServerID:  p.serverID,
		Timestamp: nowMillis(),
	}
	p.sendJSON(ctx, ChannelGlobalBroadcast, CategoryGlobalBroadcast, ev)
}

func (p *Publisher) PublishSystemNotification(ctx context.Context, notification, level string) {
	ev := BroadcastEvent{
		Type:      EventSystemNotification,
		Message:   notification,
		Level:     level,
		ServerID:  p.serverID,
		Timestamp: nowMillis(),
	}
	p.sendJSON(ctx, ChannelSystemNotify, CategorySystemNotify, ev)
}

func (p *Publisher) sendJSON(ctx context.Context, channel string, cat Category, ev any) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error().Err(err).Str("channel", channel).Msg("event marshal failed")
		return
	}
	p.send(ctx, channel, cat, payload)
}

func (p *Publisher) send(ctx context.Context, channel string, cat Category, payload []byte) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := p.broker.Publish(ctx, channel, payload); err != nil {
		metrics.EventsDropped.WithLabelValues("publish_failed").Inc()
		p.logger.Warn().Err(err).Str("channel", channel).Msg("publish failed, event dropped")
		return
	}
	metrics.EventsPublished.WithLabelValues(cat.String()).Inc()
}
