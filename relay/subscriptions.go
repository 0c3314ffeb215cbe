package relay

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/FilipGjorgjeski/klepetalnica/broker"
	"github.com/FilipGjorgjeski/klepetalnica/internal/metrics"
)

// Subscribe and unsubscribe run with membership locks held, so a
// hung broker call must not stall joins and leaves indefinitely.
const subscribeTimeout = 2 * time.Second

// ChannelSubscriber is the sole owner of "is this instance listening
// for room X" at the broker. Room channels come and go with local
// membership; the fixed global channels are subscribed once at
// startup and never released. The subscribed-set check makes repeated
// subscribe and unsubscribe calls no-ops, so racing membership
// transitions cannot double-subscribe a channel.
type ChannelSubscriber struct {
	broker broker.Broker
	logger zerolog.Logger

	mu    sync.Mutex
	rooms map[string]struct{}
}

func NewChannelSubscriber(b broker.Broker, logger zerolog.Logger) *ChannelSubscriber {
	return &ChannelSubscriber{
		broker: b,
		logger: logger,
		rooms:  map[string]struct{}{},
	}
}

// SubscribeGlobals registers the fixed channels. Unlike room
// subscriptions this is a startup requirement, so failures surface.
func (s *ChannelSubscriber) SubscribeGlobals(ctx context.Context) error {
	for _, ch := range GlobalChannels() {
		sctx, cancel := context.WithTimeout(ctx, subscribeTimeout)
		err := s.broker.Subscribe(sctx, ch)
		cancel()
		if err != nil {
			return err
		}
		s.logger.Info().Str("channel", ch).Msg("global channel subscribed")
	}
	return nil
}

// Subscribe registers the room's channel unless already subscribed.
// Broker failures are logged and swallowed: a missed subscription is
// the accepted failure mode, not a caller error.
func (s *ChannelSubscriber) Subscribe(ctx context.Context, roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; ok {
		s.logger.Debug().Str("room", roomID).Msg("already subscribed")
		return
	}
	sctx, cancel := context.WithTimeout(ctx, subscribeTimeout)
	defer cancel()
	if err := s.broker.Subscribe(sctx, RoomChannel(roomID)); err != nil {
		s.logger.Error().Err(err).Str("room", roomID).Msg("room subscribe failed")
		return
	}
	s.rooms[roomID] = struct{}{}
	metrics.ChannelsSubscribed.Set(float64(len(s.rooms)))
	s.logger.Info().Str("room", roomID).Msg("room channel subscribed")
}

// Unsubscribe releases the room's channel unless not subscribed. The
// record is dropped even if the broker call fails, so a stale entry
// cannot block a later resubscribe.
func (s *ChannelSubscriber) Unsubscribe(ctx context.Context, roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; !ok {
		s.logger.Debug().Str("room", roomID).Msg("not subscribed")
		return
	}
	delete(s.rooms, roomID)
	metrics.ChannelsSubscribed.Set(float64(len(s.rooms)))
	sctx, cancel := context.WithTimeout(ctx, subscribeTimeout)
	defer cancel()
	if err := s.broker.Unsubscribe(sctx, RoomChannel(roomID)); err != nil {
		s.logger.Error().Err(err).Str("room", roomID).Msg("room unsubscribe failed")
		return
	}
	s.logger.Info().Str("room", roomID).Msg("room channel unsubscribed")
}

func (s *ChannelSubscriber) IsSubscribed(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rooms[roomID]
	return ok
}

// ListSubscribed returns the subscribed room ids, sorted for stable
// inspection.
func (s *ChannelSubscriber) ListSubscribed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		rooms = append(rooms, id)
	}
	sort.Strings(rooms)
	return rooms
}
