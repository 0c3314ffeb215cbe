package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBroker records every call so tests can assert on subscribe and
// publish traffic without a live broker.
type fakeBroker struct {
	mu           sync.Mutex
	subscribed   []string
	unsubscribed []string
	published    []publishedMsg

	failSubscribe   bool
	failUnsubscribe bool
	failPublish     bool
}

type publishedMsg struct {
	channel string
	payload []byte
}

var errFakeBroker = errors.New("broker unavailable")

func (f *fakeBroker) Publish(_ context.Context, channel string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPublish {
		return errFakeBroker
	}
	f.published = append(f.published, publishedMsg{channel: channel, payload: payload})
	return nil
}

func (f *fakeBroker) Subscribe(_ context.Context, channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSubscribe {
		return errFakeBroker
	}
	f.subscribed = append(f.subscribed, channel)
	return nil
}

func (f *fakeBroker) Unsubscribe(_ context.Context, channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUnsubscribe {
		return errFakeBroker
	}
	f.unsubscribed = append(f.unsubscribed, channel)
	return nil
}

func (f *fakeBroker) Close() error { return nil }

func (f *fakeBroker) subscribeCount(channel string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ch := range f.subscribed {
		if ch == channel {
			n++
		}
	}
	return n
}

func (f *fakeBroker) unsubscribeCount(channel string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ch := range f.unsubscribed {
		if ch == channel {
			n++
		}
	}
	return n
}

func (f *fakeBroker) publishedOn(channel string) []RoomEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var events []RoomEvent
	for _, msg := range f.published {
		if msg.channel != channel {
			continue
		}
		var ev RoomEvent
		if err := json.Unmarshal(msg.payload, &ev); err == nil {
			events = append(events, ev)
		}
	}
	return events
}

// fakeSink collects deliveries per session.
type fakeSink struct {
	mu        sync.Mutex
	delivered map[string][][]byte
}

func newFakeSink() *fakeSink {
	return &fakeSink{delivered: map[string][][]byte{}}
}

func (s *fakeSink) Deliver(sessionID string, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered[sessionID] = append(s.delivered[sessionID], payload)
}

func (s *fakeSink) count(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delivered[sessionID])
}

func newTestRooms(b *fakeBroker) (*Rooms, *SessionRegistry) {
	logger := zerolog.Nop()
	sessions := NewSessionRegistry()
	subs := NewChannelSubscriber(b, logger)
	pub := NewPublisher(b, "node-test", logger)
	return NewRooms(subs, pub, sessions, logger), sessions
}

func TestJoinSubscribesOncePerRoom(t *testing.T) {
	b := &fakeBroker{}
	rooms, sessions := newTestRooms(b)
	ctx := context.Background()

	sessions.RegisterConnect("s1", "ana")
	sessions.RegisterConnect("s2", "bor")

	rooms.Join(ctx, "lobby", "s1", "ana")
	rooms.Join(ctx, "lobby", "s2", "bor")

	assert.Equal(t, 1, b.subscribeCount("room:lobby"))
	assert.Equal(t, 2, rooms.ParticipantCount("lobby"))

	events := b.publishedOn("room:lobby")
	require.Len(t, events, 2)
	assert.Equal(t, EventJoin, events[0].Type)
	require.NotNil(t, events[0].ParticipantCount)
	assert.Equal(t, 1, *events[0].ParticipantCount)
	require.NotNil(t, events[1].ParticipantCount)
	assert.Equal(t, 2, *events[1].ParticipantCount)
}

func TestLastLeaveUnsubscribesAndPrunes(t *testing.T) {
	b := &fakeBroker{}
	rooms, sessions := newTestRooms(b)
	ctx := context.Background()

	sessions.RegisterConnect("s1", "ana")
	sessions.RegisterConnect("s2", "bor")
	rooms.Join(ctx, "lobby", "s1", "ana")
	rooms.Join(ctx, "lobby", "s2", "bor")

	require.True(t, rooms.Leave(ctx, "lobby", "s1"))
	assert.Equal(t, 0, b.unsubscribeCount("room:lobby"), "room still populated")

	require.True(t, rooms.Leave(ctx, "lobby", "s2"))
	assert.Equal(t, 1, b.unsubscribeCount("room:lobby"))
	assert.Equal(t, 0, rooms.RoomCount())

	events := b.publishedOn("room:lobby")
	require.Len(t, events, 4)
	last := events[3]
	assert.Equal(t, EventLeave, last.Type)
	require.NotNil(t, last.ParticipantCount)
	assert.Equal(t, 0, *last.ParticipantCount, "final leave must carry zero")
}

func TestLeaveIsIdempotent(t *testing.T) {
	b := &fakeBroker{}
	rooms, sessions := newTestRooms(b)
	ctx := context.Background()

	sessions.RegisterConnect("s1", "ana")
	rooms.Join(ctx, "lobby", "s1", "ana")

	require.True(t, rooms.Leave(ctx, "lobby", "s1"))
	published := len(b.publishedOn("room:lobby"))

	// Second leave: absent room, nothing emitted, no extra unsubscribe.
	assert.False(t, rooms.Leave(ctx, "lobby", "s1"))
	assert.Equal(t, published, len(b.publishedOn("room:lobby")))
	assert.Equal(t, 1, b.unsubscribeCount("room:lobby"))
}

func TestLeaveNonMemberIgnored(t *testing.T) {
	b := &fakeBroker{}
	rooms, sessions := newTestRooms(b)
	ctx := context.Background()

	sessions.RegisterConnect("s1", "ana")
	sessions.RegisterConnect("s2", "bor")
	rooms.Join(ctx, "lobby", "s1", "ana")

	assert.False(t, rooms.Leave(ctx, "lobby", "s2"))
	assert.Equal(t, 1, rooms.ParticipantCount("lobby"))
}

func TestRejoinAfterEmptyResubscribes(t *testing.T) {
	b := &fakeBroker{}
	rooms, sessions := newTestRooms(b)
	ctx := context.Background()

	sessions.RegisterConnect("s1", "ana")
	rooms.Join(ctx, "lobby", "s1", "ana")
	rooms.Leave(ctx, "lobby", "s1")
	rooms.Join(ctx, "lobby", "s1", "ana")

	assert.Equal(t, 2, b.subscribeCount("room:lobby"))
	assert.Equal(t, 1, b.unsubscribeCount("room:lobby"))
}

func TestJoinSwitchesRooms(t *testing.T) {
	b := &fakeBroker{}
	rooms, sessions := newTestRooms(b)
	ctx := context.Background()

	sessions.RegisterConnect("s1", "ana")
	rooms.Join(ctx, "alpha", "s1", "ana")
	rooms.Join(ctx, "beta", "s1", "ana")

	current, ok := rooms.CurrentRoom("s1")
	require.True(t, ok)
	assert.Equal(t, "beta", current)
	assert.Equal(t, 0, rooms.ParticipantCount("alpha"))
	assert.Equal(t, 1, b.unsubscribeCount("room:alpha"))
	assert.Equal(t, 1, b.subscribeCount("room:beta"))

	// Leaving alpha happened implicitly and published its LEAVE.
	alpha := b.publishedOn("room:alpha")
	require.Len(t, alpha, 2)
	assert.Equal(t, EventLeave, alpha[1].Type)
}

func TestRejoinSameRoomDoesNotLeave(t *testing.T) {
	b := &fakeBroker{}
	rooms, sessions := newTestRooms(b)
	ctx := context.Background()

	sessions.RegisterConnect("s1", "ana")
	rooms.Join(ctx, "lobby", "s1", "ana")
	rooms.Join(ctx, "lobby", "s1", "ana")

	assert.Equal(t, 1, rooms.ParticipantCount("lobby"))
	assert.Equal(t, 0, b.unsubscribeCount("room:lobby"))
	assert.Equal(t, 1, b.subscribeCount("room:lobby"))
}

func TestSendChat(t *testing.T) {
	b := &fakeBroker{}
	rooms, sessions := newTestRooms(b)
	ctx := context.Background()

	sessions.RegisterConnect("s1", "ana")
	rooms.Join(ctx, "lobby", "s1", "ana")

	require.True(t, rooms.SendChat(ctx, "lobby", "s1", "hello"))
	events := b.publishedOn("room:lobby")
	chat := events[len(events)-1]
	assert.Equal(t, EventChat, chat.Type)
	assert.Equal(t, "ana", chat.Sender)
	assert.Equal(t, "s1", chat.SenderID)
	assert.Equal(t, "hello", chat.Message)
	assert.Nil(t, chat.ParticipantCount)
}

func TestSendChatRejections(t *testing.T) {
	b := &fakeBroker{}
	rooms, sessions := newTestRooms(b)
	ctx := context.Background()

	// Unknown session.
	assert.False(t, rooms.SendChat(ctx, "lobby", "ghost", "boo"))

	// Known session, not joined anywhere.
	sessions.RegisterConnect("s1", "ana")
	assert.False(t, rooms.SendChat(ctx, "lobby", "s1", "hi"))

	// Joined to a different room.
	rooms.Join(ctx, "alpha", "s1", "ana")
	published := len(b.publishedOn("room:lobby"))
	assert.False(t, rooms.SendChat(ctx, "lobby", "s1", "hi"))
	assert.Equal(t, published, len(b.publishedOn("room:lobby")))
}

func TestDisconnectSessionDrainsRoom(t *testing.T) {
	b := &fakeBroker{}
	rooms, sessions := newTestRooms(b)
	ctx := context.Background()

	sessions.RegisterConnect("s1", "ana")
	rooms.Join(ctx, "lobby", "s1", "ana")

	require.True(t, rooms.DisconnectSession(ctx, "s1"))
	_, ok := rooms.CurrentRoom("s1")
	assert.False(t, ok)
	assert.Equal(t, 1, b.unsubscribeCount("room:lobby"))

	// A session that was never in a room is a no-op.
	assert.False(t, rooms.DisconnectSession(ctx, "s1"))
}

func TestJoinPublishFailureDoesNotBreakMembership(t *testing.T) {
	b := &fakeBroker{failPublish: true}
	rooms, sessions := newTestRooms(b)
	ctx := context.Background()

	sessions.RegisterConnect("s1", "ana")
	rooms.Join(ctx, "lobby", "s1", "ana")

	// Publish was dropped but local state and subscription stand.
	assert.Equal(t, 1, rooms.ParticipantCount("lobby"))
	assert.Equal(t, 1, b.subscribeCount("room:lobby"))
}
