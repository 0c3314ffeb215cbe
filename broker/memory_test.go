package broker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	channel string
	payload []byte
}

func TestBusRoutesBySubscription(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()

	var gotA, gotB []captured
	a := bus.Attach(func(ch string, p []byte) { gotA = append(gotA, captured{ch, p}) })
	b := bus.Attach(func(ch string, p []byte) { gotB = append(gotB, captured{ch, p}) })

	require.NoError(t, a.Subscribe(ctx, "room:lobby"))
	require.NoError(t, b.Subscribe(ctx, "room:other"))

	require.NoError(t, a.Publish(ctx, "room:lobby", []byte("hi")))

	// The publisher receives its own message too, as long as it is
	// subscribed; b is not.
	require.Len(t, gotA, 1)
	assert.Equal(t, "room:lobby", gotA[0].channel)
	assert.Equal(t, "hi", string(gotA[0].payload))
	assert.Empty(t, gotB)

	require.NoError(t, a.Unsubscribe(ctx, "room:lobby"))
	require.NoError(t, b.Publish(ctx, "room:lobby", []byte("gone")))
	assert.Len(t, gotA, 1)
}

func TestBusPreservesOrder(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()

	var got []string
	a := bus.Attach(func(_ string, p []byte) { got = append(got, string(p)) })
	require.NoError(t, a.Subscribe(ctx, "room:lobby"))

	b := bus.Attach(nil)
	for _, msg := range []string{"one", "two", "three"} {
		require.NoError(t, b.Publish(ctx, "room:lobby", []byte(msg)))
	}
	assert.Equal(t, []string{"one", "two", "three"}, got)
}

func TestClosedEndpointRefusesCalls(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()

	var got int
	a := bus.Attach(func(string, []byte) { got++ })
	require.NoError(t, a.Subscribe(ctx, "room:lobby"))
	require.NoError(t, a.Close())

	assert.ErrorIs(t, a.Publish(ctx, "room:lobby", []byte("x")), ErrClosed)
	assert.ErrorIs(t, a.Subscribe(ctx, "room:lobby"), ErrClosed)
	assert.ErrorIs(t, a.Unsubscribe(ctx, "room:lobby"), ErrClosed)

	// Detached: publishes from others no longer reach it.
	b := bus.Attach(nil)
	require.NoError(t, b.Publish(ctx, "room:lobby", []byte("x")))
	assert.Zero(t, got)
}
