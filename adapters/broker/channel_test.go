package broker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribeRoundTrip(t *testing.T) {
	b := NewChannelBroker()
	defer b.Close()
	ctx := context.Background()

	events, err := b.Subscribe(ctx, "chat.turns", "archive")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "chat.turns", "archive", []byte("payload")))

	event := <-events
	assert.Equal(t, "chat.turns", event.Topic)
	assert.Equal(t, "archive", event.RoutingKey)
	assert.Equal(t, []byte("payload"), event.Payload)
	assert.False(t, event.Timestamp.IsZero())
}

func TestRoutingKeysAreSeparateChannels(t *testing.T) {
	b := NewChannelBroker()
	defer b.Close()
	ctx := context.Background()

	first, err := b.Subscribe(ctx, "chat.turns", "archive")
	require.NoError(t, err)
	second, err := b.Subscribe(ctx, "chat.turns", "audit")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "chat.turns", "audit", []byte("for audit")))

	select {
	case event := <-second:
		assert.Equal(t, []byte("for audit"), event.Payload)
	default:
		t.Fatal("expected a buffered event on the audit key")
	}
	select {
	case event := <-first:
		t.Fatalf("archive key received a stray event: %q", event.Payload)
	default:
	}

	assert.Equal(t, 2, b.TopicCount())
}

func TestPublishFullChannel(t *testing.T) {
	b := NewChannelBroker()
	defer b.Close()
	ctx := context.Background()

	for i := 0; i < channelCapacity; i++ {
		require.NoError(t, b.Publish(ctx, "chat.turns", "archive", []byte(fmt.Sprintf("event %d", i))))
	}

	err := b.Publish(ctx, "chat.turns", "archive", []byte("one too many"))
	assert.ErrorContains(t, err, "topic channel is full")
}

func TestSubscriptionDrainsAfterClose(t *testing.T) {
	b := NewChannelBroker()
	ctx := context.Background()

	events, err := b.Subscribe(ctx, "chat.turns", "archive")
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, "chat.turns", "archive", []byte("buffered")))

	require.NoError(t, b.Close())

	event, ok := <-events
	require.True(t, ok, "buffered events survive the close")
	assert.Equal(t, []byte("buffered"), event.Payload)

	_, ok = <-events
	assert.False(t, ok, "channel is closed once drained")
}

func TestClosedBrokerRejectsEverything(t *testing.T) {
	b := NewChannelBroker()
	require.NoError(t, b.Close())

	err := b.Publish(context.Background(), "chat.turns", "archive", []byte("late"))
	assert.ErrorContains(t, err, "closed")

	_, err = b.Subscribe(context.Background(), "chat.turns", "archive")
	assert.ErrorContains(t, err, "closed")

	assert.NoError(t, b.Close(), "closing twice is harmless")
	assert.Zero(t, b.TopicCount())
}

func TestPublishRacingClose(t *testing.T) {
	b := NewChannelBroker()
	ctx := context.Background()

	// Publishers race Close. A publish that loses the race must come back
	// as a closed-broker error, never a send on a closed channel.
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < 2000; j++ {
				err := b.Publish(ctx, "chat.turns", "archive", []byte("turn"))
				if err != nil && strings.Contains(err.Error(), "closed") {
					return
				}
			}
		}()
	}

	close(start)
	require.NoError(t, b.Close())
	wg.Wait()

	err := b.Publish(ctx, "chat.turns", "archive", []byte("late"))
	assert.ErrorContains(t, err, "closed")
}
