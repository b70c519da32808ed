package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"parlor/domain"
	"parlor/utils/log"
)

const channelCapacity = 100

var _ domain.MessageBroker = (*ChannelBroker)(nil)

// ChannelBroker implements domain.MessageBroker on plain Go channels. It is
// process-local: publishers and subscribers share one buffered channel per
// topic/routingKey pair.
type ChannelBroker struct {
	topics map[string]chan domain.Event
	mu     sync.RWMutex
	closed bool
}

// NewChannelBroker creates a new channel-based message broker
func NewChannelBroker() *ChannelBroker {
	return &ChannelBroker{
		topics: make(map[string]chan domain.Event),
	}
}

// makeKey creates a unique key for topic and routingKey
func makeKey(topic, routingKey string) string {
	return topic + ":" + routingKey
}

func (b *ChannelBroker) channel(key string) (chan domain.Event, error) {
	b.mu.RLock()
	ch, ok := b.topics[key]
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("message broker is closed")
	}
	if ok {
		return ch, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("message broker is closed")
	}
	if ch, ok = b.topics[key]; !ok {
		ch = make(chan domain.Event, channelCapacity)
		b.topics[key] = ch
	}
	return ch, nil
}

// Publish sends a payload to a specific topic and routing key. It never
// blocks; a full channel is reported as an error instead.
func (b *ChannelBroker) Publish(ctx context.Context, topic string, routingKey string, payload []byte) error {
	ch, err := b.channel(makeKey(topic, routingKey))
	if err != nil {
		return err
	}

	event := domain.Event{
		Topic:      topic,
		RoutingKey: routingKey,
		Payload:    payload,
		Timestamp:  time.Now(),
	}

	// Close closes topic channels under the write lock; holding the read
	// lock across the send keeps ch open until the select resolves.
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("message broker is closed")
	}

	select {
	case ch <- event:
		log.WithCtx(ctx).Debug("📤 Event published to topic",
			zap.String("topic", topic),
			zap.String("routing_key", routingKey),
			zap.Int("payload_size", len(payload)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("topic channel is full: %s:%s", topic, routingKey)
	}
}

// Subscribe listens for events on a specific topic and routing key
func (b *ChannelBroker) Subscribe(ctx context.Context, topic string, routingKey string) (<-chan domain.Event, error) {
	ch, err := b.channel(makeKey(topic, routingKey))
	if err != nil {
		return nil, err
	}

	log.WithCtx(ctx).Info("📡 Subscribed to topic",
		zap.String("topic", topic),
		zap.String("routing_key", routingKey))
	return ch, nil
}

// Close closes the message broker and all topic channels
func (b *ChannelBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, ch := range b.topics {
		close(ch)
	}
	b.topics = make(map[string]chan domain.Event)

	log.With().Info("🔒 Message broker closed")
	return nil
}

// TopicCount returns the number of active topics (useful for monitoring)
func (b *ChannelBroker) TopicCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics)
}
