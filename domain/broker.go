package domain

import (
	"context"
	"time"
)

// TurnTopic is the broker topic finished turns are published on. All
// sessions share one routing key; the session travels inside the event.
const (
	TurnTopic        = "chat.turns"
	TurnArchiveRoute = "archive"
)

// MessageBroker defines the interface for in-process message broker operations
type MessageBroker interface {
	// Publish sends a payload to a specific topic/channel with a routing key
	Publish(ctx context.Context, topic string, routingKey string, payload []byte) error

	// Subscribe listens for events on a specific topic/channel and routing key
	Subscribe(ctx context.Context, topic string, routingKey string) (<-chan Event, error)

	// Close closes the message broker connection
	Close() error
}

// Event represents a message received from the broker
type Event struct {
	Topic      string
	RoutingKey string
	Payload    []byte
	Timestamp  time.Time
}

// TurnEvent is the payload published on TurnTopic after every turn.
type TurnEvent struct {
	SessionID string       `json:"session_id"`
	Records   []TurnRecord `json:"records"`
}
