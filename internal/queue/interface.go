package queue

import (
	"context"
)

// MessageInterface defines the interface for queue messages
// This enables better testability by allowing mock implementations
type MessageInterface interface {
	Ack() error
	Nack(requeue bool) error
	GetEvent() *Event
}

// EventPublisher sends events to the broker
type EventPublisher interface {
	// Publish sends one event. Expired events are dropped by the broker.
	Publish(ctx context.Context, event *Event) error

	// Close closes the broker connection
	Close() error

	// HealthCheck verifies the broker connection is healthy
	HealthCheck(ctx context.Context) error
}

// EventConsumer receives events from the broker
type EventConsumer interface {
	// Consume returns a channel of messages for this consumer. Every consumer
	// receives every event. The caller acknowledges each message.
	// Prefetch controls how many unacknowledged messages the consumer can hold
	// Returns a channel that will be closed when the context is cancelled or an error occurs
	Consume(ctx context.Context, prefetchCount int) (<-chan *Message, <-chan error, error)

	// Close closes the broker connection
	Close() error

	// HealthCheck verifies the broker connection is healthy
	HealthCheck(ctx context.Context) error
}
