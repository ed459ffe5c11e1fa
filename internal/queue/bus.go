package queue

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// subscriberBuffer is how many events a slow SSE client may lag behind.
const subscriberBuffer = 16

// Bus fans events out to in-process subscribers, keyed by user. It is the
// last hop before the browser and satisfies EventPublisher so the scanner can
// publish to it directly when no broker is configured.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]map[chan *Event]struct{}
	closed bool
}

var _ EventPublisher = (*Bus)(nil)

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{subs: make(map[uuid.UUID]map[chan *Event]struct{})}
}

// Publish delivers event to every subscriber of its user. Subscribers that are
// behind lose the event rather than block the publisher.
func (b *Bus) Publish(_ context.Context, event *Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[event.UserID] {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// Subscribe registers a subscriber for userID. The returned cancel func
// unregisters it and closes the channel.
func (b *Bus) Subscribe(userID uuid.UUID) (<-chan *Event, func()) {
	ch := make(chan *Event, subscriberBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[chan *Event]struct{})
	}
	b.subs[userID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[userID][ch]; !ok {
				return
			}
			delete(b.subs[userID], ch)
			if len(b.subs[userID]) == 0 {
				delete(b.subs, userID)
			}
			close(ch)
		})
	}
}

// Subscribers returns the number of open subscriptions for userID.
func (b *Bus) Subscribers(userID uuid.UUID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[userID])
}

// Close closes every subscriber channel
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, set := range b.subs {
		for ch := range set {
			close(ch)
		}
	}
	b.subs = make(map[uuid.UUID]map[chan *Event]struct{})
	b.closed = true
	return nil
}

// HealthCheck always succeeds
func (b *Bus) HealthCheck(context.Context) error { return nil }
