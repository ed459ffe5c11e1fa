package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func TestBusDeliversOnlyToOwner(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	alice, bob := uuid.New(), uuid.New()
	aliceCh, cancelAlice := bus.Subscribe(alice)
	defer cancelAlice()
	bobCh, cancelBob := bus.Subscribe(bob)
	defer cancelBob()

	event := NewReminderArchivedEvent(alice, []uuid.UUID{uuid.New()}, time.Now())
	if err := bus.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case got := <-aliceCh:
		if got.ID != event.ID {
			t.Errorf("got event %s, want %s", got.ID, event.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("alice did not receive the event")
	}
	select {
	case got := <-bobCh:
		t.Fatalf("bob received %+v", got)
	default:
	}
}

func TestBusSlowSubscriberDoesNotBlock(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	user := uuid.New()
	_, cancel := bus.Subscribe(user)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*3; i++ {
			_ = bus.Publish(context.Background(), NewReminderArchivedEvent(user, nil, time.Now()))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
}

func TestBusCancelAndClose(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	user := uuid.New()
	ch, cancel := bus.Subscribe(user)
	if got := bus.Subscribers(user); got != 1 {
		t.Fatalf("Subscribers() = %d, want 1", got)
	}
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Error("channel still open after cancel")
	}
	if got := bus.Subscribers(user); got != 0 {
		t.Errorf("Subscribers() = %d after cancel", got)
	}

	other, cancelOther := bus.Subscribe(user)
	_ = bus.Close()
	if _, ok := <-other; ok {
		t.Error("channel still open after Close")
	}
	cancelOther()

	late, _ := bus.Subscribe(user)
	if _, ok := <-late; ok {
		t.Error("subscribe after Close returned an open channel")
	}
}

type mockMessage struct {
	event  *Event
	acked  bool
	nacked bool
}

var _ MessageInterface = (*mockMessage)(nil)

func (m *mockMessage) Ack() error { m.acked = true; return nil }
func (m *mockMessage) Nack(requeue bool) error { m.nacked = true; return nil }
func (m *mockMessage) GetEvent() *Event { return m.event }

type mockPublisher struct {
	PublishFunc func(ctx context.Context, event *Event) error
}

var _ EventPublisher = (*mockPublisher)(nil)

func (m *mockPublisher) Publish(ctx context.Context, event *Event) error {
	return m.PublishFunc(ctx, event)
}
func (m *mockPublisher) Close() error { return nil }
func (m *mockPublisher) HealthCheck(context.Context) error { return nil }

func TestRelayOne(t *testing.T) {
	t.Parallel()

	expired := NewReminderArchivedEvent(uuid.New(), nil, time.Now())
	past := time.Now().Add(-time.Minute)
	expired.NotAfter = &past

	tests := []struct {
		name        string
		event       *Event
		publishErr  error
		wantPublish bool
		wantAck     bool
		wantNack    bool
	}{
		{name: "delivered", event: NewReminderArchivedEvent(uuid.New(), nil, time.Now()), wantPublish: true, wantAck: true},
		{name: "expired", event: expired, wantAck: true},
		{name: "no event", event: nil, wantNack: true},
		{name: "publish failure", event: NewReminderArchivedEvent(uuid.New(), nil, time.Now()), publishErr: errors.New("boom"), wantPublish: true, wantNack: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			published := false
			pub := &mockPublisher{PublishFunc: func(context.Context, *Event) error {
				published = true
				return tt.publishErr
			}}
			msg := &mockMessage{event: tt.event}
			relayOne(context.Background(), msg, pub, zap.NewNop())

			if published != tt.wantPublish || msg.acked != tt.wantAck || msg.nacked != tt.wantNack {
				t.Errorf("published=%v acked=%v nacked=%v, want %v/%v/%v",
					published, msg.acked, msg.nacked, tt.wantPublish, tt.wantAck, tt.wantNack)
			}
		})
	}
}
