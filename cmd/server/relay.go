package main

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/benvon/voice-todo/internal/app"
	"github.com/benvon/voice-todo/internal/queue"
)

const relayRetryDelay = 5 * time.Second

// eventRelay moves worker events from RabbitMQ onto the local bus and redials
// when the connection drops.
type eventRelay struct {
	url     string
	bus     *queue.Bus
	logger  *zap.Logger
	current atomic.Pointer[queue.RabbitMQBroker]
}

func newEventRelay(url string, broker *queue.RabbitMQBroker, bus *queue.Bus, logger *zap.Logger) *eventRelay {
	r := &eventRelay{url: url, bus: bus, logger: logger}
	r.current.Store(broker)
	return r
}

// HealthCheck reports on the live broker connection.
func (r *eventRelay) HealthCheck(ctx context.Context) error {
	b := r.current.Load()
	if b == nil {
		return errors.New("rabbitmq reconnecting")
	}
	return b.HealthCheck(ctx)
}

// Run relays until ctx ends, then closes the connection.
func (r *eventRelay) Run(ctx context.Context) {
	for {
		broker := r.current.Load()
		if broker == nil {
			next, err := app.ConnectBroker(ctx, r.url, r.logger)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				r.logger.Error("event_relay_reconnect_failed", zap.Error(err))
				if !sleep(ctx, time.Minute) {
					return
				}
				continue
			}
			r.current.Store(next)
			broker = next
		}

		err := queue.Relay(ctx, broker, r.bus, r.logger)
		r.current.Store(nil)
		_ = broker.Close()
		if ctx.Err() != nil {
			return
		}
		r.logger.Warn("event_relay_stopped_reconnecting", zap.Error(err))
		if !sleep(ctx, relayRetryDelay) {
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
