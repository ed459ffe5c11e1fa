package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Relay consumes broker messages and republishes them on bus until ctx ends
// or the delivery channel closes. Expired events are acknowledged and dropped.
func Relay(ctx context.Context, consumer EventConsumer, bus EventPublisher, logger *zap.Logger) error {
	msgs, errs, err := consumer.Consume(ctx, 32)
	if err != nil {
		return fmt.Errorf("failed to start consuming events: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Warn("event_consumer_error", zap.Error(err))
		case msg, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("event consumer channel closed")
			}
			relayOne(ctx, msg, bus, logger)
		}
	}
}

func relayOne(ctx context.Context, msg MessageInterface, bus EventPublisher, logger *zap.Logger) {
	event := msg.GetEvent()
	if event == nil {
		_ = msg.Nack(false)
		return
	}
	if event.IsExpired(time.Now()) {
		logger.Debug("event_expired", zap.String("event_id", event.ID.String()))
		_ = msg.Ack()
		return
	}
	if err := bus.Publish(ctx, event); err != nil {
		logger.Warn("event_relay_failed", zap.String("event_id", event.ID.String()), zap.Error(err))
		_ = msg.Nack(false)
		return
	}
	if err := msg.Ack(); err != nil {
		logger.Warn("event_ack_failed", zap.String("event_id", event.ID.String()), zap.Error(err))
	}
}
