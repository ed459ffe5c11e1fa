package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	// DefaultExchangeName is the topic exchange lifecycle events are published to
	DefaultExchangeName = "voice_todo_events"
	// DefaultDeadLetterExchangeName receives events consumers rejected
	DefaultDeadLetterExchangeName = "voice_todo_events_dlx"
	// DefaultDLQName is the default dead letter queue name
	DefaultDLQName = "voice_todo_events_dlq"
	// eventBindingKey matches every event routing key
	eventBindingKey = "events.#"
)

// RabbitMQBroker implements EventPublisher and EventConsumer using RabbitMQ
type RabbitMQBroker struct {
	conn         *amqp.Connection
	logger       *zap.Logger
	exchangeName string
	dlxName      string
	dlqName      string

	mu      sync.Mutex
	channel *amqp.Channel
}

var (
	_ EventPublisher = (*RabbitMQBroker)(nil)
	_ EventConsumer  = (*RabbitMQBroker)(nil)
)

// NewRabbitMQBroker connects to amqpURL and declares the exchanges and DLQ
func NewRabbitMQBroker(amqpURL string, logger *zap.Logger) (*RabbitMQBroker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	broker := &RabbitMQBroker{
		conn:         conn,
		channel:      ch,
		logger:       logger,
		exchangeName: DefaultExchangeName,
		dlxName:      DefaultDeadLetterExchangeName,
		dlqName:      DefaultDLQName,
	}

	if err := broker.setup(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to setup exchanges: %w", err)
	}

	return broker, nil
}

// setup configures exchanges and the dead letter queue
func (b *RabbitMQBroker) setup() error {
	err := b.channel.ExchangeDeclare(
		b.exchangeName,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	err = b.channel.ExchangeDeclare(
		b.dlxName,
		"fanout",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare dead letter exchange: %w", err)
	}

	_, err = b.channel.QueueDeclare(
		b.dlqName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare DLQ: %w", err)
	}

	err = b.channel.QueueBind(b.dlqName, "", b.dlxName, false, nil)
	if err != nil {
		return fmt.Errorf("failed to bind DLQ: %w", err)
	}
	return nil
}

// Publish sends event to the topic exchange
func (b *RabbitMQBroker) Publish(ctx context.Context, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID.String(),
		Timestamp:    event.CreatedAt,
		Type:         string(event.Type),
	}

	// Calculate TTL from NotAfter if set
	if event.NotAfter != nil {
		ttl := time.Until(*event.NotAfter)
		if ttl <= 0 {
			return nil
		}
		publishing.Expiration = fmt.Sprintf("%d", ttl.Milliseconds())
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	err = b.channel.PublishWithContext(
		ctx,
		b.exchangeName,
		event.RoutingKey(),
		false, // mandatory
		false, // immediate
		publishing,
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("event_published",
		zap.String("event_id", event.ID.String()),
		zap.String("type", string(event.Type)),
		zap.String("user_id", event.UserID.String()),
	)
	return nil
}

// Consume declares an exclusive queue bound to every event and delivers
// from it until ctx ends. Each consumer (one per server replica) sees every event.
func (b *RabbitMQBroker) Consume(ctx context.Context, prefetchCount int) (<-chan *Message, <-chan error, error) {
	// Dedicated channel for consuming
	consumeCh, err := b.conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create consumer channel: %w", err)
	}

	if err := consumeCh.Qos(prefetchCount, 0, false); err != nil {
		_ = consumeCh.Close()
		return nil, nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	q, err := consumeCh.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		amqp.Table{"x-dead-letter-exchange": b.dlxName},
	)
	if err != nil {
		_ = consumeCh.Close()
		return nil, nil, fmt.Errorf("failed to declare consumer queue: %w", err)
	}
	if err := consumeCh.QueueBind(q.Name, eventBindingKey, b.exchangeName, false, nil); err != nil {
		_ = consumeCh.Close()
		return nil, nil, fmt.Errorf("failed to bind consumer queue: %w", err)
	}

	deliveries, err := consumeCh.Consume(
		q.Name,
		"",    // consumer tag (empty = auto-generate)
		false, // auto-ack (false = manual ack required)
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		_ = consumeCh.Close()
		return nil, nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	msgChan := make(chan *Message, prefetchCount)
	errChan := make(chan error, 1)

	go func() {
		defer close(msgChan)
		defer close(errChan)
		defer func() { _ = consumeCh.Close() }()

		for {
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-deliveries:
				if !ok {
					// Channel closed (connection lost)
					errChan <- errors.New("delivery channel closed")
					return
				}

				var event Event
				if err := json.Unmarshal(delivery.Body, &event); err != nil {
					// Invalid message, send to DLQ
					_ = delivery.Nack(false, false)
					select {
					case errChan <- fmt.Errorf("failed to unmarshal event: %w", err):
					default:
					}
					continue
				}

				if event.IsExpired(time.Now()) {
					_ = delivery.Ack(false)
					continue
				}

				msg := &Message{
					Event:       &event,
					DeliveryTag: delivery.DeliveryTag,
					Channel:     consumeCh,
				}

				select {
				case <-ctx.Done():
					_ = delivery.Nack(false, true)
					return
				case msgChan <- msg:
				}
			}
		}
	}()

	return msgChan, errChan, nil
}

// HealthCheck reports whether the connection and publish channel are open
func (b *RabbitMQBroker) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.conn == nil || b.conn.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.channel == nil || b.channel.IsClosed() {
		return errors.New("rabbitmq channel closed")
	}
	return nil
}

// Close closes the broker connection
func (b *RabbitMQBroker) Close() error {
	var err error
	b.mu.Lock()
	if b.channel != nil {
		err = b.channel.Close()
	}
	b.mu.Unlock()
	if b.conn != nil {
		if closeErr := b.conn.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}
