package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// BusConsumer consumes envelopes with manual acknowledgement. Handler
// failure nacks with requeue, so delivery is at-least-once.
type BusConsumer struct {
	client   *RabbitMQ
	prefetch int
	logger   *zap.Logger
}

func NewBusConsumer(client *RabbitMQ, prefetch int, logger *zap.Logger) *BusConsumer {
	if prefetch < 1 {
		prefetch = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BusConsumer{
		client:   client,
		prefetch: prefetch,
		logger:   logger,
	}
}

func (c *BusConsumer) Consume(ctx context.Context, topic string, handler MessageHandler) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("consumer is not initialized")
	}
	if topic == "" {
		return fmt.Errorf("topic is required")
	}
	if handler == nil {
		return fmt.Errorf("message handler is required")
	}

	backoff := reconnectBackoff
	for {
		err := c.consumeOnce(ctx, topic, handler)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			backoff = reconnectBackoff
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (c *BusConsumer) consumeOnce(ctx context.Context, topic string, handler MessageHandler) error {
	ch, err := c.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck // best-effort channel close

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		topic,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to consume topic %q: %w", topic, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}

			if err := c.handleDelivery(ctx, d, handler); err != nil {
				return err
			}
		}
	}
}

func (c *BusConsumer) handleDelivery(ctx context.Context, d amqp.Delivery, handler MessageHandler) error {
	var env Envelope
	if err := json.Unmarshal(d.Body, &env); err != nil {
		c.logger.Warn("rejecting message: invalid JSON",
			zap.Error(err),
			zap.String("routingKey", d.RoutingKey),
		)
		if rejectErr := d.Reject(false); rejectErr != nil {
			return fmt.Errorf("failed to reject invalid message: %w", rejectErr)
		}
		return nil
	}

	if err := env.Validate(); err != nil {
		c.logger.Warn("rejecting message: validation failed",
			zap.Error(err),
			zap.String("sagaId", env.SagaID),
		)
		if rejectErr := d.Reject(false); rejectErr != nil {
			return fmt.Errorf("failed to reject invalid envelope: %w", rejectErr)
		}
		return nil
	}

	if err := handler(ctx, env); err != nil {
		if nackErr := d.Nack(false, true); nackErr != nil {
			return fmt.Errorf("handler failed and nack failed: %w", nackErr)
		}
		return nil
	}

	if err := d.Ack(false); err != nil {
		return fmt.Errorf("failed to ack delivery: %w", err)
	}

	return nil
}

func (c *BusConsumer) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
