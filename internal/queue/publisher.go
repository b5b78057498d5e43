package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/studentpen/pen-batch-engine/internal/observability"
	"go.uber.org/zap"
)

const (
	defaultConfirmTimeout = 5 * time.Second
	retryDrainInterval    = 2 * time.Second
)

// BusPublisher publishes envelopes with publisher confirms. A publish whose
// acknowledgement is negative or missing within the confirm timeout is
// re-queued with the same payload and drained by Run; receivers stay
// idempotent through the orchestrator's state/outcome match rule, so the
// duplicate is harmless.
type BusPublisher struct {
	client         *RabbitMQ
	confirmTimeout time.Duration
	logger         *zap.Logger
	metrics        *observability.Metrics

	mu      sync.Mutex
	pending []pendingPublish
	wake    chan struct{}
}

type pendingPublish struct {
	Topic string
	Body  []byte
	ID    string
}

func NewBusPublisher(client *RabbitMQ, confirmTimeout time.Duration, logger *zap.Logger) *BusPublisher {
	if confirmTimeout <= 0 {
		confirmTimeout = defaultConfirmTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BusPublisher{
		client:         client,
		confirmTimeout: confirmTimeout,
		logger:         logger,
		wake:           make(chan struct{}, 1),
	}
}

func (p *BusPublisher) SetMetrics(metrics *observability.Metrics) {
	if p == nil {
		return
	}
	p.metrics = metrics
}

// Publish fires the envelope at the broker. When the broker is unreachable
// or withholds the acknowledgement, the payload is queued for retry and the
// call still succeeds; only a malformed envelope is an error.
func (p *BusPublisher) Publish(ctx context.Context, topic string, env Envelope) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("publisher is not initialized")
	}
	if topic == "" {
		return fmt.Errorf("topic is required")
	}
	if err := env.Validate(); err != nil {
		return fmt.Errorf("invalid envelope: %w", err)
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if err := p.tryPublish(ctx, topic, body, env.SagaID); err != nil {
		p.logger.Warn("publish unacknowledged, queueing for retry",
			zap.String("topic", topic),
			zap.String("sagaId", env.SagaID),
			zap.Error(err),
		)
		p.enqueue(pendingPublish{Topic: topic, Body: body, ID: env.SagaID})
		p.metrics.IncPublishRetry()
		return nil
	}

	p.metrics.IncEventPublished(topic)
	return nil
}

func (p *BusPublisher) tryPublish(ctx context.Context, topic string, body []byte, messageID string) error {
	ch, err := p.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		MessageId:    messageID,
		Body:         body,
	}

	confirmation, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", topic, false, false, publishing)
	if err != nil {
		return fmt.Errorf("failed to publish to topic %q: %w", topic, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, p.confirmTimeout)
	defer cancel()

	acked, err := confirmation.WaitContext(waitCtx)
	if err != nil {
		return fmt.Errorf("publish confirmation timed out for topic %q: %w", topic, err)
	}
	if !acked {
		return fmt.Errorf("publish to topic %q was nacked by the broker", topic)
	}

	return nil
}

func (p *BusPublisher) enqueue(item pendingPublish) {
	p.mu.Lock()
	p.pending = append(p.pending, item)
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run drains the retry queue until context cancellation. Items that still
// fail go back to the end of the queue.
func (p *BusPublisher) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ticker := time.NewTicker(retryDrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.wake:
		case <-ticker.C:
		}

		p.drain(ctx)
	}
}

func (p *BusPublisher) drain(ctx context.Context) {
	for {
		p.mu.Lock()
		if len(p.pending) == 0 {
			p.mu.Unlock()
			return
		}
		item := p.pending[0]
		p.pending = p.pending[1:]
		p.mu.Unlock()

		if err := p.tryPublish(ctx, item.Topic, item.Body, item.ID); err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("retry publish failed, keeping in queue",
				zap.String("topic", item.Topic),
				zap.String("sagaId", item.ID),
				zap.Error(err),
			)
			p.mu.Lock()
			p.pending = append(p.pending, item)
			p.mu.Unlock()
			return
		}

		p.metrics.IncEventPublished(item.Topic)
	}
}

// PendingCount reports queued-for-retry publishes.
func (p *BusPublisher) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

func (p *BusPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
