package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	dlxExchangeName  = "penreq.dlx"
	reconnectBackoff = time.Second
	maxBackoff       = 30 * time.Second
)

// RabbitMQ manages broker connectivity and topology declaration. A lost
// connection is re-dialed forever with capped exponential backoff; inbound
// delivery stalls while disconnected but callers never see the outage.
type RabbitMQ struct {
	url    string
	logger *zap.Logger

	mu          sync.RWMutex
	reconnectMu sync.Mutex
	conn        *amqp.Connection
}

func NewRabbitMQ(url string, logger *zap.Logger) (*RabbitMQ, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &RabbitMQ{url: url, logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := r.ensureConnected(ctx); err != nil {
		return nil, err
	}

	return r, nil
}

// IsConnected reports current broker connectivity without dialing.
func (r *RabbitMQ) IsConnected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conn != nil && !r.conn.IsClosed()
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()

	if conn == nil || conn.IsClosed() {
		return nil
	}

	return conn.Close()
}

func (r *RabbitMQ) channel(ctx context.Context) (*amqp.Channel, error) {
	if err := r.ensureConnected(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	conn := r.conn
	r.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		if err := r.ensureConnected(ctx); err != nil {
			return nil, err
		}
		r.mu.RLock()
		conn = r.conn
		r.mu.RUnlock()
	}

	ch, err := conn.Channel()
	if err != nil {
		if errReconnect := r.reconnectWithBackoff(ctx); errReconnect != nil {
			return nil, errReconnect
		}

		r.mu.RLock()
		conn = r.conn
		r.mu.RUnlock()

		ch, err = conn.Channel()
		if err != nil {
			return nil, fmt.Errorf("failed to create rabbitmq channel after reconnect: %w", err)
		}
	}

	if err := declareTopology(ch); err != nil {
		_ = ch.Close()
		return nil, err
	}

	return ch, nil
}

func (r *RabbitMQ) ensureConnected(ctx context.Context) error {
	r.mu.RLock()
	conn := r.conn
	r.mu.RUnlock()

	if conn != nil && !conn.IsClosed() {
		return nil
	}

	return r.reconnectWithBackoff(ctx)
}

func (r *RabbitMQ) reconnectWithBackoff(ctx context.Context) error {
	r.reconnectMu.Lock()
	defer r.reconnectMu.Unlock()

	r.mu.RLock()
	conn := r.conn
	r.mu.RUnlock()
	if conn != nil && !conn.IsClosed() {
		return nil
	}

	wait := reconnectBackoff
	attempt := 0
	for {
		attempt++
		newConn, err := amqp.Dial(r.url)
		if err == nil {
			r.mu.Lock()
			oldConn := r.conn
			r.conn = newConn
			r.mu.Unlock()

			if oldConn != nil && !oldConn.IsClosed() {
				_ = oldConn.Close()
			}

			if attempt > 1 {
				r.logger.Info("rabbitmq reconnected", zap.Int("attempts", attempt))
			}
			return nil
		}

		r.logger.Warn("rabbitmq connection failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("rabbitmq reconnect canceled: %w", ctx.Err())
		case <-time.After(wait):
		}

		wait *= 2
		if wait > maxBackoff {
			wait = maxBackoff
		}
	}
}

func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(
		dlxExchangeName,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare dlx exchange: %w", err)
	}

	topics := append(CommandTopics(), OutcomeTopics()...)
	for _, topic := range topics {
		dlqName := DLQName(topic)

		if _, err := ch.QueueDeclare(
			dlqName,
			true,
			false,
			false,
			false,
			nil,
		); err != nil {
			return fmt.Errorf("failed to declare dlq %q: %w", dlqName, err)
		}

		if err := ch.QueueBind(dlqName, topic, dlxExchangeName, false, nil); err != nil {
			return fmt.Errorf("failed to bind dlq %q: %w", dlqName, err)
		}

		args := amqp.Table{
			"x-dead-letter-exchange":    dlxExchangeName,
			"x-dead-letter-routing-key": topic,
		}

		if _, err := ch.QueueDeclare(
			topic,
			true,
			false,
			false,
			false,
			args,
		); err != nil {
			return fmt.Errorf("failed to declare queue %q: %w", topic, err)
		}
	}

	return nil
}
