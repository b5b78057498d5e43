package saga

import (
	"context"
	"fmt"

	"github.com/studentpen/pen-batch-engine/internal/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Listener runs one consumer per outcome topic and feeds every envelope to
// the orchestrator. Handler errors propagate to the consumer so the broker
// redelivers; stale and duplicate drops stay inside the orchestrator.
type Listener struct {
	consumer     queue.Consumer
	orchestrator *Orchestrator
	logger       *zap.Logger
}

func NewListener(consumer queue.Consumer, orchestrator *Orchestrator, logger *zap.Logger) (*Listener, error) {
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Listener{
		consumer:     consumer,
		orchestrator: orchestrator,
		logger:       logger,
	}, nil
}

// Run blocks until the context is cancelled or a consumer fails fatally.
func (l *Listener) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)

	for _, topic := range queue.OutcomeTopics() {
		topic := topic
		group.Go(func() error {
			l.logger.Info("listening for saga outcomes", zap.String("topic", topic))
			return l.consumer.Consume(groupCtx, topic, l.handle)
		})
	}

	return group.Wait()
}

func (l *Listener) handle(ctx context.Context, env queue.Envelope) error {
	if err := env.Validate(); err != nil {
		l.logger.Warn("discarding malformed outcome envelope", zap.Error(err))
		return nil
	}
	return l.orchestrator.HandleEvent(ctx, env)
}
