package service

import (
	"context"
	"fmt"
	"time"

	"github.com/studentpen/pen-batch-engine/internal/repository"
	"go.uber.org/zap"
)

// StaleSagaSweeper recovers in-progress sagas whose expected outcome never
// arrived. Retry happens here, not inline on the event path: the sweep
// re-sends the saga's last command and bumps the retry counter; past the
// retry budget the saga fails for operator attention.
type StaleSagaSweeper struct {
	sagas        repository.SagaRepository
	orchestrator Orchestrator
	staleAfter   time.Duration
	scanLimit    int
	logger       *zap.Logger
	now          func() time.Time
}

func NewStaleSagaSweeper(
	sagas repository.SagaRepository,
	orchestrator Orchestrator,
	staleAfter time.Duration,
	scanLimit int,
	logger *zap.Logger,
) (*StaleSagaSweeper, error) {
	if sagas == nil {
		return nil, fmt.Errorf("saga repository is required")
	}
	if orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if staleAfter <= 0 {
		return nil, fmt.Errorf("staleness threshold must be positive, got %s", staleAfter)
	}
	if scanLimit <= 0 {
		scanLimit = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &StaleSagaSweeper{
		sagas:        sagas,
		orchestrator: orchestrator,
		staleAfter:   staleAfter,
		scanLimit:    scanLimit,
		logger:       logger,
		now:          time.Now,
	}, nil
}

// Run sweeps one batch of stale sagas and returns how many commands were
// re-sent.
func (s *StaleSagaSweeper) Run(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.staleAfter)
	stale, err := s.sagas.FindStale(ctx, cutoff, s.scanLimit)
	if err != nil {
		return 0, fmt.Errorf("failed to scan for stale sagas: %w", err)
	}

	resumed := 0
	for i := range stale {
		sg := stale[i]

		if sg.RetryCount >= s.orchestrator.MaxRetries() {
			if err := s.orchestrator.MarkFailed(ctx, &sg, "retry budget exhausted while awaiting outcome"); err != nil {
				s.logger.Error("failed to fail exhausted saga",
					zap.String("sagaId", sg.ID), zap.Error(err))
			}
			continue
		}

		if err := s.orchestrator.Resume(ctx, &sg); err != nil {
			s.logger.Error("failed to resume stale saga",
				zap.String("sagaId", sg.ID),
				zap.String("state", sg.State),
				zap.Error(err))
			continue
		}
		resumed++
	}

	return resumed, nil
}
