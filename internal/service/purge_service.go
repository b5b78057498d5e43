package service

import (
	"context"
	"fmt"
	"time"

	"github.com/studentpen/pen-batch-engine/internal/repository"
	"go.uber.org/zap"
)

// Purger hard-deletes terminal sagas with their audit events and
// soft-deleted batches once they age past the retention cutoff.
type Purger struct {
	sagas     repository.SagaRepository
	batches   repository.BatchRepository
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func NewPurger(sagas repository.SagaRepository, batches repository.BatchRepository, retention time.Duration, logger *zap.Logger) (*Purger, error) {
	if sagas == nil {
		return nil, fmt.Errorf("saga repository is required")
	}
	if batches == nil {
		return nil, fmt.Errorf("batch repository is required")
	}
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive, got %s", retention)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Purger{
		sagas:     sagas,
		batches:   batches,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Run purges everything past retention and returns the total rows removed.
func (p *Purger) Run(ctx context.Context) (int64, error) {
	cutoff := p.now().Add(-p.retention)

	purgedSagas, err := p.sagas.Purge(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge terminal sagas: %w", err)
	}

	purgedBatches, err := p.batches.PurgeSoftDeleted(ctx, cutoff)
	if err != nil {
		return purgedSagas, fmt.Errorf("failed to purge soft-deleted batches: %w", err)
	}

	total := purgedSagas + purgedBatches
	if total > 0 {
		p.logger.Info("retention purge complete",
			zap.Int64("sagas", purgedSagas),
			zap.Int64("batches", purgedBatches))
	}
	return total, nil
}
