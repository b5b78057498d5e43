package service

import (
	"context"
	"fmt"

	"github.com/studentpen/pen-batch-engine/internal/domain"
	"github.com/studentpen/pen-batch-engine/internal/repository"
	"go.uber.org/zap"
)

// Archiver moves loaded batches whose students have all reached a terminal
// status to ARCHIVED.
type Archiver struct {
	batches   repository.BatchRepository
	scanLimit int
	logger    *zap.Logger
}

func NewArchiver(batches repository.BatchRepository, scanLimit int, logger *zap.Logger) (*Archiver, error) {
	if batches == nil {
		return nil, fmt.Errorf("batch repository is required")
	}
	if scanLimit <= 0 {
		scanLimit = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Archiver{
		batches:   batches,
		scanLimit: scanLimit,
		logger:    logger,
	}, nil
}

// Run archives one scan's worth of fully processed batches and returns how
// many were archived.
func (a *Archiver) Run(ctx context.Context) (int, error) {
	batches, err := a.batches.FindArchivable(ctx, a.scanLimit)
	if err != nil {
		return 0, fmt.Errorf("failed to scan for archivable batches: %w", err)
	}

	archived := 0
	for i := range batches {
		b := batches[i]
		if err := a.batches.UpdateStatus(ctx, b.ID, domain.BatchStatusArchived); err != nil {
			a.logger.Error("failed to archive batch",
				zap.String("batchId", b.ID), zap.Error(err))
			continue
		}
		archived++
	}

	if archived > 0 {
		a.logger.Info("batches archived", zap.Int("count", archived))
	}
	return archived, nil
}
