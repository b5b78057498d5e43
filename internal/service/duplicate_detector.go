package service

import (
	"context"
	"fmt"
	"time"

	"github.com/studentpen/pen-batch-engine/internal/domain"
	"github.com/studentpen/pen-batch-engine/internal/repository"
	"go.uber.org/zap"
)

// DuplicateFileDetector flags byte-identical resubmissions. Post-secondary
// submitters routinely re-send whole files; K-12 files are exempt. The
// window is inclusive of now and exclusive of its start, and different
// submitter codes never collide even with identical content.
type DuplicateFileDetector struct {
	batches repository.BatchRepository
	window  time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

func NewDuplicateFileDetector(batches repository.BatchRepository, window time.Duration, logger *zap.Logger) (*DuplicateFileDetector, error) {
	if batches == nil {
		return nil, fmt.Errorf("batch repository is required")
	}
	if window <= 0 {
		return nil, fmt.Errorf("duplicate window must be positive, got %s", window)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DuplicateFileDetector{
		batches: batches,
		window:  window,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// IsDuplicate reports whether the batch's content checksum matches another
// batch from the same submitter inside the window.
func (d *DuplicateFileDetector) IsDuplicate(ctx context.Context, b *domain.Batch) (bool, error) {
	if b.SchoolGroup != domain.SchoolGroupPSI {
		return false, nil
	}

	since := d.now().Add(-d.window)
	match, err := d.batches.HasChecksumMatch(ctx, b.Mincode, b.FileChecksum, since, b.SubmissionNumber)
	if err != nil {
		return false, fmt.Errorf("failed to check for duplicate file: %w", err)
	}

	if match {
		d.logger.Info("duplicate file content detected",
			zap.String("mincode", b.Mincode),
			zap.String("submissionNumber", b.SubmissionNumber),
			zap.String("checksum", b.FileChecksum),
		)
	}
	return match, nil
}
