package service

import (
	"context"
	"fmt"
	"time"

	"github.com/studentpen/pen-batch-engine/internal/lock"
	"github.com/studentpen/pen-batch-engine/internal/repository"
	"go.uber.org/zap"
)

// ExtractService picks up unextracted submission blobs and feeds them to
// ingestion. A short-TTL dedup key per submission number keeps at most one
// node ingesting a given file; distinct files proceed concurrently across
// the cluster. Pickup itself is race-safe through the conditional extract
// stamp.
type ExtractService struct {
	submissions repository.SubmissionRepository
	ingest      *IngestService
	dedup       lock.DedupGuard
	limit       int
	logger      *zap.Logger
	now         func() time.Time
}

func NewExtractService(
	submissions repository.SubmissionRepository,
	ingest *IngestService,
	dedup lock.DedupGuard,
	limit int,
	logger *zap.Logger,
) (*ExtractService, error) {
	if submissions == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	if ingest == nil {
		return nil, fmt.Errorf("ingest service is required")
	}
	if dedup == nil {
		return nil, fmt.Errorf("dedup guard is required")
	}
	if limit <= 0 {
		limit = 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ExtractService{
		submissions: submissions,
		ingest:      ingest,
		dedup:       dedup,
		limit:       limit,
		logger:      logger,
		now:         time.Now,
	}, nil
}

// Run processes one scan of unextracted submissions and returns how many
// were ingested. Per-file failures are logged and skipped so one bad blob
// never stalls the rest of the scan.
func (s *ExtractService) Run(ctx context.Context) (int, error) {
	submissions, err := s.submissions.FindUnextracted(ctx, s.limit)
	if err != nil {
		return 0, fmt.Errorf("failed to scan for unextracted submissions: %w", err)
	}

	processed := 0
	for i := range submissions {
		sub := submissions[i]

		claimed, err := s.dedup.TryClaim(ctx, sub.SubmissionNumber)
		if err != nil {
			s.logger.Error("failed to claim submission",
				zap.String("submissionNumber", sub.SubmissionNumber), zap.Error(err))
			continue
		}
		if !claimed {
			// Another node is already ingesting this file.
			continue
		}

		picked, err := s.submissions.MarkExtracted(ctx, sub.ID, s.now().UTC())
		if err != nil {
			s.logger.Error("failed to stamp submission pickup",
				zap.String("submissionNumber", sub.SubmissionNumber), zap.Error(err))
			continue
		}
		if !picked {
			continue
		}

		if _, err := s.ingest.Ingest(ctx, &sub); err != nil {
			s.logger.Error("failed to ingest submission",
				zap.String("submissionNumber", sub.SubmissionNumber), zap.Error(err))
			continue
		}
		processed++
	}

	return processed, nil
}
