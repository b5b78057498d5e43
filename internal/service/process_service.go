package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/studentpen/pen-batch-engine/internal/domain"
	"github.com/studentpen/pen-batch-engine/internal/ratelimit"
	"github.com/studentpen/pen-batch-engine/internal/repository"
	"github.com/studentpen/pen-batch-engine/internal/saga"
	"go.uber.org/zap"
)

const sagaStartRateKey = "saga_start"

// Orchestrator is the saga engine surface the services drive.
type Orchestrator interface {
	Start(ctx context.Context, batchStudentID string, payload json.RawMessage) (*domain.Saga, error)
	Resume(ctx context.Context, sg *domain.Saga) error
	MarkFailed(ctx context.Context, sg *domain.Saga, reason string) error
	MaxRetries() int
}

// SagaStarter starts a pen-request saga for every eligible student of a
// loaded batch. Starts are rate-limited cluster-wide so one large accepted
// file cannot flood the downstream identifier service.
type SagaStarter struct {
	students     repository.StudentRepository
	batches      repository.BatchRepository
	orchestrator Orchestrator
	limiter      ratelimit.RateLimiter
	scanLimit    int
	logger       *zap.Logger
}

func NewSagaStarter(
	students repository.StudentRepository,
	batches repository.BatchRepository,
	orchestrator Orchestrator,
	limiter ratelimit.RateLimiter,
	scanLimit int,
	logger *zap.Logger,
) (*SagaStarter, error) {
	if students == nil {
		return nil, fmt.Errorf("student repository is required")
	}
	if batches == nil {
		return nil, fmt.Errorf("batch repository is required")
	}
	if orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if scanLimit <= 0 {
		scanLimit = 200
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SagaStarter{
		students:     students,
		batches:      batches,
		orchestrator: orchestrator,
		limiter:      limiter,
		scanLimit:    scanLimit,
		logger:       logger,
	}, nil
}

// Run starts sagas for one scan of loaded students and returns how many
// were started. A failed start is logged and left for the next scan.
func (s *SagaStarter) Run(ctx context.Context) (int, error) {
	students, err := s.students.FindLoaded(ctx, s.scanLimit)
	if err != nil {
		return 0, fmt.Errorf("failed to scan for loaded students: %w", err)
	}
	if len(students) == 0 {
		return 0, nil
	}

	mincodes := make(map[string]string)
	started := 0
	for i := range students {
		student := students[i]

		mincode, ok := mincodes[student.BatchID]
		if !ok {
			batch, err := s.batches.GetByID(ctx, student.BatchID)
			if err != nil {
				s.logger.Error("failed to resolve batch for student",
					zap.String("batchStudentId", student.ID),
					zap.String("batchId", student.BatchID),
					zap.Error(err))
				continue
			}
			mincode = batch.Mincode
			mincodes[student.BatchID] = mincode
		}

		if err := s.limiter.Wait(ctx, sagaStartRateKey); err != nil {
			return started, fmt.Errorf("rate limiter interrupted: %w", err)
		}

		payload := saga.PayloadForStudent(&student)
		payload.Mincode = mincode
		raw, err := json.Marshal(payload)
		if err != nil {
			s.logger.Error("failed to encode saga payload",
				zap.String("batchStudentId", student.ID), zap.Error(err))
			continue
		}

		if _, err := s.orchestrator.Start(ctx, student.ID, raw); err != nil {
			s.logger.Error("failed to start saga",
				zap.String("batchStudentId", student.ID), zap.Error(err))
			continue
		}
		started++
	}

	return started, nil
}
