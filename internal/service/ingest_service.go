package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/studentpen/pen-batch-engine/internal/batchfile"
	"github.com/studentpen/pen-batch-engine/internal/domain"
	"github.com/studentpen/pen-batch-engine/internal/observability"
	"github.com/studentpen/pen-batch-engine/internal/repository"
	"go.uber.org/zap"
)

// IngestService turns one submission blob into a persisted batch. Integrity
// failures end as LOAD_FAIL with a reason code; oversized and duplicate
// files persist as HOLD; everything else lands LOADED with its students
// created atomically, then runs through the repeat filter.
type IngestService struct {
	batches    repository.BatchRepository
	validator  *batchfile.Validator
	duplicates *DuplicateFileDetector
	repeats    *RepeatRequestFilter
	layout     batchfile.Layout
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

func NewIngestService(
	batches repository.BatchRepository,
	validator *batchfile.Validator,
	duplicates *DuplicateFileDetector,
	repeats *RepeatRequestFilter,
	logger *zap.Logger,
) (*IngestService, error) {
	if batches == nil {
		return nil, fmt.Errorf("batch repository is required")
	}
	if validator == nil {
		return nil, fmt.Errorf("validator is required")
	}
	if duplicates == nil {
		return nil, fmt.Errorf("duplicate detector is required")
	}
	if repeats == nil {
		return nil, fmt.Errorf("repeat filter is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &IngestService{
		batches:    batches,
		validator:  validator,
		duplicates: duplicates,
		repeats:    repeats,
		layout:     batchfile.DefaultLayout(),
		logger:     logger,
		now:        time.Now,
	}, nil
}

func (s *IngestService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Ingest processes one submission end to end. A *FileError never propagates:
// it is recorded on the batch and the returned batch carries the terminal
// status. Only infrastructure failures return an error.
func (s *IngestService) Ingest(ctx context.Context, sub *domain.Submission) (*domain.Batch, error) {
	if sub == nil {
		return nil, fmt.Errorf("%w: submission is required", domain.ErrValidation)
	}
	started := s.now()

	res, err := batchfile.Parse(sub.FileContents, s.layout)
	if err != nil {
		return s.recordRejection(ctx, sub, nil, err, started)
	}

	if err := s.validator.ValidateFormatAndLength(sub.SubmissionNumber, res); err != nil {
		return s.recordRejection(ctx, sub, res, err, started)
	}
	if err := s.validator.ValidateSubmitterCode(ctx, sub.SubmissionNumber, res.File.Header.Mincode); err != nil {
		return s.recordRejection(ctx, sub, res, err, started)
	}

	hold, err := s.validator.ValidateStudentCount(sub.SubmissionNumber, res.File)
	if err != nil {
		return s.recordRejection(ctx, sub, res, err, started)
	}

	batch := s.buildBatch(sub, res)

	var holdErr *batchfile.FileError
	if hold {
		holdErr = batchfile.NewFileError(batchfile.ReasonHeldForSize,
			"file %s holds %d students, at or above the review threshold", sub.SubmissionNumber, batch.StudentCount)
	} else {
		duplicate, dupErr := s.duplicates.IsDuplicate(ctx, batch)
		if dupErr != nil {
			return nil, dupErr
		}
		if duplicate {
			holdErr = batchfile.NewFileError(batchfile.ReasonDuplicateFile,
				"file %s repeats content already received from submitter %s", sub.SubmissionNumber, batch.Mincode)
		}
	}
	if holdErr != nil {
		batch.Status = domain.BatchStatusHold
		code := holdErr.Code.String()
		msg := holdErr.Message
		batch.FailReasonCode = &code
		batch.FailReason = &msg
	}

	students := s.buildStudents(batch.ID, res.File.Students)
	if err := s.batches.CreateWithStudents(ctx, batch, students); err != nil {
		return nil, fmt.Errorf("failed to persist batch %s: %w", sub.SubmissionNumber, err)
	}

	if batch.Status == domain.BatchStatusLoaded {
		if _, err := s.repeats.Apply(ctx, batch, students); err != nil {
			return nil, err
		}
		s.metrics.AddStudentsLoaded(len(students))
	}

	s.metrics.IncFileIngested(batch.Status.String())
	s.metrics.ObserveIngestDuration(s.now().Sub(started))

	s.logger.Info("submission ingested",
		zap.String("submissionNumber", sub.SubmissionNumber),
		zap.String("batchId", batch.ID),
		zap.String("status", batch.Status.String()),
		zap.Int("studentCount", batch.StudentCount),
	)
	return batch, nil
}

// recordRejection persists a LOAD_FAIL batch carrying the file error's
// reason. Non-file errors bubble up unchanged.
func (s *IngestService) recordRejection(ctx context.Context, sub *domain.Submission, res *batchfile.ParseResult, cause error, started time.Time) (*domain.Batch, error) {
	fileErr, ok := batchfile.AsFileError(cause)
	if !ok {
		return nil, cause
	}

	batch := s.buildBatch(sub, res)
	batch.Status = domain.BatchStatusLoadFail
	batch.StudentCount = 0
	code := fileErr.Code.String()
	msg := fileErr.Message
	batch.FailReasonCode = &code
	batch.FailReason = &msg

	if err := s.batches.CreateWithStudents(ctx, batch, nil); err != nil {
		return nil, fmt.Errorf("failed to record rejected batch %s: %w", sub.SubmissionNumber, err)
	}

	s.metrics.IncFileIngested(domain.BatchStatusLoadFail.String())
	s.metrics.ObserveIngestDuration(s.now().Sub(started))

	s.logger.Warn("submission rejected",
		zap.String("submissionNumber", sub.SubmissionNumber),
		zap.String("reasonCode", fileErr.Code.String()),
		zap.String("reason", fileErr.Message),
	)
	return batch, nil
}

func (s *IngestService) buildBatch(sub *domain.Submission, res *batchfile.ParseResult) *domain.Batch {
	batch := &domain.Batch{
		ID:               uuid.NewString(),
		SubmissionNumber: sub.SubmissionNumber,
		Mincode:          sub.Mincode,
		FileChecksum:     checksum(sub.FileContents),
		Status:           domain.BatchStatusLoaded,
	}

	if res != nil && res.File != nil {
		header := res.File.Header
		if header.Mincode != "" {
			batch.Mincode = header.Mincode
		}
		batch.SchoolName = header.SchoolName
		batch.ContactName = header.ContactName
		batch.Email = header.Email
		batch.StudentCount = len(res.File.Students)
	}

	batch.SchoolGroup = domain.SchoolGroupFromMincode(batch.Mincode)
	return batch
}

func (s *IngestService) buildStudents(batchID string, details []batchfile.StudentDetail) []*domain.BatchStudent {
	students := make([]*domain.BatchStudent, 0, len(details))
	for _, d := range details {
		students = append(students, &domain.BatchStudent{
			ID:              uuid.NewString(),
			BatchID:         batchID,
			LocalID:         d.LocalID,
			SubmittedPEN:    d.SubmittedPEN,
			LegalSurname:    d.LegalSurname,
			LegalGivenName:  d.LegalGivenName,
			LegalMiddleName: d.LegalMiddleName,
			UsualSurname:    d.UsualSurname,
			UsualGivenName:  d.UsualGivenName,
			UsualMiddleName: d.UsualMiddleName,
			DOB:             d.DOB,
			Gender:          d.Gender,
			Grade:           d.Grade,
			PostalCode:      d.PostalCode,
			TransactionCode: d.TransactionCode,
			Status:          domain.StudentStatusLoaded,
		})
	}
	return students
}

func checksum(contents []byte) string {
	sum := sha256.Sum256(contents)
	return hex.EncodeToString(sum[:])
}
