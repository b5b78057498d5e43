package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/studentpen/pen-batch-engine/internal/domain"
	"github.com/studentpen/pen-batch-engine/internal/repository"
	"go.uber.org/zap"
)

// RepeatRequestFilter marks freshly loaded students as REPEAT when the same
// submitter already sent the same person inside the school-group window.
// Repeats never enter saga processing. The window is longer for
// post-secondary submitters, whose enrolment cycles re-send students for
// weeks.
type RepeatRequestFilter struct {
	students  repository.StudentRepository
	windowK12 time.Duration
	windowPSI time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func NewRepeatRequestFilter(students repository.StudentRepository, windowK12, windowPSI time.Duration, logger *zap.Logger) (*RepeatRequestFilter, error) {
	if students == nil {
		return nil, fmt.Errorf("student repository is required")
	}
	if windowK12 <= 0 || windowPSI <= 0 {
		return nil, fmt.Errorf("repeat windows must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RepeatRequestFilter{
		students:  students,
		windowK12: windowK12,
		windowPSI: windowPSI,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Apply compares the batch's students against earlier submissions from the
// same submitter and marks matches REPEAT. Returns the number of rows
// marked.
func (f *RepeatRequestFilter) Apply(ctx context.Context, b *domain.Batch, loaded []*domain.BatchStudent) (int, error) {
	if len(loaded) == 0 {
		return 0, nil
	}

	window := f.windowK12
	if b.SchoolGroup == domain.SchoolGroupPSI {
		window = f.windowPSI
	}
	since := f.now().Add(-window)

	candidates, err := f.students.FindRepeatCandidates(ctx, b.Mincode, since, b.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to load repeat candidates: %w", err)
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	seen := make(map[string]struct{}, len(candidates))
	for i := range candidates {
		seen[repeatKey(&candidates[i])] = struct{}{}
	}

	var repeatIDs []string
	for _, s := range loaded {
		if _, ok := seen[repeatKey(s)]; ok {
			repeatIDs = append(repeatIDs, s.ID)
		}
	}
	if len(repeatIDs) == 0 {
		return 0, nil
	}

	if err := f.students.MarkRepeats(ctx, repeatIDs); err != nil {
		return 0, fmt.Errorf("failed to mark repeat students: %w", err)
	}

	f.logger.Info("repeat students excluded from processing",
		zap.String("batchId", b.ID),
		zap.String("mincode", b.Mincode),
		zap.Int("repeatCount", len(repeatIDs)),
	)
	return len(repeatIDs), nil
}

// repeatKey is the identity tuple for repeat matching. The submitter code is
// implied: candidates are already restricted to one mincode.
func repeatKey(s *domain.BatchStudent) string {
	return strings.ToUpper(strings.Join([]string{
		strings.TrimSpace(s.LegalSurname),
		strings.TrimSpace(s.LegalGivenName),
		strings.TrimSpace(s.DOB),
		strings.TrimSpace(s.LocalID),
	}, "|"))
}
