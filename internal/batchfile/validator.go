package batchfile

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/studentpen/pen-batch-engine/internal/domain"
	"go.uber.org/zap"
)

// SubmitterLookup resolves a submitter code against the school directory.
type SubmitterLookup interface {
	Lookup(ctx context.Context, mincode string) (*domain.Submitter, error)
}

const submitterCodeLength = 8

// Validator applies the file integrity checks that gate batch persistence.
// Every failure is a *FileError: non-retryable, carrying a reason code the
// caller records on the batch.
type Validator struct {
	lookup        SubmitterLookup
	holdThreshold int
	logger        *zap.Logger
	now           func() time.Time
}

func NewValidator(lookup SubmitterLookup, holdThreshold int, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Validator{
		lookup:        lookup,
		holdThreshold: holdThreshold,
		logger:        logger,
		now:           time.Now,
	}
}

// ValidateFormatAndLength verifies record markers and row lengths. A
// malformed header or trailer is reported as such, never as a generic
// row-length problem; any remaining detail-row violation aborts with one
// composed message naming every offending detail line.
func (v *Validator) ValidateFormatAndLength(fileID string, res *ParseResult) error {
	if res == nil || res.File == nil || len(res.RawLines) < 2 {
		return NewFileError(ReasonInvalidHeader, "file %s has no parseable records", fileID)
	}

	firstLine := res.RawLines[0]
	lastLine := res.RawLines[len(res.RawLines)-1]

	if len(res.Violations) > 0 {
		if marker(firstLine) != HeaderMarker {
			return NewFileError(ReasonInvalidHeader,
				"file %s header transaction code is %q, want %q", fileID, marker(firstLine), HeaderMarker)
		}
		if marker(lastLine) != TrailerMarker {
			return NewFileError(ReasonInvalidTrailer,
				"file %s trailer transaction code is %q, want %q", fileID, marker(lastLine), TrailerMarker)
		}

		if v.headerOrTrailerViolation(res, 1) {
			return NewFileError(ReasonInvalidHeader,
				"file %s header record length is %d, want %d", fileID, len(firstLine), DefaultLayout().Header.Length)
		}
		if v.headerOrTrailerViolation(res, len(res.RawLines)) {
			return NewFileError(ReasonInvalidTrailer,
				"file %s trailer record length is %d, want %d", fileID, len(lastLine), DefaultLayout().Trailer.Length)
		}

		if msg := composeDetailViolations(res); msg != "" {
			return NewFileError(ReasonInvalidRowLength, "file %s has malformed detail rows: %s", fileID, msg)
		}
	}

	if res.File.Header.TransactionCode != HeaderMarker {
		return NewFileError(ReasonInvalidHeader,
			"file %s header transaction code is %q, want %q", fileID, res.File.Header.TransactionCode, HeaderMarker)
	}
	if res.File.Trailer.TransactionCode != TrailerMarker {
		return NewFileError(ReasonInvalidTrailer,
			"file %s trailer transaction code is %q, want %q", fileID, res.File.Trailer.TransactionCode, TrailerMarker)
	}

	return nil
}

func (v *Validator) headerOrTrailerViolation(res *ParseResult, rawLine int) bool {
	for _, violation := range res.Violations {
		if violation.RawLine == rawLine {
			return true
		}
	}
	return false
}

// composeDetailViolations builds one message per offending detail line,
// numbered with the header line excluded.
func composeDetailViolations(res *ParseResult) string {
	lastRaw := len(res.RawLines)

	parts := make([]string, 0, len(res.Violations))
	for _, violation := range res.Violations {
		if violation.RawLine == 1 || violation.RawLine == lastRaw {
			continue
		}

		kind := "short"
		if violation.Kind == TooLong {
			kind = "long"
		}
		parts = append(parts, fmt.Sprintf("line %d is too %s (length %d, want %d)",
			violation.Line, kind, violation.Length, violation.Want))
	}

	return strings.Join(parts, "; ")
}

// ValidateSubmitterCode requires an 8-digit code resolving to an active
// submitter: open date not in the future, close date absent or in the
// future.
func (v *Validator) ValidateSubmitterCode(ctx context.Context, fileID string, code string) error {
	code = strings.TrimSpace(code)
	if len(code) != submitterCodeLength || !isNumeric(code) {
		return NewFileError(ReasonInvalidSubmitter,
			"file %s submitter code %q must be exactly %d numeric characters", fileID, code, submitterCodeLength)
	}

	submitter, err := v.lookup.Lookup(ctx, code)
	if err != nil {
		return NewFileError(ReasonInvalidSubmitter,
			"file %s submitter code %q could not be resolved: %v", fileID, code, err)
	}
	if submitter == nil {
		return NewFileError(ReasonInvalidSubmitter,
			"file %s submitter code %q is not a known submitter", fileID, code)
	}

	now := v.now()
	if submitter.OpenedAt.After(now) {
		return NewFileError(ReasonInactiveSubmitter,
			"file %s submitter %q is not open until %s", fileID, code, submitter.OpenedAt.Format("2006-01-02"))
	}
	if submitter.ClosedAt != nil && !submitter.ClosedAt.After(now) {
		return NewFileError(ReasonInactiveSubmitter,
			"file %s submitter %q closed on %s", fileID, code, submitter.ClosedAt.Format("2006-01-02"))
	}

	return nil
}

// ValidateStudentCount checks the trailer's declared count against the
// parsed detail rows. Files at or above the hold threshold pass validation
// but are flagged for hold instead of processing.
func (v *Validator) ValidateStudentCount(fileID string, file *BatchFile) (hold bool, err error) {
	declaredRaw := strings.TrimSpace(file.Trailer.StudentCount)
	declared, parseErr := strconv.Atoi(declaredRaw)
	if parseErr != nil {
		return false, NewFileError(ReasonInvalidTrailer,
			"file %s trailer student count %q is not numeric", fileID, declaredRaw)
	}

	actual := len(file.Students)
	if declared != actual {
		return false, NewFileError(ReasonStudentCountMismatch,
			"file %s trailer declares %d students but %d detail rows were parsed", fileID, declared, actual)
	}

	if v.holdThreshold > 0 && actual >= v.holdThreshold {
		v.logger.Info("file exceeds hold threshold, flagging for review",
			zap.String("fileId", fileID),
			zap.Int("studentCount", actual),
			zap.Int("holdThreshold", v.holdThreshold),
		)
		return true, nil
	}

	return false, nil
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
