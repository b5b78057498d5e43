package batchfile

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/studentpen/pen-batch-engine/internal/domain"
)

type stubLookup struct {
	submitter *domain.Submitter
	err       error
}

func (l *stubLookup) Lookup(_ context.Context, _ string) (*domain.Submitter, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.submitter, nil
}

func parseFixture(t *testing.T, lines ...string) *ParseResult {
	t.Helper()
	res, err := Parse(fileOf(lines...), DefaultLayout())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return res
}

func wantReason(t *testing.T, err error, code ReasonCode) *FileError {
	t.Helper()
	fileErr, ok := AsFileError(err)
	if !ok {
		t.Fatalf("error = %v, want *FileError", err)
	}
	if fileErr.Code != code {
		t.Fatalf("reason = %s, want %s (message: %s)", fileErr.Code, code, fileErr.Message)
	}
	return fileErr
}

func TestFormatAndLengthAcceptsCleanFile(t *testing.T) {
	t.Parallel()

	v := NewValidator(&stubLookup{}, 0, nil)
	res := parseFixture(t,
		headerLine("10312345"),
		detailLine("L-001", "NGUYEN", "ANH", "20080214"),
		trailerLine("00001"),
	)

	if err := v.ValidateFormatAndLength("SUB-1", res); err != nil {
		t.Errorf("ValidateFormatAndLength() error = %v, want nil", err)
	}
}

func TestFormatAndLengthBadHeaderMarkerWinsOverRowErrors(t *testing.T) {
	t.Parallel()

	v := NewValidator(&stubLookup{}, 0, nil)
	badHeader := recordLine("XXI", map[int]string{3: "10312345"})
	shortRow := detailLine("L-001", "DOE", "SAM", "20080101")[:100]
	res := parseFixture(t, badHeader, shortRow, trailerLine("00001"))

	wantReason(t, v.ValidateFormatAndLength("SUB-1", res), ReasonInvalidHeader)
}

func TestFormatAndLengthHeaderLengthViolation(t *testing.T) {
	t.Parallel()

	v := NewValidator(&stubLookup{}, 0, nil)
	res := parseFixture(t,
		headerLine("10312345")[:120],
		detailLine("L-001", "DOE", "SAM", "20080101"),
		trailerLine("00001"),
	)

	wantReason(t, v.ValidateFormatAndLength("SUB-1", res), ReasonInvalidHeader)
}

func TestFormatAndLengthBadTrailerMarker(t *testing.T) {
	t.Parallel()

	v := NewValidator(&stubLookup{}, 0, nil)
	badTrailer := recordLine("XTR", map[int]string{3: "00001"})
	res := parseFixture(t,
		headerLine("10312345"),
		detailLine("L-001", "DOE", "SAM", "20080101"),
		badTrailer,
	)

	wantReason(t, v.ValidateFormatAndLength("SUB-1", res), ReasonInvalidTrailer)
}

func TestFormatAndLengthComposesDetailViolations(t *testing.T) {
	t.Parallel()

	v := NewValidator(&stubLookup{}, 0, nil)
	res := parseFixture(t,
		headerLine("10312345"),
		detailLine("L-001", "DOE", "SAM", "20080101")[:100],
		detailLine("L-002", "LEE", "MIN", "20070101"),
		detailLine("L-003", "ANG", "WEI", "20060101")+"XX",
		trailerLine("00003"),
	)

	fileErr := wantReason(t, v.ValidateFormatAndLength("SUB-1", res), ReasonInvalidRowLength)

	// Detail lines number from 1 with the header excluded.
	if !strings.Contains(fileErr.Message, "line 1 is too short") {
		t.Errorf("message %q does not name line 1 as short", fileErr.Message)
	}
	if !strings.Contains(fileErr.Message, "line 3 is too long") {
		t.Errorf("message %q does not name line 3 as long", fileErr.Message)
	}
}

func TestSubmitterCodeShape(t *testing.T) {
	t.Parallel()

	v := NewValidator(&stubLookup{}, 0, nil)

	for _, code := range []string{"", "1234567", "123456789", "12A45678"} {
		wantReason(t, v.ValidateSubmitterCode(context.Background(), "SUB-1", code), ReasonInvalidSubmitter)
	}
}

func TestSubmitterCodeLookupFailure(t *testing.T) {
	t.Parallel()

	v := NewValidator(&stubLookup{err: fmt.Errorf("directory unavailable")}, 0, nil)

	wantReason(t, v.ValidateSubmitterCode(context.Background(), "SUB-1", "10312345"), ReasonInvalidSubmitter)
}

func TestSubmitterNotYetOpen(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v := NewValidator(&stubLookup{submitter: &domain.Submitter{
		Mincode:  "10312345",
		OpenedAt: now.Add(24 * time.Hour),
	}}, 0, nil)
	v.now = func() time.Time { return now }

	wantReason(t, v.ValidateSubmitterCode(context.Background(), "SUB-1", "10312345"), ReasonInactiveSubmitter)
}

func TestSubmitterAlreadyClosed(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	closed := now.Add(-time.Hour)
	v := NewValidator(&stubLookup{submitter: &domain.Submitter{
		Mincode:  "10312345",
		OpenedAt: now.Add(-365 * 24 * time.Hour),
		ClosedAt: &closed,
	}}, 0, nil)
	v.now = func() time.Time { return now }

	wantReason(t, v.ValidateSubmitterCode(context.Background(), "SUB-1", "10312345"), ReasonInactiveSubmitter)
}

func TestSubmitterActivePasses(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v := NewValidator(&stubLookup{submitter: &domain.Submitter{
		Mincode:  "10312345",
		OpenedAt: now.Add(-365 * 24 * time.Hour),
	}}, 0, nil)
	v.now = func() time.Time { return now }

	if err := v.ValidateSubmitterCode(context.Background(), "SUB-1", "10312345"); err != nil {
		t.Errorf("ValidateSubmitterCode() error = %v, want nil", err)
	}
}

func TestStudentCountNonNumericTrailer(t *testing.T) {
	t.Parallel()

	v := NewValidator(&stubLookup{}, 0, nil)
	file := &BatchFile{Trailer: Trailer{StudentCount: "00A02"}}

	_, err := v.ValidateStudentCount("SUB-1", file)
	wantReason(t, err, ReasonInvalidTrailer)
}

func TestStudentCountMismatch(t *testing.T) {
	t.Parallel()

	v := NewValidator(&stubLookup{}, 0, nil)
	file := &BatchFile{
		Students: make([]StudentDetail, 3),
		Trailer:  Trailer{StudentCount: "00002"},
	}

	_, err := v.ValidateStudentCount("SUB-1", file)
	fileErr := wantReason(t, err, ReasonStudentCountMismatch)
	if !strings.Contains(fileErr.Message, "2") || !strings.Contains(fileErr.Message, "3") {
		t.Errorf("message %q does not name both counts", fileErr.Message)
	}
}

func TestStudentCountAtThresholdFlagsHold(t *testing.T) {
	t.Parallel()

	v := NewValidator(&stubLookup{}, 3, nil)
	file := &BatchFile{
		Students: make([]StudentDetail, 3),
		Trailer:  Trailer{StudentCount: "00003"},
	}

	hold, err := v.ValidateStudentCount("SUB-1", file)
	if err != nil {
		t.Fatalf("ValidateStudentCount() error = %v", err)
	}
	if !hold {
		t.Error("hold = false, want true at threshold")
	}
}

func TestStudentCountBelowThresholdProcessesNormally(t *testing.T) {
	t.Parallel()

	v := NewValidator(&stubLookup{}, 10, nil)
	file := &BatchFile{
		Students: make([]StudentDetail, 3),
		Trailer:  Trailer{StudentCount: "00003"},
	}

	hold, err := v.ValidateStudentCount("SUB-1", file)
	if err != nil {
		t.Fatalf("ValidateStudentCount() error = %v", err)
	}
	if hold {
		t.Error("hold = true, want false below threshold")
	}
}
