package service

import (
	"context"
	"testing"
	"time"

	"github.com/studentpen/pen-batch-engine/internal/domain"
	"go.uber.org/zap"
)

func newFilter(t *testing.T, students *fakeStudentsRepo) *RepeatRequestFilter {
	t.Helper()

	filter, err := NewRepeatRequestFilter(students, 48*time.Hour, 720*time.Hour, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRepeatRequestFilter() error = %v", err)
	}
	return filter
}

func TestRepeatStudentMarkedAndExcluded(t *testing.T) {
	t.Parallel()

	students := newFakeStudentsRepo()
	students.candidates = []domain.BatchStudent{
		{ID: "old-1", LegalSurname: "SMITH", LegalGivenName: "ALICE", DOB: "20090101", LocalID: "L001"},
	}
	filter := newFilter(t, students)

	batch := &domain.Batch{ID: "batch-2", Mincode: "12345678", SchoolGroup: domain.SchoolGroupK12}
	loaded := []*domain.BatchStudent{
		{ID: "new-1", LegalSurname: "SMITH", LegalGivenName: "ALICE", DOB: "20090101", LocalID: "L001"},
		{ID: "new-2", LegalSurname: "JONES", LegalGivenName: "BOB", DOB: "20090202", LocalID: "L002"},
	}

	marked, err := filter.Apply(context.Background(), batch, loaded)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if marked != 1 {
		t.Errorf("marked = %d, want 1", marked)
	}
	if len(students.marked) != 1 || students.marked[0] != "new-1" {
		t.Errorf("marked ids = %v, want [new-1]", students.marked)
	}
}

func TestRepeatMatchIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	students := newFakeStudentsRepo()
	students.candidates = []domain.BatchStudent{
		{ID: "old-1", LegalSurname: "Smith", LegalGivenName: "Alice", DOB: "20090101", LocalID: "l001"},
	}
	filter := newFilter(t, students)

	batch := &domain.Batch{ID: "batch-2", Mincode: "12345678"}
	loaded := []*domain.BatchStudent{
		{ID: "new-1", LegalSurname: "SMITH", LegalGivenName: "ALICE", DOB: "20090101", LocalID: "L001"},
	}

	marked, err := filter.Apply(context.Background(), batch, loaded)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if marked != 1 {
		t.Errorf("marked = %d, want 1", marked)
	}
}

func TestNoRepeatWhenIdentityDiffers(t *testing.T) {
	t.Parallel()

	students := newFakeStudentsRepo()
	students.candidates = []domain.BatchStudent{
		{ID: "old-1", LegalSurname: "SMITH", LegalGivenName: "ALICE", DOB: "20090101", LocalID: "L001"},
	}
	filter := newFilter(t, students)

	batch := &domain.Batch{ID: "batch-2", Mincode: "12345678"}
	loaded := []*domain.BatchStudent{
		{ID: "new-1", LegalSurname: "SMITH", LegalGivenName: "ALICE", DOB: "20100101", LocalID: "L001"},
	}

	marked, err := filter.Apply(context.Background(), batch, loaded)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if marked != 0 {
		t.Errorf("marked = %d, want 0", marked)
	}
	if len(students.marked) != 0 {
		t.Errorf("marked ids = %v, want none", students.marked)
	}
}
