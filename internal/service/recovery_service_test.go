package service

import (
	"context"
	"testing"
	"time"

	"github.com/studentpen/pen-batch-engine/internal/domain"
	"go.uber.org/zap"
)

func TestSweeperResumesStaleSagas(t *testing.T) {
	t.Parallel()

	sagas := &fakeSagaRepo{stale: []domain.Saga{
		{ID: "saga-1", State: "GET_NEXT_PEN", RetryCount: 1, Status: domain.SagaStatusInProgress},
		{ID: "saga-2", State: "VALIDATE_STUDENT", RetryCount: 0, Status: domain.SagaStatusInProgress},
	}}
	orchestrator := &fakeOrchestrator{maxRetries: 5}

	sweeper, err := NewStaleSagaSweeper(sagas, orchestrator, 5*time.Minute, 100, zap.NewNop())
	if err != nil {
		t.Fatalf("NewStaleSagaSweeper() error = %v", err)
	}

	resumed, err := sweeper.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if resumed != 2 {
		t.Errorf("resumed = %d, want 2", resumed)
	}
	if len(orchestrator.resumed) != 2 {
		t.Errorf("orchestrator resumed %v, want both sagas", orchestrator.resumed)
	}
	if len(orchestrator.failed) != 0 {
		t.Errorf("orchestrator failed %v, want none", orchestrator.failed)
	}
}

func TestSweeperFailsSagaPastRetryBudget(t *testing.T) {
	t.Parallel()

	sagas := &fakeSagaRepo{stale: []domain.Saga{
		{ID: "saga-1", State: "GET_NEXT_PEN", RetryCount: 5, Status: domain.SagaStatusInProgress},
	}}
	orchestrator := &fakeOrchestrator{maxRetries: 5}

	sweeper, err := NewStaleSagaSweeper(sagas, orchestrator, 5*time.Minute, 100, zap.NewNop())
	if err != nil {
		t.Fatalf("NewStaleSagaSweeper() error = %v", err)
	}

	resumed, err := sweeper.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if resumed != 0 {
		t.Errorf("resumed = %d, want 0", resumed)
	}
	if len(orchestrator.failed) != 1 || orchestrator.failed[0] != "saga-1" {
		t.Errorf("failed = %v, want [saga-1]", orchestrator.failed)
	}
}

func TestArchiverArchivesFullyProcessedBatches(t *testing.T) {
	t.Parallel()

	batches := newFakeBatchRepo()
	batches.archivable = []domain.Batch{
		{ID: "batch-1", Status: domain.BatchStatusLoaded},
		{ID: "batch-2", Status: domain.BatchStatusLoaded},
	}

	archiver, err := NewArchiver(batches, 100, zap.NewNop())
	if err != nil {
		t.Fatalf("NewArchiver() error = %v", err)
	}

	archived, err := archiver.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if archived != 2 {
		t.Errorf("archived = %d, want 2", archived)
	}
	for _, id := range []string{"batch-1", "batch-2"} {
		if got := batches.statusUpdates[id]; got != domain.BatchStatusArchived {
			t.Errorf("batch %s status = %q, want %q", id, got, domain.BatchStatusArchived)
		}
	}
}

func TestPurgerSumsPurgedRows(t *testing.T) {
	t.Parallel()

	batches := newFakeBatchRepo()
	batches.purged = 3

	purger, err := NewPurger(&fakeSagaRepo{}, batches, 90*24*time.Hour, zap.NewNop())
	if err != nil {
		t.Fatalf("NewPurger() error = %v", err)
	}

	total, err := purger.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if total != 3 {
		t.Errorf("total purged = %d, want 3", total)
	}
}
