package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/studentpen/pen-batch-engine/internal/domain"
	"github.com/studentpen/pen-batch-engine/internal/repository"
)

type fakeBatchRepo struct {
	mu sync.Mutex

	createdBatch    *domain.Batch
	createdStudents []*domain.BatchStudent
	createErr       error

	checksumMatch bool
	checksumSince time.Time

	byID          map[string]*domain.Batch
	statusUpdates map[string]domain.BatchStatus
	archivable    []domain.Batch
	purged        int64
}

var _ repository.BatchRepository = (*fakeBatchRepo)(nil)

func newFakeBatchRepo() *fakeBatchRepo {
	return &fakeBatchRepo{
		byID:          make(map[string]*domain.Batch),
		statusUpdates: make(map[string]domain.BatchStatus),
	}
}

func (r *fakeBatchRepo) CreateWithStudents(_ context.Context, b *domain.Batch, students []*domain.BatchStudent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.createErr != nil {
		return r.createErr
	}
	r.createdBatch = b
	r.createdStudents = students
	r.byID[b.ID] = b
	return nil
}

func (r *fakeBatchRepo) GetByID(_ context.Context, id string) (*domain.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return b, nil
}

func (r *fakeBatchRepo) UpdateStatus(_ context.Context, id string, status domain.BatchStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statusUpdates[id] = status
	return nil
}

func (r *fakeBatchRepo) UpdateStatusWithReason(_ context.Context, id string, status domain.BatchStatus, _ string, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statusUpdates[id] = status
	return nil
}

func (r *fakeBatchRepo) HasChecksumMatch(_ context.Context, _ string, _ string, since time.Time, _ string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checksumSince = since
	return r.checksumMatch, nil
}

func (r *fakeBatchRepo) FindArchivable(_ context.Context, _ int) ([]domain.Batch, error) {
	return r.archivable, nil
}

func (r *fakeBatchRepo) PurgeSoftDeleted(_ context.Context, _ time.Time) (int64, error) {
	return r.purged, nil
}

type fakeStudentsRepo struct {
	mu sync.Mutex

	loaded     []domain.BatchStudent
	candidates []domain.BatchStudent
	marked     []string

	statusByID map[string]domain.StudentStatus
	pensByID   map[string]string
	issues     []*domain.ValidationIssue
}

var _ repository.StudentRepository = (*fakeStudentsRepo)(nil)

func newFakeStudentsRepo() *fakeStudentsRepo {
	return &fakeStudentsRepo{
		statusByID: make(map[string]domain.StudentStatus),
		pensByID:   make(map[string]string),
	}
}

func (r *fakeStudentsRepo) GetByID(_ context.Context, _ string) (*domain.BatchStudent, error) {
	return nil, domain.ErrNotFound
}

func (r *fakeStudentsRepo) UpdateStatus(_ context.Context, id string, status domain.StudentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statusByID[id] = status
	return nil
}

func (r *fakeStudentsRepo) SetAssignedPEN(_ context.Context, id string, pen string, status domain.StudentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pensByID[id] = pen
	r.statusByID[id] = status
	return nil
}

func (r *fakeStudentsRepo) FindLoaded(_ context.Context, _ int) ([]domain.BatchStudent, error) {
	return r.loaded, nil
}

func (r *fakeStudentsRepo) FindRepeatCandidates(_ context.Context, _ string, _ time.Time, _ string) ([]domain.BatchStudent, error) {
	return r.candidates, nil
}

func (r *fakeStudentsRepo) MarkRepeats(_ context.Context, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.marked = append(r.marked, ids...)
	return nil
}

func (r *fakeStudentsRepo) CreateValidationIssues(_ context.Context, issues []*domain.ValidationIssue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issues = append(r.issues, issues...)
	return nil
}

type fakeSubmissionRepo struct {
	mu          sync.Mutex
	unextracted []domain.Submission
	extracted   map[string]time.Time
	markResult  bool
}

var _ repository.SubmissionRepository = (*fakeSubmissionRepo)(nil)

func newFakeSubmissionRepo(subs ...domain.Submission) *fakeSubmissionRepo {
	return &fakeSubmissionRepo{
		unextracted: subs,
		extracted:   make(map[string]time.Time),
		markResult:  true,
	}
}

func (r *fakeSubmissionRepo) FindUnextracted(_ context.Context, _ int) ([]domain.Submission, error) {
	return r.unextracted, nil
}

func (r *fakeSubmissionRepo) MarkExtracted(_ context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.markResult {
		return false, nil
	}
	if _, done := r.extracted[id]; done {
		return false, nil
	}
	r.extracted[id] = at
	return true, nil
}

type fakeDedupGuard struct {
	mu      sync.Mutex
	allow   bool
	claimed []string
}

func (g *fakeDedupGuard) TryClaim(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.claimed = append(g.claimed, key)
	return g.allow, nil
}

type fakeRateLimiter struct {
	mu    sync.Mutex
	waits int
	err   error
}

func (l *fakeRateLimiter) Allow(_ context.Context, _ string) (bool, error) {
	return l.err == nil, l.err
}

func (l *fakeRateLimiter) Wait(_ context.Context, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.waits++
	return nil
}

type startedSaga struct {
	BatchStudentID string
	Payload        json.RawMessage
}

type fakeOrchestrator struct {
	mu         sync.Mutex
	started    []startedSaga
	resumed    []string
	failed     []string
	startErr   error
	resumeErr  error
	maxRetries int
}

var _ Orchestrator = (*fakeOrchestrator)(nil)

func (o *fakeOrchestrator) Start(_ context.Context, batchStudentID string, payload json.RawMessage) (*domain.Saga, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.startErr != nil {
		return nil, o.startErr
	}
	o.started = append(o.started, startedSaga{BatchStudentID: batchStudentID, Payload: payload})
	return &domain.Saga{ID: "saga-" + batchStudentID, BatchStudentID: batchStudentID}, nil
}

func (o *fakeOrchestrator) Resume(_ context.Context, sg *domain.Saga) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.resumeErr != nil {
		return o.resumeErr
	}
	o.resumed = append(o.resumed, sg.ID)
	return nil
}

func (o *fakeOrchestrator) MarkFailed(_ context.Context, sg *domain.Saga, _ string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, sg.ID)
	return nil
}

func (o *fakeOrchestrator) MaxRetries() int {
	if o.maxRetries <= 0 {
		return 5
	}
	return o.maxRetries
}

type fakeSagaRepo struct {
	stale []domain.Saga
}

var _ repository.SagaRepository = (*fakeSagaRepo)(nil)

func (r *fakeSagaRepo) Create(_ context.Context, _ *domain.Saga, _ *domain.SagaEvent) error {
	return nil
}

func (r *fakeSagaRepo) GetByID(_ context.Context, _ string) (*domain.Saga, error) {
	return nil, domain.ErrNotFound
}

func (r *fakeSagaRepo) Advance(_ context.Context, _ *domain.Saga, _ ...*domain.SagaEvent) error {
	return nil
}

func (r *fakeSagaRepo) IncrementRetry(_ context.Context, _ string) error { return nil }

func (r *fakeSagaRepo) FindStale(_ context.Context, _ time.Time, _ int) ([]domain.Saga, error) {
	return r.stale, nil
}

func (r *fakeSagaRepo) ListEvents(_ context.Context, _ string) ([]domain.SagaEvent, error) {
	return nil, nil
}

func (r *fakeSagaRepo) Purge(_ context.Context, _ time.Time) (int64, error) { return 0, nil }

type fakeSubmitterLookup struct {
	submitter *domain.Submitter
	err       error
}

func (l *fakeSubmitterLookup) Lookup(_ context.Context, _ string) (*domain.Submitter, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.submitter, nil
}
