package saga

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/studentpen/pen-batch-engine/internal/domain"
	"github.com/studentpen/pen-batch-engine/internal/queue"
)

func TestPenMatchedAssignsIdentifierAndCompletes(t *testing.T) {
	t.Parallel()

	repo := newFakeSagaRepo()
	publisher := &fakePublisher{}
	students := newFakeStudentRepo()
	orchestrator := newTestOrchestrator(t, repo, publisher, students)
	seedSaga(t, repo, StateProcessPenMatch, domain.SagaStatusInProgress)

	outcome, _ := json.Marshal(penOutcomePayload{PEN: "120164447"})
	err := orchestrator.HandleEvent(context.Background(), queue.Envelope{
		SagaID:       "saga-1",
		EventType:    EventMatchStudent,
		EventOutcome: OutcomePenMatched,
		Payload:      outcome,
	})
	if err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}

	if got := students.pensByID["student-1"]; got != "120164447" {
		t.Errorf("assigned pen = %q, want %q", got, "120164447")
	}
	if got := students.statusByID["student-1"]; got != domain.StudentStatusSysMatched {
		t.Errorf("student status = %q, want %q", got, domain.StudentStatusSysMatched)
	}

	stored := repo.stored(t, "saga-1")
	if stored.Status != domain.SagaStatusCompleted {
		t.Errorf("saga status = %q, want %q", stored.Status, domain.SagaStatusCompleted)
	}
	if got := len(publisher.messages()); got != 0 {
		t.Errorf("published %d messages after terminal step, want 0", got)
	}
}

func TestValidationIssuesParkRowForCorrection(t *testing.T) {
	t.Parallel()

	repo := newFakeSagaRepo()
	publisher := &fakePublisher{}
	students := newFakeStudentRepo()
	orchestrator := newTestOrchestrator(t, repo, publisher, students)
	seedSaga(t, repo, StateValidateStudent, domain.SagaStatusInProgress)

	outcome := []byte(`{"issues":[
		{"severity":"ERROR","typeCode":"INVCHARS","fieldCode":"LEGALFIRST"},
		{"severity":"WARNING","typeCode":"BLANKFIELD","fieldCode":"POSTALCODE"}
	]}`)
	err := orchestrator.HandleEvent(context.Background(), queue.Envelope{
		SagaID:       "saga-1",
		EventType:    EventValidateStudent,
		EventOutcome: OutcomeValidationWithError,
		Payload:      outcome,
	})
	if err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}

	if got := students.statusByID["student-1"]; got != domain.StudentStatusFixable {
		t.Errorf("student status = %q, want %q", got, domain.StudentStatusFixable)
	}
	if len(students.issues) != 2 {
		t.Fatalf("persisted %d issues, want 2", len(students.issues))
	}
	if students.issues[0].Severity != domain.IssueSeverityError {
		t.Errorf("first issue severity = %q, want %q", students.issues[0].Severity, domain.IssueSeverityError)
	}
	if students.issues[1].FieldCode != "POSTALCODE" {
		t.Errorf("second issue field = %q, want POSTALCODE", students.issues[1].FieldCode)
	}

	stored := repo.stored(t, "saga-1")
	if stored.Status != domain.SagaStatusCompleted {
		t.Errorf("saga status = %q, want %q", stored.Status, domain.SagaStatusCompleted)
	}
	if got := len(publisher.messages()); got != 0 {
		t.Errorf("published %d messages, want 0 for fixable row", got)
	}
}

func TestPenNotMatchedRequestsFreshIdentifier(t *testing.T) {
	t.Parallel()

	repo := newFakeSagaRepo()
	publisher := &fakePublisher{}
	orchestrator := newTestOrchestrator(t, repo, publisher, newFakeStudentRepo())
	seedSaga(t, repo, StateProcessPenMatch, domain.SagaStatusInProgress)

	err := orchestrator.HandleEvent(context.Background(), queue.Envelope{
		SagaID:       "saga-1",
		EventType:    EventMatchStudent,
		EventOutcome: OutcomePenNotMatched,
	})
	if err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}

	stored := repo.stored(t, "saga-1")
	if stored.State != StateGetNextPEN {
		t.Errorf("state = %q, want %q", stored.State, StateGetNextPEN)
	}

	messages := publisher.messages()
	if len(messages) != 1 {
		t.Fatalf("published %d messages, want 1", len(messages))
	}
	if messages[0].Topic != queue.TopicGetNextPEN {
		t.Errorf("topic = %q, want %q", messages[0].Topic, queue.TopicGetNextPEN)
	}
}

func TestPenGeneratedCarriesIdentifierIntoDurablePayload(t *testing.T) {
	t.Parallel()

	repo := newFakeSagaRepo()
	publisher := &fakePublisher{}
	orchestrator := newTestOrchestrator(t, repo, publisher, newFakeStudentRepo())
	seedSaga(t, repo, StateGetNextPEN, domain.SagaStatusInProgress)

	outcome, _ := json.Marshal(penOutcomePayload{PEN: "120164455"})
	err := orchestrator.HandleEvent(context.Background(), queue.Envelope{
		SagaID:       "saga-1",
		EventType:    EventGetNextPEN,
		EventOutcome: OutcomePenGenerated,
		Payload:      outcome,
	})
	if err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}

	stored := repo.stored(t, "saga-1")
	if stored.State != StateCreateStudent {
		t.Errorf("state = %q, want %q", stored.State, StateCreateStudent)
	}

	payload, err := decodePayload(stored.Payload)
	if err != nil {
		t.Fatalf("decode stored payload: %v", err)
	}
	if payload.AssignedPEN != "120164455" {
		t.Errorf("payload assigned pen = %q, want %q", payload.AssignedPEN, "120164455")
	}

	messages := publisher.messages()
	if len(messages) != 1 {
		t.Fatalf("published %d messages, want 1", len(messages))
	}
	if messages[0].Topic != queue.TopicCreateStudent {
		t.Errorf("topic = %q, want %q", messages[0].Topic, queue.TopicCreateStudent)
	}

	var sent PenRequestPayload
	if err := json.Unmarshal(messages[0].Envelope.Payload, &sent); err != nil {
		t.Fatalf("decode command payload: %v", err)
	}
	if sent.AssignedPEN != "120164455" {
		t.Errorf("command payload pen = %q, want %q", sent.AssignedPEN, "120164455")
	}
}

func TestPenGeneratedRejectsEmptyIdentifier(t *testing.T) {
	t.Parallel()

	repo := newFakeSagaRepo()
	publisher := &fakePublisher{}
	orchestrator := newTestOrchestrator(t, repo, publisher, newFakeStudentRepo())
	seedSaga(t, repo, StateGetNextPEN, domain.SagaStatusInProgress)

	err := orchestrator.HandleEvent(context.Background(), queue.Envelope{
		SagaID:       "saga-1",
		EventType:    EventGetNextPEN,
		EventOutcome: OutcomePenGenerated,
		Payload:      []byte(`{"pen":""}`),
	})
	if err != nil {
		t.Fatalf("HandleEvent() error = %v, want retry scheduled instead", err)
	}

	stored := repo.stored(t, "saga-1")
	if stored.State != StateGetNextPEN {
		t.Errorf("state = %q, want unchanged %q", stored.State, StateGetNextPEN)
	}
	if stored.RetryCount != 1 {
		t.Errorf("retry count = %d, want 1", stored.RetryCount)
	}
}

func TestStudentCreatedCompletesWithNewIdentifier(t *testing.T) {
	t.Parallel()

	repo := newFakeSagaRepo()
	publisher := &fakePublisher{}
	students := newFakeStudentRepo()
	orchestrator := newTestOrchestrator(t, repo, publisher, students)

	sg := seedSaga(t, repo, StateCreateStudent, domain.SagaStatusInProgress)
	payload, _ := decodePayload(sg.Payload)
	payload.AssignedPEN = "120164463"
	raw, _ := encodePayload(payload)
	sg.Payload = raw
	if err := repo.Advance(context.Background(), sg); err != nil {
		t.Fatalf("seed payload: %v", err)
	}

	err := orchestrator.HandleEvent(context.Background(), queue.Envelope{
		SagaID:       "saga-1",
		EventType:    EventCreateStudent,
		EventOutcome: OutcomeStudentCreated,
	})
	if err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}

	if got := students.pensByID["student-1"]; got != "120164463" {
		t.Errorf("assigned pen = %q, want %q", got, "120164463")
	}
	if got := students.statusByID["student-1"]; got != domain.StudentStatusSysNewPen {
		t.Errorf("student status = %q, want %q", got, domain.StudentStatusSysNewPen)
	}

	stored := repo.stored(t, "saga-1")
	if stored.Status != domain.SagaStatusCompleted {
		t.Errorf("saga status = %q, want %q", stored.Status, domain.SagaStatusCompleted)
	}
}

func TestStudentAlreadyExistsConvergesOnSameTerminalStatus(t *testing.T) {
	t.Parallel()

	repo := newFakeSagaRepo()
	publisher := &fakePublisher{}
	students := newFakeStudentRepo()
	orchestrator := newTestOrchestrator(t, repo, publisher, students)
	seedSaga(t, repo, StateCreateStudent, domain.SagaStatusInProgress)

	outcome, _ := json.Marshal(penOutcomePayload{PEN: "120164471"})
	err := orchestrator.HandleEvent(context.Background(), queue.Envelope{
		SagaID:       "saga-1",
		EventType:    EventCreateStudent,
		EventOutcome: OutcomeStudentExists,
		Payload:      outcome,
	})
	if err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}

	if got := students.statusByID["student-1"]; got != domain.StudentStatusSysNewPen {
		t.Errorf("student status = %q, want %q", got, domain.StudentStatusSysNewPen)
	}

	stored := repo.stored(t, "saga-1")
	if stored.Status != domain.SagaStatusCompleted {
		t.Errorf("saga status = %q, want %q", stored.Status, domain.SagaStatusCompleted)
	}
}

func TestResumeAfterRestartUsesDurableStateOnly(t *testing.T) {
	t.Parallel()

	repo := newFakeSagaRepo()
	publisher := &fakePublisher{}
	students := newFakeStudentRepo()

	// First process: saga advances to the create step with a fresh
	// identifier in the durable payload.
	first := newTestOrchestrator(t, repo, publisher, students)
	seedSaga(t, repo, StateGetNextPEN, domain.SagaStatusInProgress)

	outcome, _ := json.Marshal(penOutcomePayload{PEN: "120164480"})
	if err := first.HandleEvent(context.Background(), queue.Envelope{
		SagaID:       "saga-1",
		EventType:    EventGetNextPEN,
		EventOutcome: OutcomePenGenerated,
		Payload:      outcome,
	}); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}

	// Second process: a fresh orchestrator over the same store resumes and
	// the re-sent command carries the identifier from the durable payload.
	second := newTestOrchestrator(t, repo, publisher, students)
	stored := repo.stored(t, "saga-1")
	if err := second.Resume(context.Background(), stored); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}

	messages := publisher.messages()
	last := messages[len(messages)-1]
	if last.Topic != queue.TopicCreateStudent {
		t.Errorf("resumed topic = %q, want %q", last.Topic, queue.TopicCreateStudent)
	}

	var sent PenRequestPayload
	if err := json.Unmarshal(last.Envelope.Payload, &sent); err != nil {
		t.Fatalf("decode resumed payload: %v", err)
	}
	if sent.AssignedPEN != "120164480" {
		t.Errorf("resumed payload pen = %q, want %q", sent.AssignedPEN, "120164480")
	}
}
