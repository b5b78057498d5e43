package saga

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/studentpen/pen-batch-engine/internal/domain"
	"github.com/studentpen/pen-batch-engine/internal/queue"
	"github.com/studentpen/pen-batch-engine/internal/repository"
	"go.uber.org/zap"
)

// PenRequestSaga owns the pen-request workflow: validate the row, try to
// match it to a known student, otherwise issue a fresh identifier and create
// the student record. Each step's outcome drives the student row's status.
type PenRequestSaga struct {
	students repository.StudentRepository
	logger   *zap.Logger
}

func NewPenRequestSaga(students repository.StudentRepository, logger *zap.Logger) (*PenRequestSaga, error) {
	if students == nil {
		return nil, fmt.Errorf("student repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PenRequestSaga{students: students, logger: logger}, nil
}

// Definition builds the state machine handed to the orchestrator.
func (p *PenRequestSaga) Definition() Definition {
	return Definition{
		SagaType:     SagaTypePenRequest,
		InitialState: StateInitiated,
		Initial: CommandSpec{
			Topic:     queue.TopicValidateStudent,
			EventType: EventValidateStudent,
		},
		InitialNext: StateValidateStudent,
		Commands: map[string]CommandSpec{
			StateValidateStudent: {Topic: queue.TopicValidateStudent, EventType: EventValidateStudent},
			StateProcessPenMatch: {Topic: queue.TopicMatchStudent, EventType: EventMatchStudent},
			StateGetNextPEN:      {Topic: queue.TopicGetNextPEN, EventType: EventGetNextPEN},
			StateCreateStudent:   {Topic: queue.TopicCreateStudent, EventType: EventCreateStudent},
		},
		Transitions: []Transition{
			{From: StateValidateStudent, EventType: EventValidateStudent, Outcome: OutcomeValidationNoError, Step: p.onValidationClean},
			{From: StateValidateStudent, EventType: EventValidateStudent, Outcome: OutcomeValidationWithError, Step: p.onValidationIssues},
			{From: StateProcessPenMatch, EventType: EventMatchStudent, Outcome: OutcomePenMatched, Step: p.onPenMatched},
			{From: StateProcessPenMatch, EventType: EventMatchStudent, Outcome: OutcomePenNotMatched, Step: p.onPenNotMatched},
			{From: StateGetNextPEN, EventType: EventGetNextPEN, Outcome: OutcomePenGenerated, Step: p.onPenGenerated},
			{From: StateCreateStudent, EventType: EventCreateStudent, Outcome: OutcomeStudentCreated, Step: p.onStudentCreated},
			{From: StateCreateStudent, EventType: EventCreateStudent, Outcome: OutcomeStudentExists, Step: p.onStudentCreated},
		},
	}
}

// onValidationClean moves a clean row on to the match step.
func (p *PenRequestSaga) onValidationClean(_ context.Context, _ *domain.Saga, _ queue.Envelope) (StepResult, error) {
	return StepResult{
		NextState: StateProcessPenMatch,
		Topic:     queue.TopicMatchStudent,
		EventType: EventMatchStudent,
	}, nil
}

// onValidationIssues records the reported issues, parks the row as
// NEW_FIXABLE for school-side correction, and completes the saga. No match
// or identifier step runs for a fixable row.
func (p *PenRequestSaga) onValidationIssues(ctx context.Context, sg *domain.Saga, env queue.Envelope) (StepResult, error) {
	payload, err := decodePayload(sg.Payload)
	if err != nil {
		return StepResult{}, err
	}

	var outcome issueOutcomePayload
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &outcome); err != nil {
			return StepResult{}, fmt.Errorf("failed to decode validation issues: %w", err)
		}
	}

	issues := make([]*domain.ValidationIssue, 0, len(outcome.Issues))
	for _, issue := range outcome.Issues {
		severity, sevErr := domain.ParseIssueSeverityFromString(issue.Severity)
		if sevErr != nil {
			severity = domain.IssueSeverityError
		}
		issues = append(issues, &domain.ValidationIssue{
			ID:             uuid.NewString(),
			BatchStudentID: payload.BatchStudentID,
			Severity:       severity,
			TypeCode:       issue.TypeCode,
			FieldCode:      issue.FieldCode,
		})
	}

	if err := p.students.CreateValidationIssues(ctx, issues); err != nil {
		return StepResult{}, fmt.Errorf("failed to persist validation issues: %w", err)
	}
	if err := p.students.UpdateStatus(ctx, payload.BatchStudentID, domain.StudentStatusFixable); err != nil {
		return StepResult{}, fmt.Errorf("failed to mark student fixable: %w", err)
	}

	p.logger.Info("student row held for correction",
		zap.String("batchStudentId", payload.BatchStudentID),
		zap.Int("issueCount", len(issues)),
	)

	return StepResult{Complete: true}, nil
}

// onPenMatched records the matched identifier against the student row and
// completes the saga.
func (p *PenRequestSaga) onPenMatched(ctx context.Context, sg *domain.Saga, env queue.Envelope) (StepResult, error) {
	pen, err := p.applyPEN(ctx, sg, env, domain.StudentStatusSysMatched)
	if err != nil {
		return StepResult{}, err
	}

	p.logger.Info("student matched to existing identifier",
		zap.String("sagaId", sg.ID),
		zap.String("pen", pen),
	)
	return StepResult{Complete: true}, nil
}

// onPenNotMatched asks the identifier service for a fresh number.
func (p *PenRequestSaga) onPenNotMatched(_ context.Context, _ *domain.Saga, _ queue.Envelope) (StepResult, error) {
	return StepResult{
		NextState: StateGetNextPEN,
		Topic:     queue.TopicGetNextPEN,
		EventType: EventGetNextPEN,
	}, nil
}

// onPenGenerated carries the freshly issued identifier into the payload so
// the create step and any re-send after a crash see it, then asks the
// student service to create the record.
func (p *PenRequestSaga) onPenGenerated(_ context.Context, sg *domain.Saga, env queue.Envelope) (StepResult, error) {
	var outcome penOutcomePayload
	if err := json.Unmarshal(env.Payload, &outcome); err != nil {
		return StepResult{}, fmt.Errorf("failed to decode issued identifier: %w", err)
	}
	if strings.TrimSpace(outcome.PEN) == "" {
		return StepResult{}, fmt.Errorf("identifier service returned an empty identifier")
	}

	payload, err := decodePayload(sg.Payload)
	if err != nil {
		return StepResult{}, err
	}
	payload.AssignedPEN = outcome.PEN

	raw, err := encodePayload(payload)
	if err != nil {
		return StepResult{}, err
	}
	sg.Payload = raw

	return StepResult{
		NextState: StateCreateStudent,
		Topic:     queue.TopicCreateStudent,
		EventType: EventCreateStudent,
	}, nil
}

// onStudentCreated finishes the new-identifier path. STUDENT_ALREADY_EXIST
// lands here too: a duplicate create command from a re-send means the record
// already went in, so the saga converges on the same terminal status.
func (p *PenRequestSaga) onStudentCreated(ctx context.Context, sg *domain.Saga, env queue.Envelope) (StepResult, error) {
	payload, err := decodePayload(sg.Payload)
	if err != nil {
		return StepResult{}, err
	}

	pen := payload.AssignedPEN
	if len(env.Payload) > 0 {
		var outcome penOutcomePayload
		if err := json.Unmarshal(env.Payload, &outcome); err == nil && strings.TrimSpace(outcome.PEN) != "" {
			pen = outcome.PEN
		}
	}
	if strings.TrimSpace(pen) == "" {
		return StepResult{}, fmt.Errorf("no identifier recorded for saga %s", sg.ID)
	}

	if err := p.students.SetAssignedPEN(ctx, payload.BatchStudentID, pen, domain.StudentStatusSysNewPen); err != nil {
		return StepResult{}, fmt.Errorf("failed to assign new identifier: %w", err)
	}

	p.logger.Info("student created with new identifier",
		zap.String("sagaId", sg.ID),
		zap.String("pen", pen),
	)
	return StepResult{Complete: true}, nil
}

func (p *PenRequestSaga) applyPEN(ctx context.Context, sg *domain.Saga, env queue.Envelope, status domain.StudentStatus) (string, error) {
	var outcome penOutcomePayload
	if err := json.Unmarshal(env.Payload, &outcome); err != nil {
		return "", fmt.Errorf("failed to decode identifier outcome: %w", err)
	}
	if strings.TrimSpace(outcome.PEN) == "" {
		return "", fmt.Errorf("outcome for saga %s carries no identifier", sg.ID)
	}

	payload, err := decodePayload(sg.Payload)
	if err != nil {
		return "", err
	}
	payload.AssignedPEN = outcome.PEN

	raw, err := encodePayload(payload)
	if err != nil {
		return "", err
	}
	sg.Payload = raw

	if err := p.students.SetAssignedPEN(ctx, payload.BatchStudentID, outcome.PEN, status); err != nil {
		return "", fmt.Errorf("failed to record identifier on student: %w", err)
	}

	return outcome.PEN, nil
}
