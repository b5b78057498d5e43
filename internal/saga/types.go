package saga

import (
	"encoding/json"
	"fmt"

	"github.com/studentpen/pen-batch-engine/internal/domain"
)

// Saga type registered with the orchestrator.
const SagaTypePenRequest = "PEN_REQUEST_SAGA"

// Pen-request saga states. A state names the step whose command has been
// published and whose outcome the orchestrator is waiting for.
const (
	StateInitiated       = "INITIATED"
	StateValidateStudent = "VALIDATE_STUDENT"
	StateProcessPenMatch = "PROCESS_PEN_MATCH"
	StateGetNextPEN      = "GET_NEXT_PEN"
	StateCreateStudent   = "CREATE_STUDENT"
	StateMarkComplete    = "MARK_SAGA_COMPLETE"
	StateCompleted       = "COMPLETED"
	StateError           = "ERROR"
)

// Command event types published to collaborating services.
const (
	EventValidateStudent = "VALIDATE_STUDENT"
	EventMatchStudent    = "MATCH_STUDENT"
	EventGetNextPEN      = "GET_NEXT_PEN"
	EventCreateStudent   = "CREATE_STUDENT"
	EventMarkComplete    = "MARK_SAGA_COMPLETE"
)

// Outcome codes received from collaborating services.
const (
	OutcomeValidationNoError   = "VALIDATION_SUCCESS_NO_ERROR"
	OutcomeValidationWithError = "VALIDATION_SUCCESS_WITH_ERROR"
	OutcomePenMatched          = "PEN_MATCHED"
	OutcomePenNotMatched       = "PEN_NOT_MATCHED"
	OutcomePenGenerated        = "PEN_GENERATED"
	OutcomeStudentCreated      = "STUDENT_CREATED"
	OutcomeStudentExists       = "STUDENT_ALREADY_EXIST"
	OutcomeSagaCompleted       = "SAGA_COMPLETED"
)

// PenRequestPayload is the serialized saga payload: everything needed to
// resume the workflow from durable state alone.
type PenRequestPayload struct {
	BatchID         string `json:"batchId"`
	BatchStudentID  string `json:"batchStudentId"`
	Mincode         string `json:"mincode"`
	LocalID         string `json:"localId,omitempty"`
	SubmittedPEN    string `json:"submittedPen,omitempty"`
	AssignedPEN     string `json:"assignedPen,omitempty"`
	LegalSurname    string `json:"legalSurname,omitempty"`
	LegalGivenName  string `json:"legalGivenName,omitempty"`
	LegalMiddleName string `json:"legalMiddleName,omitempty"`
	UsualSurname    string `json:"usualSurname,omitempty"`
	UsualGivenName  string `json:"usualGivenName,omitempty"`
	UsualMiddleName string `json:"usualMiddleName,omitempty"`
	DOB             string `json:"dob,omitempty"`
	Gender          string `json:"gender,omitempty"`
	Grade           string `json:"grade,omitempty"`
	PostalCode      string `json:"postalCode,omitempty"`
}

// PayloadForStudent builds the saga payload from a loaded batch student.
func PayloadForStudent(s *domain.BatchStudent) PenRequestPayload {
	return PenRequestPayload{
		BatchID:         s.BatchID,
		BatchStudentID:  s.ID,
		LocalID:         s.LocalID,
		SubmittedPEN:    s.SubmittedPEN,
		LegalSurname:    s.LegalSurname,
		LegalGivenName:  s.LegalGivenName,
		LegalMiddleName: s.LegalMiddleName,
		UsualSurname:    s.UsualSurname,
		UsualGivenName:  s.UsualGivenName,
		UsualMiddleName: s.UsualMiddleName,
		DOB:             s.DOB,
		Gender:          s.Gender,
		Grade:           s.Grade,
		PostalCode:      s.PostalCode,
	}
}

func decodePayload(raw json.RawMessage) (*PenRequestPayload, error) {
	var payload PenRequestPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode saga payload: %w", err)
	}
	return &payload, nil
}

func encodePayload(payload *PenRequestPayload) (json.RawMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode saga payload: %w", err)
	}
	return raw, nil
}

// penOutcomePayload is the payload shape of PEN_MATCHED and PEN_GENERATED
// outcomes.
type penOutcomePayload struct {
	PEN string `json:"pen"`
}

// issueOutcomePayload is the payload shape of the validation outcome that
// reports issues.
type issueOutcomePayload struct {
	Issues []struct {
		Severity  string `json:"severity"`
		TypeCode  string `json:"typeCode"`
		FieldCode string `json:"fieldCode"`
	} `json:"issues"`
}
