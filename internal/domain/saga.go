package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SagaStatus represents the overall lifecycle of a saga run.
type SagaStatus string

const (
	SagaStatusInProgress SagaStatus = "IN_PROGRESS"
	SagaStatusCompleted  SagaStatus = "COMPLETED"
	SagaStatusFailed     SagaStatus = "FAILED"
)

func (s SagaStatus) String() string { return string(s) }

func (s SagaStatus) IsValid() bool {
	switch s {
	case SagaStatusInProgress, SagaStatusCompleted, SagaStatusFailed:
		return true
	}
	return false
}

func (s SagaStatus) IsTerminal() bool {
	return s == SagaStatusCompleted || s == SagaStatusFailed
}

func ParseSagaStatusFromString(s string) (SagaStatus, error) {
	st := SagaStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid saga status %q", ErrValidation, s)
	}
	return st, nil
}

// Saga is the durable record of one multi-step workflow run. The serialized
// payload plus the current state is everything needed to resume after a
// crash; no in-memory-only progress exists.
type Saga struct {
	ID             string
	SagaType       string
	BatchStudentID string
	State          string
	Payload        json.RawMessage
	RetryCount     int
	Status         SagaStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SagaEvent is one row of the append-only audit/replay log owned by a saga.
type SagaEvent struct {
	ID           string
	SagaID       string
	State        string
	EventType    string
	EventOutcome string
	Direction    EventDirection
	CreatedAt    time.Time
}

// EventDirection distinguishes commands the orchestrator sent from outcomes
// it received.
type EventDirection string

const (
	EventDirectionSent     EventDirection = "SENT"
	EventDirectionReceived EventDirection = "RECEIVED"
)

func (d EventDirection) String() string { return string(d) }

func (d EventDirection) IsValid() bool {
	return d == EventDirectionSent || d == EventDirectionReceived
}
