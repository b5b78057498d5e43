package queue

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Envelope is the wire format for every saga command and outcome. Payloads
// are opaque structured data specific to the step.
type Envelope struct {
	SagaID       string          `json:"sagaId"`
	EventType    string          `json:"eventType"`
	EventOutcome string          `json:"eventOutcome,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

func (e Envelope) Validate() error {
	if strings.TrimSpace(e.SagaID) == "" {
		return fmt.Errorf("sagaId is required")
	}
	if strings.TrimSpace(e.EventType) == "" {
		return fmt.Errorf("eventType is required")
	}
	return nil
}
