package queue

import (
	"context"
	"testing"
)

func TestTopicsAreDistinct(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	for _, topic := range append(CommandTopics(), OutcomeTopics()...) {
		if topic == "" {
			t.Error("declared topic is empty")
		}
		if seen[topic] {
			t.Errorf("topic %q declared twice", topic)
		}
		seen[topic] = true

		if seen[DLQName(topic)] {
			t.Errorf("dlq name %q collides with a topic", DLQName(topic))
		}
	}
}

func TestDLQName(t *testing.T) {
	t.Parallel()

	if got := DLQName(TopicValidateStudent); got != "dlq.penreq.commands.validate" {
		t.Errorf("DLQName() = %q", got)
	}
}

func TestEnvelopeValidate(t *testing.T) {
	t.Parallel()

	valid := Envelope{SagaID: "saga-1", EventType: "VALIDATE_STUDENT"}
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}

	missingSaga := Envelope{EventType: "VALIDATE_STUDENT"}
	if err := missingSaga.Validate(); err == nil {
		t.Error("Validate() = nil, want error for missing sagaId")
	}

	blankType := Envelope{SagaID: "saga-1", EventType: "   "}
	if err := blankType.Validate(); err == nil {
		t.Error("Validate() = nil, want error for blank eventType")
	}
}

func TestPublisherRejectsBadInput(t *testing.T) {
	t.Parallel()

	p := NewBusPublisher(nil, 0, nil)
	env := Envelope{SagaID: "saga-1", EventType: "VALIDATE_STUDENT"}

	if err := p.Publish(context.Background(), TopicValidateStudent, env); err == nil {
		t.Error("Publish() = nil, want error without a broker client")
	}

	connected := &BusPublisher{client: &RabbitMQ{}}
	if err := connected.Publish(context.Background(), "", env); err == nil {
		t.Error("Publish() = nil, want error for empty topic")
	}
	if err := connected.Publish(context.Background(), TopicValidateStudent, Envelope{}); err == nil {
		t.Error("Publish() = nil, want error for invalid envelope")
	}
}
