package queue

import "context"

// Publisher publishes saga envelopes to a topic. Implementations must not
// surface broker outages to the caller: an unacknowledged publish is queued
// and retried until the broker acknowledges it.
type Publisher interface {
	Publish(ctx context.Context, topic string, env Envelope) error
	Close() error
}

// MessageHandler handles one consumed envelope. Delivery is at-least-once;
// handlers must tolerate duplicates.
type MessageHandler func(ctx context.Context, env Envelope) error

// Consumer consumes saga envelopes from a topic.
type Consumer interface {
	Consume(ctx context.Context, topic string, handler MessageHandler) error
	Close() error
}

// Command topics, one per saga step, consumed by the collaborating service
// that executes the step.
const (
	TopicValidateStudent = "penreq.commands.validate"
	TopicMatchStudent    = "penreq.commands.match"
	TopicGetNextPEN      = "penreq.commands.pen"
	TopicCreateStudent   = "penreq.commands.student"
)

// Outcome topics, one per originating service, consumed by the saga
// orchestrator.
const (
	TopicValidationOutcomes = "penreq.outcomes.validation"
	TopicMatchOutcomes      = "penreq.outcomes.match"
	TopicPENOutcomes        = "penreq.outcomes.pen"
	TopicStudentOutcomes    = "penreq.outcomes.student"
)

// CommandTopics returns every command topic declared on the broker.
func CommandTopics() []string {
	return []string{
		TopicValidateStudent,
		TopicMatchStudent,
		TopicGetNextPEN,
		TopicCreateStudent,
	}
}

// OutcomeTopics returns every topic the orchestrator listens on.
func OutcomeTopics() []string {
	return []string{
		TopicValidationOutcomes,
		TopicMatchOutcomes,
		TopicPENOutcomes,
		TopicStudentOutcomes,
	}
}

// DLQName returns the dead-letter queue name for a topic.
func DLQName(topic string) string {
	return "dlq." + topic
}
