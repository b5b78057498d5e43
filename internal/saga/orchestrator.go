package saga

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/studentpen/pen-batch-engine/internal/domain"
	"github.com/studentpen/pen-batch-engine/internal/observability"
	"github.com/studentpen/pen-batch-engine/internal/queue"
	"github.com/studentpen/pen-batch-engine/internal/repository"
	"go.uber.org/zap"
)

const defaultMaxRetries = 5

// StepResult describes where a saga goes after a step's side effect.
type StepResult struct {
	// NextState is the state the saga enters; ignored when Complete is set.
	NextState string
	// Topic and EventType describe the next command; empty when the step
	// emits no command.
	Topic     string
	EventType string
	// Complete marks the saga COMPLETED after this step.
	Complete bool
}

// StepFunc executes one step's side effect. It may rewrite sg.Payload; the
// orchestrator persists whatever it leaves there.
type StepFunc func(ctx context.Context, sg *domain.Saga, env queue.Envelope) (StepResult, error)

// Transition is one row of a saga's state machine: the (state, event type,
// event outcome) triple it fires on and the step to run.
type Transition struct {
	From      string
	EventType string
	Outcome   string
	Step      StepFunc
}

// CommandSpec is the command a given state publishes, used both on entry
// and when the recovery sweep re-sends a stale saga's last command.
type CommandSpec struct {
	Topic     string
	EventType string
}

// Definition is the full state machine of one saga type.
type Definition struct {
	SagaType     string
	InitialState string
	// Initial is the first command, dispatched right after creation.
	Initial     CommandSpec
	InitialNext string
	Transitions []Transition
	// Commands maps each waiting state to the command it published, for
	// recovery re-sends.
	Commands map[string]CommandSpec
}

// Orchestrator drives sagas of one type through their state machine. It
// publishes exactly one command on entering a state, never blocks waiting
// for the outcome, and advances only when the inbound event matches the
// expected (state, outcome) pair.
type Orchestrator struct {
	def        Definition
	sagas      repository.SagaRepository
	publisher  queue.Publisher
	logger     *zap.Logger
	metrics    *observability.Metrics
	maxRetries int
	now        func() time.Time
}

func NewOrchestrator(
	def Definition,
	sagas repository.SagaRepository,
	publisher queue.Publisher,
	maxRetries int,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if def.SagaType == "" {
		return nil, fmt.Errorf("saga type is required")
	}
	if sagas == nil {
		return nil, fmt.Errorf("saga repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Orchestrator{
		def:        def,
		sagas:      sagas,
		publisher:  publisher,
		logger:     logger,
		maxRetries: maxRetries,
		now:        time.Now,
	}, nil
}

func (o *Orchestrator) SetMetrics(metrics *observability.Metrics) {
	if o == nil {
		return
	}
	o.metrics = metrics
}

func (o *Orchestrator) SagaType() string {
	return o.def.SagaType
}

// Start creates a durable saga for the payload and dispatches the first
// command. The saga row is persisted before anything is published, so a
// crash between the two is recovered by the staleness sweep re-sending the
// command.
func (o *Orchestrator) Start(ctx context.Context, batchStudentID string, payload json.RawMessage) (*domain.Saga, error) {
	sg := &domain.Saga{
		ID:             uuid.NewString(),
		SagaType:       o.def.SagaType,
		BatchStudentID: batchStudentID,
		State:          o.def.InitialState,
		Payload:        payload,
		Status:         domain.SagaStatusInProgress,
	}

	created := o.auditEvent(sg, o.def.InitialState, o.def.Initial.EventType, "", domain.EventDirectionSent)
	if err := o.sagas.Create(ctx, sg, created); err != nil {
		return nil, fmt.Errorf("failed to create saga: %w", err)
	}

	sg.State = o.def.InitialNext
	if err := o.sagas.Advance(ctx, sg); err != nil {
		return nil, fmt.Errorf("failed to advance saga to first step: %w", err)
	}

	if err := o.publishCommand(ctx, sg, o.def.Initial); err != nil {
		return nil, err
	}

	o.metrics.IncSagaStarted(o.def.SagaType)
	o.logger.Info("saga started",
		zap.String("sagaId", sg.ID),
		zap.String("sagaType", sg.SagaType),
		zap.String("state", sg.State),
	)

	return sg, nil
}

// HandleEvent processes one inbound outcome envelope. Stale and duplicate
// deliveries are logged and dropped without touching persisted state; the
// returned error is reserved for infrastructure failures so the consumer
// can redeliver.
func (o *Orchestrator) HandleEvent(ctx context.Context, env queue.Envelope) error {
	sg, err := o.sagas.GetByID(ctx, env.SagaID)
	if err == domain.ErrNotFound {
		o.logger.Warn("dropping event for unknown saga", zap.String("sagaId", env.SagaID))
		o.metrics.IncEventDropped("unknown_saga")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load saga %s: %w", env.SagaID, err)
	}

	if sg.Status.IsTerminal() {
		o.logger.Info("dropping event for terminal saga",
			zap.String("sagaId", sg.ID),
			zap.String("status", sg.Status.String()),
		)
		o.metrics.IncEventDropped("terminal_saga")
		return nil
	}

	transition, ok := o.findTransition(sg.State, env.EventType, env.EventOutcome)
	if !ok {
		o.logger.Warn("dropping stale or duplicate event",
			zap.String("sagaId", sg.ID),
			zap.String("state", sg.State),
			zap.String("eventType", env.EventType),
			zap.String("eventOutcome", env.EventOutcome),
		)
		o.metrics.IncEventDropped("state_outcome_mismatch")
		return nil
	}

	received := o.auditEvent(sg, sg.State, env.EventType, env.EventOutcome, domain.EventDirectionReceived)

	result, stepErr := transition.Step(ctx, sg, env)
	if stepErr != nil {
		return o.handleStepFailure(ctx, sg, received, stepErr)
	}

	events := []*domain.SagaEvent{received}

	var next CommandSpec
	if result.Complete {
		sg.State = StateCompleted
		sg.Status = domain.SagaStatusCompleted
		events = append(events, o.auditEvent(sg, StateMarkComplete, EventMarkComplete, OutcomeSagaCompleted, domain.EventDirectionSent))
	} else {
		sg.State = result.NextState
		next = CommandSpec{Topic: result.Topic, EventType: result.EventType}
		if next.Topic != "" {
			events = append(events, o.auditEvent(sg, sg.State, next.EventType, "", domain.EventDirectionSent))
		}
	}

	if err := o.sagas.Advance(ctx, sg, events...); err != nil {
		return fmt.Errorf("failed to persist saga %s progress: %w", sg.ID, err)
	}

	if next.Topic != "" {
		if err := o.publishCommand(ctx, sg, next); err != nil {
			return err
		}
	}

	if result.Complete {
		o.metrics.IncSagaCompleted(sg.SagaType)
		o.logger.Info("saga completed", zap.String("sagaId", sg.ID))
	}

	return nil
}

// Resume re-sends the command for the saga's current state. The staleness
// sweep uses it when the expected outcome never arrived; the receiving
// service sees a duplicate command and the match rule absorbs the duplicate
// outcome.
func (o *Orchestrator) Resume(ctx context.Context, sg *domain.Saga) error {
	if sg == nil {
		return fmt.Errorf("saga is required")
	}

	spec, ok := o.def.Commands[sg.State]
	if !ok {
		if sg.State == o.def.InitialState {
			spec = o.def.Initial
		} else {
			return fmt.Errorf("saga %s state %q has no command to re-send", sg.ID, sg.State)
		}
	}

	if err := o.sagas.IncrementRetry(ctx, sg.ID); err != nil {
		return fmt.Errorf("failed to increment retry for saga %s: %w", sg.ID, err)
	}

	o.logger.Info("re-sending last saga command",
		zap.String("sagaId", sg.ID),
		zap.String("state", sg.State),
		zap.Int("retryCount", sg.RetryCount+1),
	)

	return o.publishCommand(ctx, sg, spec)
}

// MarkFailed routes the saga to the ERROR terminal state. The student row
// stays in its non-terminal status for operator action.
func (o *Orchestrator) MarkFailed(ctx context.Context, sg *domain.Saga, reason string) error {
	if sg == nil {
		return fmt.Errorf("saga is required")
	}

	fromState := sg.State
	sg.State = StateError
	sg.Status = domain.SagaStatusFailed

	event := o.auditEvent(sg, fromState, StateError, reason, domain.EventDirectionSent)
	if err := o.sagas.Advance(ctx, sg, event); err != nil {
		return fmt.Errorf("failed to mark saga %s failed: %w", sg.ID, err)
	}

	o.metrics.IncSagaFailed(sg.SagaType)
	o.logger.Error("saga failed",
		zap.String("sagaId", sg.ID),
		zap.String("lastState", fromState),
		zap.String("reason", reason),
	)
	return nil
}

// MaxRetries exposes the retry budget shared with the recovery sweep.
func (o *Orchestrator) MaxRetries() int {
	return o.maxRetries
}

func (o *Orchestrator) handleStepFailure(ctx context.Context, sg *domain.Saga, received *domain.SagaEvent, stepErr error) error {
	o.logger.Error("saga step failed",
		zap.String("sagaId", sg.ID),
		zap.String("state", sg.State),
		zap.Int("retryCount", sg.RetryCount),
		zap.Error(stepErr),
	)

	if sg.RetryCount+1 >= o.maxRetries {
		sg.RetryCount++
		if err := o.sagas.Advance(ctx, sg, received); err != nil {
			return fmt.Errorf("failed to persist saga %s retry: %w", sg.ID, err)
		}
		return o.MarkFailed(ctx, sg, fmt.Sprintf("retries exhausted: %v", stepErr))
	}

	// State stays put: the staleness sweep re-sends the command and the
	// step gets another attempt off the event-handling path.
	sg.RetryCount++
	if err := o.sagas.Advance(ctx, sg, received); err != nil {
		return fmt.Errorf("failed to persist saga %s retry: %w", sg.ID, err)
	}
	return nil
}

func (o *Orchestrator) findTransition(state string, eventType string, outcome string) (Transition, bool) {
	for _, t := range o.def.Transitions {
		if t.From == state && t.EventType == eventType && t.Outcome == outcome {
			return t, true
		}
	}
	return Transition{}, false
}

func (o *Orchestrator) publishCommand(ctx context.Context, sg *domain.Saga, spec CommandSpec) error {
	env := queue.Envelope{
		SagaID:    sg.ID,
		EventType: spec.EventType,
		Payload:   sg.Payload,
	}
	if err := o.publisher.Publish(ctx, spec.Topic, env); err != nil {
		return fmt.Errorf("failed to publish %s command for saga %s: %w", spec.EventType, sg.ID, err)
	}
	return nil
}

func (o *Orchestrator) auditEvent(sg *domain.Saga, state string, eventType string, outcome string, direction domain.EventDirection) *domain.SagaEvent {
	return &domain.SagaEvent{
		ID:           uuid.NewString(),
		SagaID:       sg.ID,
		State:        state,
		EventType:    eventType,
		EventOutcome: outcome,
		Direction:    direction,
		CreatedAt:    o.now().UTC(),
	}
}
