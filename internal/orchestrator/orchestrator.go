package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/events"
	"github.com/fyrsmithlabs/taskd/internal/executor"
	"github.com/fyrsmithlabs/taskd/internal/logging"
	"github.com/fyrsmithlabs/taskd/internal/plan"
	"github.com/fyrsmithlabs/taskd/internal/taskcontext"
)

const tracerName = "github.com/fyrsmithlabs/taskd/internal/orchestrator"

var (
	// ErrNoPendingConfirmation is returned by Resume for a task that is not
	// waiting on a person.
	ErrNoPendingConfirmation = errors.New("task has no pending confirmation")

	// ErrTokenMismatch is returned by Resume when the token does not match
	// the pending confirmation.
	ErrTokenMismatch = errors.New("confirmation token does not match")
)

// Status is the outcome of one run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusEmptyPlan Status = "empty_plan"
	StatusAwaiting  Status = "awaiting_confirmation"
	StatusFailed    Status = "failed"
)

// Outcome is what a caller gets back from a run.
type Outcome struct {
	AgentID string             `json:"agent_id"`
	TaskID  string             `json:"task_id"`
	Status  Status             `json:"status"`
	Answer  string             `json:"answer,omitempty"`
	Pending *plan.Confirmation `json:"pending,omitempty"`
	Steps   []plan.StepRecord  `json:"steps,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// Planner produces a run state for a task.
type Planner interface {
	Plan(ctx context.Context, req plan.Request) (*plan.RunState, error)
}

// StepExecutor advances a run state.
type StepExecutor interface {
	ExecuteStep(ctx context.Context, state *plan.RunState) (*plan.Results, error)
	Confirm(ctx context.Context, state *plan.RunState, choice string) (*plan.Results, error)
}

// Solver produces the final answer of an executed run.
type Solver interface {
	Solve(ctx context.Context, state *plan.RunState) (string, error)
}

// Store is the part of the task context store the orchestrator uses.
type Store interface {
	AddChatMessage(ctx context.Context, agentID, taskID, role, content string) error
	UpdateStatus(ctx context.Context, agentID, taskID string, status taskcontext.Status) error
	SaveRunState(ctx context.Context, agentID, taskID string, v any) error
	TakeRunState(ctx context.Context, agentID, taskID string, v any, accept func() error) error
	ClearRunState(ctx context.Context, agentID, taskID string) error
}

// Orchestrator runs tasks end to end.
type Orchestrator struct {
	planner  Planner
	executor StepExecutor
	solver   Solver
	store    Store
	events   events.Publisher
	metrics  *Metrics
	logger   *zap.Logger
	tracer   trace.Tracer
	guard    *runGuard
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPublisher sets the event publisher for run lifecycle events.
func WithPublisher(p events.Publisher) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.events = p
		}
	}
}

// WithMetrics records runs in m.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates an Orchestrator.
func New(p Planner, e StepExecutor, s Solver, store Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		planner:  p,
		executor: e,
		solver:   s,
		store:    store,
		events:   events.Nop{},
		logger:   zap.NewNop(),
		tracer:   otel.Tracer(tracerName),
		guard:    newRunGuard(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunTask plans, executes and solves task under a new task id.
func (o *Orchestrator) RunTask(ctx context.Context, agentID, task string) (*Outcome, error) {
	return o.Run(ctx, plan.Request{AgentID: agentID, Task: task})
}

// Running reports whether a Run or Resume of the task is in progress.
func (o *Orchestrator) Running(agentID, taskID string) bool {
	return o.guard.holds(agentID, taskID)
}

// Run executes req. An empty TaskID allocates one; an existing task id
// reuses that task's context. A task already running returns ErrTaskBusy.
func (o *Orchestrator) Run(ctx context.Context, req plan.Request) (*Outcome, error) {
	if req.TaskID == "" {
		req.TaskID = uuid.NewString()
	}
	release, ok := o.guard.acquire(req.AgentID, req.TaskID)
	if !ok {
		return nil, ErrTaskBusy
	}
	defer release()
	ctx = logging.WithTask(ctx, req.AgentID, req.TaskID)
	ctx, span := o.tracer.Start(ctx, "run_task", trace.WithAttributes(
		attribute.String("agent.id", req.AgentID),
		attribute.String("task.id", req.TaskID),
	))
	defer span.End()

	start := time.Now()
	out := &Outcome{AgentID: req.AgentID, TaskID: req.TaskID}

	state, err := o.planner.Plan(ctx, req)
	if err != nil {
		return o.fail(ctx, out, start, fmt.Errorf("plan task: %w", err))
	}
	o.history(ctx, state, "user", req.Task)

	if len(state.Steps) == 0 {
		o.logger.Warn("empty plan, skipping solver", zap.String("task_id", req.TaskID))
		o.setStatus(ctx, state.AgentID, state.TaskID, taskcontext.StatusFailed)
		out.Status = StatusEmptyPlan
		o.publish(ctx, events.Event{Kind: events.KindFailed, AgentID: out.AgentID, TaskID: out.TaskID, Message: "empty plan"})
		o.observe(out.Status, start)
		return out, nil
	}

	o.setStatus(ctx, state.AgentID, state.TaskID, taskcontext.StatusInProgress)
	o.publish(ctx, events.Event{
		Kind:    events.KindStarted,
		AgentID: out.AgentID,
		TaskID:  out.TaskID,
		Message: fmt.Sprintf("%d step(s) planned", len(state.Steps)),
	})
	span.SetAttributes(attribute.Int("plan.steps", len(state.Steps)))
	return o.drive(ctx, state, out, start)
}

// Resume continues a run suspended on a confirmation. token must match the
// pending confirmation and is consumed by the first Resume that presents it.
// An invalid choice leaves the run suspended under the same token.
func (o *Orchestrator) Resume(ctx context.Context, agentID, taskID, token, choice string) (*Outcome, error) {
	release, ok := o.guard.acquire(agentID, taskID)
	if !ok {
		return nil, ErrTaskBusy
	}
	defer release()

	ctx = logging.WithTask(ctx, agentID, taskID)
	ctx, span := o.tracer.Start(ctx, "resume_task", trace.WithAttributes(
		attribute.String("agent.id", agentID),
		attribute.String("task.id", taskID),
	))
	defer span.End()

	var state plan.RunState
	err := o.store.TakeRunState(ctx, agentID, taskID, &state, func() error {
		if state.Pending == nil {
			return ErrNoPendingConfirmation
		}
		if state.Pending.Token != token {
			return ErrTokenMismatch
		}
		return nil
	})
	switch {
	case errors.Is(err, taskcontext.ErrRunStateNotFound), errors.Is(err, taskcontext.ErrTaskNotFound):
		return nil, ErrNoPendingConfirmation
	case errors.Is(err, ErrNoPendingConfirmation), errors.Is(err, ErrTokenMismatch):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("take run state: %w", err)
	}

	if _, err := o.executor.Confirm(ctx, &state, choice); err != nil {
		if serr := o.store.SaveRunState(ctx, agentID, taskID, &state); serr != nil {
			o.logger.Error("restore run state failed", zap.String("task_id", taskID), zap.Error(serr))
		}
		return nil, err
	}
	o.history(ctx, &state, "user", choice)

	o.setStatus(ctx, agentID, taskID, taskcontext.StatusInProgress)
	o.publish(ctx, events.Event{Kind: events.KindStarted, AgentID: agentID, TaskID: taskID, Message: "resumed"})
	return o.drive(ctx, &state, &Outcome{AgentID: agentID, TaskID: taskID}, time.Now())
}

// drive executes the remaining steps and solves. The loop is bounded by
// the step count since every iteration records one step.
func (o *Orchestrator) drive(ctx context.Context, state *plan.RunState, out *Outcome, start time.Time) (*Outcome, error) {
	for i := 0; !state.Done() && i <= len(state.Steps); i++ {
		before := len(state.Records)
		_, err := o.executor.ExecuteStep(ctx, state)
		o.countSteps(state, before)
		if errors.Is(err, executor.ErrAwaitingConfirmation) {
			return o.suspend(ctx, state, out, start)
		}
		if err != nil {
			return o.fail(ctx, out, start, fmt.Errorf("execute step: %w", err))
		}
	}
	out.Steps = state.Records

	answer, err := o.solver.Solve(ctx, state)
	if err != nil {
		return o.fail(ctx, out, start, err)
	}
	out.Answer = answer
	out.Status = StatusCompleted
	o.history(ctx, state, "assistant", answer)

	if err := o.store.ClearRunState(ctx, state.AgentID, state.TaskID); err != nil {
		o.logger.Warn("clear run state failed", zap.String("task_id", state.TaskID), zap.Error(err))
	}
	o.publish(ctx, events.Event{Kind: events.KindCompleted, AgentID: out.AgentID, TaskID: out.TaskID, Message: answer})
	o.observe(out.Status, start)
	return out, nil
}

func (o *Orchestrator) suspend(ctx context.Context, state *plan.RunState, out *Outcome, start time.Time) (*Outcome, error) {
	if err := o.store.SaveRunState(ctx, state.AgentID, state.TaskID, state); err != nil {
		return o.fail(ctx, out, start, fmt.Errorf("save run state: %w", err))
	}
	o.setStatus(ctx, state.AgentID, state.TaskID, taskcontext.StatusAwaitingConfirmation)
	out.Status = StatusAwaiting
	out.Pending = state.Pending
	out.Steps = state.Records
	o.observe(out.Status, start)
	return out, nil
}

func (o *Orchestrator) fail(ctx context.Context, out *Outcome, start time.Time, err error) (*Outcome, error) {
	out.Status = StatusFailed
	out.Error = err.Error()
	o.logger.Error("task failed", zap.String("task_id", out.TaskID), zap.Error(err))
	o.setStatus(ctx, out.AgentID, out.TaskID, taskcontext.StatusFailed)
	o.publish(ctx, events.Event{Kind: events.KindFailed, AgentID: out.AgentID, TaskID: out.TaskID, Message: err.Error()})
	o.observe(out.Status, start)
	return out, err
}

// setStatus ignores tasks that were never created, such as a run whose
// planning call failed.
func (o *Orchestrator) setStatus(ctx context.Context, agentID, taskID string, status taskcontext.Status) {
	err := o.store.UpdateStatus(context.WithoutCancel(ctx), agentID, taskID, status)
	if err == nil || errors.Is(err, taskcontext.ErrTaskNotFound) {
		return
	}
	o.logger.Warn("update task status failed",
		zap.String("task_id", taskID),
		zap.String("status", string(status)),
		zap.Error(err))
}

func (o *Orchestrator) history(ctx context.Context, state *plan.RunState, role, content string) {
	if err := o.store.AddChatMessage(ctx, state.AgentID, state.TaskID, role, content); err != nil {
		o.logger.Warn("record chat message failed", zap.String("task_id", state.TaskID), zap.String("role", role), zap.Error(err))
	}
}

func (o *Orchestrator) publish(ctx context.Context, ev events.Event) {
	ev.Time = time.Now()
	if err := o.events.Publish(context.WithoutCancel(ctx), ev); err != nil {
		o.logger.Debug("publish event failed", zap.String("kind", string(ev.Kind)), zap.Error(err))
	}
}

func (o *Orchestrator) observe(status Status, start time.Time) {
	if o.metrics == nil {
		return
	}
	o.metrics.TasksTotal.WithLabelValues(string(status)).Inc()
	o.metrics.TaskDuration.WithLabelValues(string(status)).Observe(time.Since(start).Seconds())
}

func (o *Orchestrator) countSteps(state *plan.RunState, before int) {
	if o.metrics == nil {
		return
	}
	for _, rec := range state.Records[before:] {
		result := "ok"
		if rec.Failed {
			result = "failed"
		}
		o.metrics.StepsTotal.WithLabelValues(rec.Tool, result).Inc()
	}
}
