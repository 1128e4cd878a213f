// Package executor advances a run state by one plan step at a time.
//
// Step failures never abort a run. Unknown tools, tool errors and deadlines
// are recorded inline as "Error executing {tool}: {message}" so later steps
// and the solver still see them.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/config"
	"github.com/fyrsmithlabs/taskd/internal/events"
	"github.com/fyrsmithlabs/taskd/internal/plan"
	"github.com/fyrsmithlabs/taskd/internal/substitute"
	"github.com/fyrsmithlabs/taskd/internal/taskcontext"
	"github.com/fyrsmithlabs/taskd/internal/tools"
)

const tracerName = "github.com/fyrsmithlabs/taskd/internal/executor"

var (
	// ErrStepTimeout is the inline failure of a step that overran its deadline.
	ErrStepTimeout = errors.New("step timed out")

	// ErrAwaitingConfirmation is returned when a step needs a person to pick
	// an option. The run state carries the pending confirmation.
	ErrAwaitingConfirmation = errors.New("awaiting confirmation")

	// ErrNothingPending is returned by Confirm when no step is suspended.
	ErrNothingPending = errors.New("no pending confirmation")

	// ErrStepMismatch is returned by Confirm when the pending confirmation
	// does not belong to the next step of the plan.
	ErrStepMismatch = errors.New("pending confirmation does not match the next step")
)

// Store is the part of the task context store the executor writes to.
type Store interface {
	RecordStepProgress(ctx context.Context, agentID, taskID, match, record string) error
	AddResourceLink(ctx context.Context, agentID, taskID, title, url, description string) error
}

// Redactor masks secrets in tool output.
type Redactor interface {
	Redact(content string) (string, int)
}

// Config tunes step execution.
type Config struct {
	StepTimeout       time.Duration
	SubstitutionLimit int
	PreviewLength     int
}

// ConfigFrom maps the executor config section.
func ConfigFrom(cfg config.ExecutorConfig) Config {
	return Config{
		StepTimeout:       cfg.StepTimeout.Duration(),
		SubstitutionLimit: cfg.SubstitutionLimit,
		PreviewLength:     cfg.PreviewLength,
	}
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithPublisher sets the progress event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(e *Executor) {
		if p != nil {
			e.events = p
		}
	}
}

// WithRedactor masks secrets in results before they are stored.
func WithRedactor(r Redactor) Option {
	return func(e *Executor) { e.redactor = r }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

// Executor runs plan steps against the tool registry.
type Executor struct {
	registry *tools.Registry
	store    Store
	cfg      Config
	resolver substitute.Resolver
	redactor Redactor
	events   events.Publisher
	logger   *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// New creates an Executor.
func New(registry *tools.Registry, store Store, cfg Config, opts ...Option) *Executor {
	if cfg.PreviewLength <= 0 {
		cfg.PreviewLength = 200
	}
	e := &Executor{
		registry: registry,
		store:    store,
		cfg:      cfg,
		resolver: substitute.New(cfg.SubstitutionLimit),
		events:   events.Nop{},
		logger:   zap.NewNop(),
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NextStepIndex returns the 1-based number of the next step to run, or
// false once every step has a result.
func NextStepIndex(results *plan.Results, steps []plan.Step) (int, bool) {
	n := results.Len()
	if n == 0 {
		return 1, true
	}
	if n >= len(steps) {
		return 0, false
	}
	return n + 1, true
}

// ExecuteStep runs the next step of state and returns the updated results.
// A suspended step yields ErrAwaitingConfirmation with state.Pending set.
func (e *Executor) ExecuteStep(ctx context.Context, state *plan.RunState) (*plan.Results, error) {
	if state.Results == nil {
		state.Results = plan.NewResults()
	}
	if state.Pending != nil {
		return state.Results, ErrAwaitingConfirmation
	}
	if _, ok := NextStepIndex(state.Results, state.Steps); !ok || state.Done() {
		return state.Results, nil
	}
	// Records advance once per executed step, so duplicate step names
	// cannot stall the loop.
	step := state.Steps[len(state.Records)]

	ctx, span := e.tracer.Start(ctx, "execute_step", trace.WithAttributes(
		attribute.String("task.id", state.TaskID),
		attribute.String("step.name", step.Name),
		attribute.String("step.tool", step.Tool),
	))
	defer span.End()

	input := e.resolver.Resolve(step.Input, state.Results)
	start := e.now()
	out, err := e.invoke(ctx, step.Tool, input)
	elapsed := e.now().Sub(start)

	var cr *tools.ConfirmationRequest
	if errors.As(err, &cr) {
		state.Pending = &plan.Confirmation{
			Token:     uuid.NewString(),
			StepName:  step.Name,
			Tool:      step.Tool,
			Prompt:    cr.Prompt,
			Options:   cr.Options,
			CreatedAt: e.now(),
		}
		span.SetAttributes(attribute.Bool("step.awaiting", true))
		e.publish(ctx, events.Event{
			Kind:    events.KindAwaiting,
			AgentID: state.AgentID,
			TaskID:  state.TaskID,
			Step:    step.Name,
			Tool:    step.Tool,
			Message: cr.Present(),
		})
		return state.Results, ErrAwaitingConfirmation
	}
	if err != nil && ctx.Err() != nil && !errors.Is(err, ErrStepTimeout) {
		// The caller gave up on the whole run.
		span.SetStatus(codes.Error, "cancelled")
		return state.Results, ctx.Err()
	}

	failed := err != nil
	if failed {
		out = ErrorText(step.Tool, err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Warn("step failed",
			zap.String("task_id", state.TaskID),
			zap.String("step", step.Name),
			zap.String("tool", step.Tool),
			zap.Error(err))
	}
	e.complete(ctx, state, step, out, failed, elapsed)
	return state.Results, nil
}

// Confirm applies choice to the pending step of state and records its
// result. An invalid choice leaves the step pending.
func (e *Executor) Confirm(ctx context.Context, state *plan.RunState, choice string) (*plan.Results, error) {
	p := state.Pending
	if p == nil {
		return state.Results, ErrNothingPending
	}
	if state.Results == nil {
		state.Results = plan.NewResults()
	}
	id, _, err := e.registry.Lookup(p.Tool)
	if err != nil {
		return state.Results, err
	}

	if len(state.Records) >= len(state.Steps) {
		return state.Results, fmt.Errorf("pending step %s is outside the plan", p.StepName)
	}
	step := state.Steps[len(state.Records)]
	if step.Name != p.StepName || step.Tool != p.Tool {
		return state.Results, fmt.Errorf("%w: pending %s (%s), next %s (%s)",
			ErrStepMismatch, p.StepName, p.Tool, step.Name, step.Tool)
	}
	start := e.now()
	out, err := e.registry.Confirm(ctx, p.Tool, &tools.ConfirmationRequest{
		Tool:    id,
		Prompt:  p.Prompt,
		Options: p.Options,
	}, choice)
	if err != nil {
		return state.Results, fmt.Errorf("confirm %s: %w", p.StepName, err)
	}

	state.Pending = nil
	e.complete(ctx, state, step, out, false, e.now().Sub(start))
	return state.Results, nil
}

// ErrorText renders the inline result of a failed step.
func ErrorText(tool string, err error) string {
	var ee *tools.ExecutionError
	if errors.As(err, &ee) {
		err = ee.Err
	}
	return fmt.Sprintf("Error executing %s: %s", tool, err.Error())
}

// invoke calls the tool under the step deadline. A tool that ignores its
// context is abandoned when the deadline passes.
func (e *Executor) invoke(ctx context.Context, tool, input string) (string, error) {
	if e.cfg.StepTimeout <= 0 {
		return e.registry.Invoke(ctx, tool, input)
	}
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.StepTimeout)
	defer cancel()

	type reply struct {
		out string
		err error
	}
	done := make(chan reply, 1)
	go func() {
		out, err := e.registry.Invoke(callCtx, tool, input)
		done <- reply{out, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", fmt.Errorf("%w after %s", ErrStepTimeout, e.cfg.StepTimeout)
		}
		return r.out, r.err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w after %s", ErrStepTimeout, e.cfg.StepTimeout)
	}
}

func (e *Executor) complete(ctx context.Context, state *plan.RunState, step plan.Step, out string, failed bool, elapsed time.Duration) {
	if e.redactor != nil {
		if masked, n := e.redactor.Redact(out); n > 0 {
			e.logger.Info("redacted secrets from step result",
				zap.String("step", step.Name),
				zap.Int("count", n))
			out = masked
		}
	}

	state.Results.Set(step.Name, out)
	preview := substitute.Truncate(out, e.cfg.PreviewLength)
	state.Records = append(state.Records, plan.StepRecord{
		Name:    step.Name,
		Tool:    step.Tool,
		Elapsed: elapsed,
		Failed:  failed,
		Preview: preview,
	})

	e.persist(ctx, state, step, out, failed, elapsed, preview)

	e.publish(ctx, events.Event{
		Kind:    events.KindStep,
		AgentID: state.AgentID,
		TaskID:  state.TaskID,
		Step:    step.Name,
		Tool:    step.Tool,
		Failed:  failed,
		Message: preview,
		Elapsed: elapsed,
	})
}

func (e *Executor) persist(ctx context.Context, state *plan.RunState, step plan.Step, out string, failed bool, elapsed time.Duration, preview string) {
	if e.store == nil {
		return
	}
	record := progressRecord(step, failed, elapsed, preview)
	if err := e.store.RecordStepProgress(ctx, state.AgentID, state.TaskID, step.Description, record); err != nil {
		e.logPersistence("record step progress", step, err)
	}

	if failed {
		return
	}
	if id, err := tools.Parse(step.Tool); err != nil || id != tools.Search {
		return
	}
	for _, link := range tools.ExtractLinks(out) {
		if err := e.store.AddResourceLink(ctx, state.AgentID, state.TaskID, link.Title, link.URL, link.Description); err != nil {
			e.logPersistence("add resource link", step, err)
			return
		}
	}
}

func (e *Executor) logPersistence(op string, step plan.Step, err error) {
	var pe *taskcontext.PersistenceError
	if errors.As(err, &pe) {
		e.logger.Warn("persistence failed, continuing",
			zap.String("op", op),
			zap.String("step", step.Name),
			zap.String("path", pe.Path),
			zap.Error(err))
		return
	}
	e.logger.Warn("context update failed, continuing",
		zap.String("op", op),
		zap.String("step", step.Name),
		zap.Error(err))
}

func (e *Executor) publish(ctx context.Context, ev events.Event) {
	ev.Time = e.now()
	if err := e.events.Publish(ctx, ev); err != nil {
		e.logger.Debug("publish event failed", zap.String("kind", string(ev.Kind)), zap.Error(err))
	}
}

func progressRecord(step plan.Step, failed bool, elapsed time.Duration, preview string) string {
	status := "completed"
	if failed {
		status = "failed"
	}
	return fmt.Sprintf("%s %s via %s in %s: %s -> %s",
		step.Name, status, step.Tool, elapsed.Round(time.Millisecond), step.Description, oneLine(preview))
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
