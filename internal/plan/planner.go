package plan

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/llm"
	"github.com/fyrsmithlabs/taskd/internal/prompts"
	"github.com/fyrsmithlabs/taskd/internal/taskcontext"
)

// TaskStore is the subset of the artifact store the planner seeds.
type TaskStore interface {
	Exists(ctx context.Context, agentID, taskID string) (bool, error)
	CreateTask(ctx context.Context, agentID string, req taskcontext.CreateRequest) (*taskcontext.TaskContext, error)
}

// Validator checks plan steps against the available tools.
type Validator interface {
	Validate(steps []Step) []error
}

// Request asks for a plan. An empty TaskID allocates a new one.
type Request struct {
	AgentID string
	TaskID  string
	Task    string
}

// Planner turns a task into steps and seeds the task's artifacts.
type Planner struct {
	gen       llm.Generator
	store     TaskStore
	validator Validator
	prompts   *prompts.Set
	logger    *zap.Logger
}

// NewPlanner creates a Planner. validator and logger may be nil; nil
// prompts uses the defaults.
func NewPlanner(gen llm.Generator, store TaskStore, validator Validator, set *prompts.Set, logger *zap.Logger) *Planner {
	if set == nil {
		set = prompts.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{gen: gen, store: store, validator: validator, prompts: set, logger: logger}
}

// Plan asks the generator for a step array. Output without a usable array
// yields a state with no steps rather than an error.
func (p *Planner) Plan(ctx context.Context, req Request) (*RunState, error) {
	if req.AgentID == "" {
		return nil, errors.New("agent id is required")
	}
	if req.TaskID == "" {
		req.TaskID = uuid.NewString()
	}

	ctx, span := otel.Tracer("github.com/fyrsmithlabs/taskd/internal/plan").Start(ctx, "plan")
	defer span.End()
	span.SetAttributes(attribute.String("task.id", req.TaskID))

	out, err := p.gen.Generate(ctx, prompts.Render(p.prompts.Planning, map[string]string{"task": req.Task}))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		return nil, llm.AsGenerationError("plan", err)
	}

	steps, err := Parse(out)
	if err != nil {
		p.logger.Warn("planner output had no step array", zap.String("task_id", req.TaskID), zap.Int("output_len", len(out)))
		steps = nil
	}
	span.SetAttributes(attribute.Int("plan.steps", len(steps)))

	if p.validator != nil {
		for _, verr := range p.validator.Validate(steps) {
			p.logger.Warn("plan step rejected by registry", zap.String("task_id", req.TaskID), zap.Error(verr))
		}
	}
	for _, s := range steps {
		if s.Type != "" && !s.Type.Known() {
			p.logger.Debug("unknown step type", zap.String("step", s.Name), zap.String("step_type", string(s.Type)))
		}
	}

	if err := p.seed(ctx, req, steps); err != nil {
		return nil, err
	}
	return NewRunState(req.AgentID, req.TaskID, req.Task, steps), nil
}

// seed creates the task context with one to-do line per step unless the task
// already exists.
func (p *Planner) seed(ctx context.Context, req Request, steps []Step) error {
	exists, err := p.store.Exists(ctx, req.AgentID, req.TaskID)
	if err != nil {
		return fmt.Errorf("checking task %s: %w", req.TaskID, err)
	}
	if exists {
		return nil
	}

	todo := make([]string, 0, len(steps))
	for _, s := range steps {
		todo = append(todo, TodoLine(s))
	}
	_, err = p.store.CreateTask(ctx, req.AgentID, taskcontext.CreateRequest{
		TaskID:      req.TaskID,
		Title:       title(req.Task),
		Description: req.Task,
		TodoItems:   todo,
	})
	if err != nil && !errors.Is(err, taskcontext.ErrTaskExists) {
		return fmt.Errorf("creating task %s: %w", req.TaskID, err)
	}
	return nil
}

// TodoLine is the checklist text seeded for a step.
func TodoLine(s Step) string {
	return fmt.Sprintf("%s (%s): %s", s.Name, s.Tool, s.Description)
}

func title(task string) string {
	r := []rune(task)
	if len(r) > 60 {
		return string(r[:60]) + "..."
	}
	return task
}
