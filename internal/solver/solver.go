// Package solver turns an executed plan into the final answer.
package solver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/llm"
	"github.com/fyrsmithlabs/taskd/internal/plan"
	"github.com/fyrsmithlabs/taskd/internal/prompts"
	"github.com/fyrsmithlabs/taskd/internal/substitute"
	"github.com/fyrsmithlabs/taskd/internal/taskcontext"
)

const tracerName = "github.com/fyrsmithlabs/taskd/internal/solver"

// SummarySection is the summary heading the answer is stored under.
const SummarySection = "final result"

// Store is the part of the task context store the solver writes to.
type Store interface {
	AddSummaryEntry(ctx context.Context, agentID, taskID, section, content string) error
	UpdateStatus(ctx context.Context, agentID, taskID string, status taskcontext.Status) error
}

// Solver synthesizes an answer from the plan trace and its evidence.
type Solver struct {
	gen      llm.Generator
	store    Store
	template string
	resolver substitute.Resolver
	logger   *zap.Logger
	tracer   trace.Tracer
}

// New creates a Solver. limit bounds each value substituted into the trace.
func New(gen llm.Generator, store Store, set *prompts.Set, limit int, logger *zap.Logger) *Solver {
	if set == nil {
		set = prompts.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Solver{
		gen:      gen,
		store:    store,
		template: set.Solve,
		resolver: substitute.New(limit),
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
	}
}

// Solve generates the answer for state, stores it in the task summary and
// marks the task completed. Generation failures are *llm.GenerationError.
func (s *Solver) Solve(ctx context.Context, state *plan.RunState) (string, error) {
	ctx, span := s.tracer.Start(ctx, "solve", trace.WithAttributes(
		attribute.String("task.id", state.TaskID),
		attribute.Int("steps", len(state.Steps)),
	))
	defer span.End()

	prompt := s.prompt(state)
	answer, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", llm.AsGenerationError("solve", err)
	}
	answer = strings.TrimSpace(answer)
	state.Result = answer
	span.SetAttributes(
		attribute.Int("prompt_length", len([]rune(prompt))),
		attribute.Int("answer_length", len([]rune(answer))),
	)

	if s.store != nil {
		if err := s.store.AddSummaryEntry(ctx, state.AgentID, state.TaskID, SummarySection, answer); err != nil {
			s.warn("store final result", state, err)
		}
		if err := s.store.UpdateStatus(ctx, state.AgentID, state.TaskID, taskcontext.StatusCompleted); err != nil {
			s.warn("mark task completed", state, err)
		}
	}

	if ce := s.logger.Check(zap.DebugLevel, "task solved"); ce != nil {
		ce.Write(zap.Any("report", s.Report(state)))
	}
	return answer, nil
}

func (s *Solver) warn(op string, state *plan.RunState, err error) {
	fields := []zap.Field{
		zap.String("op", op),
		zap.String("task_id", state.TaskID),
		zap.Error(err),
	}
	var pe *taskcontext.PersistenceError
	if errors.As(err, &pe) {
		fields = append(fields, zap.String("path", pe.Path))
	}
	s.logger.Warn("persistence failed, continuing", fields...)
}

func (s *Solver) prompt(state *plan.RunState) string {
	return prompts.Render(s.template, map[string]string{
		"plan": Trace(state, s.resolver),
		"task": state.Task,
	})
}

// Trace renders the plan with every step's resolved input and evidence:
//
//	Plan: {description}
//	{step_name} = {tool}[{resolved input}]
//	Evidence: {result}
func Trace(state *plan.RunState, r substitute.Resolver) string {
	entries := make([]string, 0, len(state.Steps))
	for _, step := range state.Steps {
		evidence, ok := state.Results.Get(step.Name)
		if !ok {
			evidence = "(no result)"
		}
		entries = append(entries, fmt.Sprintf("Plan: %s\n%s = %s[%s]\nEvidence: %s",
			step.Description, step.Name, step.Tool, r.Resolve(step.Input, state.Results), evidence))
	}
	return strings.Join(entries, "\n")
}

// StepReport describes one executed step.
type StepReport struct {
	Name    string        `json:"step_name"`
	Tool    string        `json:"tool"`
	Elapsed time.Duration `json:"elapsed"`
	Failed  bool          `json:"failed"`
	Preview string        `json:"preview"`
}

// Report summarizes a solved run.
type Report struct {
	TaskID       string        `json:"task_id"`
	Task         string        `json:"task"`
	Steps        []StepReport  `json:"steps"`
	FailedSteps  int           `json:"failed_steps"`
	Elapsed      time.Duration `json:"elapsed"`
	PromptLength int           `json:"prompt_length"`
	AnswerLength int           `json:"answer_length"`
}

// Report builds the structured report of state.
func (s *Solver) Report(state *plan.RunState) Report {
	rep := Report{
		TaskID:       state.TaskID,
		Task:         state.Task,
		Steps:        make([]StepReport, 0, len(state.Records)),
		PromptLength: len([]rune(s.prompt(state))),
		AnswerLength: len([]rune(state.Result)),
	}
	for _, rec := range state.Records {
		rep.Steps = append(rep.Steps, StepReport(rec))
		rep.Elapsed += rec.Elapsed
		if rec.Failed {
			rep.FailedSteps++
		}
	}
	return rep
}
