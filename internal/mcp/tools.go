package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/orchestrator"
	"github.com/fyrsmithlabs/taskd/internal/plan"
	"github.com/fyrsmithlabs/taskd/internal/taskcontext"
)

var errInvalidArgument = errors.New("invalid argument")

type runTaskInput struct {
	Task    string `json:"task" jsonschema:"required,The task to plan and carry out"`
	AgentID string `json:"agent_id,omitempty" jsonschema:"Agent that owns the task"`
	TaskID  string `json:"task_id,omitempty" jsonschema:"Existing task id to continue; a new id is allocated when empty"`
}

type resumeTaskInput struct {
	AgentID string `json:"agent_id,omitempty" jsonschema:"Agent that owns the task"`
	TaskID  string `json:"task_id" jsonschema:"required,Task waiting for confirmation"`
	Token   string `json:"token" jsonschema:"required,Token of the pending confirmation"`
	Choice  string `json:"choice" jsonschema:"required,Option number or free-text reply"`
}

type taskOutput struct {
	TaskID  string   `json:"task_id" jsonschema:"Task id"`
	Status  string   `json:"status" jsonschema:"completed, empty_plan, awaiting_confirmation or failed"`
	Answer  string   `json:"answer,omitempty" jsonschema:"Final answer"`
	Token   string   `json:"token,omitempty" jsonschema:"Confirmation token when awaiting"`
	Prompt  string   `json:"prompt,omitempty" jsonschema:"Question to put to the user when awaiting"`
	Options []string `json:"options,omitempty" jsonschema:"Options to choose from when awaiting"`
	Steps   int      `json:"steps" jsonschema:"Steps executed so far"`
}

type taskSummaryInput struct {
	AgentID string `json:"agent_id,omitempty" jsonschema:"Agent that owns the task"`
	TaskID  string `json:"task_id" jsonschema:"required,Task id"`
}

type fileOutput struct {
	FileType string `json:"file_type" jsonschema:"Artifact type"`
	Length   int    `json:"length" jsonschema:"Content length in characters"`
	Preview  string `json:"preview" jsonschema:"Start of the content"`
	Version  int    `json:"version" jsonschema:"Artifact version"`
}

type taskSummaryOutput struct {
	TaskID    string       `json:"task_id" jsonschema:"Task id"`
	Title     string       `json:"title" jsonschema:"Task title"`
	Status    string       `json:"status" jsonschema:"Task status"`
	UpdatedAt string       `json:"updated_at" jsonschema:"Last update time"`
	Files     []fileOutput `json:"files" jsonschema:"Artifacts in fixed order"`
}

type listTasksInput struct {
	AgentID string `json:"agent_id,omitempty" jsonschema:"Agent whose tasks to list"`
}

type taskInfoOutput struct {
	TaskID    string `json:"task_id" jsonschema:"Task id"`
	Title     string `json:"title" jsonschema:"Task title"`
	Status    string `json:"status" jsonschema:"Task status"`
	UpdatedAt string `json:"updated_at" jsonschema:"Last update time"`
}

type listTasksOutput struct {
	Tasks []taskInfoOutput `json:"tasks" jsonschema:"Tasks, most recently updated first"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "run_task",
		Description: "Plan a task, run every step with the available tools and return the final answer. May stop to ask the user to choose an option; continue with resume_task.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args runTaskInput) (res *mcp.CallToolResult, out taskOutput, err error) {
		done := s.metrics.track(ctx, "run_task")
		defer func() { done(err) }()

		if strings.TrimSpace(args.Task) == "" {
			return nil, taskOutput{}, fmt.Errorf("%w: task is required", errInvalidArgument)
		}
		outcome, err := s.runner.Run(ctx, plan.Request{AgentID: s.agentID(args.AgentID), TaskID: args.TaskID, Task: args.Task})
		if err != nil {
			return nil, taskOutput{}, err
		}
		return s.outcomeResult(outcome)
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "resume_task",
		Description: "Answer the pending confirmation of a task and continue running it",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args resumeTaskInput) (res *mcp.CallToolResult, out taskOutput, err error) {
		done := s.metrics.track(ctx, "resume_task")
		defer func() { done(err) }()

		if args.TaskID == "" || args.Token == "" || args.Choice == "" {
			return nil, taskOutput{}, fmt.Errorf("%w: task_id, token and choice are required", errInvalidArgument)
		}
		outcome, err := s.runner.Resume(ctx, s.agentID(args.AgentID), args.TaskID, args.Token, args.Choice)
		if err != nil {
			return nil, taskOutput{}, err
		}
		return s.outcomeResult(outcome)
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "task_summary",
		Description: "Show a task's status and a preview of each of its artifacts",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args taskSummaryInput) (res *mcp.CallToolResult, out taskSummaryOutput, err error) {
		done := s.metrics.track(ctx, "task_summary")
		defer func() { done(err) }()

		sum, err := s.store.GetSummary(ctx, s.agentID(args.AgentID), args.TaskID)
		if err != nil {
			return nil, taskSummaryOutput{}, err
		}
		out = taskSummaryOutput{
			TaskID:    sum.TaskID,
			Title:     sum.Title,
			Status:    string(sum.Status),
			UpdatedAt: sum.UpdatedAt.Format(taskcontext.TimeLayout),
		}
		var b strings.Builder
		fmt.Fprintf(&b, "%s [%s] %s\n", sum.TaskID, sum.Status, sum.Title)
		for _, ft := range taskcontext.FileTypes {
			f, ok := sum.Files[ft]
			if !ok {
				continue
			}
			out.Files = append(out.Files, fileOutput{
				FileType: string(ft),
				Length:   f.ContentLength,
				Preview:  f.ContentPreview,
				Version:  f.Version,
			})
			fmt.Fprintf(&b, "- %s (v%d, %d chars)\n", f.Name, f.Version, f.ContentLength)
		}
		return textResult(b.String()), out, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_tasks",
		Description: "List an agent's tasks, most recently updated first",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args listTasksInput) (res *mcp.CallToolResult, out listTasksOutput, err error) {
		done := s.metrics.track(ctx, "list_tasks")
		defer func() { done(err) }()

		list, err := s.store.ListTasks(ctx, s.agentID(args.AgentID))
		if err != nil {
			return nil, listTasksOutput{}, err
		}
		out.Tasks = make([]taskInfoOutput, 0, len(list))
		var b strings.Builder
		for _, t := range list {
			out.Tasks = append(out.Tasks, taskInfoOutput{
				TaskID:    t.TaskID,
				Title:     t.Title,
				Status:    string(t.Status),
				UpdatedAt: t.UpdatedAt.Format(taskcontext.TimeLayout),
			})
			fmt.Fprintf(&b, "%s [%s] %s\n", t.TaskID, t.Status, t.Title)
		}
		if len(list) == 0 {
			b.WriteString("no tasks")
		}
		return textResult(b.String()), out, nil
	})
}

func (s *Server) agentID(id string) string {
	if id == "" {
		return s.agent
	}
	return id
}

func (s *Server) outcomeResult(o *orchestrator.Outcome) (*mcp.CallToolResult, taskOutput, error) {
	out := taskOutput{
		TaskID: o.TaskID,
		Status: string(o.Status),
		Answer: o.Answer,
		Steps:  len(o.Steps),
	}
	var text string
	switch o.Status {
	case orchestrator.StatusAwaiting:
		out.Token = o.Pending.Token
		out.Prompt = o.Pending.Prompt
		out.Options = o.Pending.Options
		var b strings.Builder
		b.WriteString(o.Pending.Prompt)
		for i, opt := range o.Pending.Options {
			fmt.Fprintf(&b, "\n%d. %s", i+1, opt)
		}
		fmt.Fprintf(&b, "\n\nCall resume_task with task_id %q, token %q and the user's choice.", o.TaskID, o.Pending.Token)
		text = b.String()
	case orchestrator.StatusEmptyPlan:
		text = "The planner produced no steps for this task."
	default:
		text = o.Answer
	}
	s.logger.Debug("mcp task outcome", zap.String("task_id", o.TaskID), zap.String("status", string(o.Status)))
	return textResult(text), out, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}
