package plan

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/taskd/internal/config"
	"github.com/fyrsmithlabs/taskd/internal/llm"
	"github.com/fyrsmithlabs/taskd/internal/taskcontext"
)

type toolNames map[string]bool

func (n toolNames) Validate(steps []Step) []error {
	var errs []error
	for _, s := range steps {
		if !n[s.Tool] {
			errs = append(errs, fmt.Errorf("invalid tool %q", s.Tool))
		}
	}
	return errs
}

func newStore(t *testing.T) *taskcontext.Store {
	t.Helper()
	s, err := taskcontext.NewStore(config.StoreConfig{BasePath: t.TempDir()})
	require.NoError(t, err)
	return s
}

func TestPlanner_Plan(t *testing.T) {
	store := newStore(t)
	gen := llm.NewMock().On("Summarize current AI trends", plannerOutput)
	p := NewPlanner(gen, store, toolNames{"Search": true, "LLM": true}, nil, nil)
	ctx := context.Background()

	state, err := p.Plan(ctx, Request{AgentID: "a1", TaskID: "t1", Task: "Summarize current AI trends"})
	require.NoError(t, err)
	require.Len(t, state.Steps, 2)
	assert.Equal(t, "t1", state.TaskID)
	assert.Zero(t, state.Results.Len())
	assert.Contains(t, gen.Calls()[0], "Please break down the task: Summarize current AI trends")

	tc, err := store.LoadTask(ctx, "a1", "t1")
	require.NoError(t, err)
	items := taskcontext.ParseTodo(tc.File(taskcontext.FileTodo).Content).Items
	require.Len(t, items, 2)
	assert.Equal(t, "#E1 (Search): Search AI trends", items[0].Text)
	assert.Equal(t, "#E2 (LLM): Summarize findings", items[1].Text)
	assert.Equal(t, "Summarize current AI trends", tc.Description)
}

func TestPlanner_ReusesExistingContext(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	_, err := store.CreateTask(ctx, "a1", taskcontext.CreateRequest{TaskID: "t1", Title: "x", Description: "y", TodoItems: []string{"keep me"}})
	require.NoError(t, err)

	p := NewPlanner(llm.NewMock().Enqueue(plannerOutput), store, nil, nil, nil)
	_, err = p.Plan(ctx, Request{AgentID: "a1", TaskID: "t1", Task: "Summarize current AI trends"})
	require.NoError(t, err)

	tc, err := store.LoadTask(ctx, "a1", "t1")
	require.NoError(t, err)
	items := taskcontext.ParseTodo(tc.File(taskcontext.FileTodo).Content).Items
	require.Len(t, items, 1)
	assert.Equal(t, "keep me", items[0].Text)
	assert.Equal(t, 1, tc.File(taskcontext.FileTodo).Version)
}

func TestPlanner_AllocatesTaskID(t *testing.T) {
	store := newStore(t)
	p := NewPlanner(llm.NewMock().Enqueue(plannerOutput), store, nil, nil, nil)

	state, err := p.Plan(context.Background(), Request{AgentID: "a1", Task: "anything"})
	require.NoError(t, err)
	require.NotEmpty(t, state.TaskID)

	ok, err := store.Exists(context.Background(), "a1", state.TaskID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPlanner_EmptyPlan(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	store := newStore(t)
	p := NewPlanner(llm.NewMock().Enqueue("I'd rather not."), store, nil, nil, zap.New(core))

	state, err := p.Plan(context.Background(), Request{AgentID: "a1", TaskID: "t1", Task: "x"})
	require.NoError(t, err)
	assert.Empty(t, state.Steps)
	assert.Equal(t, 1, logs.FilterMessage("planner output had no step array").Len())

	tc, err := store.LoadTask(context.Background(), "a1", "t1")
	require.NoError(t, err)
	todo := taskcontext.ParseTodo(tc.File(taskcontext.FileTodo).Content)
	assert.Empty(t, todo.Items, "no default checklist for a planned task")
}

func TestPlanner_WarnsOnUnknownTool(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	out := `[{"step_name": "#E1", "tool": "Teleport", "tool_input": "mars"}]`
	p := NewPlanner(llm.NewMock().Enqueue(out), newStore(t), toolNames{"LLM": true}, nil, zap.New(core))

	state, err := p.Plan(context.Background(), Request{AgentID: "a1", TaskID: "t1", Task: "x"})
	require.NoError(t, err)
	require.Len(t, state.Steps, 1, "rejected steps still run and fail inline")
	assert.Equal(t, 1, logs.FilterMessage("plan step rejected by registry").Len())
}

func TestPlanner_GenerationError(t *testing.T) {
	gen := llm.GeneratorFunc(func(context.Context, string) (string, error) {
		return "", &llm.GenerationError{Op: "generate", Attempts: 3, Err: errors.New("503")}
	})
	p := NewPlanner(gen, newStore(t), nil, nil, nil)

	_, err := p.Plan(context.Background(), Request{AgentID: "a1", TaskID: "t1", Task: "x"})
	var ge *llm.GenerationError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "plan", ge.Op)
	assert.Equal(t, 3, ge.Attempts)
}

func TestPlanner_RequiresAgent(t *testing.T) {
	p := NewPlanner(llm.NewMock(), newStore(t), nil, nil, nil)
	_, err := p.Plan(context.Background(), Request{Task: "x"})
	assert.Error(t, err)
}
