package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/taskd/internal/config"
	"github.com/fyrsmithlabs/taskd/internal/events"
	"github.com/fyrsmithlabs/taskd/internal/executor"
	"github.com/fyrsmithlabs/taskd/internal/llm"
	"github.com/fyrsmithlabs/taskd/internal/plan"
	"github.com/fyrsmithlabs/taskd/internal/solver"
	"github.com/fyrsmithlabs/taskd/internal/taskcontext"
	"github.com/fyrsmithlabs/taskd/internal/tools"
)

const (
	planningMarker = "task planning expert"
	solveMarker    = "Solve the following task"
)

const trendsPlan = `## Task Analysis
Find and summarize trends.

## Execution Steps (JSON Format)
[
  {"step": 1, "step_name": "#E1", "description": "Search for current AI trends", "tool": "Search", "tool_input": "AI trends", "step_type": "NEEDS_SEARCH"},
  {"step": 2, "step_name": "#E2", "description": "Summarize the search results", "tool": "LLM", "tool_input": "Summarize: #E1", "step_type": "NEEDS_GENERATION"}
]`

const topicPlan = `[
  {"step": 1, "step_name": "#E1", "description": "Pick a topic", "tool": "Topic", "tool_input": "AI", "step_type": "OTHER"},
  {"step": 2, "step_name": "#E2", "description": "Write the piece", "tool": "LLM", "tool_input": "Write about #E1", "step_type": "NEEDS_WRITING"}
]`

type fakeSearcher struct {
	result string
	err    error
}

func (f fakeSearcher) Call(context.Context, string) (string, error) {
	return f.result, f.err
}

type recordingPublisher struct {
	mu    sync.Mutex
	kinds []events.Kind
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kinds = append(p.kinds, ev.Kind)
	return nil
}

type harness struct {
	orch    *Orchestrator
	store   *taskcontext.Store
	gen     *llm.Mock
	metrics *Metrics
	events  *recordingPublisher
}

func newHarness(t *testing.T, gen *llm.Mock, searcher tools.Searcher) *harness {
	t.Helper()
	h := newHarnessWith(t, gen, searcher)
	h.gen = gen
	return h
}

// newHarnessWith wires the orchestrator around any generator.
func newHarnessWith(t *testing.T, gen llm.Generator, searcher tools.Searcher) *harness {
	t.Helper()
	store, err := taskcontext.NewStore(config.StoreConfig{BasePath: t.TempDir()})
	require.NoError(t, err)

	reg := tools.NewDefaultRegistry(tools.Deps{
		Generator: gen,
		Searcher:  searcher,
		Now:       func() time.Time { return time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC) },
	})
	pub := &recordingPublisher{}
	metrics := NewMetrics(prometheus.NewRegistry())

	orch := New(
		plan.NewPlanner(gen, store, reg, nil, nil),
		executor.New(reg, store, executor.Config{StepTimeout: time.Second}, executor.WithPublisher(pub)),
		solver.New(gen, store, nil, 0, nil),
		store,
		WithPublisher(pub),
		WithMetrics(metrics),
	)
	return &harness{orch: orch, store: store, metrics: metrics, events: pub}
}

func TestRunTask_EndToEnd(t *testing.T) {
	gen := llm.NewMock().
		On(planningMarker, trendsPlan).
		On(solveMarker, "AI is moving toward agents and small models.").
		On("Summarize: ", "Agents and small models lead.")
	h := newHarness(t, gen, fakeSearcher{result: "Title: Agents\nDescription: Tool-using models\nURL: https://example.com/agents"})
	ctx := context.Background()

	out, err := h.orch.RunTask(ctx, "a1", "Summarize current AI trends")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, out.Status)
	assert.Equal(t, "AI is moving toward agents and small models.", out.Answer)
	require.Len(t, out.Steps, 2)
	assert.NotEmpty(t, out.TaskID)

	calls := gen.Calls()
	require.Len(t, calls, 3)
	assert.True(t, strings.HasPrefix(calls[1], "Summarize: Title: Agents"))
	assert.Contains(t, calls[2], "#E2 = LLM[Summarize: Title: Agents")
	assert.Contains(t, calls[2], "Evidence: Agents and small models lead.")

	tc, err := h.store.LoadTask(ctx, "a1", out.TaskID)
	require.NoError(t, err)
	assert.Equal(t, taskcontext.StatusCompleted, tc.Status)

	history := taskcontext.ParseHistory(tc.File(taskcontext.FileHistory).Content)
	require.Len(t, history, 3)
	assert.Equal(t, "system", history[0].Role)
	assert.Equal(t, "user", history[1].Role)
	assert.Equal(t, "Summarize current AI trends", history[1].Content)
	assert.Equal(t, "assistant", history[2].Role)

	todo := taskcontext.ParseTodo(tc.File(taskcontext.FileTodo).Content)
	assert.Empty(t, todo.Pending())

	resources := taskcontext.ParseResources(tc.File(taskcontext.FileResource).Content)
	require.Len(t, resources, 1)
	assert.Equal(t, "https://example.com/agents", resources[0].URL)

	assert.Contains(t, tc.File(taskcontext.FileSummary).Content, "AI is moving toward agents")

	var leftover plan.RunState
	assert.ErrorIs(t, h.store.LoadRunState(ctx, "a1", out.TaskID, &leftover), taskcontext.ErrRunStateNotFound)

	assert.Equal(t, []events.Kind{events.KindStarted, events.KindStep, events.KindStep, events.KindCompleted}, h.events.kinds)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.TasksTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.StepsTotal.WithLabelValues("Search", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.StepsTotal.WithLabelValues("LLM", "ok")))
}

func TestRunTask_FailedStepStillSolves(t *testing.T) {
	gen := llm.NewMock().
		On(planningMarker, trendsPlan).
		On(solveMarker, "Partial answer.").
		On("Summarize: ", "nothing to summarize")
	h := newHarness(t, gen, fakeSearcher{err: errors.New("rate limited")})

	out, err := h.orch.RunTask(context.Background(), "a1", "Summarize current AI trends")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, out.Status)
	assert.True(t, out.Steps[0].Failed)

	calls := gen.Calls()
	require.Len(t, calls, 3)
	assert.True(t, strings.HasPrefix(calls[1], "Summarize: Error executing Search:"), calls[1])
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.StepsTotal.WithLabelValues("Search", "failed")))
}

func TestRunTask_EmptyPlanSkipsSolver(t *testing.T) {
	gen := llm.NewMock().On(planningMarker, "I am not sure how to help with that.")
	h := newHarness(t, gen, nil)
	ctx := context.Background()

	out, err := h.orch.RunTask(ctx, "a1", "???")
	require.NoError(t, err)
	assert.Equal(t, StatusEmptyPlan, out.Status)
	assert.Empty(t, out.Answer)
	assert.Equal(t, 1, gen.CallCount())

	tc, err := h.store.LoadTask(ctx, "a1", out.TaskID)
	require.NoError(t, err)
	assert.Equal(t, taskcontext.StatusFailed, tc.Status)
	assert.Equal(t, []events.Kind{events.KindFailed}, h.events.kinds)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.TasksTotal.WithLabelValues("empty_plan")))
}

func TestRunTask_GenerationError(t *testing.T) {
	gen := llm.NewMock().OnError(planningMarker, errors.New("upstream 503"))
	h := newHarness(t, gen, nil)

	out, err := h.orch.RunTask(context.Background(), "a1", "Summarize current AI trends")
	require.Error(t, err)
	var ge *llm.GenerationError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "plan", ge.Op)
	assert.Equal(t, StatusFailed, out.Status)
	assert.Contains(t, out.Error, "upstream 503")
}

func TestRunTask_SolverGenerationError(t *testing.T) {
	gen := llm.NewMock().
		On(planningMarker, trendsPlan).
		OnError(solveMarker, errors.New("context length exceeded")).
		On("Summarize: ", "ok")
	h := newHarness(t, gen, fakeSearcher{result: "r"})
	ctx := context.Background()

	out, err := h.orch.RunTask(ctx, "a1", "Summarize current AI trends")
	var ge *llm.GenerationError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "solve", ge.Op)

	tc, err := h.store.LoadTask(ctx, "a1", out.TaskID)
	require.NoError(t, err)
	assert.Equal(t, taskcontext.StatusFailed, tc.Status)
}

func TestRunTask_ConfirmationAndResume(t *testing.T) {
	gen := llm.NewMock().
		On(planningMarker, topicPlan).
		On(solveMarker, "Done: small models.").
		On("topic generation expert", `[{"title":"Agents","description":"tool use"},{"title":"Small models","description":"on device"}]`).
		On("Write about", "An article about small models.")
	h := newHarness(t, gen, nil)
	ctx := context.Background()

	out, err := h.orch.RunTask(ctx, "a1", "Write a post about AI")
	require.NoError(t, err)
	require.Equal(t, StatusAwaiting, out.Status)
	require.NotNil(t, out.Pending)
	assert.Equal(t, []string{"Agents: tool use", "Small models: on device"}, out.Pending.Options)

	tc, err := h.store.LoadTask(ctx, "a1", out.TaskID)
	require.NoError(t, err)
	assert.Equal(t, taskcontext.StatusAwaitingConfirmation, tc.Status)

	_, err = h.orch.Resume(ctx, "a1", out.TaskID, "wrong-token", "2")
	assert.ErrorIs(t, err, ErrTokenMismatch)

	_, err = h.orch.Resume(ctx, "a1", out.TaskID, out.Pending.Token, "7")
	assert.ErrorIs(t, err, tools.ErrInvalidChoice)

	done, err := h.orch.Resume(ctx, "a1", out.TaskID, out.Pending.Token, "2")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Equal(t, "Done: small models.", done.Answer)

	calls := gen.Calls()
	assert.Contains(t, calls[len(calls)-2], "Write about Small models: on device")

	_, err = h.orch.Resume(ctx, "a1", out.TaskID, out.Pending.Token, "2")
	assert.ErrorIs(t, err, ErrNoPendingConfirmation)

	_, err = h.orch.Resume(ctx, "a1", "missing", "x", "1")
	assert.ErrorIs(t, err, ErrNoPendingConfirmation)
}

// gatedSolve holds solve prompts until release is closed.
type gatedSolve struct {
	*llm.Mock
	entered chan struct{}
	release chan struct{}
	solves  atomic.Int32
}

func (g *gatedSolve) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.Contains(prompt, solveMarker) {
		g.solves.Add(1)
		g.entered <- struct{}{}
		<-g.release
	}
	return g.Mock.Generate(ctx, prompt)
}

func TestResume_TokenIsSingleUse(t *testing.T) {
	gen := &gatedSolve{
		Mock: llm.NewMock().
			On(planningMarker, topicPlan).
			On(solveMarker, "Done.").
			On("topic generation expert", `[{"title":"Agents","description":"tool use"},{"title":"Small models","description":"on device"}]`).
			On("Write about", "An article."),
		entered: make(chan struct{}, 2),
		release: make(chan struct{}),
	}
	h := newHarnessWith(t, gen, nil)
	ctx := context.Background()

	out, err := h.orch.RunTask(ctx, "a1", "Write a post about AI")
	require.NoError(t, err)
	require.Equal(t, StatusAwaiting, out.Status)
	token := out.Pending.Token

	first := make(chan error, 1)
	go func() {
		_, err := h.orch.Resume(ctx, "a1", out.TaskID, token, "2")
		first <- err
	}()
	<-gen.entered
	assert.True(t, h.orch.Running("a1", out.TaskID))

	_, err = h.orch.Resume(ctx, "a1", out.TaskID, token, "2")
	assert.ErrorIs(t, err, ErrTaskBusy)
	_, err = h.orch.Run(ctx, plan.Request{AgentID: "a1", TaskID: out.TaskID, Task: "again"})
	assert.ErrorIs(t, err, ErrTaskBusy)

	close(gen.release)
	require.NoError(t, <-first)
	assert.False(t, h.orch.Running("a1", out.TaskID))

	_, err = h.orch.Resume(ctx, "a1", out.TaskID, token, "2")
	assert.ErrorIs(t, err, ErrNoPendingConfirmation)
	assert.Equal(t, int32(1), gen.solves.Load())

	tc, err := h.store.LoadTask(ctx, "a1", out.TaskID)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(tc.File(taskcontext.FileSummary).Content, "Done."))
}

func TestResume_TokenConsumedOnce(t *testing.T) {
	gen := llm.NewMock().
		On(planningMarker, topicPlan).
		On(solveMarker, "Done.").
		On("topic generation expert", `[{"title":"Agents","description":"tool use"}]`).
		On("Write about", "An article.")
	h := newHarness(t, gen, nil)
	ctx := context.Background()

	out, err := h.orch.RunTask(ctx, "a1", "Write a post about AI")
	require.NoError(t, err)
	require.Equal(t, StatusAwaiting, out.Status)

	// Separate orchestrators share only the store, like two processes.
	other := New(nil, nil, nil, h.store)
	var state plan.RunState
	require.NoError(t, h.store.TakeRunState(ctx, "a1", out.TaskID, &state, nil))

	_, err = other.Resume(ctx, "a1", out.TaskID, out.Pending.Token, "1")
	assert.ErrorIs(t, err, ErrNoPendingConfirmation)
	_, err = h.orch.Resume(ctx, "a1", out.TaskID, out.Pending.Token, "1")
	assert.ErrorIs(t, err, ErrNoPendingConfirmation)
}
