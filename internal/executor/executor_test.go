package executor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/taskd/internal/config"
	"github.com/fyrsmithlabs/taskd/internal/events"
	"github.com/fyrsmithlabs/taskd/internal/llm"
	"github.com/fyrsmithlabs/taskd/internal/logging"
	"github.com/fyrsmithlabs/taskd/internal/plan"
	"github.com/fyrsmithlabs/taskd/internal/taskcontext"
	"github.com/fyrsmithlabs/taskd/internal/tools"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) kinds() []events.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Kind, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Kind)
	}
	return out
}

type fakeStore struct {
	mu       sync.Mutex
	records  []string
	links    []string
	failWith error
}

func (s *fakeStore) RecordStepProgress(_ context.Context, _, _, _, record string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.records = append(s.records, record)
	return nil
}

func (s *fakeStore) AddResourceLink(_ context.Context, _, _, title, url, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.links = append(s.links, title+" "+url)
	return nil
}

func echoRegistry() *tools.Registry {
	reg := tools.NewRegistry()
	reg.Register(tools.Search, tools.Func(func(_ context.Context, in string) (string, error) {
		return "results for " + in, nil
	}))
	reg.Register(tools.LLM, tools.Func(func(_ context.Context, in string) (string, error) {
		return "llm(" + in + ")", nil
	}))
	return reg
}

func twoStepState() *plan.RunState {
	return plan.NewRunState("a1", "t1", "Summarize current AI trends", []plan.Step{
		{Number: 1, Name: "#E1", Description: "search trends", Tool: "Search", Input: "AI trends"},
		{Number: 2, Name: "#E2", Description: "summarize findings", Tool: "LLM", Input: "Summarize: #E1"},
	})
}

func runAll(t *testing.T, e *Executor, state *plan.RunState) {
	t.Helper()
	for i := 0; i <= len(state.Steps) && !state.Done(); i++ {
		_, err := e.ExecuteStep(context.Background(), state)
		require.NoError(t, err)
	}
	require.True(t, state.Done())
}

func TestNextStepIndex(t *testing.T) {
	steps := twoStepState().Steps

	idx, ok := NextStepIndex(plan.NewResults(), steps)
	assert.Equal(t, 1, idx)
	assert.True(t, ok)

	r := plan.NewResults()
	r.Set("#E1", "x")
	idx, ok = NextStepIndex(r, steps)
	assert.Equal(t, 2, idx)
	assert.True(t, ok)

	r.Set("#E2", "y")
	idx, ok = NextStepIndex(r, steps)
	assert.Equal(t, 0, idx)
	assert.False(t, ok)

	idx, ok = NextStepIndex(nil, steps)
	assert.Equal(t, 1, idx)
	assert.True(t, ok)
}

func TestExecuteStep_ThreadsResults(t *testing.T) {
	store := &fakeStore{}
	pub := &recordingPublisher{}
	e := New(echoRegistry(), store, Config{StepTimeout: time.Second}, WithPublisher(pub))
	state := twoStepState()

	runAll(t, e, state)

	assert.Equal(t, []string{"#E1", "#E2"}, state.Results.Keys())
	second, _ := state.Results.Get("#E2")
	assert.Equal(t, "llm(Summarize: results for AI trends)", second)

	require.Len(t, state.Records, 2)
	assert.False(t, state.Records[0].Failed)
	require.Len(t, store.records, 2)
	assert.Contains(t, store.records[0], "#E1 completed via Search")
	assert.Equal(t, []events.Kind{events.KindStep, events.KindStep}, pub.kinds())

	// Nothing left to do.
	results, err := e.ExecuteStep(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, 2, results.Len())
}

func TestExecuteStep_FailureIsolation(t *testing.T) {
	reg := echoRegistry()
	reg.Register(tools.Search, tools.Func(func(context.Context, string) (string, error) {
		return "", errors.New("search backend unreachable")
	}))
	e := New(reg, &fakeStore{}, Config{StepTimeout: time.Second})
	state := twoStepState()

	runAll(t, e, state)

	first, _ := state.Results.Get("#E1")
	assert.Equal(t, "Error executing Search: search backend unreachable", first)
	second, _ := state.Results.Get("#E2")
	assert.Contains(t, second, "Summarize: Error executing Search")
	assert.True(t, state.Records[0].Failed)
	assert.False(t, state.Records[1].Failed)
}

func TestExecuteStep_UnknownTool(t *testing.T) {
	e := New(echoRegistry(), &fakeStore{}, Config{})
	state := plan.NewRunState("a1", "t1", "task", []plan.Step{
		{Number: 1, Name: "#E1", Tool: "Teleport", Input: "x"},
	})

	_, err := e.ExecuteStep(context.Background(), state)
	require.NoError(t, err)

	got, _ := state.Results.Get("#E1")
	assert.True(t, strings.HasPrefix(got, "Error executing Teleport:"), got)
}

func TestExecuteStep_Timeout(t *testing.T) {
	reg := tools.NewRegistry()
	block := make(chan struct{})
	defer close(block)
	reg.Register(tools.Search, tools.Func(func(context.Context, string) (string, error) {
		<-block
		return "too late", nil
	}))
	e := New(reg, &fakeStore{}, Config{StepTimeout: 20 * time.Millisecond})
	state := plan.NewRunState("a1", "t1", "task", []plan.Step{
		{Number: 1, Name: "#E1", Tool: "Search", Input: "x"},
	})

	_, err := e.ExecuteStep(context.Background(), state)
	require.NoError(t, err)

	got, _ := state.Results.Get("#E1")
	assert.Contains(t, got, "Error executing Search: step timed out")
}

func TestExecuteStep_Cancelled(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(tools.Search, tools.Func(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}))
	e := New(reg, &fakeStore{}, Config{StepTimeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	state := twoStepState()
	_, err := e.ExecuteStep(ctx, state)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, state.Results.Len())
}

func TestExecuteStep_PersistenceFailureIsLogged(t *testing.T) {
	log := logging.NewTestLogger()
	store := &fakeStore{failWith: &taskcontext.PersistenceError{Op: "write", Path: "/ro/todo.md", Err: errors.New("read-only file system")}}
	e := New(echoRegistry(), store, Config{}, WithLogger(log.Underlying()))
	state := twoStepState()

	runAll(t, e, state)

	assert.Equal(t, 2, state.Results.Len())
	log.AssertLogged(t, zapcore.WarnLevel, "persistence failed, continuing")
	log.AssertField(t, "persistence failed", "path", "/ro/todo.md")
}

func TestExecuteStep_CapturesSearchLinks(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(tools.Search, tools.Func(func(context.Context, string) (string, error) {
		return "Title: Go\nDescription: The Go site\nURL: https://go.dev\n", nil
	}))
	store := &fakeStore{}
	e := New(reg, store, Config{})
	state := plan.NewRunState("a1", "t1", "task", []plan.Step{
		{Number: 1, Name: "#E1", Tool: "google", Input: "golang"},
	})

	_, err := e.ExecuteStep(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, []string{"Go https://go.dev"}, store.links)
}

type maskAll struct{}

func (maskAll) Redact(s string) (string, int) {
	if strings.Contains(s, "hunter2") {
		return strings.ReplaceAll(s, "hunter2", "[REDACTED]"), 1
	}
	return s, 0
}

func TestExecuteStep_RedactsResults(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(tools.LLM, tools.Func(func(context.Context, string) (string, error) {
		return "password is hunter2", nil
	}))
	store := &fakeStore{}
	e := New(reg, store, Config{}, WithRedactor(maskAll{}))
	state := plan.NewRunState("a1", "t1", "task", []plan.Step{
		{Number: 1, Name: "#E1", Tool: "LLM", Input: "x"},
	})

	_, err := e.ExecuteStep(context.Background(), state)
	require.NoError(t, err)

	got, _ := state.Results.Get("#E1")
	assert.Equal(t, "password is [REDACTED]", got)
	require.Len(t, store.records, 1)
	assert.NotContains(t, store.records[0], "hunter2")
}

func TestExecuteStep_ConfirmationRoundTrip(t *testing.T) {
	gen := llm.NewMock().On("topic", "1. Agents\n2. Small models\n3. Regulation")
	reg := echoRegistry()
	reg.Register(tools.Topic, tools.NewSelectionTool(tools.Topic, gen, "Suggest {count} topic ideas for {input}", 3))
	pub := &recordingPublisher{}
	e := New(reg, &fakeStore{}, Config{}, WithPublisher(pub))

	state := plan.NewRunState("a1", "t1", "task", []plan.Step{
		{Number: 1, Name: "#E1", Tool: "Topic", Input: "AI"},
		{Number: 2, Name: "#E2", Tool: "LLM", Input: "Write about #E1"},
	})

	_, err := e.ExecuteStep(context.Background(), state)
	require.ErrorIs(t, err, ErrAwaitingConfirmation)
	require.NotNil(t, state.Pending)
	assert.Equal(t, "#E1", state.Pending.StepName)
	assert.Len(t, state.Pending.Options, 3)
	assert.NotEmpty(t, state.Pending.Token)
	assert.Equal(t, 0, state.Results.Len())
	assert.Equal(t, []events.Kind{events.KindAwaiting}, pub.kinds())

	// Still suspended.
	_, err = e.ExecuteStep(context.Background(), state)
	assert.ErrorIs(t, err, ErrAwaitingConfirmation)

	_, err = e.Confirm(context.Background(), state, "9")
	require.ErrorIs(t, err, tools.ErrInvalidChoice)
	assert.NotNil(t, state.Pending)

	_, err = e.Confirm(context.Background(), state, "I pick 2")
	require.NoError(t, err)
	assert.Nil(t, state.Pending)
	got, _ := state.Results.Get("#E1")
	assert.Equal(t, "Small models", got)

	_, err = e.ExecuteStep(context.Background(), state)
	require.NoError(t, err)
	second, _ := state.Results.Get("#E2")
	assert.Equal(t, "llm(Write about Small models)", second)
	assert.True(t, state.Done())

	_, err = e.Confirm(context.Background(), state, "1")
	assert.ErrorIs(t, err, ErrNothingPending)
}

func TestConfirm_RejectsMismatchedStep(t *testing.T) {
	gen := llm.NewMock().On("topic", "1. Agents\n2. Small models")
	reg := echoRegistry()
	reg.Register(tools.Topic, tools.NewSelectionTool(tools.Topic, gen, "Suggest {count} topic ideas for {input}", 2))
	e := New(reg, &fakeStore{}, Config{})

	state := plan.NewRunState("a1", "t1", "task", []plan.Step{
		{Number: 1, Name: "#E1", Tool: "Topic", Input: "AI"},
		{Number: 2, Name: "#E2", Tool: "LLM", Input: "Write about #E1"},
	})
	_, err := e.ExecuteStep(context.Background(), state)
	require.ErrorIs(t, err, ErrAwaitingConfirmation)

	state.Pending.StepName = "#E2"
	_, err = e.Confirm(context.Background(), state, "1")
	require.ErrorIs(t, err, ErrStepMismatch)
	assert.NotNil(t, state.Pending)
	assert.Equal(t, 0, state.Results.Len())
	assert.Empty(t, state.Records)
}

func TestExecuteStep_DuplicateNamesTerminate(t *testing.T) {
	e := New(echoRegistry(), &fakeStore{}, Config{})
	state := plan.NewRunState("a1", "t1", "task", []plan.Step{
		{Number: 1, Name: "#E1", Tool: "LLM", Input: "first"},
		{Number: 2, Name: "#E1", Tool: "LLM", Input: "second"},
	})

	runAll(t, e, state)

	assert.Equal(t, 1, state.Results.Len())
	got, _ := state.Results.Get("#E1")
	assert.Equal(t, "llm(second)", got)
	assert.Len(t, state.Records, 2)
}

func TestExecutor_WithStore(t *testing.T) {
	store, err := taskcontext.NewStore(config.StoreConfig{BasePath: t.TempDir()})
	require.NoError(t, err)
	ctx := context.Background()
	_, err = store.CreateTask(ctx, "a1", taskcontext.CreateRequest{
		TaskID:      "t1",
		Title:       "AI trends",
		Description: "Summarize current AI trends",
		TodoItems:   []string{"#E1 (Search): search trends", "#E2 (LLM): summarize findings"},
	})
	require.NoError(t, err)

	e := New(echoRegistry(), store, ConfigFrom(config.Default().Executor))
	state := twoStepState()
	runAll(t, e, state)

	tc, err := store.LoadTask(ctx, "a1", "t1")
	require.NoError(t, err)
	todo := taskcontext.ParseTodo(tc.File(taskcontext.FileTodo).Content)
	require.Len(t, todo.Items, 2)
	assert.True(t, todo.Items[0].Done)
	assert.True(t, todo.Items[1].Done)
	assert.Empty(t, todo.Pending())
	// One entry for creation plus one per step.
	assert.Len(t, todo.Progress, 3)
}
