package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/taskd/internal/config"
	"github.com/fyrsmithlabs/taskd/internal/orchestrator"
	"github.com/fyrsmithlabs/taskd/internal/taskcontext"
	"github.com/fyrsmithlabs/taskd/internal/tools"
)

type staticSearcher string

func (s staticSearcher) Call(context.Context, string) (string, error) { return string(s), nil }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Store.BasePath = t.TempDir()
	cfg.LLM.Provider = "mock"
	return cfg
}

func TestNew_RequiresValidConfig(t *testing.T) {
	_, err := New(context.Background(), nil, nil, Options{})
	assert.Error(t, err)

	cfg := testConfig(t)
	cfg.Dispatcher.Workers = 0
	_, err = New(context.Background(), cfg, nil, Options{})
	assert.ErrorContains(t, err, "dispatcher.workers")
}

func TestNew_OfflineProviderRunsTask(t *testing.T) {
	ctx := context.Background()
	svc, err := New(ctx, testConfig(t), nil, Options{Searcher: staticSearcher("no results")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	assert.NotNil(t, svc.Prometheus)
	assert.NotNil(t, svc.Subscriber, "in-process broker backs SSE when NATS is off")

	out, err := svc.Orchestrator.RunTask(ctx, "alice", "What day is it?")
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusCompleted, out.Status)
	assert.Contains(t, out.Answer, "offline mock provider")
	require.Len(t, out.Steps, 2)
	assert.Equal(t, "Time", out.Steps[0].Tool)

	sum, err := svc.Store.GetSummary(ctx, "alice", out.TaskID)
	require.NoError(t, err)
	assert.Equal(t, taskcontext.StatusCompleted, sum.Status)
}

func TestNew_RegistersEveryTool(t *testing.T) {
	svc, err := New(context.Background(), testConfig(t), nil, Options{Searcher: staticSearcher("")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	for _, id := range []tools.ID{tools.Search, tools.Time, tools.LLM, tools.Topic, tools.Summary} {
		_, _, err := svc.Registry.Lookup(id.String())
		assert.NoError(t, err, id)
	}
}

func TestNewGenerator_UnknownProvider(t *testing.T) {
	_, err := newGenerator(config.LLMConfig{Provider: "carrier-pigeon"}, nil)
	assert.Error(t, err)
}
