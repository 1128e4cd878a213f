package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/taskd/internal/config"
	"github.com/fyrsmithlabs/taskd/internal/plan"
)

type runnerFunc func(ctx context.Context, req plan.Request) (*Outcome, error)

func (f runnerFunc) Run(ctx context.Context, req plan.Request) (*Outcome, error) {
	return f(ctx, req)
}

func TestDispatcher_RunsSubmittedTasks(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string]bool)
	runner := runnerFunc(func(_ context.Context, req plan.Request) (*Outcome, error) {
		mu.Lock()
		seen[req.TaskID] = true
		mu.Unlock()
		return &Outcome{AgentID: req.AgentID, TaskID: req.TaskID, Status: StatusCompleted}, nil
	})

	metrics := NewMetrics(prometheus.NewRegistry())
	d := NewDispatcher(runner, config.DispatcherConfig{Workers: 3, QueueSize: 10}, metrics, nil)
	var wg sync.WaitGroup
	d.OnDone(func(*Outcome, error) { wg.Done() })
	d.Start(context.Background())

	ids := make([]string, 0, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		id, err := d.Submit(plan.Request{AgentID: "a1", Task: "task"})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	wg.Wait()
	require.NoError(t, d.Stop(context.Background()))

	for _, id := range ids {
		assert.True(t, seen[id], id)
		assert.False(t, d.Busy("a1", id))
	}
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.Active))

	_, err := d.Submit(plan.Request{AgentID: "a1", Task: "late"})
	assert.ErrorIs(t, err, ErrDispatcherClosed)
}

func TestDispatcher_BusyAndFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	runner := runnerFunc(func(ctx context.Context, req plan.Request) (*Outcome, error) {
		started <- struct{}{}
		<-release
		return &Outcome{TaskID: req.TaskID}, nil
	})

	d := NewDispatcher(runner, config.DispatcherConfig{Workers: 1, QueueSize: 1}, nil, nil)
	d.Start(context.Background())

	_, err := d.Submit(plan.Request{AgentID: "a1", TaskID: "t1", Task: "x"})
	require.NoError(t, err)
	<-started

	_, err = d.Submit(plan.Request{AgentID: "a1", TaskID: "t1", Task: "x"})
	assert.ErrorIs(t, err, ErrTaskBusy)

	_, err = d.Submit(plan.Request{AgentID: "a1", TaskID: "t2", Task: "x"})
	require.NoError(t, err)

	_, err = d.Submit(plan.Request{AgentID: "a1", TaskID: "t3", Task: "x"})
	assert.ErrorIs(t, err, ErrQueueFull)

	close(release)
	require.NoError(t, d.Stop(context.Background()))
}

func TestDispatcher_StopCancelsOnDeadline(t *testing.T) {
	runner := runnerFunc(func(ctx context.Context, req plan.Request) (*Outcome, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	d := NewDispatcher(runner, config.DispatcherConfig{Workers: 1, QueueSize: 1}, nil, nil)
	d.Start(context.Background())

	_, err := d.Submit(plan.Request{AgentID: "a1", TaskID: "t1", Task: "x"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Stop(ctx), context.DeadlineExceeded)
}

// trackedRunner reports tasks as running, like an Orchestrator mid Resume.
type trackedRunner struct {
	runnerFunc
	running map[string]bool
}

func (r trackedRunner) Running(agentID, taskID string) bool {
	return r.running[taskKey(agentID, taskID)]
}

func TestDispatcher_SharesRunnerBusySet(t *testing.T) {
	runner := trackedRunner{
		runnerFunc: func(ctx context.Context, req plan.Request) (*Outcome, error) {
			return &Outcome{TaskID: req.TaskID}, nil
		},
		running: map[string]bool{taskKey("a1", "t1"): true},
	}
	d := NewDispatcher(runner, config.DispatcherConfig{Workers: 1, QueueSize: 1}, nil, nil)
	d.Start(context.Background())

	assert.True(t, d.Busy("a1", "t1"))
	_, err := d.Submit(plan.Request{AgentID: "a1", TaskID: "t1", Task: "x"})
	assert.ErrorIs(t, err, ErrTaskBusy)

	_, err = d.Submit(plan.Request{AgentID: "a1", TaskID: "t2", Task: "x"})
	assert.NoError(t, err)
	require.NoError(t, d.Stop(context.Background()))
}
