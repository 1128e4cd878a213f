package orchestrator

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/config"
	"github.com/fyrsmithlabs/taskd/internal/plan"
)

var (
	// ErrQueueFull is returned by Submit when every queue slot is taken.
	ErrQueueFull = errors.New("dispatch queue is full")

	// ErrDispatcherClosed is returned by Submit after Stop.
	ErrDispatcherClosed = errors.New("dispatcher is stopped")

	// ErrTaskBusy is returned for a task that is already queued or running.
	ErrTaskBusy = errors.New("task is already running")
)

// Runner executes one task request.
type Runner interface {
	Run(ctx context.Context, req plan.Request) (*Outcome, error)
}

// runningReporter is implemented by runners that track in-flight tasks,
// including runs started outside the dispatcher.
type runningReporter interface {
	Running(agentID, taskID string) bool
}

// Dispatcher runs submitted tasks on a fixed set of workers. A task id is
// held by at most one worker at a time.
type Dispatcher struct {
	runner  Runner
	logger  *zap.Logger
	metrics *Metrics
	workers int

	work chan plan.Request
	wg   sync.WaitGroup

	mu     sync.Mutex
	busy   map[string]bool
	closed bool
	cancel context.CancelFunc
	onDone func(*Outcome, error)
}

// NewDispatcher creates a Dispatcher. Call Start before Submit.
func NewDispatcher(runner Runner, cfg config.DispatcherConfig, metrics *Metrics, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	queue := cfg.QueueSize
	if queue < 0 {
		queue = 0
	}
	return &Dispatcher{
		runner:  runner,
		logger:  logger,
		metrics: metrics,
		workers: workers,
		work:    make(chan plan.Request, queue),
		busy:    make(map[string]bool),
	}
}

// OnDone registers fn to receive every finished run. It must be set before
// Start.
func (d *Dispatcher) OnDone(fn func(*Outcome, error)) {
	d.onDone = fn
}

// Start launches the workers. Runs inherit ctx.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for req := range d.work {
				d.run(ctx, req)
			}
		}()
	}
}

// Submit queues req and returns its task id without waiting for the run.
func (d *Dispatcher) Submit(req plan.Request) (string, error) {
	if req.TaskID == "" {
		req.TaskID = uuid.NewString()
	}
	key := taskKey(req.AgentID, req.TaskID)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return "", ErrDispatcherClosed
	}
	if d.busy[key] || d.runnerBusy(req.AgentID, req.TaskID) {
		return "", ErrTaskBusy
	}
	select {
	case d.work <- req:
	default:
		return "", ErrQueueFull
	}
	d.busy[key] = true
	d.gauge()
	return req.TaskID, nil
}

// Busy reports whether the task is queued or running.
func (d *Dispatcher) Busy(agentID, taskID string) bool {
	d.mu.Lock()
	busy := d.busy[taskKey(agentID, taskID)]
	d.mu.Unlock()
	return busy || d.runnerBusy(agentID, taskID)
}

func (d *Dispatcher) runnerBusy(agentID, taskID string) bool {
	r, ok := d.runner.(runningReporter)
	return ok && r.Running(agentID, taskID)
}

// Stop rejects new submissions, lets queued runs finish and waits for the
// workers. When ctx ends first, in-flight runs are cancelled.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.work)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		if d.cancel != nil {
			d.cancel()
		}
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) run(ctx context.Context, req plan.Request) {
	key := taskKey(req.AgentID, req.TaskID)
	if d.metrics != nil {
		d.metrics.Active.Inc()
	}
	d.mu.Lock()
	d.gauge()
	d.mu.Unlock()

	out, err := d.runner.Run(ctx, req)
	if err != nil {
		d.logger.Warn("dispatched task failed", zap.String("task_id", req.TaskID), zap.Error(err))
	}

	d.mu.Lock()
	delete(d.busy, key)
	d.mu.Unlock()
	if d.metrics != nil {
		d.metrics.Active.Dec()
	}
	if d.onDone != nil {
		d.onDone(out, err)
	}
}

// gauge must be called with d.mu held.
func (d *Dispatcher) gauge() {
	if d.metrics != nil {
		d.metrics.QueueDepth.Set(float64(len(d.work)))
	}
}
