package orchestrator

import "sync"

// runGuard tracks the tasks with a run in progress in this process.
type runGuard struct {
	mu   sync.Mutex
	held map[string]bool
}

func newRunGuard() *runGuard {
	return &runGuard{held: make(map[string]bool)}
}

func taskKey(agentID, taskID string) string {
	return agentID + "/" + taskID
}

// acquire claims the task and returns its release func, or false if the
// task is already held.
func (g *runGuard) acquire(agentID, taskID string) (func(), bool) {
	key := taskKey(agentID, taskID)
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held[key] {
		return nil, false
	}
	g.held[key] = true
	return func() {
		g.mu.Lock()
		delete(g.held, key)
		g.mu.Unlock()
	}, true
}

func (g *runGuard) holds(agentID, taskID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.held[taskKey(agentID, taskID)]
}
