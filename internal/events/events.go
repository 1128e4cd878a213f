// Package events publishes task progress so that API clients can follow a
// run as it happens.
//
// Events are delivered on subjects of the form
//
//	{prefix}.{agent_id}.{task_id}.{kind}
package events

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Kind classifies an event.
type Kind string

const (
	KindStarted   Kind = "started"
	KindStep      Kind = "step"
	KindAwaiting  Kind = "awaiting"
	KindCompleted Kind = "completed"
	KindFailed    Kind = "failed"
)

// Terminal reports whether no further events follow k for the run.
func (k Kind) Terminal() bool {
	return k == KindCompleted || k == KindFailed || k == KindAwaiting
}

// Event is one progress notification.
type Event struct {
	Kind    Kind          `json:"kind"`
	AgentID string        `json:"agent_id"`
	TaskID  string        `json:"task_id"`
	Step    string        `json:"step,omitempty"`
	Tool    string        `json:"tool,omitempty"`
	Failed  bool          `json:"failed,omitempty"`
	Message string        `json:"message,omitempty"`
	Elapsed time.Duration `json:"elapsed,omitempty"`
	Time    time.Time     `json:"time"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Subscriber streams the events of one task until ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, agentID, taskID string) (<-chan Event, error)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Subject returns the subject an event is published on.
func Subject(prefix string, ev Event) string {
	return strings.Join([]string{prefix, token(ev.AgentID), token(ev.TaskID), string(ev.Kind)}, ".")
}

// TaskSubject matches every event of one task.
func TaskSubject(prefix, agentID, taskID string) string {
	return strings.Join([]string{prefix, token(agentID), token(taskID), "*"}, ".")
}

var tokenReplacer = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_", "\t", "_")

func token(s string) string {
	if s == "" {
		return "_"
	}
	return tokenReplacer.Replace(s)
}

// Memory is an in-process broker used when no NATS server is configured.
type Memory struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
}

// NewMemory returns an empty broker.
func NewMemory() *Memory {
	return &Memory{subs: make(map[string]map[chan Event]struct{})}
}

// Publish fans ev out to the task's subscribers. Slow subscribers miss
// events instead of blocking the run.
func (m *Memory) Publish(_ context.Context, ev Event) error {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for ch := range m.subs[ev.AgentID+"/"+ev.TaskID] {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

// Subscribe registers a subscriber for one task.
func (m *Memory) Subscribe(ctx context.Context, agentID, taskID string) (<-chan Event, error) {
	key := agentID + "/" + taskID
	ch := make(chan Event, 32)

	m.mu.Lock()
	if m.subs[key] == nil {
		m.subs[key] = make(map[chan Event]struct{})
	}
	m.subs[key][ch] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs[key], ch)
		if len(m.subs[key]) == 0 {
			delete(m.subs, key)
		}
		m.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}
