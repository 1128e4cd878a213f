package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrNoScriptedResponse is returned by Mock when nothing matches a prompt.
var ErrNoScriptedResponse = errors.New("mock: no scripted response")

// Mock is a scripted Generator for tests and the "mock" provider.
//
// Rules are tried in registration order; the first whose substring occurs in
// the prompt answers. Without a match the queue is consumed, then Fallback.
type Mock struct {
	mu       sync.Mutex
	rules    []mockRule
	queue    []mockReply
	Fallback string
	calls    []string
}

type mockRule struct {
	contains string
	reply    mockReply
}

type mockReply struct {
	text string
	err  error
}

// NewMock returns an empty Mock.
func NewMock() *Mock {
	return &Mock{}
}

// On answers prompts containing substr with reply.
func (m *Mock) On(substr, reply string) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{contains: substr, reply: mockReply{text: reply}})
	return m
}

// OnError fails prompts containing substr with err.
func (m *Mock) OnError(substr string, err error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{contains: substr, reply: mockReply{err: err}})
	return m
}

// Enqueue adds replies consumed in order by unmatched prompts.
func (m *Mock) Enqueue(replies ...string) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range replies {
		m.queue = append(m.queue, mockReply{text: r})
	}
	return m
}

// Generate implements Generator.
func (m *Mock) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, prompt)

	for _, r := range m.rules {
		if strings.Contains(prompt, r.contains) {
			return r.reply.text, r.reply.err
		}
	}
	if len(m.queue) > 0 {
		next := m.queue[0]
		m.queue = m.queue[1:]
		return next.text, next.err
	}
	if m.Fallback != "" {
		return m.Fallback, nil
	}
	return "", ErrNoScriptedResponse
}

// Calls returns every prompt received so far.
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many prompts were received.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
