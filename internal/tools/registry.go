package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fyrsmithlabs/taskd/internal/plan"
)

// Tool executes one step input.
type Tool interface {
	Invoke(ctx context.Context, input string) (string, error)
}

// Confirmer is implemented by tools that return *ConfirmationRequest.
type Confirmer interface {
	Confirm(ctx context.Context, req *ConfirmationRequest, choice string) (string, error)
}

// Func adapts a function to Tool.
type Func func(ctx context.Context, input string) (string, error)

// Invoke calls f.
func (f Func) Invoke(ctx context.Context, input string) (string, error) {
	return f(ctx, input)
}

// Registry maps tool ids to implementations.
type Registry struct {
	mu    sync.RWMutex
	tools map[ID]Tool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[ID]Tool)}
}

// Register binds id to t, replacing any previous binding.
func (r *Registry) Register(id ID, t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[id] = t
}

// Lookup resolves name and returns its tool.
func (r *Registry) Lookup(name string) (ID, Tool, error) {
	id, err := Parse(name)
	if err != nil {
		return "", nil, err
	}
	r.mu.RLock()
	t, ok := r.tools[id]
	r.mu.RUnlock()
	if !ok {
		return "", nil, &InvalidToolError{Name: name}
	}
	return id, t, nil
}

// Registered returns the bound ids in declaration order.
func (r *Registry) Registered() []ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ID, 0, len(r.tools))
	for _, id := range All {
		if _, ok := r.tools[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Validate returns one *InvalidToolError per step naming an unbound tool.
func (r *Registry) Validate(steps []plan.Step) []error {
	var errs []error
	for _, s := range steps {
		if _, _, err := r.Lookup(s.Tool); err != nil {
			errs = append(errs, &InvalidToolError{Name: s.Tool, Step: s.Name})
		}
	}
	return errs
}

// Invoke runs the named tool. Tool failures are wrapped in *ExecutionError;
// a *ConfirmationRequest is returned as-is.
func (r *Registry) Invoke(ctx context.Context, name, input string) (string, error) {
	id, t, err := r.Lookup(name)
	if err != nil {
		return "", err
	}
	out, err := t.Invoke(ctx, input)
	if err != nil {
		var cr *ConfirmationRequest
		if errors.As(err, &cr) {
			return "", cr
		}
		return "", &ExecutionError{Tool: id, Err: err}
	}
	return out, nil
}

// Confirm applies choice to a pending request of the named tool.
func (r *Registry) Confirm(ctx context.Context, name string, req *ConfirmationRequest, choice string) (string, error) {
	id, t, err := r.Lookup(name)
	if err != nil {
		return "", err
	}
	c, ok := t.(Confirmer)
	if !ok {
		return "", fmt.Errorf("tool %s does not take confirmations", id)
	}
	out, err := c.Confirm(ctx, req, choice)
	if err != nil {
		return "", &ExecutionError{Tool: id, Err: err}
	}
	return out, nil
}
