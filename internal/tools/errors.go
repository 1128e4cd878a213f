package tools

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidChoice is returned when a confirmation reply selects no option.
var ErrInvalidChoice = errors.New("invalid choice")

// InvalidToolError reports a step naming a tool that is not registered.
type InvalidToolError struct {
	Name string
	Step string
}

func (e *InvalidToolError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("invalid tool %q in step %s", e.Name, e.Step)
	}
	return fmt.Sprintf("invalid tool %q", e.Name)
}

// ExecutionError wraps a failure raised by a tool.
type ExecutionError struct {
	Tool ID
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// ConfirmationRequest is returned by tools that need a person to pick one
// of Options before the step can produce a result.
type ConfirmationRequest struct {
	Tool    ID
	Prompt  string
	Options []string
}

func (r *ConfirmationRequest) Error() string {
	return fmt.Sprintf("%s awaits confirmation among %d option(s)", r.Tool, len(r.Options))
}

// Present renders the options as a numbered list.
func (r *ConfirmationRequest) Present() string {
	var b strings.Builder
	b.WriteString(r.Prompt)
	for i, o := range r.Options {
		fmt.Fprintf(&b, "\n%d. %s", i+1, o)
	}
	fmt.Fprintf(&b, "\n\nReply with a number from 1 to %d, or with your own text.", len(r.Options))
	return b.String()
}
