package llm

import (
	"errors"
	"fmt"
)

// GenerationError reports a text-generation call that failed after the
// retry policy gave up.
type GenerationError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed during %s after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// AsGenerationError tags err with op. An existing *GenerationError keeps its
// attempt count and takes the new op.
func AsGenerationError(op string, err error) error {
	if err == nil {
		return nil
	}
	var ge *GenerationError
	if errors.As(err, &ge) {
		return &GenerationError{Op: op, Attempts: ge.Attempts, Err: ge.Err}
	}
	return &GenerationError{Op: op, Attempts: 1, Err: err}
}
