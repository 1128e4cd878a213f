package taskcontext

import (
	"errors"
	"fmt"
)

var (
	// ErrTaskNotFound is returned when a task has no metadata.json.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskExists is returned by CreateTask and Import for a taken id.
	ErrTaskExists = errors.New("task already exists")

	// ErrInvalidFileType is returned for an unknown artifact type.
	ErrInvalidFileType = errors.New("invalid file type")

	// ErrInvalidID is returned for agent or task ids unsafe as path segments.
	ErrInvalidID = errors.New("invalid id")

	// ErrRunStateNotFound is returned when a task has no saved run state.
	ErrRunStateNotFound = errors.New("run state not found")

	// ErrInvalidDocument is returned by Validate.
	ErrInvalidDocument = errors.New("invalid task document")
)

// PersistenceError reports a failed read or write of a task file.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
