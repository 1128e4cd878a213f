package taskcontext

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Export returns the whole task, artifacts included, as one JSON document.
func (s *Store) Export(ctx context.Context, agentID, taskID string) ([]byte, error) {
	tc, err := s.LoadTask(ctx, agentID, taskID)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(tc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding task %s: %w", taskID, err)
	}
	return data, nil
}

// Import writes a document produced by Export under agentID. An existing task
// is replaced only when overwrite is set.
func (s *Store) Import(ctx context.Context, agentID string, data []byte, overwrite bool) (*TaskContext, error) {
	var tc TaskContext
	if err := json.Unmarshal(data, &tc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := Validate(&tc); err != nil {
		return nil, err
	}
	dir, err := s.TaskDir(agentID, tc.TaskID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(lockKey(agentID, tc.TaskID))
	defer unlock()

	if _, err := os.Stat(filepath.Join(dir, metadataFile)); err == nil && !overwrite {
		return nil, fmt.Errorf("%w: %s", ErrTaskExists, tc.TaskID)
	}
	for ft, f := range tc.Files {
		f.FileType = ft
		f.Name = ft.FileName()
		if f.Version < 1 {
			f.Version = 1
		}
		if f.Metadata == nil {
			f.Metadata = map[string]any{}
		}
	}
	if tc.Metadata == nil {
		tc.Metadata = map[string]any{}
	}
	if err := s.writeTask(dir, &tc); err != nil {
		return nil, err
	}
	return &tc, nil
}

// Validate checks the structure of an imported document.
func Validate(tc *TaskContext) error {
	var errs []error
	if tc.TaskID == "" {
		errs = append(errs, errors.New("task_id is required"))
	} else if err := validateID(tc.TaskID); err != nil {
		errs = append(errs, err)
	}
	if tc.Title == "" {
		errs = append(errs, errors.New("title is required"))
	}
	if tc.Description == "" {
		errs = append(errs, errors.New("description is required"))
	}
	if !tc.Status.Valid() {
		errs = append(errs, fmt.Errorf("status %q is invalid", tc.Status))
	}
	for ft, f := range tc.Files {
		if !ft.Valid() {
			errs = append(errs, fmt.Errorf("file %q: unknown type", ft))
			continue
		}
		if f == nil || f.Content == "" {
			errs = append(errs, fmt.Errorf("file %q: content is required", ft))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	return nil
}
