package taskcontext

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// SaveRunState stores v as the task's run_state.json.
func (s *Store) SaveRunState(ctx context.Context, agentID, taskID string, v any) error {
	dir, err := s.TaskDir(agentID, taskID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding run state: %w", err)
	}

	unlock := s.locks.Lock(lockKey(agentID, taskID))
	defer unlock()
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return writeFileAtomic(filepath.Join(dir, runStateFile), data)
}

// LoadRunState decodes the task's run_state.json into v.
func (s *Store) LoadRunState(ctx context.Context, agentID, taskID string, v any) error {
	dir, err := s.TaskDir(agentID, taskID)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, runStateFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrRunStateNotFound, taskID)
	}
	if err != nil {
		return &PersistenceError{Op: "read", Path: path, Err: err}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &PersistenceError{Op: "decode", Path: path, Err: err}
	}
	return nil
}

// ClearRunState removes the task's run_state.json if present.
func (s *Store) ClearRunState(ctx context.Context, agentID, taskID string) error {
	dir, err := s.TaskDir(agentID, taskID)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, runStateFile)

	unlock := s.locks.Lock(lockKey(agentID, taskID))
	defer unlock()
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &PersistenceError{Op: "remove", Path: path, Err: err}
	}
	return nil
}

// TakeRunState decodes run_state.json into v and removes it once accept
// approves the decoded value. Under the task lock, so a state is taken at
// most once. When accept fails the file stays and its error is returned.
func (s *Store) TakeRunState(ctx context.Context, agentID, taskID string, v any, accept func() error) error {
	dir, err := s.TaskDir(agentID, taskID)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, runStateFile)

	unlock := s.locks.Lock(lockKey(agentID, taskID))
	defer unlock()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrRunStateNotFound, taskID)
	}
	if err != nil {
		return &PersistenceError{Op: "read", Path: path, Err: err}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &PersistenceError{Op: "decode", Path: path, Err: err}
	}
	if accept != nil {
		if err := accept(); err != nil {
			return err
		}
	}
	if err := os.Remove(path); err != nil {
		return &PersistenceError{Op: "remove", Path: path, Err: err}
	}
	return nil
}
