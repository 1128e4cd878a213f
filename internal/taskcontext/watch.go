package taskcontext

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Change reports that an artifact of a watched task was rewritten.
type Change struct {
	FileType FileType
	Path     string
}

// Watch streams artifact changes of one task until ctx is done.
func (s *Store) Watch(ctx context.Context, agentID, taskID string) (<-chan Change, error) {
	dir, err := s.TaskDir(agentID, taskID)
	if err != nil {
		return nil, err
	}
	if ok, err := s.Exists(ctx, agentID, taskID); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	byName := make(map[string]FileType, len(fileNames))
	for ft, name := range fileNames {
		byName[name] = ft
	}

	out := make(chan Change, 16)
	go func() {
		defer close(out)
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				// Atomic writes land as a create or rename onto the final name.
				if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
					continue
				}
				ft, known := byName[filepath.Base(ev.Name)]
				if !known {
					continue
				}
				select {
				case out <- Change{FileType: ft, Path: ev.Name}:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("artifact watcher error", zap.String("task_id", taskID), zap.Error(err))
			}
		}
	}()
	return out, nil
}
