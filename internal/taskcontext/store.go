package taskcontext

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/config"
)

const (
	metadataFile = "metadata.json"
	runStateFile = "run_state.json"

	dirPerm  = 0o750
	filePerm = 0o600

	previewLength = 200
)

// Store is the file-backed artifact store.
type Store struct {
	base   string
	locks  *keyedMutex
	now    func() time.Time
	logger *zap.Logger
	tracer trace.Tracer
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore opens a store rooted at cfg.BasePath, creating it if needed.
func NewStore(cfg config.StoreConfig, opts ...Option) (*Store, error) {
	if cfg.BasePath == "" {
		return nil, errors.New("store base path is required")
	}
	if err := os.MkdirAll(cfg.BasePath, dirPerm); err != nil {
		return nil, &PersistenceError{Op: "mkdir", Path: cfg.BasePath, Err: err}
	}
	s := &Store{
		base:   cfg.BasePath,
		locks:  newKeyedMutex(),
		now:    time.Now,
		logger: zap.NewNop(),
		tracer: otel.Tracer("github.com/fyrsmithlabs/taskd/internal/taskcontext"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// BasePath returns the store root.
func (s *Store) BasePath() string {
	return s.base
}

// TaskDir returns the directory of one task.
func (s *Store) TaskDir(agentID, taskID string) (string, error) {
	if err := validateID(agentID); err != nil {
		return "", fmt.Errorf("agent: %w", err)
	}
	if err := validateID(taskID); err != nil {
		return "", fmt.Errorf("task: %w", err)
	}
	return filepath.Join(s.base, "agent_"+agentID, "task_"+taskID), nil
}

func validateID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

func lockKey(agentID, taskID string) string {
	return agentID + "/" + taskID
}

// CreateTask writes a new task with its five artifacts.
func (s *Store) CreateTask(ctx context.Context, agentID string, req CreateRequest) (*TaskContext, error) {
	dir, err := s.TaskDir(agentID, req.TaskID)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(lockKey(agentID, req.TaskID))
	defer unlock()

	if _, err := os.Stat(filepath.Join(dir, metadataFile)); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrTaskExists, req.TaskID)
	}

	now := s.now().UTC()
	tc := &TaskContext{
		TaskID:      req.TaskID,
		Title:       req.Title,
		Description: req.Description,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		Files:       make(map[FileType]*File, len(FileTypes)),
		Metadata:    req.Metadata,
	}
	if tc.Metadata == nil {
		tc.Metadata = map[string]any{}
	}
	for _, ft := range FileTypes {
		tc.Files[ft] = &File{
			Name:      ft.FileName(),
			Content:   initialContent(ft, tc, req.TodoItems),
			FileType:  ft,
			CreatedAt: now,
			UpdatedAt: now,
			Version:   1,
			Metadata:  map[string]any{},
		}
	}

	if err := s.writeTask(dir, tc); err != nil {
		return nil, err
	}
	s.logger.Debug("task created", zap.String("agent_id", agentID), zap.String("task_id", req.TaskID))
	return tc, nil
}

// LoadTask reads metadata and every artifact of a task.
func (s *Store) LoadTask(ctx context.Context, agentID, taskID string) (*TaskContext, error) {
	dir, err := s.TaskDir(agentID, taskID)
	if err != nil {
		return nil, err
	}
	return s.readTask(dir)
}

// Exists reports whether the task has been created.
func (s *Store) Exists(ctx context.Context, agentID, taskID string) (bool, error) {
	dir, err := s.TaskDir(agentID, taskID)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(filepath.Join(dir, metadataFile))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, &PersistenceError{Op: "stat", Path: dir, Err: err}
	}
}

// UpdateFile replaces the content of one artifact and bumps its version.
func (s *Store) UpdateFile(ctx context.Context, agentID, taskID string, ft FileType, content string) error {
	return s.mutate(ctx, agentID, taskID, ft, func(string) (string, error) {
		return content, nil
	})
}

// mutate runs a read-modify-write of one artifact under the task lock.
func (s *Store) mutate(ctx context.Context, agentID, taskID string, ft FileType, fn func(old string) (string, error)) error {
	if !ft.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidFileType, ft)
	}
	dir, err := s.TaskDir(agentID, taskID)
	if err != nil {
		return err
	}

	_, span := s.tracer.Start(ctx, "store.update_file", trace.WithAttributes(
		attribute.String("task.id", taskID),
		attribute.String("file.type", string(ft)),
	))
	defer span.End()

	unlock := s.locks.Lock(lockKey(agentID, taskID))
	defer unlock()

	tc, err := s.readTask(dir)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return err
	}
	f := tc.File(ft)
	if f == nil {
		err := fmt.Errorf("%w: %s missing from task %s", ErrInvalidFileType, ft, taskID)
		span.RecordError(err)
		return err
	}

	content, err := fn(f.Content)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	f.Content = content
	f.UpdatedAt = now
	f.Version++
	tc.UpdatedAt = now

	if err := writeFileAtomic(filepath.Join(dir, f.Name), []byte(content)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		return err
	}
	if err := s.writeMetadata(dir, tc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		return err
	}
	span.SetAttributes(attribute.Int("file.version", f.Version))
	return nil
}

// UpdateStatus sets the task status.
func (s *Store) UpdateStatus(ctx context.Context, agentID, taskID string, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}
	dir, err := s.TaskDir(agentID, taskID)
	if err != nil {
		return err
	}
	unlock := s.locks.Lock(lockKey(agentID, taskID))
	defer unlock()

	tc, err := s.readMetadata(dir)
	if err != nil {
		return err
	}
	tc.Status = status
	tc.UpdatedAt = s.now().UTC()
	return s.writeMetadata(dir, tc)
}

// GetSummary returns metadata plus a short preview of every artifact.
func (s *Store) GetSummary(ctx context.Context, agentID, taskID string) (*Summary, error) {
	tc, err := s.LoadTask(ctx, agentID, taskID)
	if err != nil {
		return nil, err
	}
	sum := &Summary{
		TaskID:    tc.TaskID,
		Title:     tc.Title,
		Status:    tc.Status,
		CreatedAt: tc.CreatedAt,
		UpdatedAt: tc.UpdatedAt,
		Files:     make(map[FileType]FilePreview, len(tc.Files)),
	}
	for ft, f := range tc.Files {
		sum.Files[ft] = FilePreview{
			Name:           f.Name,
			FileType:       f.FileType,
			ContentLength:  len([]rune(f.Content)),
			ContentPreview: preview(f.Content, previewLength),
			UpdatedAt:      f.UpdatedAt,
			Version:        f.Version,
		}
	}
	return sum, nil
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// ListTasks returns the tasks of an agent, most recently updated first.
func (s *Store) ListTasks(ctx context.Context, agentID string) ([]TaskInfo, error) {
	if err := validateID(agentID); err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}
	agentDir := filepath.Join(s.base, "agent_"+agentID)
	entries, err := os.ReadDir(agentDir)
	if errors.Is(err, fs.ErrNotExist) {
		return []TaskInfo{}, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "readdir", Path: agentDir, Err: err}
	}

	tasks := make([]TaskInfo, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "task_") {
			continue
		}
		tc, err := s.readMetadata(filepath.Join(agentDir, e.Name()))
		if err != nil {
			s.logger.Warn("skipping unreadable task", zap.String("dir", e.Name()), zap.Error(err))
			continue
		}
		tasks = append(tasks, TaskInfo{
			TaskID:    tc.TaskID,
			Title:     tc.Title,
			Status:    tc.Status,
			CreatedAt: tc.CreatedAt,
			UpdatedAt: tc.UpdatedAt,
		})
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].UpdatedAt.After(tasks[j].UpdatedAt)
	})
	return tasks, nil
}

func (s *Store) readMetadata(dir string) (*TaskContext, error) {
	path := filepath.Join(dir, metadataFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, filepath.Base(dir))
	}
	if err != nil {
		return nil, &PersistenceError{Op: "read", Path: path, Err: err}
	}

	var doc metaDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &PersistenceError{Op: "decode", Path: path, Err: err}
	}
	tc := &TaskContext{
		TaskID:      doc.TaskID,
		Title:       doc.Title,
		Description: doc.Description,
		Status:      doc.Status,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
		Files:       make(map[FileType]*File, len(doc.Files)),
		Metadata:    doc.Metadata,
	}
	for ft, m := range doc.Files {
		tc.Files[ft] = &File{
			Name:      m.Name,
			FileType:  m.FileType,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
			Version:   m.Version,
			Metadata:  m.Metadata,
		}
	}
	return tc, nil
}

func (s *Store) readTask(dir string) (*TaskContext, error) {
	tc, err := s.readMetadata(dir)
	if err != nil {
		return nil, err
	}
	for ft, f := range tc.Files {
		path := filepath.Join(dir, filepath.Base(f.Name))
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			delete(tc.Files, ft)
			continue
		}
		if err != nil {
			return nil, &PersistenceError{Op: "read", Path: path, Err: err}
		}
		f.Content = string(data)
	}
	return tc, nil
}

func (s *Store) writeTask(dir string, tc *TaskContext) error {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return &PersistenceError{Op: "mkdir", Path: dir, Err: err}
	}
	for _, ft := range FileTypes {
		f := tc.File(ft)
		if f == nil {
			continue
		}
		if err := writeFileAtomic(filepath.Join(dir, f.Name), []byte(f.Content)); err != nil {
			return err
		}
	}
	return s.writeMetadata(dir, tc)
}

func (s *Store) writeMetadata(dir string, tc *TaskContext) error {
	doc := metaDoc{
		TaskID:      tc.TaskID,
		Title:       tc.Title,
		Description: tc.Description,
		Status:      tc.Status,
		CreatedAt:   tc.CreatedAt,
		UpdatedAt:   tc.UpdatedAt,
		Files:       make(map[FileType]fileMeta, len(tc.Files)),
		Metadata:    tc.Metadata,
	}
	for ft, f := range tc.Files {
		doc.Files[ft] = fileMeta{
			Name:      f.Name,
			FileType:  f.FileType,
			CreatedAt: f.CreatedAt,
			UpdatedAt: f.UpdatedAt,
			Version:   f.Version,
			Metadata:  f.Metadata,
		}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return &PersistenceError{Op: "encode", Path: filepath.Join(dir, metadataFile), Err: err}
	}
	return writeFileAtomic(filepath.Join(dir, metadataFile), data)
}

// writeFileAtomic writes through a temp file and rename.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, filePerm); err != nil {
		return &PersistenceError{Op: "write", Path: path, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return &PersistenceError{Op: "rename", Path: path, Err: err}
	}
	return nil
}
