package taskcontext

import (
	"fmt"
	"time"
)

// FileType names one of the five artifacts of a task.
type FileType string

const (
	FileTodo       FileType = "todo"
	FileHistory    FileType = "history"
	FileResource   FileType = "resource"
	FileSummary    FileType = "summary"
	FileScratchpad FileType = "scratchpad"
)

// FileTypes lists every artifact in creation order.
var FileTypes = []FileType{FileTodo, FileHistory, FileResource, FileSummary, FileScratchpad}

var fileNames = map[FileType]string{
	FileTodo:       "todo.md",
	FileHistory:    "history.md",
	FileResource:   "resource_links.txt",
	FileSummary:    "summary.md",
	FileScratchpad: "scratchpad.md",
}

// FileName returns the on-disk name of the artifact.
func (t FileType) FileName() string {
	return fileNames[t]
}

// Valid reports whether t is a known artifact type.
func (t FileType) Valid() bool {
	_, ok := fileNames[t]
	return ok
}

// ParseFileType converts s to a FileType.
func ParseFileType(s string) (FileType, error) {
	t := FileType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidFileType, s)
	}
	return t, nil
}

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending              Status = "pending"
	StatusInProgress           Status = "in_progress"
	StatusCompleted            Status = "completed"
	StatusFailed               Status = "failed"
	StatusAwaitingConfirmation Status = "awaiting_confirmation"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed, StatusAwaitingConfirmation:
		return true
	}
	return false
}

// File is one artifact. Content is stored in its own file, never in
// metadata.json.
type File struct {
	Name      string         `json:"name"`
	Content   string         `json:"content,omitempty"`
	FileType  FileType       `json:"file_type"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Version   int            `json:"version"`
	Metadata  map[string]any `json:"metadata"`
}

// TaskContext is the full record of a task: metadata plus all artifacts.
type TaskContext struct {
	TaskID      string             `json:"task_id"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Status      Status             `json:"status"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	Files       map[FileType]*File `json:"files"`
	Metadata    map[string]any     `json:"metadata"`
}

// File returns the artifact of type t, or nil.
func (tc *TaskContext) File(t FileType) *File {
	if tc == nil || tc.Files == nil {
		return nil
	}
	return tc.Files[t]
}

// CreateRequest describes a new task. An empty TaskID is rejected; callers
// allocate ids. A nil TodoItems seeds the default checklist; an empty one
// seeds none.
type CreateRequest struct {
	TaskID      string
	Title       string
	Description string
	TodoItems   []string
	Metadata    map[string]any
}

// TaskInfo is one row of ListTasks.
type TaskInfo struct {
	TaskID    string    `json:"task_id"`
	Title     string    `json:"title"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FilePreview is the preview of one artifact.
type FilePreview struct {
	Name           string    `json:"name"`
	FileType       FileType  `json:"file_type"`
	ContentLength  int       `json:"content_length"`
	ContentPreview string    `json:"content_preview"`
	UpdatedAt      time.Time `json:"updated_at"`
	Version        int       `json:"version"`
}

// Summary is the read-only overview returned by GetSummary.
type Summary struct {
	TaskID    string                   `json:"task_id"`
	Title     string                   `json:"title"`
	Status    Status                   `json:"status"`
	CreatedAt time.Time                `json:"created_at"`
	UpdatedAt time.Time                `json:"updated_at"`
	Files     map[FileType]FilePreview `json:"files"`
}

// metaDoc is the metadata.json layout.
type metaDoc struct {
	TaskID      string                `json:"task_id"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Status      Status                `json:"status"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
	Files       map[FileType]fileMeta `json:"files"`
	Metadata    map[string]any        `json:"metadata"`
}

type fileMeta struct {
	Name      string         `json:"name"`
	FileType  FileType       `json:"file_type"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Version   int            `json:"version"`
	Metadata  map[string]any `json:"metadata"`
}
