package taskcontext

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Summarizer shortens content to at most maxLength characters.
type Summarizer interface {
	Summarize(ctx context.Context, content string, maxLength int) (string, error)
}

// CompressResult lists what Compress changed.
type CompressResult struct {
	SizeBefore int        `json:"size_before"`
	SizeAfter  int        `json:"size_after"`
	Compressed []FileType `json:"compressed"`
}

// Size returns the total character count of a task's artifacts.
func (s *Store) Size(ctx context.Context, agentID, taskID string) (int, error) {
	tc, err := s.LoadTask(ctx, agentID, taskID)
	if err != nil {
		return 0, err
	}
	return contextSize(tc), nil
}

func contextSize(tc *TaskContext) int {
	total := 0
	for _, f := range tc.Files {
		total += len([]rune(f.Content))
	}
	return total
}

// compressAttempts bounds how often one file is re-summarized when it keeps
// changing underneath the summarizer.
const compressAttempts = 3

var errContentChanged = errors.New("content changed during compression")

// Compress summarizes artifacts when the task exceeds budget characters.
// Each file longer than budget/len(files) is replaced by a summary of that
// share. The summary is committed only if the file still holds the content
// it was computed from, so concurrent writes are never overwritten. A failed
// summary, or a file that keeps changing, is left untouched.
func (s *Store) Compress(ctx context.Context, agentID, taskID string, budget int, sum Summarizer) (*CompressResult, error) {
	if budget <= 0 {
		return nil, fmt.Errorf("compression budget must be positive, got %d", budget)
	}
	tc, err := s.LoadTask(ctx, agentID, taskID)
	if err != nil {
		return nil, err
	}
	res := &CompressResult{SizeBefore: contextSize(tc)}
	res.SizeAfter = res.SizeBefore
	if res.SizeBefore <= budget || len(tc.Files) == 0 {
		return res, nil
	}

	share := budget / len(tc.Files)
	types := make([]FileType, 0, len(tc.Files))
	for ft := range tc.Files {
		types = append(types, ft)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	for _, ft := range types {
		ok, err := s.compressFile(ctx, agentID, taskID, ft, tc.Files[ft].Content, share, sum)
		if err != nil {
			return res, err
		}
		if ok {
			res.Compressed = append(res.Compressed, ft)
		}
	}
	if len(res.Compressed) > 0 {
		if res.SizeAfter, err = s.Size(ctx, agentID, taskID); err != nil {
			return res, err
		}
	}
	return res, nil
}

// compressFile summarizes content outside the task lock and swaps it in only
// when the stored file is unchanged. On a mismatch it retries from the
// current content.
func (s *Store) compressFile(ctx context.Context, agentID, taskID string, ft FileType, content string, share int, sum Summarizer) (bool, error) {
	log := s.logger.With(zap.String("task_id", taskID), zap.String("file_type", string(ft)))
	for attempt := 1; ; attempt++ {
		if len([]rune(content)) <= share {
			return false, nil
		}
		short, err := sum.Summarize(ctx, content, share)
		if err != nil {
			log.Warn("artifact compression failed", zap.Error(err))
			return false, nil
		}
		short = clip(short, share)

		var current string
		err = s.mutate(ctx, agentID, taskID, ft, func(old string) (string, error) {
			if old != content {
				current = old
				return "", errContentChanged
			}
			return short, nil
		})
		switch {
		case err == nil:
			return true, nil
		case !errors.Is(err, errContentChanged):
			return false, err
		case attempt >= compressAttempts:
			log.Warn("artifact changed during compression, skipping", zap.Int("attempts", attempt))
			return false, nil
		}
		content = current
	}
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
