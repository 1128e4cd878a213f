package taskcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Watch(t *testing.T) {
	s := newTestStore(t)
	createTask(t, s, "t1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := s.Watch(ctx, "a1", "t1")
	require.NoError(t, err)

	require.NoError(t, s.AddScratchpadEntry(context.Background(), "a1", "t1", "watched"))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-changes:
			if c.FileType == FileScratchpad {
				cancel()
				return
			}
		case <-deadline:
			t.Fatal("no scratchpad change observed")
		}
	}
}

func TestStore_WatchUnknownTask(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Watch(context.Background(), "a1", "missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}
