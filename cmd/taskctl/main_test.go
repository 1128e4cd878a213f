package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/taskd/internal/orchestrator"
	"github.com/fyrsmithlabs/taskd/internal/plan"
	"github.com/fyrsmithlabs/taskd/internal/taskcontext"
)

// execute runs the root command with fresh flag state against store.
func execute(t *testing.T, store string, args ...string) (string, error) {
	t.Helper()
	configPath, storePath, agentID, verbose = "", "", "cli", false
	runTaskID, showFile, exportOutput, importOverwrite, compressBudget = "", "", "", false, 0

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--store", store}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func offline(t *testing.T) string {
	t.Helper()
	t.Setenv("TASKD_LLM_PROVIDER", "mock")
	return t.TempDir()
}

func firstField(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func TestRunListShow(t *testing.T) {
	store := offline(t)

	out, err := execute(t, store, "run", "What", "day", "is", "it?")
	require.NoError(t, err)
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "offline mock provider")

	out, err = execute(t, store, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "What day is it?")
	taskID := firstField(out)
	require.NotEmpty(t, taskID)

	out, err = execute(t, store, "show", taskID)
	require.NoError(t, err)
	assert.Contains(t, out, "todo.md")
	assert.Contains(t, out, "summary.md")

	out, err = execute(t, store, "show", taskID, "--file", "summary")
	require.NoError(t, err)
	assert.Contains(t, out, "## final result")

	_, err = execute(t, store, "show", taskID, "--file", "diary")
	assert.ErrorIs(t, err, taskcontext.ErrInvalidFileType)
}

func TestExportImport(t *testing.T) {
	store := offline(t)
	_, err := execute(t, store, "run", "--task-id", "t-export", "Export me")
	require.NoError(t, err)

	file := filepath.Join(t.TempDir(), "task.json")
	_, err = execute(t, store, "export", "t-export", "-o", file)
	require.NoError(t, err)
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"task_id": "t-export"`)

	other := t.TempDir()
	out, err := execute(t, other, "import", file)
	require.NoError(t, err)
	assert.Contains(t, out, "imported t-export")

	_, err = execute(t, other, "import", file)
	assert.ErrorIs(t, err, taskcontext.ErrTaskExists)

	_, err = execute(t, other, "import", "--overwrite", file)
	assert.NoError(t, err)
}

func TestCompress(t *testing.T) {
	store := offline(t)
	_, err := execute(t, store, "run", "--task-id", "t-small", "Tiny task")
	require.NoError(t, err)

	out, err := execute(t, store, "compress", "t-small", "--budget", "1000000")
	require.NoError(t, err)
	assert.Contains(t, out, "already fits")
}

func TestUnknownTask(t *testing.T) {
	store := offline(t)
	_, err := execute(t, store, "show", "nope")
	assert.ErrorIs(t, err, taskcontext.ErrTaskNotFound)

	_, err = execute(t, store, "resume", "nope", "tok", "1")
	assert.ErrorIs(t, err, orchestrator.ErrNoPendingConfirmation)
}

func TestRenderOutcome_Awaiting(t *testing.T) {
	var b bytes.Buffer
	renderOutcome(&b, &orchestrator.Outcome{
		AgentID: "alice",
		TaskID:  "t-1",
		Status:  orchestrator.StatusAwaiting,
		Pending: &plan.Confirmation{Token: "tok", Prompt: "Pick a topic", Options: []string{"Agents", "Small models"}},
		Steps:   []plan.StepRecord{{Name: "#E1", Tool: "Topic", Elapsed: 1500 * time.Microsecond}},
	})
	out := b.String()
	assert.Contains(t, out, "Pick a topic")
	assert.Contains(t, out, "2. Small models")
	assert.Contains(t, out, "taskctl resume --agent alice t-1 tok <choice>")
}

func TestRenderCompress(t *testing.T) {
	var b bytes.Buffer
	renderCompress(&b, "t-1", &taskcontext.CompressResult{SizeBefore: 120, SizeAfter: 120})
	assert.Equal(t, "t-1 already fits: 120 chars\n", b.String())

	b.Reset()
	renderCompress(&b, "t-1", &taskcontext.CompressResult{
		SizeBefore: 9000,
		SizeAfter:  2000,
		Compressed: []taskcontext.FileType{taskcontext.FileHistory},
	})
	assert.Equal(t, "t-1 compressed: 9000 -> 2000 chars\n", b.String())
}
