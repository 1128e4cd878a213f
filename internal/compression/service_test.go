package compression

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/taskd/internal/llm"
	"github.com/fyrsmithlabs/taskd/internal/telemetry"
)

var article = strings.Join([]string{
	"# Findings",
	"Language models keep getting cheaper to run every single quarter.",
	"Agents that call tools are the most discussed topic of the year.",
	"Small models running on laptops are now good enough for many tasks.",
	"Some people still prefer writing everything by hand without any help.",
}, "\n")

func TestService_Abstractive(t *testing.T) {
	tt := telemetry.NewTestTelemetry()
	tt.Install(t)

	gen := llm.NewMock().On("no more than 60 characters", "Models are cheaper; agents and small models dominate the year.")
	s, err := NewService(gen, nil, nil)
	require.NoError(t, err)

	out, err := s.Summarize(context.Background(), article, 60)
	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(out)), 60)
	assert.True(t, strings.HasPrefix(out, "Models are cheaper"))

	calls := gen.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0], "Agents that call tools")
	assert.Equal(t, int64(1), tt.CounterValue(t, "taskd.compression.operations_total"))
	tt.AssertSpanExists(t, "compression.summarize")
}

func TestService_FallsBackToExtraction(t *testing.T) {
	tt := telemetry.NewTestTelemetry()
	tt.Install(t)

	gen := llm.NewMock().OnError("Compress", errors.New("model down"))
	s, err := NewService(gen, nil, nil)
	require.NoError(t, err)

	out, err := s.Summarize(context.Background(), article, 150)
	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(out)), 150)
	assert.Contains(t, out, "# Findings")
	assert.Equal(t, int64(1), tt.CounterValue(t, "taskd.compression.errors_total"))
}

func TestService_ShortContentUntouched(t *testing.T) {
	s, err := NewService(nil, nil, nil)
	require.NoError(t, err)

	out, err := s.Summarize(context.Background(), "short", 100)
	require.NoError(t, err)
	assert.Equal(t, "short", out)

	_, err = s.Summarize(context.Background(), "short", 0)
	assert.Error(t, err)
}

func TestExtract(t *testing.T) {
	out := Extract(article, 140)
	assert.LessOrEqual(t, len([]rune(out)), 140)
	lines := strings.Split(out, "\n")
	require.NotEmpty(t, lines)
	assert.Equal(t, "# Findings", lines[0], "headings win and order is preserved")

	tiny := Extract("One very long sentence without any punctuation at all", 10)
	assert.Equal(t, "One very l", tiny)
}
