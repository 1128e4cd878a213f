package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/taskd/internal/llm"
	"github.com/fyrsmithlabs/taskd/internal/prompts"
)

type fakeSearcher struct {
	queries []string
	reply   string
	err     error
}

func (f *fakeSearcher) Call(_ context.Context, q string) (string, error) {
	f.queries = append(f.queries, q)
	return f.reply, f.err
}

func TestSearchTool(t *testing.T) {
	s := &fakeSearcher{reply: "Title: AI\nDescription: news\nURL: https://example.com/ai\n\n"}
	tool := NewSearchTool(s)
	ctx := context.Background()

	out, err := tool.Invoke(ctx, "  AI trends ")
	require.NoError(t, err)
	assert.Contains(t, out, "example.com")
	assert.Equal(t, []string{"AI trends"}, s.queries)

	_, err = tool.Invoke(ctx, " ")
	assert.Error(t, err)

	s.err = errors.New("rate limited")
	_, err = tool.Invoke(ctx, "x")
	assert.ErrorContains(t, err, "rate limited")
}

func TestExtractLinks(t *testing.T) {
	text := "Title: Go\nDescription: The Go site\nURL: https://go.dev\n\n" +
		"Title: Dup\nURL: https://go.dev\n\n" +
		"See also https://pkg.go.dev/fmt, and (https://example.org/x)."
	links := ExtractLinks(text)
	require.Len(t, links, 3)
	assert.Equal(t, Link{Title: "Go", URL: "https://go.dev", Description: "The Go site"}, links[0])
	assert.Equal(t, "https://pkg.go.dev/fmt", links[1].URL)
	assert.Equal(t, links[1].URL, links[1].Title)
	assert.Equal(t, "https://example.org/x", links[2].URL)

	assert.Empty(t, ExtractLinks("no links here"))
}

func TestTimeTool(t *testing.T) {
	now := time.Date(2026, 2, 10, 15, 4, 5, 0, time.UTC)
	tests := []struct {
		term string
		want string
	}{
		{"this year", "2026"},
		{"今年", "2026"},
		{"this month", "2026-02"},
		{"本月", "2026-02"},
		{"latest", "2026"},
		{"最新", "2026"},
		{"recent", "2025-2026"},
		{"最近", "2025-2026"},
		{"whenever", "2026"},
		{"", "2026"},
	}
	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(now, tt.term).SearchContext)
		})
	}

	out, err := NewTimeTool(func() time.Time { return now }).Invoke(context.Background(), "latest")
	require.NoError(t, err)
	var info TimeInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, TimeInfo{
		CurrentDate:   "2026-02-10",
		CurrentYear:   2026,
		CurrentMonth:  2,
		CurrentDay:    10,
		RelativeTerm:  "latest",
		ISOFormat:     "2026-02-10T15:04:05Z",
		SearchContext: "2026",
	}, info)
}

func TestPromptTool(t *testing.T) {
	gen := llm.NewMock().On("Summarize: AI", "short")
	tool := NewPromptTool(gen, "", nil)

	out, err := tool.Invoke(context.Background(), "Summarize: AI")
	require.NoError(t, err)
	assert.Equal(t, "short", out)

	_, err = tool.Invoke(context.Background(), "")
	assert.Error(t, err)

	sum := NewSummaryTool(gen, prompts.Default(), 300)
	_, _ = sum.Invoke(context.Background(), "long text")
	calls := gen.Calls()
	assert.Contains(t, calls[len(calls)-1], "**Maximum Length:** 300")
	assert.Contains(t, calls[len(calls)-1], "long text")
}

func TestParseOptions(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"string array", `["A", "B"]`, []string{"A", "B"}},
		{"fenced objects", "```json\n[{\"title\": \"Agents\", \"description\": \"autonomy\"}, {\"title\": \"Chips\"}]\n```", []string{"Agents: autonomy", "Chips"}},
		{"numbered lines", "Here you go:\n1. Alpha\n2) Beta\n3、Gamma", []string{"Alpha", "Beta", "Gamma"}},
		{"outline", `[{"title": "Go", "introduction": "why", "sections": [{"title": "Syntax", "description": "basics"}], "conclusion": "end"}]`, []string{"Go\nIntroduction: why\n1. Syntax - basics\nConclusion: end"}},
		{"nothing", "just prose", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseOptions(tt.text))
		})
	}
}

func TestApplyChoice(t *testing.T) {
	req := &ConfirmationRequest{Tool: Topic, Options: []string{"Agents", "Chips", "Robots"}}

	tests := []struct {
		choice string
		want   string
		err    bool
	}{
		{"2", "Chips", false},
		{"I pick 3 please", "Robots", false},
		{"Option 1, then 2", "Agents", false},
		{"Quantum computing", "Quantum computing", false},
		{"4", "", true},
		{"0", "", true},
		{"   ", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.choice, func(t *testing.T) {
			got, err := ApplyChoice(req, tt.choice)
			if tt.err {
				assert.ErrorIs(t, err, ErrInvalidChoice)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Contains(t, req.Present(), "\n3. Robots")
}

func TestSelectionTool_SingleOrNoOptions(t *testing.T) {
	ctx := context.Background()

	one := NewSelectionTool(Outline, llm.NewMock().Enqueue(`["Only outline"]`), "{input}", 3)
	out, err := one.Invoke(ctx, "Go")
	require.NoError(t, err)
	assert.Equal(t, "Only outline", out)

	none := NewSelectionTool(Topic, llm.NewMock().Enqueue("free prose"), "{input}", 3)
	out, err = none.Invoke(ctx, "Go")
	require.NoError(t, err)
	assert.Equal(t, "free prose", out)
}
