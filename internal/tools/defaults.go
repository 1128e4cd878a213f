package tools

import (
	"time"

	"github.com/fyrsmithlabs/taskd/internal/llm"
	"github.com/fyrsmithlabs/taskd/internal/prompts"
)

// Deps are the collaborators of the built-in tools.
type Deps struct {
	Generator     llm.Generator
	Searcher      Searcher // nil leaves Search unbound
	Prompts       *prompts.Set
	Now           func() time.Time
	SummaryLength int
	Options       int
}

// NewDefaultRegistry binds every built-in tool.
func NewDefaultRegistry(d Deps) *Registry {
	set := d.Prompts
	if set == nil {
		set = prompts.Default()
	}
	if d.SummaryLength <= 0 {
		d.SummaryLength = 500
	}

	r := NewRegistry()
	if d.Searcher != nil {
		r.Register(Search, NewSearchTool(d.Searcher))
	}
	r.Register(Time, NewTimeTool(d.Now))
	r.Register(LLM, NewPromptTool(d.Generator, set.Tools.LLM, nil))
	r.Register(Summary, NewSummaryTool(d.Generator, set, d.SummaryLength))

	writer := NewPromptTool(d.Generator, set.Tools.Writer, nil)
	r.Register(Writer, writer)
	r.Register(ArticleWriter, writer)

	r.Register(Topic, NewSelectionTool(Topic, d.Generator, set.Tools.Topic, d.Options))
	r.Register(Outline, NewSelectionTool(Outline, d.Generator, set.Tools.Outline, d.Options))
	return r
}
