package tools

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/taskd/internal/llm"
	"github.com/fyrsmithlabs/taskd/internal/prompts"
)

// PromptTool renders a template around the step input and asks the
// generator. It backs the LLM, Summary and Writer tools.
type PromptTool struct {
	gen      llm.Generator
	template string
	vars     map[string]string
}

// NewPromptTool creates a PromptTool. vars are extra placeholder values;
// {input} is always the step input.
func NewPromptTool(gen llm.Generator, template string, vars map[string]string) *PromptTool {
	if template == "" {
		template = "{input}"
	}
	return &PromptTool{gen: gen, template: template, vars: vars}
}

// NewSummaryTool creates the Summary tool capped at maxLength characters.
func NewSummaryTool(gen llm.Generator, set *prompts.Set, maxLength int) *PromptTool {
	return NewPromptTool(gen, set.Tools.Summary, map[string]string{"max_length": strconv.Itoa(maxLength)})
}

func (t *PromptTool) Invoke(ctx context.Context, input string) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "", errors.New("empty input")
	}
	vars := make(map[string]string, len(t.vars)+1)
	for k, v := range t.vars {
		vars[k] = v
	}
	vars["input"] = input
	return t.gen.Generate(ctx, prompts.Render(t.template, vars))
}
