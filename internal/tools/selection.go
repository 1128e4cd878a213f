package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/taskd/internal/llm"
	"github.com/fyrsmithlabs/taskd/internal/prompts"
)

// SelectionTool generates candidate options and suspends the step until a
// person picks one. It backs Topic and Outline.
type SelectionTool struct {
	id       ID
	gen      llm.Generator
	template string
	count    int
}

// NewSelectionTool creates a SelectionTool asking for count options.
func NewSelectionTool(id ID, gen llm.Generator, template string, count int) *SelectionTool {
	if count <= 0 {
		count = 3
	}
	return &SelectionTool{id: id, gen: gen, template: template, count: count}
}

func (t *SelectionTool) Invoke(ctx context.Context, input string) (string, error) {
	out, err := t.gen.Generate(ctx, prompts.Render(t.template, map[string]string{
		"input": input,
		"count": strconv.Itoa(t.count),
	}))
	if err != nil {
		return "", err
	}
	options := ParseOptions(out)
	if len(options) == 0 {
		// Nothing to choose from; the raw output is the result.
		return out, nil
	}
	if len(options) == 1 {
		return options[0], nil
	}
	return "", &ConfirmationRequest{
		Tool:    t.id,
		Prompt:  fmt.Sprintf("Choose a %s for: %s", strings.ToLower(string(t.id)), strings.TrimSpace(input)),
		Options: options,
	}
}

var numberPattern = regexp.MustCompile(`\d+`)

// Confirm picks the option named by the first number in choice (1-based).
// A reply without a number is taken verbatim.
func (t *SelectionTool) Confirm(_ context.Context, req *ConfirmationRequest, choice string) (string, error) {
	return ApplyChoice(req, choice)
}

// ApplyChoice resolves choice against req's options.
func ApplyChoice(req *ConfirmationRequest, choice string) (string, error) {
	choice = strings.TrimSpace(choice)
	if choice == "" {
		return "", fmt.Errorf("%w: empty reply", ErrInvalidChoice)
	}
	num := numberPattern.FindString(choice)
	if num == "" {
		return choice, nil
	}
	n, err := strconv.Atoi(num)
	if err != nil || n < 1 || n > len(req.Options) {
		return "", fmt.Errorf("%w: pick a number between 1 and %d", ErrInvalidChoice, len(req.Options))
	}
	return req.Options[n-1], nil
}

var numberedLine = regexp.MustCompile(`^\s*(\d+)\s*[.)、:]\s*(.+)$`)

// ParseOptions reads options from a JSON array (optionally fenced) or from
// numbered lines.
func ParseOptions(text string) []string {
	body := stripFence(text)
	for i := 0; i < len(body); i++ {
		if body[i] != '[' {
			continue
		}
		var raw []json.RawMessage
		if err := json.NewDecoder(strings.NewReader(body[i:])).Decode(&raw); err != nil || len(raw) == 0 {
			continue
		}
		opts := make([]string, 0, len(raw))
		for _, r := range raw {
			if o := renderOption(r); o != "" {
				opts = append(opts, o)
			}
		}
		if len(opts) > 0 {
			return opts
		}
	}

	var opts []string
	for _, line := range strings.Split(body, "\n") {
		if m := numberedLine.FindStringSubmatch(line); m != nil {
			opts = append(opts, strings.TrimSpace(m[2]))
		}
	}
	return opts
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

func renderOption(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return strings.TrimSpace(string(raw))
	}
	var b strings.Builder
	title, _ := obj["title"].(string)
	b.WriteString(title)
	if d, ok := obj["description"].(string); ok && d != "" {
		if b.Len() > 0 {
			b.WriteString(": ")
		}
		b.WriteString(d)
	}
	if intro, ok := obj["introduction"].(string); ok && intro != "" {
		fmt.Fprintf(&b, "\nIntroduction: %s", intro)
	}
	if sections, ok := obj["sections"].([]any); ok {
		for i, sec := range sections {
			switch v := sec.(type) {
			case string:
				fmt.Fprintf(&b, "\n%d. %s", i+1, v)
			case map[string]any:
				st, _ := v["title"].(string)
				sd, _ := v["description"].(string)
				fmt.Fprintf(&b, "\n%d. %s", i+1, st)
				if sd != "" {
					fmt.Fprintf(&b, " - %s", sd)
				}
			}
		}
	}
	if c, ok := obj["conclusion"].(string); ok && c != "" {
		fmt.Fprintf(&b, "\nConclusion: %s", c)
	}
	if b.Len() == 0 {
		return strings.TrimSpace(string(raw))
	}
	return b.String()
}
