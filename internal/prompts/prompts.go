// Package prompts holds the prompt templates used by the planner, the solver
// and the prompt-driven tools.
//
// Templates use {name} placeholders. A TOML file may override any subset of
// the defaults:
//
//	planning = """..."""
//	[tools]
//	summary = """..."""
package prompts

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// ErrEmptyTemplate is returned by Validate when a required template is blank.
var ErrEmptyTemplate = errors.New("empty prompt template")

// Set is the complete collection of templates.
type Set struct {
	Planning string  `toml:"planning"`
	Solve    string  `toml:"solve"`
	Compress string  `toml:"compress"`
	Tools    ToolSet `toml:"tools"`
}

// ToolSet holds the per-tool templates. Every template receives {input}.
type ToolSet struct {
	LLM     string `toml:"llm"`
	Summary string `toml:"summary"`
	Topic   string `toml:"topic"`
	Outline string `toml:"outline"`
	Writer  string `toml:"writer"`
}

// Default returns the built-in templates.
func Default() *Set {
	return &Set{
		Planning: defaultPlanning,
		Solve:    defaultSolve,
		Compress: defaultCompress,
		Tools: ToolSet{
			LLM:     defaultLLM,
			Summary: defaultSummary,
			Topic:   defaultTopic,
			Outline: defaultOutline,
			Writer:  defaultWriter,
		},
	}
}

// Load returns the defaults overlaid with the templates found in path.
// An empty path returns the defaults.
func Load(path string) (*Set, error) {
	set := Default()
	if path == "" {
		return set, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("prompts file: %w", err)
	}

	// Decoding into a zero value keeps keys absent from the file distinguishable.
	var override Set
	md, err := toml.DecodeFile(path, &override)
	if err != nil {
		return nil, fmt.Errorf("decoding prompts file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("prompts file %s: unknown keys %v", path, undecoded)
	}

	set.merge(&override)
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}

func (s *Set) merge(o *Set) {
	pick := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	pick(&s.Planning, o.Planning)
	pick(&s.Solve, o.Solve)
	pick(&s.Compress, o.Compress)
	pick(&s.Tools.LLM, o.Tools.LLM)
	pick(&s.Tools.Summary, o.Tools.Summary)
	pick(&s.Tools.Topic, o.Tools.Topic)
	pick(&s.Tools.Outline, o.Tools.Outline)
	pick(&s.Tools.Writer, o.Tools.Writer)
}

// Validate checks that the planner and solver templates carry their
// placeholders.
func (s *Set) Validate() error {
	var errs []error
	if strings.TrimSpace(s.Planning) == "" {
		errs = append(errs, fmt.Errorf("planning: %w", ErrEmptyTemplate))
	} else if !strings.Contains(s.Planning, "{task}") {
		errs = append(errs, errors.New("planning: missing {task} placeholder"))
	}
	if strings.TrimSpace(s.Solve) == "" {
		errs = append(errs, fmt.Errorf("solve: %w", ErrEmptyTemplate))
	} else if !strings.Contains(s.Solve, "{plan}") {
		errs = append(errs, errors.New("solve: missing {plan} placeholder"))
	}
	return errors.Join(errs...)
}

// Render replaces every {key} in tmpl with its value. Unknown placeholders
// are left as-is.
func Render(tmpl string, vars map[string]string) string {
	if len(vars) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
