package services

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/config"
	"github.com/fyrsmithlabs/taskd/internal/llm"
)

const offlinePlan = `## Task Analysis
Answer the task directly.

## Execution Steps (JSON Format)
[
  {"step": 1, "step_name": "#E1", "description": "Note the current date", "tool": "Time", "tool_input": "today", "step_type": "OTHER"},
  {"step": 2, "step_name": "#E2", "description": "Draft an answer", "tool": "LLM", "tool_input": "Draft an answer as of #E1", "step_type": "NEEDS_GENERATION"}
]`

func newGenerator(cfg config.LLMConfig, logger *zap.Logger) (llm.Generator, error) {
	switch cfg.Provider {
	case "mock":
		return newOfflineGenerator(), nil
	case "openai":
		model, err := llm.NewOpenAIModel(cfg)
		if err != nil {
			return nil, err
		}
		return llm.NewClient(model, llm.ClientConfigFrom(cfg), logger), nil
	}
	return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
}

// newOfflineGenerator answers every prompt without a model: a fixed two
// step plan, then canned text.
func newOfflineGenerator() *llm.Mock {
	m := llm.NewMock().On("Please break down the task:", offlinePlan)
	m.Fallback = "This answer was produced by the offline mock provider."
	return m
}
