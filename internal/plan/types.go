// Package plan defines the step model, plan parsing and the planner that
// turns a free-text task into an ordered list of tool-bound steps.
package plan

import "time"

// StepType classifies a step. It is advisory and never changes dispatch.
type StepType string

const (
	StepNeedsSearch     StepType = "NEEDS_SEARCH"
	StepNeedsGeneration StepType = "NEEDS_GENERATION"
	StepNeedsAnalysis   StepType = "NEEDS_ANALYSIS"
	StepNeedsWriting    StepType = "NEEDS_WRITING"
	StepOther           StepType = "OTHER"
)

// Known reports whether t is one of the defined step types.
func (t StepType) Known() bool {
	switch t {
	case StepNeedsSearch, StepNeedsGeneration, StepNeedsAnalysis, StepNeedsWriting, StepOther:
		return true
	}
	return false
}

// Step is one unit of a plan. Name is the substitution and results key.
type Step struct {
	Number      int      `json:"step"`
	Name        string   `json:"step_name"`
	Description string   `json:"description"`
	Tool        string   `json:"tool"`
	Input       string   `json:"tool_input"`
	Type        StepType `json:"step_type"`
}

// StepRecord captures one executed step for the final report.
type StepRecord struct {
	Name    string        `json:"step_name"`
	Tool    string        `json:"tool"`
	Elapsed time.Duration `json:"elapsed"`
	Failed  bool          `json:"failed"`
	Preview string        `json:"preview"`
}

// Confirmation is a step suspended until a person picks an option.
type Confirmation struct {
	Token     string    `json:"token"`
	StepName  string    `json:"step_name"`
	Tool      string    `json:"tool"`
	Prompt    string    `json:"prompt"`
	Options   []string  `json:"options"`
	CreatedAt time.Time `json:"created_at"`
}

// RunState is the working state of one task run. It is persisted while a
// run is suspended.
type RunState struct {
	AgentID string        `json:"agent_id"`
	TaskID  string        `json:"task_id"`
	Task    string        `json:"task"`
	Steps   []Step        `json:"steps"`
	Results *Results      `json:"results"`
	Result  string        `json:"result,omitempty"`
	Records []StepRecord  `json:"records,omitempty"`
	Pending *Confirmation `json:"pending,omitempty"`
}

// NewRunState returns an empty state for the given plan.
func NewRunState(agentID, taskID, task string, steps []Step) *RunState {
	return &RunState{
		AgentID: agentID,
		TaskID:  taskID,
		Task:    task,
		Steps:   steps,
		Results: NewResults(),
	}
}

// Done reports whether every step has a result.
func (s *RunState) Done() bool {
	return s.Results.Len() >= len(s.Steps) || len(s.Records) >= len(s.Steps)
}
