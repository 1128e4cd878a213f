package plan

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// ErrPlanningParse is returned when the planner output holds no usable
// step array.
var ErrPlanningParse = errors.New("no valid step array in planner output")

type stepWire struct {
	Step        json.RawMessage `json:"step"`
	StepName    string          `json:"step_name"`
	Description string          `json:"description"`
	Tool        string          `json:"tool"`
	ToolInput   json.RawMessage `json:"tool_input"`
	StepType    string          `json:"step_type"`
}

// Parse extracts the first JSON array in text whose elements all decode to
// steps with a name and a tool. Steps are renumbered by position.
func Parse(text string) ([]Step, error) {
	for i := 0; i < len(text); i++ {
		if text[i] != '[' {
			continue
		}
		if steps, ok := decodeCandidate(text[i:]); ok {
			return steps, nil
		}
	}
	return nil, ErrPlanningParse
}

func decodeCandidate(s string) ([]Step, bool) {
	var wire []stepWire
	if err := json.NewDecoder(strings.NewReader(s)).Decode(&wire); err != nil {
		return nil, false
	}
	if len(wire) == 0 {
		return nil, false
	}

	steps := make([]Step, 0, len(wire))
	for i, w := range wire {
		name := strings.TrimSpace(w.StepName)
		tool := strings.TrimSpace(w.Tool)
		if name == "" || tool == "" {
			return nil, false
		}
		if !validStepNumber(w.Step) {
			return nil, false
		}
		steps = append(steps, Step{
			Number:      i + 1,
			Name:        name,
			Description: strings.TrimSpace(w.Description),
			Tool:        tool,
			Input:       inputText(w.ToolInput),
			Type:        StepType(strings.ToUpper(strings.TrimSpace(w.StepType))),
		})
	}
	return steps, true
}

// validStepNumber accepts a missing value, a JSON number or a numeric string.
func validStepNumber(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false
	}
	_, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return err == nil
}

// inputText returns a string tool_input as-is and any other JSON value in
// its compact encoding.
func inputText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
