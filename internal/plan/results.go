package plan

import (
	"encoding/json"
	"fmt"
)

// Results maps step names to their results in completion order.
// Entries are never removed; setting an existing name replaces its value in
// place.
type Results struct {
	keys   []string
	values map[string]string
}

type resultEntry struct {
	StepName string `json:"step_name"`
	Result   string `json:"result"`
}

// NewResults returns an empty Results.
func NewResults() *Results {
	return &Results{values: make(map[string]string)}
}

// Set stores value under name.
func (r *Results) Set(name, value string) {
	if r.values == nil {
		r.values = make(map[string]string)
	}
	if _, ok := r.values[name]; !ok {
		r.keys = append(r.keys, name)
	}
	r.values[name] = value
}

// Get returns the value stored under name.
func (r *Results) Get(name string) (string, bool) {
	if r == nil {
		return "", false
	}
	v, ok := r.values[name]
	return v, ok
}

// Len returns the number of distinct names.
func (r *Results) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// Keys returns the names in insertion order.
func (r *Results) Keys() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Each calls fn for every entry in insertion order.
func (r *Results) Each(fn func(name, value string)) {
	if r == nil {
		return
	}
	for _, k := range r.keys {
		fn(k, r.values[k])
	}
}

// Clone returns an independent copy.
func (r *Results) Clone() *Results {
	c := NewResults()
	r.Each(c.Set)
	return c
}

func (r *Results) MarshalJSON() ([]byte, error) {
	entries := make([]resultEntry, 0, r.Len())
	r.Each(func(name, value string) {
		entries = append(entries, resultEntry{StepName: name, Result: value})
	})
	return json.Marshal(entries)
}

func (r *Results) UnmarshalJSON(data []byte) error {
	var entries []resultEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("decoding results: %w", err)
	}
	r.keys = nil
	r.values = make(map[string]string, len(entries))
	for _, e := range entries {
		r.Set(e.StepName, e.Result)
	}
	return nil
}
