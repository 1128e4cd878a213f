package taskcontext

import (
	"strings"
	"time"
)

// TodoItem is one checklist line.
type TodoItem struct {
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// ProgressEntry is one line of the progress section.
type ProgressEntry struct {
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// TodoList is the parsed to-do artifact.
type TodoList struct {
	Items    []TodoItem      `json:"items"`
	Progress []ProgressEntry `json:"progress"`
}

// Pending returns the unchecked items.
func (l TodoList) Pending() []TodoItem {
	var out []TodoItem
	for _, it := range l.Items {
		if !it.Done {
			out = append(out, it)
		}
	}
	return out
}

// Message is one history entry.
type Message struct {
	Time    time.Time `json:"time"`
	Role    string    `json:"role"`
	Content string    `json:"content"`
}

// Resource is one resource block.
type Resource struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Description string    `json:"description"`
	AddedAt     time.Time `json:"added_at"`
}

// ParseTodo reads the checklist and the progress section.
func ParseTodo(content string) TodoList {
	var list TodoList
	inProgress := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "## "):
			inProgress = trimmed == progressHeader
		case strings.HasPrefix(trimmed, "- [ ]"):
			list.Items = append(list.Items, TodoItem{Text: strings.TrimSpace(trimmed[5:])})
		case strings.HasPrefix(trimmed, "- [x]"), strings.HasPrefix(trimmed, "- [X]"):
			list.Items = append(list.Items, TodoItem{Text: strings.TrimSpace(trimmed[5:]), Done: true})
		case inProgress && strings.HasPrefix(trimmed, "- "):
			if ts, text, ok := splitStamped(trimmed[2:]); ok {
				list.Progress = append(list.Progress, ProgressEntry{Time: ts, Text: text})
			}
		}
	}
	return list
}

// ParseHistory reads the "### {timestamp}: {role}" entries of the
// conversation section. A history without that section, such as a
// compressed one, is read whole.
func ParseHistory(content string) []Message {
	if start := sectionStart(content, conversationHeader); start >= 0 {
		content = content[start:]
		if next := strings.Index(content, "\n## "); next >= 0 {
			content = content[:next]
		}
	}
	var (
		out     []Message
		current *Message
		body    []string
	)
	flush := func() {
		if current != nil {
			current.Content = strings.TrimSpace(strings.Join(body, "\n"))
			out = append(out, *current)
		}
		current, body = nil, nil
	}
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "### ") {
			flush()
			if ts, role, ok := splitStamped(trimmed[4:]); ok {
				current = &Message{Time: ts, Role: role}
			}
			continue
		}
		if strings.HasPrefix(trimmed, "## ") || strings.HasPrefix(trimmed, "# ") {
			flush()
			continue
		}
		if current != nil {
			body = append(body, line)
		}
	}
	flush()
	return out
}

// ParseResources reads every "## {title}" block that carries a URL line.
func ParseResources(content string) []Resource {
	var (
		out     []Resource
		current *Resource
	)
	flush := func() {
		if current != nil && current.URL != "" {
			out = append(out, *current)
		}
		current = nil
	}
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "## "):
			flush()
			current = &Resource{Title: strings.TrimSpace(trimmed[3:])}
		case current == nil:
		case strings.HasPrefix(trimmed, "- URL:"):
			current.URL = strings.TrimSpace(strings.TrimPrefix(trimmed, "- URL:"))
		case strings.HasPrefix(trimmed, "- 描述(description):"):
			current.Description = strings.TrimSpace(strings.TrimPrefix(trimmed, "- 描述(description):"))
		case strings.HasPrefix(trimmed, "- added_at:"):
			if ts, err := time.Parse(TimeLayout, strings.TrimSpace(strings.TrimPrefix(trimmed, "- added_at:"))); err == nil {
				current.AddedAt = ts
			}
		}
	}
	flush()
	return out
}

// splitStamped splits "{timestamp}: {rest}". RFC3339 stamps contain colons,
// so the separator is the first ": " after a parseable prefix.
func splitStamped(s string) (time.Time, string, bool) {
	idx := strings.Index(s, ": ")
	if idx < 0 {
		return time.Time{}, "", false
	}
	ts, err := time.Parse(TimeLayout, s[:idx])
	if err != nil {
		return time.Time{}, "", false
	}
	return ts, strings.TrimSpace(s[idx+2:]), true
}
