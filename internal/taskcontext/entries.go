package taskcontext

import (
	"context"
	"strings"
)

// AddChatMessage appends a message to the conversation section of the
// history artifact. Histories without that section get it at the end.
func (s *Store) AddChatMessage(ctx context.Context, agentID, taskID, role, content string) error {
	return s.mutate(ctx, agentID, taskID, FileHistory, func(old string) (string, error) {
		return appendToSection(old, conversationHeader, historyBlock(s.now(), role, content)), nil
	})
}

// appendToSection inserts block at the end of the "## " section named by
// header, before the next section starts.
func appendToSection(doc, header, block string) string {
	start := sectionStart(doc, header)
	if start < 0 {
		return doc + block
	}
	end := len(doc)
	if next := strings.Index(doc[start:], "\n## "); next >= 0 {
		end = start + next + 1
	}
	if end == len(doc) {
		return doc + block
	}
	return strings.TrimRight(doc[:end], "\n") + block + "\n" + doc[end:]
}

// sectionStart returns the offset just past the header line, or -1.
func sectionStart(doc, header string) int {
	offset := 0
	for _, line := range strings.SplitAfter(doc, "\n") {
		offset += len(line)
		if strings.TrimSpace(line) == header {
			return offset
		}
	}
	return -1
}

// AddResourceLink appends a resource block.
func (s *Store) AddResourceLink(ctx context.Context, agentID, taskID, title, url, description string) error {
	return s.mutate(ctx, agentID, taskID, FileResource, func(old string) (string, error) {
		return old + resourceBlock(s.now(), title, url, description), nil
	})
}

// AddSummaryEntry appends a section to the summary artifact.
func (s *Store) AddSummaryEntry(ctx context.Context, agentID, taskID, section, content string) error {
	return s.mutate(ctx, agentID, taskID, FileSummary, func(old string) (string, error) {
		return old + summaryBlock(s.now(), section, content), nil
	})
}

// AddScratchpadEntry appends a note to the scratchpad.
func (s *Store) AddScratchpadEntry(ctx context.Context, agentID, taskID, content string) error {
	return s.mutate(ctx, agentID, taskID, FileScratchpad, func(old string) (string, error) {
		return old + scratchpadBlock(s.now(), content), nil
	})
}

// UpdateTodoProgress checks off every open item matching one of updates and
// records each update in the progress section.
func (s *Store) UpdateTodoProgress(ctx context.Context, agentID, taskID string, updates []string) error {
	return s.mutate(ctx, agentID, taskID, FileTodo, func(old string) (string, error) {
		content := MarkTodo(old, updates)
		for _, u := range updates {
			content += progressLine(s.now(), u)
		}
		return content, nil
	})
}

// AppendTodoRecord adds one entry to the progress section without touching
// the checklist.
func (s *Store) AppendTodoRecord(ctx context.Context, agentID, taskID, record string) error {
	return s.mutate(ctx, agentID, taskID, FileTodo, func(old string) (string, error) {
		return old + progressLine(s.now(), record), nil
	})
}

// RecordStepProgress checks off items matching match and appends record in
// a single write.
func (s *Store) RecordStepProgress(ctx context.Context, agentID, taskID, match, record string) error {
	return s.mutate(ctx, agentID, taskID, FileTodo, func(old string) (string, error) {
		return MarkTodo(old, []string{match}) + progressLine(s.now(), record), nil
	})
}

// MarkTodo flips "- [ ]" lines to "- [x]" when an update matches them: the
// item and the update contain one another (case-insensitive), or a word of
// the update longer than three characters occurs in the item.
func MarkTodo(content string, updates []string) string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "- [ ]") {
			continue
		}
		item := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(trimmed, "- [ ]")))
		if item == "" {
			continue
		}
		for _, u := range updates {
			if todoMatches(item, strings.ToLower(strings.TrimSpace(u))) {
				lines[i] = strings.Replace(line, "- [ ]", "- [x]", 1)
				break
			}
		}
	}
	return strings.Join(lines, "\n")
}

func todoMatches(item, update string) bool {
	if update == "" {
		return false
	}
	if strings.Contains(item, update) || strings.Contains(update, item) {
		return true
	}
	for _, w := range strings.Fields(update) {
		if len([]rune(w)) > 3 && strings.Contains(item, w) {
			return true
		}
	}
	return false
}
