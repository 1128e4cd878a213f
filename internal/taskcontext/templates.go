package taskcontext

import (
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the timestamp format written into artifacts.
const TimeLayout = time.RFC3339

// DefaultTodoItems seeds the checklist when a task is created with nil items.
var DefaultTodoItems = []string{
	"Analyze task requirements",
	"Make an execution plan",
	"Collect necessary information",
	"Execute the task",
	"Summarize results",
}

const (
	progressHeader     = "## Progress record"
	conversationHeader = "## Conversation"
)

func stamp(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func initialContent(ft FileType, tc *TaskContext, todo []string) string {
	var b strings.Builder
	created := stamp(tc.CreatedAt)

	switch ft {
	case FileTodo:
		b.WriteString("# Task To-Do\n\n")
		b.WriteString("## Task info\n")
		fmt.Fprintf(&b, "- Task ID: %s\n- Title: %s\n- Description: %s\n- Status: %s\n- Created at: %s\n\n",
			tc.TaskID, tc.Title, tc.Description, tc.Status, created)
		fmt.Fprintf(&b, "## Goal\n%s\n\n", tc.Description)
		b.WriteString("## To-do\n")
		if todo == nil {
			todo = DefaultTodoItems
		}
		for _, item := range todo {
			fmt.Fprintf(&b, "- [ ] %s\n", item)
		}
		fmt.Fprintf(&b, "\n%s\n- %s: task created", progressHeader, created)

	case FileHistory:
		b.WriteString("# Task History\n\n")
		fmt.Fprintf(&b, "## Task info\n- Task ID: %s\n- Title: %s\n\n", tc.TaskID, tc.Title)
		fmt.Fprintf(&b, "%s\n### %s: system\nTask created, starting execution.\n\n", conversationHeader, created)
		fmt.Fprintf(&b, "## Decisions\n### %s: initialized\n- Created task context\n- Initialized artifact files\n", created)

	case FileResource:
		b.WriteString("# External Resources\n\n")
		fmt.Fprintf(&b, "## Task info\n- Task ID: %s\n- Title: %s\n\n", tc.TaskID, tc.Title)
		b.WriteString("## Resource links\n<!-- related external links -->\n\n")
		b.WriteString("## Document references\n<!-- document references and abstracts -->\n")

	case FileSummary:
		b.WriteString("# Task Summary\n\n")
		fmt.Fprintf(&b, "## Task info\n- Task ID: %s\n- Title: %s\n- Description: %s\n\n", tc.TaskID, tc.Title, tc.Description)
		b.WriteString("## Execution summary\n<!-- key information and results -->\n\n")
		b.WriteString("## Key points\n<!-- findings and conclusions -->\n")

	case FileScratchpad:
		b.WriteString("# Scratchpad\n\n")
		fmt.Fprintf(&b, "## Task info\n- Task ID: %s\n- Title: %s\n\n", tc.TaskID, tc.Title)
		b.WriteString("## Reasoning\n<!-- reasoning and intermediate thoughts -->\n\n")
		b.WriteString("## Ideas to verify\n<!-- hypotheses to check -->\n")
	}
	return b.String()
}

func historyBlock(ts time.Time, role, content string) string {
	return fmt.Sprintf("\n\n### %s: %s\n%s\n", stamp(ts), role, content)
}

func resourceBlock(ts time.Time, title, url, desc string) string {
	return fmt.Sprintf("\n\n## %s\n- URL: %s\n- 描述(description): %s\n- added_at: %s\n", title, url, desc, stamp(ts))
}

func summaryBlock(ts time.Time, section, content string) string {
	return fmt.Sprintf("\n\n## %s\n%s\n\n---\nupdated_at: %s\n", section, content, stamp(ts))
}

func scratchpadBlock(ts time.Time, content string) string {
	return fmt.Sprintf("\n\n### %s: note\n%s\n", stamp(ts), content)
}

func progressLine(ts time.Time, text string) string {
	return fmt.Sprintf("\n- %s: %s", stamp(ts), text)
}
