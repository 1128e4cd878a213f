package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/taskd/internal/orchestrator"
	"github.com/fyrsmithlabs/taskd/internal/taskcontext"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("82"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

func statusStyle(status string) lipgloss.Style {
	switch status {
	case string(taskcontext.StatusCompleted):
		return okStyle
	case string(taskcontext.StatusFailed), string(orchestrator.StatusEmptyPlan):
		return errStyle
	case string(taskcontext.StatusAwaitingConfirmation), string(taskcontext.StatusInProgress):
		return warnStyle
	}
	return labelStyle
}

func renderOutcome(w io.Writer, out *orchestrator.Outcome) {
	fmt.Fprintf(w, "%s %s  %s\n",
		titleStyle.Render("task"), out.TaskID,
		statusStyle(string(out.Status)).Render(string(out.Status)))

	for _, rec := range out.Steps {
		mark := okStyle.Render("ok")
		if rec.Failed {
			mark = errStyle.Render("failed")
		}
		fmt.Fprintf(w, "  %s %s %s %s\n",
			rec.Name,
			labelStyle.Render(rec.Tool),
			mark,
			labelStyle.Render(rec.Elapsed.Round(time.Millisecond).String()))
	}

	switch out.Status {
	case orchestrator.StatusAwaiting:
		var b strings.Builder
		b.WriteString(out.Pending.Prompt)
		for i, opt := range out.Pending.Options {
			fmt.Fprintf(&b, "\n%d. %s", i+1, opt)
		}
		fmt.Fprintln(w, boxStyle.Render(b.String()))
		fmt.Fprintf(w, "answer with: taskctl resume --agent %s %s %s <choice>\n", out.AgentID, out.TaskID, out.Pending.Token)
	case orchestrator.StatusCompleted:
		fmt.Fprintln(w, boxStyle.Render(out.Answer))
	default:
		if out.Error != "" {
			fmt.Fprintln(w, errStyle.Render(out.Error))
		}
	}
}

func renderTaskList(w io.Writer, list []taskcontext.TaskInfo) {
	if len(list) == 0 {
		fmt.Fprintln(w, labelStyle.Render("no tasks"))
		return
	}
	for _, t := range list {
		fmt.Fprintf(w, "%s  %-22s %s  %s\n",
			t.TaskID,
			statusStyle(string(t.Status)).Render(string(t.Status)),
			labelStyle.Render(t.UpdatedAt.Local().Format(time.DateTime)),
			t.Title)
	}
}

func renderSummary(w io.Writer, sum *taskcontext.Summary) {
	fmt.Fprintf(w, "%s %s\n", titleStyle.Render(sum.Title), statusStyle(string(sum.Status)).Render(string(sum.Status)))
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("id:     "), sum.TaskID)
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("created:"), sum.CreatedAt.Local().Format(time.DateTime))
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("updated:"), sum.UpdatedAt.Local().Format(time.DateTime))
	for _, ft := range taskcontext.FileTypes {
		f, ok := sum.Files[ft]
		if !ok {
			continue
		}
		header := fmt.Sprintf("%s  v%d  %d chars", f.Name, f.Version, f.ContentLength)
		fmt.Fprintln(w, boxStyle.Render(titleStyle.Render(header)+"\n"+strings.TrimSpace(f.ContentPreview)))
	}
}

func renderCompress(w io.Writer, taskID string, res *taskcontext.CompressResult) {
	if len(res.Compressed) == 0 {
		fmt.Fprintf(w, "%s already fits: %d chars\n", taskID, res.SizeBefore)
		return
	}
	fmt.Fprintf(w, "%s compressed: %d -> %d chars\n", taskID, res.SizeBefore, res.SizeAfter)
}

func renderChange(w io.Writer, ch taskcontext.Change) {
	fmt.Fprintf(w, "%s %s %s\n",
		labelStyle.Render(time.Now().Format(time.TimeOnly)),
		warnStyle.Render(string(ch.FileType)),
		ch.Path)
}
