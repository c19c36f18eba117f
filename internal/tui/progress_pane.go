package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/tascade/internal/scheduler"
	"github.com/aristath/tascade/internal/task"
)

// ProgressPaneModel shows status counts, a progress bar and what to work on next.
type ProgressPaneModel struct {
	total      int
	done       int
	inProgress int
	failed     int
	blocked    int
	pending    int
	next       *scheduler.Candidate
	queue      []scheduler.Candidate
	queueLimit int
	width      int
	height     int
	focused    bool
}

// NewProgressPaneModel creates a new progress pane model.
func NewProgressPaneModel(queueLimit int) ProgressPaneModel {
	if queueLimit <= 0 {
		queueLimit = scheduler.DefaultQueueLimit
	}
	return ProgressPaneModel{queueLimit: queueLimit}
}

// SetTasks recomputes counts and the upcoming queue from tasks.
func (m *ProgressPaneModel) SetTasks(tasks []*task.Task) {
	byID := make(map[string]*task.Task, len(tasks))
	m.total, m.done, m.inProgress, m.failed, m.blocked, m.pending = len(tasks), 0, 0, 0, 0, 0
	for _, t := range tasks {
		byID[t.ID] = t
		switch t.Status {
		case task.StatusDone:
			m.done++
		case task.StatusInProgress:
			m.inProgress++
		case task.StatusFailed:
			m.failed++
		case task.StatusBlocked:
			m.blocked++
		case task.StatusPending:
			m.pending++
		}
	}
	m.next = scheduler.FindNextTaskWithSubtasks(byID)
	m.queue = scheduler.TaskQueue(byID, m.queueLimit)
}

// View renders the progress pane.
func (m ProgressPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := StyleTitle.Render("Progress")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("Total:       %d\n", m.total))
	b.WriteString(fmt.Sprintf("Done:        %s\n", StyleStatusComplete.Render(fmt.Sprintf("%d", m.done))))
	b.WriteString(fmt.Sprintf("In progress: %s\n", StyleStatusRunning.Render(fmt.Sprintf("%d", m.inProgress))))
	b.WriteString(fmt.Sprintf("Blocked:     %s\n", StyleStatusBlocked.Render(fmt.Sprintf("%d", m.blocked))))
	b.WriteString(fmt.Sprintf("Failed:      %s\n", StyleStatusFailed.Render(fmt.Sprintf("%d", m.failed))))
	b.WriteString(fmt.Sprintf("Pending:     %s\n", StyleStatusPending.Render(fmt.Sprintf("%d", m.pending))))
	b.WriteString("\n")

	if m.total > 0 {
		barWidth := min(m.width-12, 40)
		doneWidth := (m.done * barWidth) / m.total
		failedWidth := (m.failed * barWidth) / m.total
		runningWidth := (m.inProgress * barWidth) / m.total
		restWidth := barWidth - doneWidth - failedWidth - runningWidth

		bar := StyleStatusComplete.Render(strings.Repeat("=", max(0, doneWidth)))
		bar += StyleStatusFailed.Render(strings.Repeat("!", max(0, failedWidth)))
		bar += StyleStatusRunning.Render(strings.Repeat("-", max(0, runningWidth)))
		bar += StyleStatusPending.Render(strings.Repeat(".", max(0, restWidth)))

		b.WriteString(fmt.Sprintf("[%s]  %d/%d\n\n", bar, m.done, m.total))
	}

	if m.next == nil {
		b.WriteString("Next: nothing eligible\n")
	} else {
		b.WriteString(fmt.Sprintf("Next: %s %s\n", m.next.ID, m.next.Title))
	}
	if len(m.queue) > 1 {
		b.WriteString("Queue:\n")
		for i, c := range m.queue {
			b.WriteString(fmt.Sprintf("  %d. %s %s (%s)\n", i+1, c.ID, c.Title, c.Priority))
		}
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

// SetSize updates the pane dimensions.
func (m *ProgressPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *ProgressPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
