package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/tascade/internal/events"
	"github.com/aristath/tascade/internal/task"
)

const (
	listWidth      = 32
	maxOutputLines = 500
)

// TaskPaneModel shows the task list and, beside it, a scrollable detail
// view of the selected task: fields, blockers, history and live output.
type TaskPaneModel struct {
	tasks       []*task.Task
	output      map[string][]string // taskID -> command output lines
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
	updateTag   int // for debouncing
}

// NewTaskPaneModel creates a new task pane model.
func NewTaskPaneModel() TaskPaneModel {
	return TaskPaneModel{
		output:   make(map[string][]string),
		viewport: viewport.New(0, 0),
	}
}

// tickMsg is used for debouncing viewport updates.
type tickMsg struct {
	tag int
}

// SetTasks replaces the listed tasks, keeping the selection on the same ID.
func (m *TaskPaneModel) SetTasks(tasks []*task.Task) {
	selected := m.SelectedID()
	m.tasks = tasks
	m.selectedIdx = 0
	for i, t := range tasks {
		if t.ID == selected {
			m.selectedIdx = i
			break
		}
	}
	m.updateViewportContent()
}

// SelectedID returns the ID of the selected task, or "".
func (m TaskPaneModel) SelectedID() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.tasks) {
		return m.tasks[m.selectedIdx].ID
	}
	return ""
}

// Update handles messages for the task pane.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.focused {
			break
		}

		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.tasks)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.TaskOutputEvent:
		lines := append(m.output[msg.ID], msg.Line)
		if len(lines) > maxOutputLines {
			lines = lines[len(lines)-maxOutputLines:]
		}
		m.output[msg.ID] = lines
		if m.SelectedID() == msg.ID {
			m.updateTag++
			tag := m.updateTag
			return m, tea.Tick(50*time.Millisecond, func(time.Time) tea.Msg {
				return tickMsg{tag: tag}
			})
		}

	case tickMsg:
		// Only the latest tick redraws.
		if msg.tag == m.updateTag {
			m.updateViewportContent()
		}
	}

	return m, cmd
}

// View renders the task pane.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	viewportWidth := m.width - listWidth - 4

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderList(listWidth),
		lipgloss.NewStyle().
			Width(viewportWidth).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m TaskPaneModel) renderList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render(fmt.Sprintf("Tasks (%d)", len(m.tasks)))
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.tasks) == 0 {
		b.WriteString(StyleStatusPending.Render("No tasks"))
	}
	for i, t := range m.tasks {
		name := t.ID + " " + t.Title
		if len(name) > width-4 {
			name = name[:width-7] + "..."
		}
		line := fmt.Sprintf("%s %s", StatusIcon(t.Status), name)
		if i == m.selectedIdx {
			line = StyleSelected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

// updateViewportContent renders the selected task into the viewport.
func (m *TaskPaneModel) updateViewportContent() {
	if m.selectedIdx < 0 || m.selectedIdx >= len(m.tasks) {
		m.viewport.SetContent("No task selected")
		return
	}
	m.viewport.SetContent(renderDetail(m.tasks[m.selectedIdx], m.output[m.tasks[m.selectedIdx].ID]))
	m.viewport.GotoBottom()
}

func renderDetail(t *task.Task, output []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s  %s\n", StyleTitle.Render(t.Title), StatusIcon(t.Status))
	fmt.Fprintf(&b, "id:         %s\n", t.ID)
	fmt.Fprintf(&b, "status:     %s\n", t.Status)
	fmt.Fprintf(&b, "priority:   %s\n", t.Priority)
	fmt.Fprintf(&b, "complexity: %g\n", t.Complexity())
	if len(t.Dependencies) > 0 {
		fmt.Fprintf(&b, "depends on: %s\n", strings.Join(t.Dependencies, ", "))
	}
	if len(t.Subtasks) > 0 {
		fmt.Fprintf(&b, "subtasks:   %s\n", strings.Join(t.Subtasks, ", "))
	}
	if t.Details.TimeSpentSeconds > 0 {
		fmt.Fprintf(&b, "time spent: %s\n", seconds(t.Details.TimeSpentSeconds))
	}
	if t.Details.DurationSeconds != nil {
		fmt.Fprintf(&b, "duration:   %s\n", seconds(*t.Details.DurationSeconds))
	}
	if t.Description != "" {
		b.WriteString("\n" + t.Description + "\n")
	}

	for _, bl := range t.Details.Blockers {
		if bl.ResolvedAt == nil {
			fmt.Fprintf(&b, "\n%s %s\n", StyleStatusBlocked.Render("blocked:"), bl.Description)
		}
	}

	b.WriteString("\nHistory\n")
	for _, e := range t.History {
		fmt.Fprintf(&b, "  %s  %-8s %s\n", e.Timestamp.Local().Format("01-02 15:04:05"), e.User, e.Description)
	}

	if len(output) > 0 {
		b.WriteString("\nOutput\n")
		b.WriteString(strings.Join(output, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}

func seconds(s float64) string {
	return time.Duration(s * float64(time.Second)).Round(time.Second).String()
}

func (m *TaskPaneModel) resizeViewport() {
	viewportWidth := m.width - listWidth - 4
	viewportHeight := m.height - 4

	if viewportWidth < 10 {
		viewportWidth = 10
	}
	if viewportHeight < 5 {
		viewportHeight = 5
	}

	m.viewport.Width = viewportWidth
	m.viewport.Height = viewportHeight
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
