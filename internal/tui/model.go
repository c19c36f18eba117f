// Package tui is the interactive task board: a task list with details and
// history, a progress pane with the upcoming queue, and a settings form.
package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/tascade/internal/config"
	"github.com/aristath/tascade/internal/events"
	"github.com/aristath/tascade/internal/lifecycle"
	"github.com/aristath/tascade/internal/task"
)

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneTasks PaneID = iota
	PaneProgress
)

// Source lists the tasks to display. *store.TaskStore satisfies it.
type Source interface {
	List() []*task.Task
}

// Actions applies lifecycle transitions. *lifecycle.Controller satisfies it.
type Actions interface {
	Start(id, user string) lifecycle.Result
	Complete(id, notes, user string) lifecycle.Result
	Pause(id, reason, user string) lifecycle.Result
	Unblock(id, resolution, user string) lifecycle.Result
	Fail(id, reason, user string) lifecycle.Result
}

// Options configures the board.
type Options struct {
	Bus               *events.Bus // Optional; live updates and command output
	Tasks             Source
	Actions           Actions // Optional; nil makes the board read-only
	User              string  // Attributed to transitions made from the board
	Config            *config.Config
	GlobalConfigPath  string
	ProjectConfigPath string
	OnChange          func() error // Optional; called after every applied transition
}

// Model is the root Bubble Tea model for the board.
type Model struct {
	taskPane     TaskPaneModel
	progressPane ProgressPaneModel
	settingsPane SettingsPaneModel
	focusedPane  PaneID
	eventSub     <-chan events.Event
	opts         Options
	notice       string
	noticeErr    bool
	width        int
	height       int
	quitting     bool
	showSettings bool
}

// New creates a new board model.
// It subscribes to all events from the bus using SubscribeAll.
func New(opts Options) Model {
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	m := Model{
		taskPane:     NewTaskPaneModel(),
		progressPane: NewProgressPaneModel(opts.Config.Scheduler.QueueLimit),
		settingsPane: NewSettingsPaneModel(opts.Config, opts.GlobalConfigPath, opts.ProjectConfigPath),
		focusedPane:  PaneTasks,
		opts:         opts,
	}
	if opts.Bus != nil {
		m.eventSub = opts.Bus.SubscribeAll(events.DefaultBufferSize)
	}
	m.refresh()
	m.updateFocusStates()
	return m
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	if m.eventSub == nil {
		return nil
	}
	return waitForEvent(m.eventSub)
}

// waitForEvent returns a command that waits for the next event from the bus.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	if sub == nil {
		return nil
	}
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

// refresh reloads the task list into both panes.
func (m *Model) refresh() {
	tasks := m.opts.Tasks.List()
	m.taskPane.SetTasks(tasks)
	m.progressPane.SetTasks(tasks)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Settings are modal.
		if m.showSettings {
			if msg.String() == "esc" {
				m.showSettings = false
				m.settingsPane.SetVisible(false)
				return m, nil
			}
			var cmd tea.Cmd
			m.settingsPane, cmd = m.settingsPane.Update(msg)
			if !m.settingsPane.IsVisible() {
				m.showSettings = false
				if m.settingsPane.Saved() {
					m.setNotice("settings saved; storage changes apply on next launch", false)
				}
			}
			return m, cmd
		}

		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case KeySettings:
			m.showSettings = true
			m.settingsPane.SetVisible(true)
			cmds = append(cmds, m.settingsPane.Init())

		case KeyTab, KeyShiftTab:
			m.focusedPane = (m.focusedPane + 1) % 2
			m.updateFocusStates()

		case KeyPane1:
			m.focusedPane = PaneTasks
			m.updateFocusStates()

		case KeyPane2:
			m.focusedPane = PaneProgress
			m.updateFocusStates()

		case KeyRefresh:
			m.refresh()

		case KeyStart, KeyComplete, KeyPause, KeyUnblock, KeyFail:
			m.transition(msg.String())

		default:
			if m.focusedPane == PaneTasks {
				var cmd tea.Cmd
				m.taskPane, cmd = m.taskPane.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()
		m.settingsPane.SetSize(msg.Width, msg.Height)

	case tickMsg:
		var cmd tea.Cmd
		m.taskPane, cmd = m.taskPane.Update(msg)
		cmds = append(cmds, cmd)

	case events.TaskOutputEvent:
		var cmd tea.Cmd
		m.taskPane, cmd = m.taskPane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.eventSub))

	case events.Event:
		// Any lifecycle or graph change: reload from the store.
		m.refresh()
		cmds = append(cmds, waitForEvent(m.eventSub))
	}

	return m, tea.Batch(cmds...)
}

// transition applies the lifecycle action bound to key to the selected task.
func (m *Model) transition(key string) {
	id := m.taskPane.SelectedID()
	if m.opts.Actions == nil || id == "" {
		return
	}

	user := m.opts.User
	var res lifecycle.Result
	switch key {
	case KeyStart:
		res = m.opts.Actions.Start(id, user)
	case KeyComplete:
		res = m.opts.Actions.Complete(id, "", user)
	case KeyPause:
		res = m.opts.Actions.Pause(id, "paused from board", user)
	case KeyUnblock:
		res = m.opts.Actions.Unblock(id, "resolved from board", user)
	case KeyFail:
		res = m.opts.Actions.Fail(id, "", user)
	}

	if !res.Ok() {
		m.setNotice(fmt.Sprintf("%s: %s", id, res.Reason), true)
		return
	}

	notice := fmt.Sprintf("%s is now %s", id, res.Task.Status)
	if len(res.Warnings) > 0 {
		notice += " (warning: " + res.Warnings[0] + ")"
	}
	m.setNotice(notice, false)
	if m.opts.OnChange != nil {
		if err := m.opts.OnChange(); err != nil {
			m.setNotice(fmt.Sprintf("saving: %v", err), true)
		}
	}
	m.refresh()
}

func (m *Model) setNotice(s string, isErr bool) {
	m.notice = s
	m.noticeErr = isErr
}

// View renders the board.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	if m.showSettings {
		return m.settingsPane.View()
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top, m.taskPane.View(), m.progressPane.View())

	footer := HelpView()
	if m.notice != "" {
		style := StyleNotice
		if m.noticeErr {
			style = StyleError
		}
		footer = style.Render(m.notice) + "  " + footer
	}

	return lipgloss.JoinVertical(lipgloss.Left, body, footer)
}

// computeLayout calculates pane dimensions and updates all child models.
func (m *Model) computeLayout() {
	leftWidth := (m.width * 65) / 100
	rightWidth := m.width - leftWidth
	availableHeight := m.height - 1 // help bar

	m.taskPane.SetSize(leftWidth, availableHeight)
	m.progressPane.SetSize(rightWidth, availableHeight)

	m.updateFocusStates()
}

// updateFocusStates updates the focus state of all panes.
func (m *Model) updateFocusStates() {
	m.taskPane.SetFocused(m.focusedPane == PaneTasks)
	m.progressPane.SetFocused(m.focusedPane == PaneProgress)
}
