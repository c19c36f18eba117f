package tui

import (
	"fmt"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/tascade/internal/config"
)

// SettingsPaneModel manages the settings form overlay.
type SettingsPaneModel struct {
	form        *huh.Form
	config      *config.Config
	globalPath  string
	projectPath string
	width       int
	height      int
	visible     bool
	saved       bool
	err         error

	// Huh writes through pointers, so the bindings live behind one that
	// survives the model being copied by value.
	fields *settingsFields
}

// settingsFields are the form bindings (strings for Huh).
type settingsFields struct {
	saveTarget     string
	storageBackend string
	storagePath    string
	defaultUser    string
	strictStart    bool
	queueLimit     string
	concurrency    string
	command        string
}

// NewSettingsPaneModel creates a new settings pane.
func NewSettingsPaneModel(cfg *config.Config, globalPath, projectPath string) SettingsPaneModel {
	m := SettingsPaneModel{
		config:      cfg,
		globalPath:  globalPath,
		projectPath: projectPath,
		fields:      &settingsFields{},
	}
	m.loadFields()
	m.buildForm()
	return m
}

func (m *SettingsPaneModel) loadFields() {
	m.fields.saveTarget = "project"
	m.fields.storageBackend = m.config.Storage.Backend
	m.fields.storagePath = m.config.Storage.Path
	m.fields.defaultUser = m.config.Lifecycle.DefaultUser
	m.fields.strictStart = m.config.Lifecycle.StrictStart
	m.fields.queueLimit = strconv.Itoa(m.config.Scheduler.QueueLimit)
	m.fields.concurrency = strconv.Itoa(m.config.Runner.Concurrency)
	m.fields.command = m.config.Runner.Command
}

func positiveInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return fmt.Errorf("enter a positive whole number")
	}
	return nil
}

// buildForm constructs the Huh form with all settings fields.
func (m *SettingsPaneModel) buildForm() {
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("saveTarget").
				Title("Save To").
				Options(
					huh.NewOption("Project ("+m.projectPath+")", "project"),
					huh.NewOption("Global ("+m.globalPath+")", "global"),
				).
				Value(&m.fields.saveTarget),
		).Title("Save Target"),

		huh.NewGroup(
			huh.NewSelect[string]().
				Key("storageBackend").
				Title("Storage Backend").
				Options(
					huh.NewOption("JSON file", "json"),
					huh.NewOption("SQLite database", "sqlite"),
				).
				Value(&m.fields.storageBackend),

			huh.NewInput().
				Key("storagePath").
				Title("Storage Path").
				Value(&m.fields.storagePath).
				Placeholder(".tascade/tasks.json"),
		).Title("Storage"),

		huh.NewGroup(
			huh.NewInput().
				Key("defaultUser").
				Title("Default User").
				Value(&m.fields.defaultUser).
				Placeholder("system"),

			huh.NewConfirm().
				Key("strictStart").
				Title("Refuse to start tasks with unfinished dependencies?").
				Value(&m.fields.strictStart),

			huh.NewInput().
				Key("queueLimit").
				Title("Queue Length").
				Value(&m.fields.queueLimit).
				Validate(positiveInt),
		).Title("Lifecycle & Scheduling"),

		huh.NewGroup(
			huh.NewInput().
				Key("concurrency").
				Title("Parallel Tasks").
				Value(&m.fields.concurrency).
				Validate(positiveInt),

			huh.NewInput().
				Key("command").
				Title("Default Task Command").
				Value(&m.fields.command).
				Placeholder("make $TASCADE_TASK_ID"),
		).Title("Runner"),
	)
}

// Init initializes the settings pane.
func (m SettingsPaneModel) Init() tea.Cmd {
	return m.form.Init()
}

// Update handles messages for the settings pane.
func (m SettingsPaneModel) Update(msg tea.Msg) (SettingsPaneModel, tea.Cmd) {
	if !m.visible {
		return m, nil
	}

	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "esc" {
		// Cancel without saving
		m.visible = false
		m.saved = false
		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		m.save()
		if m.saved {
			m.visible = false
		}
	}

	return m, cmd
}

// save copies the form into the config and writes it to the chosen file.
func (m *SettingsPaneModel) save() {
	updated := *m.config
	m.applyForm(&updated)

	if err := updated.Validate(); err != nil {
		m.err = err
		m.saved = false
		return
	}

	targetPath := m.projectPath
	if m.fields.saveTarget == "global" {
		targetPath = m.globalPath
	}
	if err := config.Save(&updated, targetPath); err != nil {
		m.err = err
		m.saved = false
		return
	}

	*m.config = updated
	m.saved = true
	m.err = nil
}

// applyForm copies form field values into cfg.
func (m *SettingsPaneModel) applyForm(cfg *config.Config) {
	cfg.Storage.Backend = m.fields.storageBackend
	cfg.Storage.Path = m.fields.storagePath
	cfg.Lifecycle.DefaultUser = m.fields.defaultUser
	cfg.Lifecycle.StrictStart = m.fields.strictStart
	if n, err := strconv.Atoi(m.fields.queueLimit); err == nil {
		cfg.Scheduler.QueueLimit = n
	}
	if n, err := strconv.Atoi(m.fields.concurrency); err == nil {
		cfg.Runner.Concurrency = n
	}
	cfg.Runner.Command = m.fields.command
}

// View renders the settings pane.
func (m SettingsPaneModel) View() string {
	if !m.visible {
		return ""
	}

	var content string
	if m.err != nil {
		content = StyleError.Render(fmt.Sprintf("✗ Error saving: %v", m.err))
	} else {
		content = m.form.View()
	}

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2).
		Width(m.width - 4).
		Height(m.height - 4)

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62")).
		Render("⚙ Settings")

	return lipgloss.JoinVertical(lipgloss.Left, title, style.Render(content))
}

// SetSize updates the dimensions of the settings pane.
func (m *SettingsPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if m.form != nil {
		m.form.WithWidth(w - 8).WithHeight(h - 8)
	}
}

// SetVisible shows or hides the settings pane. Showing it resets the form
// to the current configuration.
func (m *SettingsPaneModel) SetVisible(v bool) {
	m.visible = v
	m.saved = false
	m.err = nil

	if v {
		m.loadFields()
		m.buildForm()
	}
}

// IsVisible returns whether the settings pane is currently visible.
func (m SettingsPaneModel) IsVisible() bool {
	return m.visible
}

// Saved reports whether the last completed form was written to disk.
func (m SettingsPaneModel) Saved() bool {
	return m.saved
}
