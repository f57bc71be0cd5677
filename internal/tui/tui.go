// Package tui provides a terminal browser for the alerts of one analysis.
package tui

import (
	"fmt"
	"strings"

	"iam-abuse-detector/internal/detection"
	"iam-abuse-detector/internal/schema"
	"iam-abuse-detector/internal/tui/scenes"
	"iam-abuse-detector/internal/tui/styles"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Scene represents the current view
type Scene int

const (
	SceneAlerts Scene = iota
	SceneEvents
	SceneRules
	sceneCount
)

// Data is the analysis the browser shows.
type Data struct {
	Filename string
	Events   schema.EventCollection
	Alerts   []detection.Alert
	Rules    []detection.RuleInfo
}

// Model is the main TUI model
type Model struct {
	filename string
	scene    Scene

	alerts *scenes.AlertsScene
	events *scenes.EventsScene
	rules  *scenes.RulesScene

	width    int
	height   int
	quitting bool
}

// New creates a new TUI model
func New(d Data) *Model {
	return &Model{
		filename: d.Filename,
		scene:    SceneAlerts,
		alerts:   scenes.NewAlertsScene(d.Alerts, d.Events),
		events:   scenes.NewEventsScene(d.Events),
		rules:    scenes.NewRulesScene(d.Rules, d.Alerts),
	}
}

// Init initializes the TUI. All data is loaded up front.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update handles all messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Keys inside the evidence view belong to the alerts scene.
		inDetail := m.scene == SceneAlerts && m.alerts.ShowingDetail()

		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "q":
			if !inDetail {
				m.quitting = true
				return m, tea.Quit
			}
		case "1":
			m.scene = SceneAlerts
			return m, nil
		case "2":
			m.scene = SceneEvents
			return m, nil
		case "3":
			m.scene = SceneRules
			return m, nil
		case "tab":
			if !inDetail {
				m.scene = (m.scene + 1) % sceneCount
				return m, nil
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.alerts, _ = m.alerts.Update(msg)
		m.events, _ = m.events.Update(msg)
		m.rules, _ = m.rules.Update(msg)
		return m, nil
	}

	var cmd tea.Cmd
	switch m.scene {
	case SceneAlerts:
		m.alerts, cmd = m.alerts.Update(msg)
	case SceneEvents:
		m.events, cmd = m.events.Update(msg)
	case SceneRules:
		m.rules, cmd = m.rules.Update(msg)
	}
	return m, cmd
}

// Scene returns the active scene.
func (m *Model) Scene() Scene {
	return m.scene
}

// View renders the current view
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	switch m.scene {
	case SceneAlerts:
		b.WriteString(m.alerts.View())
	case SceneEvents:
		b.WriteString(m.events.View())
	case SceneRules:
		b.WriteString(m.rules.View())
	}

	b.WriteString("\n")
	b.WriteString(styles.Help.Render(" [1-3] Switch tabs  [Tab] Next tab  [↑↓/jk] Navigate  [Enter] Evidence  [q] Quit "))
	return b.String()
}

func (m *Model) renderHeader() string {
	tabs := []struct {
		name  string
		scene Scene
	}{
		{"Alerts", SceneAlerts},
		{"Events", SceneEvents},
		{"Rules", SceneRules},
	}

	var tabViews []string
	for i, tab := range tabs {
		label := fmt.Sprintf(" %d %s ", i+1, tab.name)
		if tab.scene == m.scene {
			tabViews = append(tabViews, styles.TabActive.Render(label))
		} else {
			tabViews = append(tabViews, styles.TabInactive.Render(label))
		}
	}
	if m.filename != "" {
		tabViews = append(tabViews, styles.Muted.Render("  "+m.filename))
	}

	return lipgloss.NewStyle().
		BorderBottom(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.MutedColor).
		Width(m.width).
		Render(lipgloss.JoinHorizontal(lipgloss.Top, tabViews...))
}

// Run starts the browser and blocks until the user quits.
func Run(d Data) error {
	p := tea.NewProgram(New(d), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
