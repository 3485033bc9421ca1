package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/harperreed/engage/viz"
)

func (m Model) renderGraphView() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("GOAL GRAPH"))
	s.WriteString("\n\n")

	if m.graphDOT == "" {
		s.WriteString("No goals loaded\n")
	} else {
		s.WriteString(lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Render(m.graphDOT))
	}

	s.WriteString("\n\n")
	s.WriteString(m.renderGraphHelp())

	return s.String()
}

func (m Model) renderGraphHelp() string {
	help := []string{
		"Esc: Back",
		"q: Quit",
	}
	return helpStyle.Render(strings.Join(help, " • "))
}

func (m Model) handleGraphKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = m.graphReturn
		m.graphDOT = ""
	}

	return m, nil
}

// openGraph renders the DOT source of every goal's outcome graph.
func (m *Model) openGraph() {
	dot, err := viz.NewGraphGenerator(m.eng.Store()).GenerateGoalGraph(m.ctx, "")
	if err != nil {
		m.err = err
		return
	}
	m.graphReturn = m.mode
	m.graphDOT = dot
	m.mode = ViewGraph
}
