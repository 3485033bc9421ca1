package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var farFuture = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

func (m Model) renderListView() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("ENGAGE"))
	s.WriteString("\n\n")

	s.WriteString(m.renderTabs())
	s.WriteString("\n\n")

	if m.err != nil {
		s.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	} else {
		s.WriteString(m.renderTable())
	}
	s.WriteString("\n\n")

	if m.status != "" {
		s.WriteString(statusStyle.Render(m.status))
		s.WriteString("\n")
	}
	s.WriteString(m.renderListHelp())

	return s.String()
}

func (m Model) renderTabs() string {
	tabs := []string{"People", "Open decisions", "Versions"}
	var rendered []string

	for i, tab := range tabs {
		if Tab(i) == m.tab {
			rendered = append(rendered, tabActiveStyle.Render(tab))
		} else {
			rendered = append(rendered, tabInactiveStyle.Render(tab))
		}
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

// tableRows returns the columns and rows of the current tab.
func (m Model) tableRows() ([]table.Column, []table.Row) {
	var rows []table.Row
	switch m.tab {
	case TabPeople:
		for _, p := range m.persons {
			last := "-"
			if p.LastActivityAt != nil {
				last = p.LastActivityAt.Format("2006-01-02")
			}
			rows = append(rows, table.Row{personLabel(p.DisplayName, p.Email, p.ChatID), p.MappingStatus, strconv.Itoa(p.Score), last})
		}
		return []table.Column{
			{Title: "Name", Width: 30},
			{Title: "Mapping", Width: 10},
			{Title: "Score", Width: 6},
			{Title: "Last active", Width: 12},
		}, rows

	case TabDecisions:
		for _, d := range m.open {
			rows = append(rows, table.Row{d.ID, d.GoalName, d.Channel, d.Status, d.CreatedAt.Format("2006-01-02 15:04")})
		}
		return []table.Column{
			{Title: "Decision", Width: 28},
			{Title: "Goal", Width: 20},
			{Title: "Channel", Width: 8},
			{Title: "Status", Width: 16},
			{Title: "Created", Width: 16},
		}, rows

	case TabVersions:
		for _, v := range m.versions {
			rows = append(rows, table.Row{
				strconv.FormatInt(v.ID, 10),
				v.Hash[:12],
				strconv.FormatInt(v.MessageCount, 10),
				fmt.Sprintf("+%d/-%d", v.PositiveFeedback, v.NegativeFeedback),
				fmt.Sprintf("%.2f", v.AvgRating()),
			})
		}
		return []table.Column{
			{Title: "ID", Width: 6},
			{Title: "Hash", Width: 14},
			{Title: "Messages", Width: 9},
			{Title: "Feedback", Width: 10},
			{Title: "Rating", Width: 7},
		}, rows
	}
	return nil, nil
}

func (m Model) renderTable() string {
	columns, rows := m.tableRows()
	if len(rows) == 0 {
		return "Nothing here yet"
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(max(m.height-12, 3)),
	)
	if m.selectedRow < len(rows) {
		t.SetCursor(m.selectedRow)
	}

	return t.View()
}

func (m Model) renderListHelp() string {
	help := []string{
		"↑/↓: Navigate",
		"Tab: Switch tabs",
		"Enter: View details",
		"r: Refresh",
		"g: Goal graph",
		"q: Quit",
	}
	return helpStyle.Render(strings.Join(help, " • "))
}

func (m Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.selectedRow > 0 {
			m.selectedRow--
		}
	case "down", "j":
		if m.selectedRow < m.rowCount()-1 {
			m.selectedRow++
		}
	case "tab":
		m.tab = (m.tab + 1) % tabCount
		m.selectedRow = 0
		m.status = ""
		m.reload()
	case "r":
		m.reload()
	case "g":
		m.openGraph()
	case "enter":
		if id := m.getSelectedID(); id != "" {
			m.selectedID = id
			m.status = ""
			m.mode = ViewDetail
		}
	}

	return m, nil
}

func (m Model) getSelectedID() string {
	switch m.tab {
	case TabPeople:
		if m.selectedRow < len(m.persons) {
			return m.persons[m.selectedRow].ID.String()
		}
	case TabDecisions:
		if m.selectedRow < len(m.open) {
			return m.open[m.selectedRow].ID
		}
	case TabVersions:
		if m.selectedRow < len(m.versions) {
			return strconv.FormatInt(m.versions[m.selectedRow].ID, 10)
		}
	}
	return ""
}

func personLabel(name, email, chat string) string {
	switch {
	case name != "":
		return name
	case email != "":
		return email
	case chat != "":
		return chat
	}
	return "(unnamed)"
}
