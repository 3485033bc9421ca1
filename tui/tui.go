// ABOUTME: Terminal operator console using the bubbletea framework
// ABOUTME: Browse people, open decisions and config versions; preview, evaluate and respond
package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/harperreed/engage/engine"
	"github.com/harperreed/engage/models"
)

// ViewMode represents the current TUI view
type ViewMode int

const (
	ViewList ViewMode = iota
	ViewDetail
	ViewRespond
	ViewGraph
)

// Tab is the list being browsed.
type Tab int

const (
	TabPeople Tab = iota
	TabDecisions
	TabVersions
	tabCount
)

const listLimit = 100

// Model is the main bubbletea model
type Model struct {
	ctx      context.Context
	eng      *engine.Engine
	mode     ViewMode
	tab      Tab
	persons  []models.Person
	open     []models.Decision
	versions []models.ConfigVersion

	// List view state
	selectedRow int

	// Detail view state
	selectedID string
	status     string

	// Respond view state
	formInputs []textinput.Model
	focusIndex int

	// Graph view state
	graphDOT    string
	graphReturn ViewMode

	// UI state
	width  int
	height int
	err    error
}

// NewModel creates a new TUI model and loads the first tab.
func NewModel(ctx context.Context, eng *engine.Engine) Model {
	m := Model{
		ctx:    ctx,
		eng:    eng,
		mode:   ViewList,
		tab:    TabPeople,
		width:  80,
		height: 24,
	}
	m.reload()
	return m
}

// Run starts the console full screen and blocks until the user quits.
func Run(ctx context.Context, eng *engine.Engine) error {
	_, err := tea.NewProgram(NewModel(ctx, eng), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	switch m.mode {
	case ViewList:
		return m.renderListView()
	case ViewDetail:
		return m.renderDetailView()
	case ViewRespond:
		return m.renderRespondView()
	case ViewGraph:
		return m.renderGraphView()
	}
	return ""
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "q":
		// q is a character in the respond form
		if m.mode != ViewRespond {
			return m, tea.Quit
		}
	}

	switch m.mode {
	case ViewList:
		return m.handleListKeys(msg)
	case ViewDetail:
		return m.handleDetailKeys(msg)
	case ViewRespond:
		return m.handleRespondKeys(msg)
	case ViewGraph:
		return m.handleGraphKeys(msg)
	}

	return m, nil
}

// reload refreshes the rows of the current tab.
func (m *Model) reload() {
	m.err = nil
	store := m.eng.Store()
	switch m.tab {
	case TabPeople:
		m.persons, m.err = store.ListPersons(m.ctx, listLimit)
	case TabDecisions:
		// Every open decision was created before the far future
		m.open, m.err = store.ListOpenDecisionsBefore(m.ctx, farFuture, listLimit)
	case TabVersions:
		m.versions, m.err = m.eng.Versioner().ListVersions(m.ctx, listLimit)
	}
	if n := m.rowCount(); m.selectedRow >= n {
		m.selectedRow = max(n-1, 0)
	}
}

func (m Model) rowCount() int {
	switch m.tab {
	case TabPeople:
		return len(m.persons)
	case TabDecisions:
		return len(m.open)
	case TabVersions:
		return len(m.versions)
	}
	return 0
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			MarginBottom(1)

	tabActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			Background(lipgloss.Color("235")).
			Padding(0, 2)

	tabInactiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240")).
				Padding(0, 2)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			MarginTop(1)

	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)
