package tui

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/harperreed/engage/db"
	"github.com/harperreed/engage/models"
)

var (
	fieldLabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			Width(20)

	fieldValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))
)

func (m Model) renderDetailView() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("DETAIL VIEW"))
	s.WriteString("\n\n")

	switch m.tab {
	case TabPeople:
		s.WriteString(m.renderPersonDetail())
	case TabDecisions:
		s.WriteString(m.renderDecisionDetail())
	case TabVersions:
		s.WriteString(m.renderVersionDetail())
	}

	s.WriteString("\n\n")
	if m.err != nil {
		s.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		s.WriteString("\n")
	} else if m.status != "" {
		s.WriteString(statusStyle.Render(m.status))
		s.WriteString("\n")
	}
	s.WriteString(m.renderDetailHelp())

	return s.String()
}

func field(s *strings.Builder, label, value string) {
	if value == "" {
		value = "-"
	}
	s.WriteString(fieldLabelStyle.Render(label))
	s.WriteString(fieldValueStyle.Render(value))
	s.WriteString("\n")
}

func (m Model) renderPersonDetail() string {
	id, err := uuid.Parse(m.selectedID)
	if err != nil {
		return fmt.Sprintf("Error: invalid ID: %v", err)
	}
	store := m.eng.Store()

	p, err := store.GetPerson(m.ctx, id)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}

	var s strings.Builder
	field(&s, "Name:", p.DisplayName)
	field(&s, "Account:", p.AccountID)
	field(&s, "Chat:", p.ChatID)
	field(&s, "Email:", p.Email)
	field(&s, "Mapping:", p.MappingStatus)
	field(&s, "Score:", fmt.Sprintf("%d (activity %d, events %d)", p.Score, p.ScoreComponents.Activity, p.ScoreComponents.Events))
	if p.LastActivityAt != nil {
		field(&s, "Last active:", p.LastActivityAt.Format("2006-01-02 15:04"))
	}

	goals, err := store.ListGoals(m.ctx, false)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	names := make(map[uuid.UUID]string, len(goals))
	for _, g := range goals {
		names[g.ID] = g.Name
	}
	states, err := store.GoalStatesFor(m.ctx, id)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	if len(states) > 0 {
		s.WriteString("\n")
		s.WriteString(titleStyle.Render("Goals"))
		s.WriteString("\n")
		lines := make([]string, 0, len(states))
		for goalID, st := range states {
			line := fmt.Sprintf("  %-24s %s", names[goalID], st.Status)
			if st.DeferredUntil != nil {
				line += " until " + st.DeferredUntil.Format("2006-01-02")
			}
			lines = append(lines, line)
		}
		sort.Strings(lines)
		s.WriteString(strings.Join(lines, "\n"))
		s.WriteString("\n")
	}

	insights, err := store.ListInsights(m.ctx, models.SubjectPerson, id, true)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	if len(insights) > 0 {
		s.WriteString("\n")
		s.WriteString(titleStyle.Render("Insights"))
		s.WriteString("\n")
		for _, ins := range insights {
			s.WriteString(fmt.Sprintf("  %s = %s (%.2f, %s)\n", ins.Type, ins.Value, ins.Confidence, ins.Source))
		}
	}

	open, err := store.OpenDecisionForPerson(m.ctx, id)
	switch {
	case err == nil:
		s.WriteString("\n")
		field(&s, "Open decision:", fmt.Sprintf("%s (%s via %s)", open.ID, open.GoalName, open.Channel))
	case !errors.Is(err, db.ErrNotFound):
		return fmt.Sprintf("Error: %v", err)
	}

	return s.String()
}

func (m Model) renderDecisionDetail() string {
	d, err := m.eng.Store().GetDecision(m.ctx, m.selectedID)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}

	var s strings.Builder
	field(&s, "Decision:", d.ID)
	field(&s, "Person:", d.PersonID.String())
	field(&s, "Goal:", d.GoalName)
	field(&s, "Channel:", d.Channel)
	field(&s, "Status:", d.Status)
	field(&s, "Config version:", strconv.FormatInt(d.ConfigVersionID, 10))
	field(&s, "Created:", d.CreatedAt.Format("2006-01-02 15:04"))
	if d.DispatchedAt != nil {
		field(&s, "Dispatched:", d.DispatchedAt.Format("2006-01-02 15:04"))
	}
	if !d.Open() {
		field(&s, "Outcome:", d.OutcomeType)
		field(&s, "Signal:", strings.TrimSuffix(d.SignalKind+"="+d.SignalValue, "="))
	}
	s.WriteString("\n")
	s.WriteString(fieldValueStyle.Render(d.Message))
	return s.String()
}

func (m Model) renderVersionDetail() string {
	id, err := strconv.ParseInt(m.selectedID, 10, 64)
	if err != nil {
		return fmt.Sprintf("Error: invalid ID: %v", err)
	}
	st, err := m.eng.Versioner().VersionStats(m.ctx, id)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}

	v := st.Version
	var s strings.Builder
	field(&s, "Version:", strconv.FormatInt(v.ID, 10))
	field(&s, "Hash:", v.Hash)
	field(&s, "Score formula:", v.ScoreFormula)
	field(&s, "Rules:", strconv.Itoa(len(v.RuleIDs)))
	field(&s, "Messages:", strconv.FormatInt(v.MessageCount, 10))
	field(&s, "Decisions:", fmt.Sprintf("%d (%d open)", st.Decisions, st.OpenDecisions))
	field(&s, "Feedback:", fmt.Sprintf("+%d / -%d (%.0f%% positive)", v.PositiveFeedback, v.NegativeFeedback, st.PositiveRate*100))
	field(&s, "Avg rating:", fmt.Sprintf("%.2f over %d", st.AvgRating, v.RatingCount))

	outcomes := make([]string, 0, len(st.OutcomeBreakdown))
	for o, n := range st.OutcomeBreakdown {
		outcomes = append(outcomes, fmt.Sprintf("%s=%d", o, n))
	}
	sort.Strings(outcomes)
	field(&s, "Outcomes:", strings.Join(outcomes, " "))
	return s.String()
}

func (m Model) renderDetailHelp() string {
	var help []string
	switch m.tab {
	case TabPeople:
		help = []string{"p: Preview", "e: Evaluate", "s: Rescore"}
	case TabDecisions:
		help = []string{"r: Respond"}
	case TabVersions:
		help = []string{"g: Goal graph"}
	}
	help = append(help, "Esc: Back", "q: Quit")
	return helpStyle.Render(strings.Join(help, " • "))
}

func (m Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = ViewList
		m.status = ""
		m.reload()
		return m, nil
	case "g":
		m.openGraph()
		return m, nil
	}

	switch m.tab {
	case TabPeople:
		id, err := uuid.Parse(m.selectedID)
		if err != nil {
			m.err = err
			return m, nil
		}
		switch msg.String() {
		case "p":
			m.previewPerson(id)
		case "e":
			m.evaluatePerson(id)
		case "s":
			score, err := m.eng.ComputeScore(m.ctx, id)
			m.err = err
			if err == nil {
				m.status = fmt.Sprintf("Score recomputed: %d", score.Total)
			}
		}
	case TabDecisions:
		if msg.String() == "r" {
			m.initRespondForm()
			m.mode = ViewRespond
		}
	}

	return m, nil
}

func (m *Model) previewPerson(id uuid.UUID) {
	p, err := m.eng.Preview(m.ctx, id)
	m.err = err
	if err != nil {
		return
	}
	if p.Selection == nil {
		m.status = "No goal applies right now"
		return
	}
	m.status = fmt.Sprintf("Would send %s via %s: %s", p.Selection.Goal.Name, p.Selection.Channel, p.Selection.Message)
}

func (m *Model) evaluatePerson(id uuid.UUID) {
	d, err := m.eng.Evaluate(m.ctx, id)
	m.err = err
	switch {
	case err != nil:
	case d == nil:
		m.status = "No goal applies right now"
	default:
		m.status = fmt.Sprintf("Decision %s: %s via %s", d.ID, d.GoalName, d.Channel)
	}
}
