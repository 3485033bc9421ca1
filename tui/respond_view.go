package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/harperreed/engage/models"
)

const (
	fieldSignal = iota
	fieldValue
	fieldRating
)

func (m Model) renderRespondView() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("RESPOND TO " + m.selectedID))
	s.WriteString("\n\n")

	for i, input := range m.formInputs {
		if i == m.focusIndex {
			s.WriteString("> ")
		} else {
			s.WriteString("  ")
		}
		s.WriteString(input.View())
		s.WriteString("\n")
	}

	s.WriteString("\n")
	if m.err != nil {
		s.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		s.WriteString("\n")
	}
	s.WriteString(m.renderRespondHelp())

	return s.String()
}

func (m Model) renderRespondHelp() string {
	help := []string{
		"Tab: Next field",
		"Enter: Apply",
		"Esc: Cancel",
	}
	return helpStyle.Render(strings.Join(help, " • "))
}

func (m Model) handleRespondKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = ViewDetail
		m.err = nil
		return m, nil
	case "tab":
		m.focusIndex = (m.focusIndex + 1) % len(m.formInputs)
		m.updateFormFocus()
		return m, nil
	case "enter":
		if err := m.submitResponse(); err != nil {
			m.err = err
		} else {
			m.err = nil
			m.mode = ViewDetail
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.formInputs[m.focusIndex], cmd = m.formInputs[m.focusIndex].Update(msg)
	return m, cmd
}

func (m *Model) initRespondForm() {
	inputs := make([]textinput.Model, 3)

	inputs[fieldSignal] = textinput.New()
	inputs[fieldSignal].Placeholder = "Signal (sentiment, intent, timeout)"
	inputs[fieldSignal].SetValue(models.SignalSentiment)
	inputs[fieldSignal].CharLimit = 40

	inputs[fieldValue] = textinput.New()
	inputs[fieldValue].Placeholder = "Value (positive, negative, ...)"
	inputs[fieldValue].CharLimit = 100

	inputs[fieldRating] = textinput.New()
	inputs[fieldRating].Placeholder = "Rating 1-5 (optional)"
	inputs[fieldRating].CharLimit = 1

	m.formInputs = inputs
	m.focusIndex = fieldValue
	m.err = nil
	m.updateFormFocus()
}

func (m *Model) updateFormFocus() {
	for i := range m.formInputs {
		if i == m.focusIndex {
			m.formInputs[i].Focus()
		} else {
			m.formInputs[i].Blur()
		}
	}
}

// submitResponse applies the form as a classified signal to the selected decision.
func (m *Model) submitResponse() error {
	sig := models.Signal{
		Kind:  strings.TrimSpace(m.formInputs[fieldSignal].Value()),
		Value: strings.TrimSpace(m.formInputs[fieldValue].Value()),
	}
	if sig.Kind == "" {
		return errors.New("signal is required")
	}

	var rating *int
	if raw := strings.TrimSpace(m.formInputs[fieldRating].Value()); raw != "" {
		r, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid rating: %w", err)
		}
		rating = &r
	}

	res, err := m.eng.RespondToDecision(m.ctx, m.selectedID, sig, rating)
	if err != nil {
		return err
	}
	m.status = fmt.Sprintf("Outcome %s, goal now %s", res.Outcome.OutcomeType, res.GoalState.Status)
	if res.Escalated {
		m.status += " (escalated)"
	}
	return nil
}
