// ABOUTME: Tests for the terminal operator console
// ABOUTME: Drives the bubbletea model with key messages over an in-memory store
package tui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/harperreed/engage/db"
	"github.com/harperreed/engage/engine"
	"github.com/harperreed/engage/models"
	"github.com/harperreed/engage/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	store, err := db.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	rs := &rules.RuleSet{Goals: []models.Goal{{
		Name:            "welcome",
		Category:        models.CategoryOnboarding,
		MessageTemplate: "Welcome {{first_name}}!",
		BasePriority:    10,
		Enabled:         true,
		Outcomes: []models.GoalOutcome{
			{TriggerType: models.TriggerSentiment, TriggerValue: models.SentimentPositive, OutcomeType: models.OutcomeSuccess},
			{TriggerType: models.TriggerDefault, OutcomeType: models.OutcomeClarify},
		},
	}}}
	rs.Normalize()
	require.NoError(t, store.ImportRuleSet(context.Background(), rs))

	eng, err := engine.New(store, engine.Options{})
	require.NoError(t, err)
	_, _, err = eng.RecordActivity(context.Background(), models.InboundEvent{
		ActorID:     "U1",
		ActorKind:   models.ActorChat,
		DisplayName: "Grace Hopper",
		Type:        models.ActivityChatMessage,
	})
	require.NoError(t, err)
	return eng
}

func press(t *testing.T, m Model, keys ...string) Model {
	t.Helper()
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		case "tab":
			msg = tea.KeyMsg{Type: tea.KeyTab}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func TestNewModel(t *testing.T) {
	m := NewModel(context.Background(), setupTestEngine(t))

	if m.mode != ViewList {
		t.Errorf("expected ViewList, got %v", m.mode)
	}
	assert.Len(t, m.persons, 1)
	assert.Contains(t, m.View(), "Grace Hopper")
}

func TestTabCycling(t *testing.T) {
	m := NewModel(context.Background(), setupTestEngine(t))

	m = press(t, m, "tab")
	assert.Equal(t, TabDecisions, m.tab)
	assert.Contains(t, m.View(), "Nothing here yet")

	m = press(t, m, "tab", "tab")
	assert.Equal(t, TabPeople, m.tab)
}

func TestEvaluateAndRespondFlow(t *testing.T) {
	eng := setupTestEngine(t)
	m := NewModel(context.Background(), eng)

	m = press(t, m, "enter")
	require.Equal(t, ViewDetail, m.mode)
	assert.Contains(t, m.View(), "Grace Hopper")

	m = press(t, m, "p")
	assert.Contains(t, m.status, "Welcome Grace!")

	m = press(t, m, "e")
	require.NoError(t, m.err)
	assert.True(t, strings.HasPrefix(m.status, "Decision "))

	// Open decisions tab now lists it
	m = press(t, m, "esc", "tab")
	require.Len(t, m.open, 1)
	decisionID := m.open[0].ID

	m = press(t, m, "enter", "r")
	require.Equal(t, ViewRespond, m.mode)
	m = press(t, m, "positive", "tab", "5", "enter")
	require.NoError(t, m.err)
	assert.Equal(t, ViewDetail, m.mode)
	assert.Contains(t, m.status, "Outcome success")

	d, err := eng.Store().GetDecision(context.Background(), decisionID)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSuccess, d.OutcomeType)
	require.NotNil(t, d.Rating)
	assert.Equal(t, 5, *d.Rating)
}

func TestRespondRejectsBadRating(t *testing.T) {
	eng := setupTestEngine(t)
	m := NewModel(context.Background(), eng)
	m = press(t, m, "enter", "e", "esc", "tab", "enter", "r")

	m = press(t, m, "positive", "tab", "x", "enter")
	assert.Error(t, m.err)
	assert.Equal(t, ViewRespond, m.mode)

	// q types into the form instead of quitting
	m = press(t, m, "q")
	assert.Equal(t, ViewRespond, m.mode)
}

func TestGraphView(t *testing.T) {
	m := NewModel(context.Background(), setupTestEngine(t))

	m = press(t, m, "g")
	require.NoError(t, m.err)
	assert.Equal(t, ViewGraph, m.mode)
	assert.Contains(t, m.View(), "welcome")

	m = press(t, m, "esc")
	assert.Equal(t, ViewList, m.mode)
}
