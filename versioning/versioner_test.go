// ABOUTME: Tests for content-hashed config versions and per-version tallies
// ABOUTME: Runs against the in-memory SQLite store
package versioning

import (
	"context"
	"testing"

	"github.com/harperreed/engage/db"
	"github.com/harperreed/engage/models"
	"github.com/harperreed/engage/rules"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *db.Store {
	t.Helper()
	store, err := db.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedRules(t *testing.T, store *db.Store) {
	t.Helper()
	rs := &rules.RuleSet{
		Goals: []models.Goal{
			{
				Name: "link_account", Category: models.CategoryOnboarding,
				MessageTemplate: "Hi {{first_name}}", BasePriority: 50, Enabled: true,
				Outcomes: []models.GoalOutcome{{TriggerType: models.TriggerDefault, OutcomeType: models.OutcomeClarify}},
			},
			{
				Name: "attend_event", Category: models.CategoryEvents,
				MessageTemplate: "See you there", BasePriority: 30, Enabled: true,
				Outcomes: []models.GoalOutcome{{TriggerType: models.TriggerDefault, OutcomeType: models.OutcomeDecline}},
			},
		},
		RoutingRules: []models.RoutingRule{{Name: "chat", Channel: models.ChannelSlack, RequiresChat: true, Enabled: true}},
	}
	rs.Normalize()
	require.NoError(t, store.ImportRuleSet(context.Background(), rs))
}

func TestCurrentVersionIsIdempotent(t *testing.T) {
	store := setupTestDB(t)
	seedRules(t, store)
	v := New(store, "v1")
	ctx := context.Background()

	first, err := v.CurrentVersion(ctx)
	require.NoError(t, err)
	second, err := v.CurrentVersion(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Hash, second.Hash)
	assert.Len(t, first.RuleIDs, 3)

	list, err := v.ListVersions(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRuleChangeCreatesNewVersion(t *testing.T) {
	store := setupTestDB(t)
	seedRules(t, store)
	v := New(store, "v1")
	ctx := context.Background()

	before, err := v.CurrentVersion(ctx)
	require.NoError(t, err)

	require.NoError(t, store.SetGoalEnabled(ctx, "attend_event", false))
	disabled, err := v.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, before.ID, disabled.ID)
	assert.Len(t, disabled.RuleIDs, 2)

	g, err := store.GetGoalByName(ctx, "link_account")
	require.NoError(t, err)
	g.MessageTemplate = "Hello {{first_name}}"
	require.NoError(t, store.UpsertGoal(ctx, g))
	edited, err := v.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, disabled.ID, edited.ID)

	require.NoError(t, store.SetGoalEnabled(ctx, "attend_event", true))
	g.MessageTemplate = "Hi {{first_name}}"
	require.NoError(t, store.UpsertGoal(ctx, g))
	reverted, err := v.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.ID, reverted.ID, "identical content maps back to the original version")

	stored, err := store.GetVersion(ctx, before.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Snapshot, stored.Snapshot, "snapshots are never rewritten")
}

func TestFormulaIsPartOfTheVersion(t *testing.T) {
	store := setupTestDB(t)
	seedRules(t, store)
	ctx := context.Background()

	a, err := New(store, "v1").CurrentVersion(ctx)
	require.NoError(t, err)
	b, err := New(store, "v2-recency").CurrentVersion(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, a.Hash, b.Hash)
	assert.Equal(t, "v2-recency", b.ScoreFormula)
}

func TestHashIsStable(t *testing.T) {
	h1 := Hash([]string{"goal:a", "goal:b"}, []byte(`{}`))
	h2 := Hash([]string{"goal:a", "goal:b"}, []byte(`{}`))
	h3 := Hash([]string{"goal:a"}, []byte(`{}`))
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64)
}

func TestRecordDecisionAndStats(t *testing.T) {
	store := setupTestDB(t)
	seedRules(t, store)
	v := New(store, "v1")
	ctx := context.Background()

	cv, err := v.CurrentVersion(ctx)
	require.NoError(t, err)

	_, err = v.RecordDecision(ctx, cv.ID, models.Tally{Kind: models.TallyMessage})
	assert.Error(t, err, "decision id is required")

	id := ulid.Make().String()
	applied, err := v.RecordDecision(ctx, cv.ID, models.Tally{DecisionID: id, Kind: models.TallyMessage})
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = v.RecordDecision(ctx, cv.ID, models.Tally{DecisionID: id, Kind: models.TallyMessage})
	require.NoError(t, err)
	assert.False(t, applied)

	rating := 5
	_, err = v.RecordDecision(ctx, cv.ID, models.Tally{DecisionID: id, Kind: models.TallyFeedback, Positive: true, Rating: &rating})
	require.NoError(t, err)
	_, err = v.RecordDecision(ctx, cv.ID, models.Tally{DecisionID: ulid.Make().String(), Kind: models.TallyFeedback, Negative: true})
	require.NoError(t, err)

	st, err := v.VersionStats(ctx, cv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Version.MessageCount)
	assert.Equal(t, 0.5, st.PositiveRate)
	assert.Equal(t, 5.0, st.AvgRating)
	assert.Equal(t, 0, st.Decisions)
}
