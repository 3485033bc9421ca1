// ABOUTME: End-to-end engine tests over an in-memory SQLite store
// ABOUTME: Covers scoring, selection, version tagging, outcomes, timeouts and dispatch hooks
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/engage/db"
	"github.com/harperreed/engage/dispatch"
	"github.com/harperreed/engage/models"
	"github.com/harperreed/engage/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }
func (c *clock) Set(t time.Time)         { c.t = t }

func setupTestDB(t *testing.T) *db.Store {
	t.Helper()
	store, err := db.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func setupTestEngine(t *testing.T, goals ...models.Goal) (*Engine, *clock) {
	t.Helper()
	return newTestEngine(t, setupTestDB(t), goals...)
}

// setupFileEngine runs the engine on a file-backed SQLite store, the way the
// service opens it, so goroutines contend for the real connection pool.
func setupFileEngine(t *testing.T, goals ...models.Goal) (*Engine, *clock) {
	t.Helper()
	store, err := db.Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "engage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return newTestEngine(t, store, goals...)
}

func newTestEngine(t *testing.T, store *db.Store, goals ...models.Goal) (*Engine, *clock) {
	t.Helper()
	if len(goals) > 0 {
		rs := &rules.RuleSet{Goals: goals}
		rs.Normalize()
		require.NoError(t, store.ImportRuleSet(context.Background(), rs))
	}
	eng, err := New(store, Options{})
	require.NoError(t, err)
	c := &clock{t: t0}
	eng.now = c.Now
	return eng, c
}

func goal(name string, priority int, outcomes ...models.GoalOutcome) models.Goal {
	outcomes = append(outcomes, models.GoalOutcome{TriggerType: models.TriggerDefault, OutcomeType: models.OutcomeClarify})
	return models.Goal{
		Name:            name,
		Category:        models.CategoryEngagement,
		MessageTemplate: "Hi {{first_name}}, your score is {{score}}",
		BasePriority:    priority,
		Enabled:         true,
		Outcomes:        outcomes,
	}
}

func addPerson(t *testing.T, eng *Engine, chatID string) uuid.UUID {
	t.Helper()
	ev, created, err := eng.RecordActivity(context.Background(), models.InboundEvent{
		ActorID: chatID, ActorKind: models.ActorChat, DisplayName: "Ada Lovelace",
		Type: models.ActivityChatMessage, Timestamp: t0.Add(-time.Hour),
	})
	require.NoError(t, err)
	require.True(t, created)
	return ev.PersonID
}

func TestRecordActivityResolvesActorAndDedups(t *testing.T) {
	eng, _ := setupTestEngine(t)
	ctx := context.Background()

	in := models.InboundEvent{ExternalID: "slack-1", ActorID: "U1", ActorKind: models.ActorChat,
		Type: models.ActivitySlackMessage, Timestamp: t0.Add(-time.Hour)}
	first, created, err := eng.RecordActivity(ctx, in)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "ext:slack-1", first.DedupKey)

	again, created, err := eng.RecordActivity(ctx, in)
	require.NoError(t, err)
	assert.False(t, created, "replays are stored once")
	assert.Equal(t, first.ID, again.ID)

	p, err := eng.Store().GetPerson(ctx, first.PersonID)
	require.NoError(t, err)
	assert.Equal(t, "U1", p.ChatID)
	assert.Equal(t, models.MappingUnmapped, p.MappingStatus)
	require.NotNil(t, p.LastActivityAt)
	assert.True(t, p.LastActivityAt.Equal(t0.Add(-time.Hour)))

	_, _, err = eng.RecordActivity(ctx, models.InboundEvent{ActorID: "U1", ActorKind: models.ActorChat, Type: "bogus"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, _, err = eng.RecordActivity(ctx, models.InboundEvent{ActorID: "U1", ActorKind: "fax", Type: models.ActivityChatMessage})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestComputeScoreScenario(t *testing.T) {
	eng, _ := setupTestEngine(t)
	ctx := context.Background()

	var personID uuid.UUID
	for i := 0; i < 3; i++ {
		ev, _, err := eng.RecordActivity(ctx, models.InboundEvent{ActorID: "a@example.com", ActorKind: models.ActorEmail,
			Type: models.ActivityChatMessage, Timestamp: t0.Add(-time.Duration(i+1) * time.Hour)})
		require.NoError(t, err)
		personID = ev.PersonID
	}
	_, _, err := eng.RecordActivity(ctx, models.InboundEvent{ActorID: "A@Example.com ", ActorKind: models.ActorEmail,
		Type: models.ActivityEventAttended, Timestamp: t0.Add(-72 * time.Hour)})
	require.NoError(t, err)

	score, err := eng.ComputeScore(ctx, personID)
	require.NoError(t, err)
	assert.Equal(t, 50, score.Total)

	p, err := eng.Store().GetPerson(ctx, personID)
	require.NoError(t, err)
	assert.Equal(t, 50, p.Score)
	assert.Equal(t, eng.Options().ScoreFormula, p.ScoreFormula)
}

func TestEvaluateCreatesDecisionAndQueuesDispatch(t *testing.T) {
	eng, _ := setupTestEngine(t, goal("welcome", 10))
	ctx := context.Background()
	personID := addPerson(t, eng, "U1")

	d, err := eng.Evaluate(ctx, personID)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "welcome", d.GoalName)
	assert.Equal(t, models.ChannelWeb, d.Channel)
	assert.Equal(t, "Hi Ada, your score is 10", d.Message, "a stale score is recomputed first")
	assert.Equal(t, models.DecisionPending, d.Status)

	again, err := eng.Evaluate(ctx, personID)
	require.NoError(t, err)
	assert.Equal(t, d.ID, again.ID, "an open decision is returned instead of a new one")

	msg, err := eng.Store().GetOutboxByDedupKey(ctx, "dispatch:"+d.ID)
	require.NoError(t, err)
	assert.Equal(t, eng.Options().DispatchTopic, msg.Topic)
	assert.Equal(t, d.ID, msg.Key)
	var req models.DispatchRequest
	require.NoError(t, json.Unmarshal(msg.Payload, &req))
	assert.Equal(t, d.Message, req.Message)
	assert.Equal(t, d.ConfigVersionID, req.ConfigVersionID)

	st, err := eng.Store().GetGoalState(ctx, personID, d.GoalID)
	require.NoError(t, err)
	assert.Equal(t, models.GoalProposed, st.Status)
	assert.Equal(t, d.ID, st.LastDecisionID)

	v, err := eng.Store().GetVersion(ctx, d.ConfigVersionID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, v.MessageCount)
}

func TestEvaluateWithoutEligibleGoal(t *testing.T) {
	g := goal("link_account", 10)
	mapped := true
	g.RequiresMapped = &mapped
	g.RequiresMinEngagement = 30
	eng, _ := setupTestEngine(t, g)
	personID := addPerson(t, eng, "U1")

	d, err := eng.Evaluate(context.Background(), personID)
	require.NoError(t, err)
	assert.Nil(t, d)

	preview, err := eng.Preview(context.Background(), personID)
	require.NoError(t, err)
	assert.Nil(t, preview.Selection)
	require.Len(t, preview.Verdicts, 1)
	assert.Equal(t, "requires a mapped person", preview.Verdicts[0].Reason)
}

func TestPreviewWritesNothing(t *testing.T) {
	eng, _ := setupTestEngine(t, goal("welcome", 10))
	ctx := context.Background()
	personID := addPerson(t, eng, "U1")

	preview, err := eng.Preview(ctx, personID)
	require.NoError(t, err)
	require.NotNil(t, preview.Selection)
	assert.Equal(t, 10, preview.Person.Score, "the stale score is recomputed in memory")
	assert.Zero(t, preview.Version.ID, "unseen rule content is not stored")
	assert.NotEmpty(t, preview.Version.Hash)

	versions, err := eng.Store().ListVersions(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, versions)
	_, err = eng.Store().GetActiveVersion(ctx)
	assert.ErrorIs(t, err, db.ErrNotFound)

	p, err := eng.Store().GetPerson(ctx, personID)
	require.NoError(t, err)
	assert.Nil(t, p.ScoresComputedAt)

	d, err := eng.Evaluate(ctx, personID)
	require.NoError(t, err)
	again, err := eng.Preview(ctx, personID)
	require.NoError(t, err)
	assert.Equal(t, d.ConfigVersionID, again.Version.ID, "stored rule content resolves to its version")
	assert.Equal(t, preview.Version.Hash, again.Version.Hash)
}

func TestVersionTagging(t *testing.T) {
	eng, _ := setupTestEngine(t, goal("welcome", 10), goal("survey", 1))
	ctx := context.Background()

	d1, err := eng.Evaluate(ctx, addPerson(t, eng, "U1"))
	require.NoError(t, err)
	d2, err := eng.Evaluate(ctx, addPerson(t, eng, "U2"))
	require.NoError(t, err)
	assert.Equal(t, d1.ConfigVersionID, d2.ConfigVersionID)

	require.NoError(t, eng.Store().SetGoalEnabled(ctx, "survey", false))
	d3, err := eng.Evaluate(ctx, addPerson(t, eng, "U3"))
	require.NoError(t, err)
	assert.NotEqual(t, d1.ConfigVersionID, d3.ConfigVersionID)

	stats, err := eng.Versioner().VersionStats(ctx, d1.ConfigVersionID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Decisions)
	assert.Equal(t, 2, stats.OpenDecisions)
}

func TestDeclineRespectsCooldown(t *testing.T) {
	eng, c := setupTestEngine(t, goal("join_working_group", 10, models.GoalOutcome{
		TriggerType: models.TriggerSentiment, TriggerValue: models.SentimentNegative,
		OutcomeType: models.OutcomeDecline, DeferDays: 30,
	}))
	ctx := context.Background()
	personID := addPerson(t, eng, "U1")

	d, err := eng.Evaluate(ctx, personID)
	require.NoError(t, err)
	res, err := eng.RespondToDecision(ctx, d.ID, models.Signal{Kind: models.SignalSentiment, Value: models.SentimentNegative}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeDecline, res.Outcome.OutcomeType)
	assert.Equal(t, models.GoalDeferred, res.GoalState.Status)
	until := t0.AddDate(0, 0, 30)
	require.NotNil(t, res.GoalState.DeferredUntil)
	assert.True(t, res.GoalState.DeferredUntil.Equal(until))

	c.Set(t0.AddDate(0, 0, 29))
	d, err = eng.Evaluate(ctx, personID)
	require.NoError(t, err)
	assert.Nil(t, d, "deferred within the window")

	c.Set(until)
	d, err = eng.Evaluate(ctx, personID)
	require.NoError(t, err)
	assert.Nil(t, d, "still deferred at the exact boundary")

	c.Set(until.Add(time.Second))
	d, err = eng.Evaluate(ctx, personID)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "join_working_group", d.GoalName)
}

func TestEscalation(t *testing.T) {
	eng, _ := setupTestEngine(t, goal("renewal_check_in", 10, models.GoalOutcome{
		TriggerType: models.TriggerSentiment, TriggerValue: models.SentimentNegative, OutcomeType: models.OutcomeEscalate,
	}))
	ctx := context.Background()
	personID := addPerson(t, eng, "U1")

	d, err := eng.Evaluate(ctx, personID)
	require.NoError(t, err)
	res, err := eng.RespondToDecision(ctx, d.ID, models.Signal{Kind: models.SignalSentiment, Value: models.SentimentNegative}, nil)
	require.NoError(t, err)
	assert.True(t, res.Escalated)
	assert.Equal(t, models.GoalEscalated, res.GoalState.Status)

	_, err = eng.RespondToDecision(ctx, d.ID, models.Signal{Kind: models.SignalSentiment, Value: models.SentimentNegative}, nil)
	assert.ErrorIs(t, err, ErrAlreadyResolved)

	msgs, err := eng.Store().ListOutbox(ctx, eng.Options().EscalationTopic, false)
	require.NoError(t, err)
	require.Len(t, msgs, 1, "exactly one escalation")
	var esc models.Escalation
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &esc))
	assert.Equal(t, d.ID, esc.DecisionID)
	assert.Equal(t, "renewal_check_in", esc.GoalName)
	assert.Equal(t, "sentiment:negative", esc.Reason)

	next, err := eng.Evaluate(ctx, personID)
	require.NoError(t, err)
	assert.Nil(t, next, "an escalated goal is terminal")

	stats, err := eng.Versioner().VersionStats(ctx, d.ConfigVersionID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Version.NegativeFeedback)
	assert.Equal(t, 1, stats.OutcomeBreakdown[models.OutcomeEscalate])
}

func TestRespondUsesDecisionVersionRules(t *testing.T) {
	eng, _ := setupTestEngine(t, goal("join_working_group", 10, models.GoalOutcome{
		TriggerType: models.TriggerSentiment, TriggerValue: models.SentimentNegative,
		OutcomeType: models.OutcomeDecline, DeferDays: 30,
	}))
	ctx := context.Background()
	personID := addPerson(t, eng, "U1")

	d, err := eng.Evaluate(ctx, personID)
	require.NoError(t, err)

	// An administrator rewrites the outcome table while the message is out.
	live, err := eng.Store().GetGoal(ctx, d.GoalID)
	require.NoError(t, err)
	live.Outcomes = []models.GoalOutcome{
		{TriggerType: models.TriggerSentiment, TriggerValue: models.SentimentNegative, OutcomeType: models.OutcomeEscalate},
		{TriggerType: models.TriggerDefault, OutcomeType: models.OutcomeClarify},
	}
	require.NoError(t, eng.Store().UpsertGoal(ctx, live))

	res, err := eng.RespondToDecision(ctx, d.ID, models.Signal{Kind: models.SignalSentiment, Value: models.SentimentNegative}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeDecline, res.Outcome.OutcomeType, "the reply resolves under the rules the decision was made with")
	assert.False(t, res.Escalated)
	assert.Equal(t, models.GoalDeferred, res.GoalState.Status, "the snapshot's 30 day cooldown applies")

	msgs, err := eng.Store().ListOutbox(ctx, eng.Options().EscalationTopic, false)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestRespondRecordsInsightAndRating(t *testing.T) {
	eng, _ := setupTestEngine(t, goal("membership_pitch", 10, models.GoalOutcome{
		TriggerType: models.TriggerIntent, TriggerValue: "wants_to_join", OutcomeType: models.OutcomeSuccess,
		InsightToRecord: models.InsightMembershipIntent, InsightValue: "interested",
	}))
	ctx := context.Background()
	personID := addPerson(t, eng, "U1")

	_, err := eng.RecordInsight(ctx, InsightInput{SubjectKind: models.SubjectPerson, SubjectID: personID,
		Type: models.InsightMembershipIntent, Value: "not_now", Source: "analyst"})
	require.NoError(t, err)

	d, err := eng.Evaluate(ctx, personID)
	require.NoError(t, err)
	rating := 4
	res, err := eng.RespondToDecision(ctx, d.ID, models.Signal{Kind: models.SignalIntent, Value: "Wants_To_Join"}, &rating)
	require.NoError(t, err)
	require.NotNil(t, res.Insight)
	assert.Equal(t, "interested", res.Insight.Value)
	assert.Equal(t, models.GoalSucceeded, res.GoalState.Status)

	current, err := eng.Store().ListInsights(ctx, models.SubjectPerson, personID, true)
	require.NoError(t, err)
	require.Len(t, current, 1, "exactly one current insight of the type")
	assert.Equal(t, "interested", current[0].Value)

	all, err := eng.Store().ListInsights(ctx, models.SubjectPerson, personID, false)
	require.NoError(t, err)
	assert.Len(t, all, 2, "the superseded insight is kept")

	v, err := eng.Store().GetVersion(ctx, d.ConfigVersionID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, v.PositiveFeedback)
	assert.EqualValues(t, 4, v.RatingSum)
	assert.InDelta(t, 4.0, v.AvgRating(), 0.001)

	stored, err := eng.Store().GetDecision(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionResolved, stored.Status)
	require.NotNil(t, stored.Rating)
	assert.Equal(t, 4, *stored.Rating)
}

func TestRespondRejectsBadInput(t *testing.T) {
	eng, _ := setupTestEngine(t, goal("welcome", 10))
	ctx := context.Background()
	d, err := eng.Evaluate(ctx, addPerson(t, eng, "U1"))
	require.NoError(t, err)

	bad := 9
	_, err = eng.RespondToDecision(ctx, d.ID, models.Signal{Kind: models.SignalSentiment, Value: models.SentimentPositive}, &bad)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = eng.RespondToDecision(ctx, d.ID, models.Signal{Kind: "telepathy"}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = eng.RespondToDecision(ctx, "missing", models.Signal{Kind: models.SignalTimeout}, nil)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestSweepTimeouts(t *testing.T) {
	eng, c := setupTestEngine(t, goal("event_invite", 10, models.GoalOutcome{
		TriggerType: models.TriggerTimeout, TriggerValue: "72", OutcomeType: models.OutcomeDefer, DeferDays: 7,
	}))
	ctx := context.Background()
	personID := addPerson(t, eng, "U1")
	d, err := eng.Evaluate(ctx, personID)
	require.NoError(t, err)

	n, err := eng.SweepTimeouts(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	c.Advance(73 * time.Hour)
	n, err = eng.SweepTimeouts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := eng.Store().GetDecision(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeDefer, stored.OutcomeType)
	assert.Equal(t, models.SignalTimeout, stored.SignalKind)

	st, err := eng.Store().GetGoalState(ctx, personID, d.GoalID)
	require.NoError(t, err)
	assert.Equal(t, models.GoalDeferred, st.Status)

	n, err = eng.SweepTimeouts(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweepTimeoutsCountsFromDispatch(t *testing.T) {
	eng, c := setupTestEngine(t, goal("event_invite", 10, models.GoalOutcome{
		TriggerType: models.TriggerTimeout, TriggerValue: "72", OutcomeType: models.OutcomeDefer, DeferDays: 7,
	}))
	ctx := context.Background()
	personID := addPerson(t, eng, "U1")
	d, err := eng.Evaluate(ctx, personID)
	require.NoError(t, err)

	// The relay delivered two hours late.
	c.Advance(2 * time.Hour)
	require.NoError(t, eng.MarkDispatched(ctx, d.ID))

	c.Set(t0.Add(73 * time.Hour))
	n, err := eng.SweepTimeouts(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "71 hours since dispatch is inside the response window")

	stored, err := eng.Store().GetDecision(ctx, d.ID)
	require.NoError(t, err)
	assert.True(t, stored.Open())

	c.Set(t0.Add(75 * time.Hour))
	n, err = eng.SweepTimeouts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err = eng.Store().GetDecision(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SignalTimeout, stored.SignalKind)
	assert.Equal(t, models.OutcomeDefer, stored.OutcomeType, "the 72 hour timeout rule applies, not the default")

	st, err := eng.Store().GetGoalState(ctx, personID, d.GoalID)
	require.NoError(t, err)
	assert.Equal(t, models.GoalDeferred, st.Status)
}

func TestDispatchFailureEscalatesWithUnknownReason(t *testing.T) {
	g := goal("welcome", 10)
	g.Outcomes = []models.GoalOutcome{{TriggerType: models.TriggerDefault, OutcomeType: models.OutcomeEscalate}}
	eng, _ := setupTestEngine(t, g)
	ctx := context.Background()
	d, err := eng.Evaluate(ctx, addPerson(t, eng, "U1"))
	require.NoError(t, err)

	msg := models.OutboxMessage{Topic: eng.Options().DispatchTopic, Key: d.ID}
	require.NoError(t, eng.OnAbandoned(ctx, msg, errors.New("broker down")))
	require.NoError(t, eng.OnAbandoned(ctx, msg, errors.New("broker down")), "a repeat is absorbed")

	stored, err := eng.Store().GetDecision(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SignalDispatchFailed, stored.SignalKind)
	assert.Equal(t, models.OutcomeEscalate, stored.OutcomeType)

	msgs, err := eng.Store().ListOutbox(ctx, eng.Options().EscalationTopic, false)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	var esc models.Escalation
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &esc))
	assert.Equal(t, "unknown", esc.Reason)
}

func TestRelayMarksDecisionDispatched(t *testing.T) {
	eng, _ := setupTestEngine(t, goal("welcome", 10))
	ctx := context.Background()
	d, err := eng.Evaluate(ctx, addPerson(t, eng, "U1"))
	require.NoError(t, err)

	relay := dispatch.NewRelay(eng.Store(), dispatch.NewLogPublisher(), dispatch.RelayConfig{})
	relay.OnPublished = eng.OnPublished
	relay.OnAbandoned = eng.OnAbandoned
	n, err := relay.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := eng.Store().GetDecision(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionDispatched, stored.Status)
	require.NotNil(t, stored.DispatchedAt)

	pending, err := eng.Store().ListOutbox(ctx, "", true)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestResetGoal(t *testing.T) {
	eng, _ := setupTestEngine(t, goal("welcome", 10, models.GoalOutcome{
		TriggerType: models.TriggerSentiment, TriggerValue: models.SentimentPositive, OutcomeType: models.OutcomeSuccess,
	}))
	ctx := context.Background()
	personID := addPerson(t, eng, "U1")
	d, err := eng.Evaluate(ctx, personID)
	require.NoError(t, err)

	_, err = eng.ResetGoal(ctx, personID, d.GoalID)
	assert.ErrorIs(t, err, db.ErrConflict, "an open decision blocks a reset")

	_, err = eng.RespondToDecision(ctx, d.ID, models.Signal{Kind: models.SignalSentiment, Value: models.SentimentPositive}, nil)
	require.NoError(t, err)
	next, err := eng.Evaluate(ctx, personID)
	require.NoError(t, err)
	assert.Nil(t, next)

	st, err := eng.ResetGoal(ctx, personID, d.GoalID)
	require.NoError(t, err)
	assert.Equal(t, models.GoalProposed, st.Status)

	next, err = eng.Evaluate(ctx, personID)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.NotEqual(t, d.ID, next.ID)

	history, err := eng.Store().GoalHistory(ctx, personID, &d.GoalID)
	require.NoError(t, err)
	var triggers []string
	for _, h := range history {
		triggers = append(triggers, h.Trigger)
	}
	assert.Equal(t, []string{TriggerEvaluate, "outcome:success", TriggerAdminReset, TriggerEvaluate}, triggers)
}

func TestComputeOrgScoreSyncsJourney(t *testing.T) {
	eng, _ := setupTestEngine(t)
	ctx := context.Background()

	org := &models.Organization{Name: "Acme", SubscriptionStatus: models.SubscriptionActive}
	require.NoError(t, eng.Store().CreateOrganization(ctx, org))
	for i := 0; i < 3; i++ {
		_, _, err := eng.RecordActivity(ctx, models.InboundEvent{ActorID: "acct-1", ActorKind: models.ActorAccount,
			Type: models.ActivityChatMessage, Timestamp: t0.Add(-time.Duration(i+1) * time.Hour), OrganizationID: &org.ID})
		require.NoError(t, err)
	}

	score, err := eng.ComputeOrgScore(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, score)

	stored, err := eng.Store().GetOrganization(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageOnboarding, stored.JourneyStage)

	history, err := eng.Journey().History(ctx, org.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.JourneyTriggerEngagement, history[0].Trigger)
}

func TestRecordInsightValidation(t *testing.T) {
	eng, _ := setupTestEngine(t)
	ctx := context.Background()

	_, err := eng.RecordInsight(ctx, InsightInput{SubjectKind: "team", SubjectID: uuid.New(), Type: models.InsightRole})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = eng.RecordInsight(ctx, InsightInput{SubjectKind: models.SubjectPerson, SubjectID: uuid.New(), Type: models.InsightRole, Confidence: 2})
	assert.ErrorIs(t, err, ErrInvalidInput)

	ins, err := eng.RecordInsight(ctx, InsightInput{SubjectKind: models.SubjectPerson, SubjectID: uuid.New(), Type: models.InsightRole, Value: "cto"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, ins.Confidence)
	assert.True(t, ins.IsCurrent)
}
