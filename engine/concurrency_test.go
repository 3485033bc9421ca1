// ABOUTME: Concurrency tests for the engine over a file-backed SQLite store
// ABOUTME: Fans callers out across goroutines and checks each write lands exactly once
package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/harperreed/engage/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fanOut = 8

func TestConcurrentRespondResolvesOnce(t *testing.T) {
	eng, _ := setupFileEngine(t, goal("renewal_check_in", 10, models.GoalOutcome{
		TriggerType: models.TriggerSentiment, TriggerValue: models.SentimentNegative, OutcomeType: models.OutcomeEscalate,
	}))
	ctx := context.Background()
	personID := addPerson(t, eng, "U1")
	d, err := eng.Evaluate(ctx, personID)
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		won      int
		lost     int
		failures []error
	)
	for i := 0; i < fanOut; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := eng.RespondToDecision(ctx, d.ID, models.Signal{Kind: models.SignalSentiment, Value: models.SentimentNegative}, nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won++
			case errors.Is(err, ErrAlreadyResolved):
				lost++
			default:
				failures = append(failures, err)
			}
		}()
	}
	wg.Wait()

	require.Empty(t, failures)
	assert.Equal(t, 1, won, "exactly one reply resolves the decision")
	assert.Equal(t, fanOut-1, lost)

	msgs, err := eng.Store().ListOutbox(ctx, eng.Options().EscalationTopic, false)
	require.NoError(t, err)
	assert.Len(t, msgs, 1, "exactly one escalation row")

	v, err := eng.Store().GetVersion(ctx, d.ConfigVersionID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, v.NegativeFeedback)

	next, err := eng.Evaluate(ctx, personID)
	require.NoError(t, err)
	assert.Nil(t, next, "the escalated goal is not selected again")
}

func TestConcurrentEvaluateCreatesOneDecision(t *testing.T) {
	eng, _ := setupFileEngine(t, goal("welcome", 10))
	ctx := context.Background()
	personID := addPerson(t, eng, "U1")

	ids := make([]string, fanOut)
	errs := make([]error, fanOut)
	var wg sync.WaitGroup
	for i := 0; i < fanOut; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := eng.Evaluate(ctx, personID)
			errs[i] = err
			if d != nil {
				ids[i] = d.ID
			}
		}(i)
	}
	wg.Wait()

	for i := range errs {
		require.NoError(t, errs[i], "caller %d", i)
		require.NotEmpty(t, ids[i], "caller %d got no decision", i)
		assert.Equal(t, ids[0], ids[i], "every caller sees the winning decision")
	}

	open, err := eng.Store().OpenDecisionForPerson(ctx, personID)
	require.NoError(t, err)
	assert.Equal(t, ids[0], open.ID)

	msgs, err := eng.Store().ListOutbox(ctx, eng.Options().DispatchTopic, false)
	require.NoError(t, err)
	assert.Len(t, msgs, 1, "one dispatch row")

	versions, err := eng.Store().ListVersions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, versions, 1, "one version row")
	assert.EqualValues(t, 1, versions[0].MessageCount)
}

func TestConcurrentVersionForStoresOneVersion(t *testing.T) {
	eng, _ := setupFileEngine(t, goal("welcome", 10), goal("survey", 1))
	ctx := context.Background()

	ids := make([]int64, fanOut)
	errs := make([]error, fanOut)
	var wg sync.WaitGroup
	for i := 0; i < fanOut; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := eng.Versioner().CurrentVersion(ctx)
			errs[i] = err
			if v != nil {
				ids[i] = v.ID
			}
		}(i)
	}
	wg.Wait()

	for i := range errs {
		require.NoError(t, errs[i], "caller %d", i)
		assert.Equal(t, ids[0], ids[i])
	}

	versions, err := eng.Store().ListVersions(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, versions, 1)

	active, err := eng.Store().GetActiveVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids[0], active.ID)
}

// holdCurrentInsight makes the store behave as if another writer committed a current
// insight with the given value between the supersede and the insert: the row the
// supersede just cleared is marked current again, so the insert loses on the
// one-current-row index.
func holdCurrentInsight(t *testing.T, eng *Engine, value string) {
	t.Helper()
	_, err := eng.Store().DB().Exec(`
		CREATE TRIGGER hold_current_insight AFTER UPDATE OF is_current ON insights
		WHEN OLD.is_current AND NOT NEW.is_current AND NEW.value = '` + value + `'
		BEGIN
			UPDATE insights SET is_current = 1, superseded_at = NULL WHERE id = NEW.id;
		END`)
	require.NoError(t, err)
}

func TestRecordInsightLosingRaceReturnsWinner(t *testing.T) {
	eng, _ := setupFileEngine(t)
	ctx := context.Background()
	personID := addPerson(t, eng, "U1")

	winner, err := eng.RecordInsight(ctx, InsightInput{SubjectKind: models.SubjectPerson, SubjectID: personID,
		Type: models.InsightRole, Value: "director", Source: "analyst"})
	require.NoError(t, err)
	holdCurrentInsight(t, eng, "director")

	got, err := eng.RecordInsight(ctx, InsightInput{SubjectKind: models.SubjectPerson, SubjectID: personID,
		Type: models.InsightRole, Value: "engineer", Source: "chat"})
	require.NoError(t, err, "a lost race is not an error")
	assert.Equal(t, winner.ID, got.ID)
	assert.Equal(t, "director", got.Value)

	all, err := eng.Store().ListInsights(ctx, models.SubjectPerson, personID, false)
	require.NoError(t, err)
	require.Len(t, all, 1, "the loser's row is not written")
	assert.True(t, all[0].IsCurrent)
}

func TestRespondKeepsWinningInsightOnConflict(t *testing.T) {
	eng, _ := setupFileEngine(t, goal("membership_pitch", 10, models.GoalOutcome{
		TriggerType: models.TriggerIntent, TriggerValue: "wants_to_join", OutcomeType: models.OutcomeSuccess,
		InsightToRecord: models.InsightMembershipIntent, InsightValue: "interested",
	}))
	ctx := context.Background()
	personID := addPerson(t, eng, "U1")

	winner, err := eng.RecordInsight(ctx, InsightInput{SubjectKind: models.SubjectPerson, SubjectID: personID,
		Type: models.InsightMembershipIntent, Value: "already_member", Source: "crm"})
	require.NoError(t, err)
	holdCurrentInsight(t, eng, "already_member")

	d, err := eng.Evaluate(ctx, personID)
	require.NoError(t, err)
	res, err := eng.RespondToDecision(ctx, d.ID, models.Signal{Kind: models.SignalIntent, Value: "wants_to_join"}, nil)
	require.NoError(t, err)
	require.NotNil(t, res.Insight)
	assert.Equal(t, winner.ID, res.Insight.ID, "the winner's insight stands")
	assert.Equal(t, models.GoalSucceeded, res.GoalState.Status, "the rest of the resolution commits")

	stored, err := eng.Store().GetDecision(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionResolved, stored.Status)

	n, err := eng.Store().CountCurrentInsights(ctx, models.SubjectPerson, personID, models.InsightMembershipIntent)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
