package outcomes

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/engage/models"
	"github.com/harperreed/engage/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func outcome(trigger, value, result string, priority int) models.GoalOutcome {
	return models.GoalOutcome{
		ID:           uuid.New(),
		TriggerType:  trigger,
		TriggerValue: value,
		OutcomeType:  result,
		Priority:     priority,
	}
}

func testGoal() *models.Goal {
	return &models.Goal{
		Name:            "membership_pitch",
		MessageTemplate: "Hi {{first_name}}",
		Enabled:         true,
		Outcomes: []models.GoalOutcome{
			outcome(models.TriggerSentiment, models.SentimentPositive, models.OutcomeSuccess, 0),
			outcome(models.TriggerSentiment, models.SentimentNegative, models.OutcomeEscalate, 0),
			outcome(models.TriggerIntent, "question", models.OutcomeClarify, 0),
			outcome(models.TriggerTimeout, "72", models.OutcomeDefer, 0),
			outcome(models.TriggerTimeout, "", models.OutcomeClarify, 0),
			outcome(models.TriggerDefault, "", models.OutcomeDecline, 0),
		},
	}
}

func TestResolvePrecedence(t *testing.T) {
	g := testGoal()

	tests := []struct {
		name string
		sig  models.Signal
		want string
	}{
		{"exact sentiment", models.Signal{Kind: models.SignalSentiment, Value: "positive"}, models.OutcomeSuccess},
		{"case insensitive", models.Signal{Kind: models.SignalSentiment, Value: "NEGATIVE"}, models.OutcomeEscalate},
		{"exact intent", models.Signal{Kind: models.SignalIntent, Value: "question"}, models.OutcomeClarify},
		{"unmatched sentiment falls to default", models.Signal{Kind: models.SignalSentiment, Value: "neutral"}, models.OutcomeDecline},
		{"timeout past threshold", models.Signal{Kind: models.SignalTimeout, ElapsedHours: 80}, models.OutcomeDefer},
		{"timeout before threshold", models.Signal{Kind: models.SignalTimeout, ElapsedHours: 10}, models.OutcomeClarify},
		{"dispatch failure uses default", models.Signal{Kind: models.SignalDispatchFailed}, models.OutcomeDecline},
		{"classifier down uses default", models.Signal{Kind: models.SignalClassificationUnavailable}, models.OutcomeDecline},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(g, tt.sig)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.OutcomeType)
		})
	}
}

func TestResolvePriorityTieBreak(t *testing.T) {
	g := &models.Goal{
		Name: "tie",
		Outcomes: []models.GoalOutcome{
			outcome(models.TriggerSentiment, "refusal", models.OutcomeDecline, 1),
			outcome(models.TriggerSentiment, "refusal", models.OutcomeEscalate, 5),
			outcome(models.TriggerDefault, "", models.OutcomeClarify, 100),
		},
	}

	got, err := Resolve(g, models.Signal{Kind: models.SignalSentiment, Value: "refusal"})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeEscalate, got.OutcomeType, "exact match beats a higher priority default")
}

func TestResolveLargestTimeoutThresholdWins(t *testing.T) {
	g := &models.Goal{
		Name: "timeouts",
		Outcomes: []models.GoalOutcome{
			outcome(models.TriggerTimeout, "24", models.OutcomeClarify, 0),
			outcome(models.TriggerTimeout, "168", models.OutcomeDecline, 0),
			outcome(models.TriggerDefault, "", models.OutcomeDefer, 0),
		},
	}

	got, err := Resolve(g, models.Signal{Kind: models.SignalTimeout, ElapsedHours: 200})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeDecline, got.OutcomeType)

	got, err = Resolve(g, models.Signal{Kind: models.SignalTimeout, ElapsedHours: 30})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeClarify, got.OutcomeType)
}

func TestResolveNoOutcome(t *testing.T) {
	g := &models.Goal{
		Name:     "incomplete",
		Outcomes: []models.GoalOutcome{outcome(models.TriggerSentiment, "positive", models.OutcomeSuccess, 0)},
	}
	_, err := Resolve(g, models.Signal{Kind: models.SignalSentiment, Value: "negative"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoOutcome))
}

func TestOutcomeTotality(t *testing.T) {
	g := testGoal()
	require.NoError(t, rules.ValidateGoal(g))

	signals := []models.Signal{
		{Kind: models.SignalDispatchFailed},
		{Kind: models.SignalClassificationUnavailable},
	}
	for _, v := range []string{"positive", "neutral", "negative", "refusal", "gibberish", ""} {
		signals = append(signals, models.Signal{Kind: models.SignalSentiment, Value: v})
		signals = append(signals, models.Signal{Kind: models.SignalIntent, Value: v})
	}
	for _, h := range []float64{0, 1, 71.9, 72, 1000} {
		signals = append(signals, models.Signal{Kind: models.SignalTimeout, ElapsedHours: h})
	}

	for _, sig := range signals {
		_, err := Resolve(g, sig)
		assert.NoError(t, err, "signal %+v", sig)
	}
}

func TestNext(t *testing.T) {
	asOf := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		from      string
		outcome   models.GoalOutcome
		want      string
		deferDays int
		wantErr   bool
	}{
		{"success", models.GoalProposed, models.GoalOutcome{OutcomeType: models.OutcomeSuccess}, models.GoalSucceeded, 0, false},
		{"decline", models.GoalProposed, models.GoalOutcome{OutcomeType: models.OutcomeDecline}, models.GoalDeclined, 0, false},
		{"decline with defer", models.GoalProposed, models.GoalOutcome{OutcomeType: models.OutcomeDecline, DeferDays: 30}, models.GoalDeferred, 30, false},
		{"clarify", models.GoalProposed, models.GoalOutcome{OutcomeType: models.OutcomeClarify}, models.GoalProposed, 0, false},
		{"defer default window", "", models.GoalOutcome{OutcomeType: models.OutcomeDefer}, models.GoalDeferred, DefaultDeferDays, false},
		{"escalate", models.GoalDeferred, models.GoalOutcome{OutcomeType: models.OutcomeEscalate}, models.GoalEscalated, 0, false},
		{"terminal", models.GoalSucceeded, models.GoalOutcome{OutcomeType: models.OutcomeClarify}, "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			to, until, err := Next(tt.from, tt.outcome, asOf)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidTransition))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, to)
			if tt.deferDays > 0 {
				require.NotNil(t, until)
				assert.True(t, until.Equal(asOf.AddDate(0, 0, tt.deferDays)))
			} else {
				assert.Nil(t, until)
			}
		})
	}
}

func TestEscalationReason(t *testing.T) {
	assert.Equal(t, "sentiment:negative", EscalationReason(models.Signal{Kind: models.SignalSentiment, Value: "negative"}))
	assert.Equal(t, ReasonUnknown, EscalationReason(models.Signal{Kind: models.SignalDispatchFailed}))
	assert.Equal(t, ReasonUnknown, EscalationReason(models.Signal{Kind: models.SignalClassificationUnavailable}))
	assert.Equal(t, "timeout:72h", EscalationReason(models.Signal{Kind: models.SignalTimeout, ElapsedHours: 72}))
}

func TestPolarity(t *testing.T) {
	pos, neg := Polarity(models.Signal{Kind: models.SignalSentiment, Value: "positive"}, models.GoalOutcome{OutcomeType: models.OutcomeClarify})
	assert.True(t, pos)
	assert.False(t, neg)

	pos, neg = Polarity(models.Signal{Kind: models.SignalIntent, Value: "not_interested"}, models.GoalOutcome{OutcomeType: models.OutcomeDecline})
	assert.False(t, pos)
	assert.True(t, neg)

	pos, neg = Polarity(models.Signal{Kind: models.SignalTimeout, ElapsedHours: 100}, models.GoalOutcome{OutcomeType: models.OutcomeDecline})
	assert.False(t, pos)
	assert.False(t, neg)
}

func TestValidSignal(t *testing.T) {
	assert.NoError(t, ValidSignal(models.Signal{Kind: models.SignalDispatchFailed}))
	assert.Error(t, ValidSignal(models.Signal{Kind: models.SignalSentiment}))
	assert.Error(t, ValidSignal(models.Signal{Kind: "vibes"}))
	assert.Error(t, ValidSignal(models.Signal{Kind: models.SignalTimeout, ElapsedHours: -1}))
}
