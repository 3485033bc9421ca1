// ABOUTME: Goal state machine: the transition table applied after an outcome resolves
// ABOUTME: Clarify loops back to proposed, deferral parks the goal, the rest are terminal
package outcomes

import (
	"errors"
	"fmt"
	"time"

	"github.com/harperreed/engage/models"
)

var ErrInvalidTransition = errors.New("invalid goal state transition")

// DefaultDeferDays applies to a defer outcome that names no window.
const DefaultDeferDays = 7

var transitions = map[string]string{
	models.OutcomeSuccess:  models.GoalSucceeded,
	models.OutcomeDecline:  models.GoalDeclined,
	models.OutcomeClarify:  models.GoalProposed,
	models.OutcomeDefer:    models.GoalDeferred,
	models.OutcomeEscalate: models.GoalEscalated,
}

// Next returns the state a goal moves to when outcome resolves at asOf. A decline
// carrying defer days parks the goal instead of closing it. Terminal states never move.
func Next(from string, outcome models.GoalOutcome, asOf time.Time) (string, *time.Time, error) {
	switch from {
	case "", models.GoalProposed, models.GoalDeferred:
	default:
		return "", nil, fmt.Errorf("%w: goal is %s", ErrInvalidTransition, from)
	}

	to, ok := transitions[outcome.OutcomeType]
	if !ok {
		return "", nil, fmt.Errorf("%w: unknown outcome %q", ErrInvalidTransition, outcome.OutcomeType)
	}

	days := outcome.DeferDays
	if outcome.OutcomeType == models.OutcomeDefer && days == 0 {
		days = DefaultDeferDays
	}
	if (outcome.OutcomeType == models.OutcomeDecline || outcome.OutcomeType == models.OutcomeDefer) && days > 0 {
		until := asOf.UTC().AddDate(0, 0, days)
		return models.GoalDeferred, &until, nil
	}
	return to, nil, nil
}
