// ABOUTME: Outcome Tracker resolution of observed signals against a goal's outcome table
// ABOUTME: Exact matches beat timeout thresholds, which beat the default fallback
package outcomes

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/harperreed/engage/models"
	"github.com/harperreed/engage/rules"
)

// ErrNoOutcome means a goal's outcome table has no row for a signal, default included.
// Validation rejects such goals, so seeing it at runtime is a configuration bug.
var ErrNoOutcome = errors.New("no matching outcome")

// ReasonUnknown is the escalation reason when the signal carries no usable classification.
const ReasonUnknown = "unknown"

type candidate struct {
	outcome   models.GoalOutcome
	tier      int
	threshold float64
}

// Resolve picks the outcome for a signal. Candidates are ranked by specificity tier,
// then stored priority, then the larger timeout threshold, then outcome id.
func Resolve(goal *models.Goal, sig models.Signal) (models.GoalOutcome, error) {
	var cands []candidate

	for _, o := range goal.Outcomes {
		switch o.TriggerType {
		case models.TriggerSentiment, models.TriggerIntent:
			if o.TriggerType == sig.Kind && strings.EqualFold(o.TriggerValue, sig.Value) {
				cands = append(cands, candidate{outcome: o, tier: 0})
			}
		case models.TriggerTimeout:
			if sig.Kind != models.SignalTimeout {
				continue
			}
			if strings.TrimSpace(o.TriggerValue) == "" {
				cands = append(cands, candidate{outcome: o, tier: 1})
				continue
			}
			threshold, err := rules.TimeoutThreshold(o.TriggerValue)
			if err != nil {
				continue
			}
			if threshold <= sig.ElapsedHours {
				cands = append(cands, candidate{outcome: o, tier: 0, threshold: threshold})
			}
		case models.TriggerDefault:
			cands = append(cands, candidate{outcome: o, tier: 2})
		}
	}

	if len(cands) == 0 {
		return models.GoalOutcome{}, fmt.Errorf("goal %s, signal %s/%s: %w", goal.Name, sig.Kind, sig.Value, ErrNoOutcome)
	}

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.tier != b.tier {
			return a.tier < b.tier
		}
		if a.outcome.Priority != b.outcome.Priority {
			return a.outcome.Priority > b.outcome.Priority
		}
		if a.threshold != b.threshold {
			return a.threshold > b.threshold
		}
		return a.outcome.ID.String() < b.outcome.ID.String()
	})
	return cands[0].outcome, nil
}

// EscalationReason describes why a signal led to escalation.
func EscalationReason(sig models.Signal) string {
	switch sig.Kind {
	case models.SignalSentiment, models.SignalIntent:
		if sig.Value == "" {
			return ReasonUnknown
		}
		return sig.Kind + ":" + sig.Value
	case models.SignalTimeout:
		return fmt.Sprintf("timeout:%.0fh", sig.ElapsedHours)
	}
	return ReasonUnknown
}

// Polarity classifies a response for per-version feedback counters. Signals that are not
// responses (timeouts, dispatch or classifier failures) count as neither.
func Polarity(sig models.Signal, outcome models.GoalOutcome) (positive, negative bool) {
	if sig.Kind != models.SignalSentiment && sig.Kind != models.SignalIntent {
		return false, false
	}
	if sig.Kind == models.SignalSentiment {
		switch sig.Value {
		case models.SentimentPositive:
			return true, false
		case models.SentimentNegative, models.SentimentRefusal:
			return false, true
		}
	}
	switch outcome.OutcomeType {
	case models.OutcomeSuccess:
		return true, false
	case models.OutcomeDecline, models.OutcomeEscalate:
		return false, true
	}
	return false, false
}

// IsResponse reports whether the signal came from the person rather than the system.
func IsResponse(sig models.Signal) bool {
	return sig.Kind == models.SignalSentiment || sig.Kind == models.SignalIntent
}

// ValidSignal checks the signal kind is known.
func ValidSignal(sig models.Signal) error {
	switch sig.Kind {
	case models.SignalSentiment, models.SignalIntent:
		if sig.Value == "" {
			return fmt.Errorf("%s signal needs a value", sig.Kind)
		}
	case models.SignalTimeout:
		if sig.ElapsedHours < 0 {
			return fmt.Errorf("timeout elapsed hours must not be negative")
		}
	case models.SignalDispatchFailed, models.SignalClassificationUnavailable:
	default:
		return fmt.Errorf("unknown signal kind %q", sig.Kind)
	}
	return nil
}
