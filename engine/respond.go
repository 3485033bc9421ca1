// ABOUTME: Outcome application: resolve a decision from a signal and persist every effect
// ABOUTME: Also sweeps timed-out decisions and handles dispatch results from the outbox relay
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/engage/db"
	"github.com/harperreed/engage/logging"
	"github.com/harperreed/engage/models"
	"github.com/harperreed/engage/outcomes"
	"github.com/harperreed/engage/rules"
	"github.com/harperreed/engage/versioning"
	"go.uber.org/zap"
)

const (
	MinRating = 1
	MaxRating = 5

	// TriggerAdminReset is the goal history trigger for an administrator re-entry.
	TriggerAdminReset = "admin_reset"
)

// Resolution is the result of applying a signal to a decision.
type Resolution struct {
	Decision  models.Decision    `json:"decision"`
	Outcome   models.GoalOutcome `json:"outcome"`
	GoalState models.GoalState   `json:"goal_state"`
	Insight   *models.Insight    `json:"insight,omitempty"`
	Escalated bool               `json:"escalated"`
}

// RespondToDecision resolves an open decision with a classified signal and an optional
// rating. The decision close, goal transition, insight, escalation message and feedback
// tally commit in one transaction; a decision resolved elsewhere first yields ErrAlreadyResolved.
func (e *Engine) RespondToDecision(ctx context.Context, decisionID string, sig models.Signal, rating *int) (*Resolution, error) {
	if err := outcomes.ValidSignal(sig); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if rating != nil && (*rating < MinRating || *rating > MaxRating) {
		return nil, fmt.Errorf("%w: rating must be between %d and %d", ErrInvalidInput, MinRating, MaxRating)
	}

	d, err := e.store.GetDecision(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	if !d.Open() {
		return nil, fmt.Errorf("decision %s: %w", decisionID, ErrAlreadyResolved)
	}

	goal, err := e.decisionGoal(ctx, d)
	if err != nil {
		return nil, err
	}
	outcome, err := outcomes.Resolve(goal, sig)
	if err != nil {
		logging.Error("goal has no outcome for signal",
			zap.String("goal", goal.Name),
			zap.String("signal_kind", sig.Kind),
			zap.String("signal_value", sig.Value),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	asOf := e.now().UTC()
	res := &Resolution{Outcome: outcome}

	err = e.store.InTx(ctx, func(tx *db.Store) error {
		d.OutcomeType = outcome.OutcomeType
		d.SignalKind = sig.Kind
		d.SignalValue = sig.Value
		d.Rating = rating
		d.ResolvedAt = &asOf
		if err := tx.ResolveDecision(ctx, d); err != nil {
			if errors.Is(err, db.ErrConflict) {
				return fmt.Errorf("decision %s: %w", d.ID, ErrAlreadyResolved)
			}
			return err
		}

		from := ""
		prev, err := tx.GetGoalState(ctx, d.PersonID, d.GoalID)
		switch {
		case err == nil:
			from = prev.Status
		case !errors.Is(err, db.ErrNotFound):
			return err
		}
		to, until, err := outcomes.Next(from, outcome, asOf)
		if err != nil {
			return err
		}
		st := models.GoalState{
			PersonID:       d.PersonID,
			GoalID:         d.GoalID,
			Status:         to,
			DeferredUntil:  until,
			LastDecisionID: d.ID,
			UpdatedAt:      asOf,
		}
		if err := tx.TransitionGoalState(ctx, &st, "outcome:"+outcome.OutcomeType); err != nil {
			return fmt.Errorf("failed to move goal state: %w", err)
		}
		res.GoalState = st

		if outcome.InsightToRecord != "" {
			ins, err := recordOutcomeInsight(ctx, tx, d, goal, outcome, sig, asOf)
			if err != nil {
				return err
			}
			res.Insight = ins
		}

		if outcome.OutcomeType == models.OutcomeEscalate {
			if err := e.enqueueEscalation(ctx, tx, d, outcomes.EscalationReason(sig), asOf); err != nil {
				return err
			}
			res.Escalated = true
		}

		if outcomes.IsResponse(sig) || rating != nil {
			pos, neg := outcomes.Polarity(sig, outcome)
			_, err := versioning.New(tx, e.aggregator.FormulaName()).RecordDecision(ctx, d.ConfigVersionID, models.Tally{
				DecisionID: d.ID,
				Kind:       models.TallyFeedback,
				Positive:   pos,
				Negative:   neg,
				Rating:     rating,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.Decision = *d
	logging.Info("decision resolved",
		zap.String("decision_id", d.ID),
		zap.String("goal", d.GoalName),
		zap.String("signal", sig.Kind),
		zap.String("outcome", outcome.OutcomeType),
		zap.String("goal_state", res.GoalState.Status),
		zap.Bool("escalated", res.Escalated))
	return res, nil
}

// decisionGoal returns the goal as the decision's config version recorded it, so a
// reply resolves under the outcome table the decision was made with. Decisions whose
// version holds no snapshot of the goal fall back to the stored goal.
func (e *Engine) decisionGoal(ctx context.Context, d *models.Decision) (*models.Goal, error) {
	v, err := e.store.GetVersion(ctx, d.ConfigVersionID)
	switch {
	case err == nil:
		g, err := rules.GoalFromSnapshot(v.Snapshot, d.GoalID)
		if err == nil {
			return g, nil
		}
		logging.Warn("version snapshot lacks decision goal, using stored goal",
			zap.String("decision_id", d.ID),
			zap.Int64("version_id", d.ConfigVersionID),
			zap.Error(err))
	case !errors.Is(err, db.ErrNotFound):
		return nil, err
	}

	goal, err := e.store.GetGoal(ctx, d.GoalID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			logging.Error("decision references a missing goal", zap.String("decision_id", d.ID), zap.String("goal_id", d.GoalID.String()))
			return nil, fmt.Errorf("%w: goal %s for decision %s is gone", ErrConfiguration, d.GoalID, d.ID)
		}
		return nil, err
	}
	return goal, nil
}

// recordOutcomeInsight writes the outcome's insight about the person. Losing the
// current-insight race keeps the winner's row.
func recordOutcomeInsight(ctx context.Context, tx *db.Store, d *models.Decision, goal *models.Goal,
	outcome models.GoalOutcome, sig models.Signal, asOf time.Time) (*models.Insight, error) {
	value := outcome.InsightValue
	if value == "" {
		value = sig.Value
	}
	if value == "" {
		value = outcome.OutcomeType
	}
	ins := &models.Insight{
		SubjectKind: models.SubjectPerson,
		SubjectID:   d.PersonID,
		Type:        outcome.InsightToRecord,
		Value:       value,
		Confidence:  1,
		Source:      "outreach:" + goal.Name,
		CreatedAt:   asOf,
	}
	err := tx.RecordInsight(ctx, ins)
	if errors.Is(err, db.ErrConflict) {
		return tx.CurrentInsight(ctx, models.SubjectPerson, d.PersonID, outcome.InsightToRecord)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record insight: %w", err)
	}
	return ins, nil
}

func (e *Engine) enqueueEscalation(ctx context.Context, tx *db.Store, d *models.Decision, reason string, at time.Time) error {
	esc := models.Escalation{
		DecisionID: d.ID,
		PersonID:   d.PersonID.String(),
		GoalName:   d.GoalName,
		Reason:     reason,
	}
	if d.OrganizationID != nil {
		esc.OrganizationID = d.OrganizationID.String()
	}
	payload, err := json.Marshal(esc)
	if err != nil {
		return err
	}
	if _, err := tx.EnqueueOutbox(ctx, &models.OutboxMessage{
		Topic:     e.opts.EscalationTopic,
		DedupKey:  "escalation:" + d.ID,
		Key:       d.ID,
		Payload:   payload,
		CreatedAt: at,
	}); err != nil {
		return fmt.Errorf("failed to queue escalation: %w", err)
	}
	logging.Warn("outreach escalated",
		zap.String("decision_id", d.ID),
		zap.String("person_id", esc.PersonID),
		zap.String("goal", d.GoalName),
		zap.String("reason", reason))
	return nil
}

// SweepTimeouts resolves every decision left unanswered past the response timeout
// with a timeout signal. The timeout runs from dispatch, so a message the relay
// delivered late gets its full window. It returns how many decisions it resolved.
func (e *Engine) SweepTimeouts(ctx context.Context) (int, error) {
	now := e.now().UTC()
	due, err := e.store.ListOpenDecisionsBefore(ctx, now.Add(-e.opts.ResponseTimeout), 0)
	if err != nil {
		return 0, err
	}

	resolved := 0
	var errs []error
	for _, d := range due {
		elapsed := now.Sub(d.WaitingSince())
		if elapsed < e.opts.ResponseTimeout {
			continue
		}
		sig := models.Signal{Kind: models.SignalTimeout, ElapsedHours: elapsed.Hours()}
		_, err := e.RespondToDecision(ctx, d.ID, sig, nil)
		switch {
		case err == nil:
			resolved++
		case errors.Is(err, ErrAlreadyResolved):
		default:
			logging.Error("timeout sweep failed", zap.String("decision_id", d.ID), zap.Error(err))
			errs = append(errs, fmt.Errorf("decision %s: %w", d.ID, err))
		}
	}
	if resolved > 0 {
		logging.Info("timed out decisions resolved", zap.Int("count", resolved))
	}
	return resolved, errors.Join(errs...)
}

// MarkDispatched records that a decision's message reached the dispatch collaborator.
func (e *Engine) MarkDispatched(ctx context.Context, decisionID string) error {
	return e.store.MarkDecisionDispatched(ctx, decisionID, e.now())
}

// MarkDispatchFailed flags the decision and routes a dispatch_failed signal through
// the goal's outcome table so the goal does not stay stuck.
func (e *Engine) MarkDispatchFailed(ctx context.Context, decisionID, reason string) (*Resolution, error) {
	if err := e.store.MarkDecisionDispatchFailed(ctx, decisionID); err != nil {
		return nil, err
	}
	return e.RespondToDecision(ctx, decisionID, models.Signal{Kind: models.SignalDispatchFailed, Value: reason}, nil)
}

// OnPublished is the relay hook for published outbox rows.
func (e *Engine) OnPublished(ctx context.Context, msg models.OutboxMessage) error {
	if msg.Topic != e.opts.DispatchTopic {
		return nil
	}
	return e.MarkDispatched(ctx, msg.Key)
}

// OnAbandoned is the relay hook for outbox rows that exhausted their attempts.
func (e *Engine) OnAbandoned(ctx context.Context, msg models.OutboxMessage, cause error) error {
	if msg.Topic != e.opts.DispatchTopic {
		logging.Error("escalation could not be delivered", zap.String("decision_id", msg.Key), zap.Error(cause))
		return nil
	}
	_, err := e.MarkDispatchFailed(ctx, msg.Key, cause.Error())
	if errors.Is(err, ErrAlreadyResolved) {
		return nil
	}
	return err
}

// ResetGoal returns a terminal or deferred goal to proposed so it can be selected again.
func (e *Engine) ResetGoal(ctx context.Context, personID, goalID uuid.UUID) (*models.GoalState, error) {
	prev, err := e.store.GetGoalState(ctx, personID, goalID)
	if err != nil {
		return nil, err
	}
	if open, err := e.store.OpenDecisionForPerson(ctx, personID); err == nil && open.GoalID == goalID {
		return nil, fmt.Errorf("goal %s has open decision %s: %w", goalID, open.ID, db.ErrConflict)
	}

	st := &models.GoalState{
		PersonID:       personID,
		GoalID:         goalID,
		Status:         models.GoalProposed,
		LastDecisionID: prev.LastDecisionID,
		UpdatedAt:      e.now().UTC(),
	}
	if err := e.store.TransitionGoalState(ctx, st, TriggerAdminReset); err != nil {
		return nil, err
	}
	logging.Info("goal reset",
		zap.String("person_id", personID.String()),
		zap.String("goal_id", goalID.String()),
		zap.String("from", prev.Status))
	return st, nil
}
