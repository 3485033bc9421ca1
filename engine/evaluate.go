// ABOUTME: Outreach evaluation: pick the next goal for a person and persist the decision
// ABOUTME: The decision, goal state, dispatch outbox row and message tally commit together
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/harperreed/engage/db"
	"github.com/harperreed/engage/logging"
	"github.com/harperreed/engage/models"
	"github.com/harperreed/engage/rules"
	"github.com/harperreed/engage/selector"
	"github.com/harperreed/engage/versioning"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// TriggerEvaluate is the goal history trigger for a goal being proposed.
const TriggerEvaluate = "evaluate"

// Preview is what an evaluation would choose, without persisting anything.
type Preview struct {
	Person    *models.Person        `json:"person"`
	Version   *models.ConfigVersion `json:"version"`
	Selection *selector.Selection   `json:"selection,omitempty"`
	Verdicts  []selector.Verdict    `json:"verdicts"`
}

type evaluation struct {
	ctx     selector.Context
	version *models.ConfigVersion
}

// prepare gathers the selection inputs, recomputing a stale score first. With persist
// unset nothing is written: the fresh score stays in memory and the version is looked
// up by hash, left unsaved with ID 0 when the rule content has never been stored.
func (e *Engine) prepare(ctx context.Context, personID uuid.UUID, persist bool) (*evaluation, error) {
	asOf := e.now().UTC()

	person, err := e.store.GetPerson(ctx, personID)
	if err != nil {
		return nil, err
	}
	if person.Deleted {
		return nil, fmt.Errorf("person %s is deleted: %w", personID, db.ErrNotFound)
	}
	if e.aggregator.Stale(person, asOf, e.opts.ScoreMaxAge) {
		compute := e.aggregator.Score
		if persist {
			compute = e.aggregator.ComputeScore
		}
		score, err := compute(ctx, personID, asOf)
		if err != nil {
			return nil, err
		}
		person.Score = score.Total
		person.ScoreComponents = score.Components
		person.ScoreFormula = score.Formula
		person.ScoresComputedAt = &score.ComputedAt
	}

	var org *models.Organization
	if person.OrganizationID != nil {
		org, err = e.store.GetOrganization(ctx, *person.OrganizationID)
		if err != nil {
			return nil, fmt.Errorf("failed to load organization: %w", err)
		}
	}

	rs, err := e.store.LoadRuleSet(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	var version *models.ConfigVersion
	if persist {
		version, err = e.versioner.VersionFor(ctx, rs)
	} else {
		version, err = e.lookupVersion(ctx, rs)
	}
	if err != nil {
		return nil, err
	}

	insights, err := e.store.CurrentInsightsFor(ctx, personID, person.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load insights: %w", err)
	}
	states, err := e.store.GoalStatesFor(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("failed to load goal states: %w", err)
	}

	active := rs.Active()
	return &evaluation{
		version: version,
		ctx: selector.Context{
			Person:   person,
			Org:      org,
			Insights: insights,
			States:   states,
			Goals:    active.Goals,
			Routing:  active.RoutingRules,
			AsOf:     asOf,
		},
	}, nil
}

// lookupVersion returns the stored version matching rs without creating one or
// moving the active pointer.
func (e *Engine) lookupVersion(ctx context.Context, rs *rules.RuleSet) (*models.ConfigVersion, error) {
	built, err := e.versioner.Build(rs)
	if err != nil {
		return nil, err
	}
	stored, err := e.store.GetVersionByHash(ctx, built.Hash)
	if errors.Is(err, db.ErrNotFound) {
		return built, nil
	}
	return stored, err
}

// Preview runs selection for a person and explains every goal's verdict. It writes nothing.
func (e *Engine) Preview(ctx context.Context, personID uuid.UUID) (*Preview, error) {
	ev, err := e.prepare(ctx, personID, false)
	if err != nil {
		return nil, err
	}
	return &Preview{
		Person:    ev.ctx.Person,
		Version:   ev.version,
		Selection: selector.Select(ev.ctx),
		Verdicts:  selector.Explain(ev.ctx),
	}, nil
}

// Evaluate chooses the next outreach goal for a person and records the decision.
// A person with an open decision gets that decision back; a person no goal applies
// to gets nil. The dispatch message is queued in the same transaction as the decision.
func (e *Engine) Evaluate(ctx context.Context, personID uuid.UUID) (*models.Decision, error) {
	open, err := e.store.OpenDecisionForPerson(ctx, personID)
	if err == nil {
		return open, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	ev, err := e.prepare(ctx, personID, true)
	if err != nil {
		return nil, err
	}
	sel := selector.Select(ev.ctx)
	if sel == nil {
		logging.Debug("no eligible goal", zap.String("person_id", personID.String()), zap.Int64("version_id", ev.version.ID))
		return nil, nil
	}

	now := ev.ctx.AsOf
	d := &models.Decision{
		ID:              ulid.Make().String(),
		PersonID:        personID,
		OrganizationID:  ev.ctx.Person.OrganizationID,
		GoalID:          sel.Goal.ID,
		GoalName:        sel.Goal.Name,
		ConfigVersionID: ev.version.ID,
		Channel:         sel.Channel,
		Message:         sel.Message,
		Status:          models.DecisionPending,
		CreatedAt:       now,
	}
	payload, err := json.Marshal(models.DispatchRequest{
		DecisionID:      d.ID,
		PersonID:        personID.String(),
		Channel:         d.Channel,
		Message:         d.Message,
		GoalName:        d.GoalName,
		ConfigVersionID: d.ConfigVersionID,
	})
	if err != nil {
		return nil, err
	}

	err = e.store.InTx(ctx, func(tx *db.Store) error {
		if err := tx.CreateDecision(ctx, d); err != nil {
			return err
		}
		st := &models.GoalState{
			PersonID:       personID,
			GoalID:         d.GoalID,
			Status:         models.GoalProposed,
			LastDecisionID: d.ID,
			UpdatedAt:      now,
		}
		if err := tx.TransitionGoalState(ctx, st, TriggerEvaluate); err != nil {
			return fmt.Errorf("failed to propose goal: %w", err)
		}
		if _, err := tx.EnqueueOutbox(ctx, &models.OutboxMessage{
			Topic:     e.opts.DispatchTopic,
			DedupKey:  "dispatch:" + d.ID,
			Key:       d.ID,
			Payload:   payload,
			CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("failed to queue dispatch: %w", err)
		}
		_, err := versioning.New(tx, e.aggregator.FormulaName()).RecordDecision(ctx, d.ConfigVersionID,
			models.Tally{DecisionID: d.ID, Kind: models.TallyMessage})
		return err
	})
	if errors.Is(err, db.ErrConflict) {
		// Another evaluation committed first; its decision stands.
		return e.store.OpenDecisionForPerson(ctx, personID)
	}
	if err != nil {
		return nil, err
	}

	logging.Info("outreach decided",
		zap.String("decision_id", d.ID),
		zap.String("person_id", personID.String()),
		zap.String("goal", d.GoalName),
		zap.String("channel", d.Channel),
		zap.Int64("version_id", d.ConfigVersionID))
	return d, nil
}
