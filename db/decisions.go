// ABOUTME: Storage for outreach decisions and the per person/goal state machine
// ABOUTME: Resolution is guarded so exactly one writer resolves a decision
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/engage/models"
)

const decisionColumns = `id, person_id, organization_id, goal_id, goal_name, config_version_id, channel,
	message, status, outcome_type, signal_kind, signal_value, rating, created_at, dispatched_at, resolved_at`

// CreateDecision inserts a pending decision. A person may hold only one open decision;
// a second returns ErrConflict.
func (s *Store) CreateDecision(ctx context.Context, d *models.Decision) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	if d.Status == "" {
		d.Status = models.DecisionPending
	}
	_, err := s.exec(ctx, `
		INSERT INTO decisions (id, person_id, organization_id, goal_id, goal_name, config_version_id,
			channel, message, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.PersonID.String(), nullUUID(d.OrganizationID), d.GoalID.String(), d.GoalName,
		d.ConfigVersionID, d.Channel, d.Message, d.Status, d.CreatedAt.UTC())
	if isUniqueViolation(err) {
		return fmt.Errorf("person %s already has an open decision: %w", d.PersonID, ErrConflict)
	}
	return err
}

// GetDecision retrieves a decision by ID.
func (s *Store) GetDecision(ctx context.Context, id string) (*models.Decision, error) {
	list, err := s.listDecisions(ctx, `SELECT `+decisionColumns+` FROM decisions WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("decision %s: %w", id, ErrNotFound)
	}
	return &list[0], nil
}

// OpenDecisionForPerson returns the person's unresolved decision.
func (s *Store) OpenDecisionForPerson(ctx context.Context, personID uuid.UUID) (*models.Decision, error) {
	list, err := s.listDecisions(ctx, `SELECT `+decisionColumns+` FROM decisions
		WHERE person_id = ? AND resolved_at IS NULL`, personID.String())
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("open decision for %s: %w", personID, ErrNotFound)
	}
	return &list[0], nil
}

// ListDecisions returns a person's decisions, newest first.
func (s *Store) ListDecisions(ctx context.Context, personID uuid.UUID, limit int) ([]models.Decision, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.listDecisions(ctx, `SELECT `+decisionColumns+` FROM decisions
		WHERE person_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, personID.String(), limit)
}

// ListDecisionsByVersion returns the decisions tagged with a config version.
func (s *Store) ListDecisionsByVersion(ctx context.Context, versionID int64) ([]models.Decision, error) {
	return s.listDecisions(ctx, `SELECT `+decisionColumns+` FROM decisions
		WHERE config_version_id = ? ORDER BY created_at, id`, versionID)
}

// ListOpenDecisionsBefore returns unresolved decisions waiting since before cutoff,
// longest waiting first. A decision waits from its dispatch, or from its creation
// while it has not been dispatched.
func (s *Store) ListOpenDecisionsBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Decision, error) {
	if limit <= 0 {
		limit = 500
	}
	return s.listDecisions(ctx, `SELECT `+decisionColumns+` FROM decisions
		WHERE resolved_at IS NULL AND COALESCE(dispatched_at, created_at) <= ?
		ORDER BY COALESCE(dispatched_at, created_at), id LIMIT ?`, cutoff.UTC(), limit)
}

// MarkDecisionDispatched records that the dispatch message left the outbox.
func (s *Store) MarkDecisionDispatched(ctx context.Context, id string, at time.Time) error {
	_, err := s.exec(ctx, `
		UPDATE decisions SET status = ?, dispatched_at = ?
		WHERE id = ? AND status = ? AND resolved_at IS NULL
	`, models.DecisionDispatched, at.UTC(), id, models.DecisionPending)
	return err
}

// MarkDecisionDispatchFailed flags an open decision whose delivery failed.
func (s *Store) MarkDecisionDispatchFailed(ctx context.Context, id string) error {
	_, err := s.exec(ctx, `
		UPDATE decisions SET status = ? WHERE id = ? AND resolved_at IS NULL
	`, models.DecisionDispatchFailed, id)
	return err
}

// ResolveDecision closes an open decision with its outcome. Only the first caller
// succeeds; later callers get ErrConflict.
func (s *Store) ResolveDecision(ctx context.Context, d *models.Decision) error {
	if d.ResolvedAt == nil {
		now := time.Now().UTC()
		d.ResolvedAt = &now
	}
	var rating any
	if d.Rating != nil {
		rating = *d.Rating
	}
	res, err := s.exec(ctx, `
		UPDATE decisions SET status = ?, outcome_type = ?, signal_kind = ?, signal_value = ?,
			rating = ?, resolved_at = ?
		WHERE id = ? AND resolved_at IS NULL
	`, models.DecisionResolved, d.OutcomeType, d.SignalKind, d.SignalValue, rating, d.ResolvedAt.UTC(), d.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("decision %s already resolved: %w", d.ID, ErrConflict)
	}
	d.Status = models.DecisionResolved
	return nil
}

func (s *Store) listDecisions(ctx context.Context, query string, args ...any) ([]models.Decision, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.Decision
	for rows.Next() {
		var d models.Decision
		var personStr, goalStr string
		var orgStr sql.NullString
		var rating sql.NullInt64
		var dispatchedAt, resolvedAt sql.NullTime
		if err := rows.Scan(&d.ID, &personStr, &orgStr, &goalStr, &d.GoalName, &d.ConfigVersionID, &d.Channel,
			&d.Message, &d.Status, &d.OutcomeType, &d.SignalKind, &d.SignalValue, &rating, &d.CreatedAt,
			&dispatchedAt, &resolvedAt); err != nil {
			return nil, err
		}
		var err error
		if d.PersonID, err = uuid.Parse(personStr); err != nil {
			return nil, fmt.Errorf("failed to parse person ID: %w", err)
		}
		if d.GoalID, err = uuid.Parse(goalStr); err != nil {
			return nil, fmt.Errorf("failed to parse goal ID: %w", err)
		}
		if d.OrganizationID, err = parseNullUUID(orgStr); err != nil {
			return nil, fmt.Errorf("failed to parse organization ID: %w", err)
		}
		if rating.Valid {
			r := int(rating.Int64)
			d.Rating = &r
		}
		d.CreatedAt = d.CreatedAt.UTC()
		d.DispatchedAt = timePtr(dispatchedAt)
		d.ResolvedAt = timePtr(resolvedAt)
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetGoalState returns the state of a goal for a person.
func (s *Store) GetGoalState(ctx context.Context, personID, goalID uuid.UUID) (*models.GoalState, error) {
	states, err := s.listGoalStates(ctx, `SELECT person_id, goal_id, status, deferred_until, last_decision_id, updated_at
		FROM goal_states WHERE person_id = ? AND goal_id = ?`, personID.String(), goalID.String())
	if err != nil {
		return nil, err
	}
	if len(states) == 0 {
		return nil, fmt.Errorf("goal state %s/%s: %w", personID, goalID, ErrNotFound)
	}
	return &states[0], nil
}

// GoalStatesFor returns all of a person's goal states keyed by goal.
func (s *Store) GoalStatesFor(ctx context.Context, personID uuid.UUID) (map[uuid.UUID]models.GoalState, error) {
	states, err := s.listGoalStates(ctx, `SELECT person_id, goal_id, status, deferred_until, last_decision_id, updated_at
		FROM goal_states WHERE person_id = ?`, personID.String())
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]models.GoalState, len(states))
	for _, st := range states {
		out[st.GoalID] = st
	}
	return out, nil
}

func (s *Store) listGoalStates(ctx context.Context, query string, args ...any) ([]models.GoalState, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.GoalState
	for rows.Next() {
		var st models.GoalState
		var personStr, goalStr string
		var until sql.NullTime
		if err := rows.Scan(&personStr, &goalStr, &st.Status, &until, &st.LastDecisionID, &st.UpdatedAt); err != nil {
			return nil, err
		}
		var err error
		if st.PersonID, err = uuid.Parse(personStr); err != nil {
			return nil, fmt.Errorf("failed to parse person ID: %w", err)
		}
		if st.GoalID, err = uuid.Parse(goalStr); err != nil {
			return nil, fmt.Errorf("failed to parse goal ID: %w", err)
		}
		st.DeferredUntil = timePtr(until)
		st.UpdatedAt = st.UpdatedAt.UTC()
		out = append(out, st)
	}
	return out, rows.Err()
}

// TransitionGoalState writes a goal's new state and appends the audit row.
func (s *Store) TransitionGoalState(ctx context.Context, st *models.GoalState, trigger string) error {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}
	return s.InTx(ctx, func(tx *Store) error {
		from := ""
		prev, err := tx.GetGoalState(ctx, st.PersonID, st.GoalID)
		switch {
		case err == nil:
			from = prev.Status
		case !errors.Is(err, ErrNotFound):
			return err
		}

		if _, err := tx.exec(ctx, `
			INSERT INTO goal_states (person_id, goal_id, status, deferred_until, last_decision_id, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (person_id, goal_id) DO UPDATE SET
				status = excluded.status,
				deferred_until = excluded.deferred_until,
				last_decision_id = excluded.last_decision_id,
				updated_at = excluded.updated_at
		`, st.PersonID.String(), st.GoalID.String(), st.Status, nullTime(st.DeferredUntil),
			st.LastDecisionID, st.UpdatedAt.UTC()); err != nil {
			return err
		}

		_, err = tx.exec(ctx, `
			INSERT INTO goal_state_history (person_id, goal_id, from_status, to_status, trigger_kind, decision_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, st.PersonID.String(), st.GoalID.String(), from, st.Status, trigger, st.LastDecisionID, st.UpdatedAt.UTC())
		return err
	})
}

// GoalHistory returns the audit log of a person's goal states, oldest first.
// A nil goalID returns every goal.
func (s *Store) GoalHistory(ctx context.Context, personID uuid.UUID, goalID *uuid.UUID) ([]models.GoalTransition, error) {
	query := `SELECT id, person_id, goal_id, from_status, to_status, trigger_kind, decision_id, created_at
		FROM goal_state_history WHERE person_id = ?`
	args := []any{personID.String()}
	if goalID != nil {
		query += ` AND goal_id = ?`
		args = append(args, goalID.String())
	}
	query += ` ORDER BY id`

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.GoalTransition
	for rows.Next() {
		var t models.GoalTransition
		var personStr, goalStr string
		if err := rows.Scan(&t.ID, &personStr, &goalStr, &t.FromStatus, &t.ToStatus, &t.Trigger, &t.DecisionID, &t.CreatedAt); err != nil {
			return nil, err
		}
		var err error
		if t.PersonID, err = uuid.Parse(personStr); err != nil {
			return nil, fmt.Errorf("failed to parse person ID: %w", err)
		}
		if t.GoalID, err = uuid.Parse(goalStr); err != nil {
			return nil, fmt.Errorf("failed to parse goal ID: %w", err)
		}
		t.CreatedAt = t.CreatedAt.UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}
