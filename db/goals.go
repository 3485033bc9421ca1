// ABOUTME: Storage for outreach goals, their outcome tables and routing rules
// ABOUTME: Goals are validated before every write so evaluation never meets a broken rule
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/engage/models"
	"github.com/harperreed/engage/rules"
)

const goalColumns = `id, name, category, message_template, link_url, requires_mapped,
	requires_min_engagement, requires_insights, excludes_insights, requires_persona,
	requires_company_type, base_priority, enabled, created_at, updated_at`

// UpsertGoal validates and stores a goal with its outcome table, replacing any
// previous outcomes. The original creation time is kept on update.
func (s *Store) UpsertGoal(ctx context.Context, g *models.Goal) error {
	if g.ID == uuid.Nil {
		if existing, err := s.GetGoalByName(ctx, g.Name); err == nil {
			g.ID = existing.ID
		} else {
			g.ID = uuid.New()
		}
	}
	for i := range g.Outcomes {
		g.Outcomes[i].GoalID = g.ID
		if g.Outcomes[i].ID == uuid.Nil {
			g.Outcomes[i].ID = uuid.New()
		}
	}
	if err := rules.ValidateGoal(g); err != nil {
		return err
	}

	lists := make([]string, 4)
	for i, l := range [][]string{g.RequiresInsights, g.ExcludesInsights, g.RequiresPersona, g.RequiresCompanyType} {
		enc, err := encodeList(l)
		if err != nil {
			return err
		}
		lists[i] = enc
	}

	now := time.Now().UTC()
	createdAt := g.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	var requiresMapped any
	if g.RequiresMapped != nil {
		requiresMapped = *g.RequiresMapped
	}

	return s.InTx(ctx, func(tx *Store) error {
		_, err := tx.exec(ctx, `
			INSERT INTO goals (`+goalColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				name = excluded.name,
				category = excluded.category,
				message_template = excluded.message_template,
				link_url = excluded.link_url,
				requires_mapped = excluded.requires_mapped,
				requires_min_engagement = excluded.requires_min_engagement,
				requires_insights = excluded.requires_insights,
				excludes_insights = excluded.excludes_insights,
				requires_persona = excluded.requires_persona,
				requires_company_type = excluded.requires_company_type,
				base_priority = excluded.base_priority,
				enabled = excluded.enabled,
				updated_at = excluded.updated_at
		`, g.ID.String(), g.Name, g.Category, g.MessageTemplate, g.LinkURL, requiresMapped,
			g.RequiresMinEngagement, lists[0], lists[1], lists[2], lists[3],
			g.BasePriority, g.Enabled, createdAt.UTC(), now)
		if isUniqueViolation(err) {
			return fmt.Errorf("goal name %q is taken: %w", g.Name, ErrConflict)
		}
		if err != nil {
			return err
		}

		if _, err := tx.exec(ctx, `DELETE FROM goal_outcomes WHERE goal_id = ?`, g.ID.String()); err != nil {
			return err
		}
		for i, o := range g.Outcomes {
			if _, err := tx.exec(ctx, `
				INSERT INTO goal_outcomes (id, goal_id, ordinal, trigger_type, trigger_value, outcome_type,
					insight_to_record, insight_value, defer_days, priority)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, o.ID.String(), g.ID.String(), i, o.TriggerType, o.TriggerValue, o.OutcomeType,
				o.InsightToRecord, o.InsightValue, o.DeferDays, o.Priority); err != nil {
				return fmt.Errorf("failed to store outcome %d: %w", i, err)
			}
		}

		stored, err := tx.GetGoal(ctx, g.ID)
		if err != nil {
			return err
		}
		g.CreatedAt = stored.CreatedAt
		g.UpdatedAt = stored.UpdatedAt
		return nil
	})
}

// GetGoal retrieves a goal and its outcomes by ID.
func (s *Store) GetGoal(ctx context.Context, id uuid.UUID) (*models.Goal, error) {
	goals, err := s.listGoals(ctx, `SELECT `+goalColumns+` FROM goals WHERE id = ?`, id.String())
	if err != nil {
		return nil, err
	}
	if len(goals) == 0 {
		return nil, fmt.Errorf("goal %s: %w", id, ErrNotFound)
	}
	return &goals[0], nil
}

// GetGoalByName retrieves a goal and its outcomes by name.
func (s *Store) GetGoalByName(ctx context.Context, name string) (*models.Goal, error) {
	goals, err := s.listGoals(ctx, `SELECT `+goalColumns+` FROM goals WHERE name = ?`, name)
	if err != nil {
		return nil, err
	}
	if len(goals) == 0 {
		return nil, fmt.Errorf("goal %q: %w", name, ErrNotFound)
	}
	return &goals[0], nil
}

// ListGoals returns goals ordered by name, optionally only enabled ones.
func (s *Store) ListGoals(ctx context.Context, enabledOnly bool) ([]models.Goal, error) {
	if enabledOnly {
		return s.listGoals(ctx, `SELECT `+goalColumns+` FROM goals WHERE enabled = ? ORDER BY name`, true)
	}
	return s.listGoals(ctx, `SELECT `+goalColumns+` FROM goals ORDER BY name`)
}

// SetGoalEnabled toggles a goal by name.
func (s *Store) SetGoalEnabled(ctx context.Context, name string, enabled bool) error {
	res, err := s.exec(ctx, `UPDATE goals SET enabled = ?, updated_at = ? WHERE name = ?`, enabled, time.Now().UTC(), name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("goal %q: %w", name, ErrNotFound)
	}
	return nil
}

func (s *Store) listGoals(ctx context.Context, query string, args ...any) ([]models.Goal, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	var goals []models.Goal
	for rows.Next() {
		var g models.Goal
		var idStr string
		var requiresMapped sql.NullBool
		var reqInsights, exclInsights, personas, companyTypes string
		if err := rows.Scan(&idStr, &g.Name, &g.Category, &g.MessageTemplate, &g.LinkURL, &requiresMapped,
			&g.RequiresMinEngagement, &reqInsights, &exclInsights, &personas, &companyTypes,
			&g.BasePriority, &g.Enabled, &g.CreatedAt, &g.UpdatedAt); err != nil {
			_ = rows.Close()
			return nil, err
		}
		if g.ID, err = uuid.Parse(idStr); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to parse goal ID: %w", err)
		}
		if requiresMapped.Valid {
			v := requiresMapped.Bool
			g.RequiresMapped = &v
		}
		for _, pair := range []struct {
			raw string
			dst *[]string
		}{
			{reqInsights, &g.RequiresInsights},
			{exclInsights, &g.ExcludesInsights},
			{personas, &g.RequiresPersona},
			{companyTypes, &g.RequiresCompanyType},
		} {
			if err := json.Unmarshal([]byte(pair.raw), pair.dst); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("failed to decode goal predicates: %w", err)
			}
		}
		g.CreatedAt = g.CreatedAt.UTC()
		g.UpdatedAt = g.UpdatedAt.UTC()
		goals = append(goals, g)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	// Outcomes are loaded after the goal cursor is closed; SQLite runs on one connection.
	for i := range goals {
		outcomes, err := s.listOutcomes(ctx, goals[i].ID)
		if err != nil {
			return nil, err
		}
		goals[i].Outcomes = outcomes
	}
	return goals, nil
}

func (s *Store) listOutcomes(ctx context.Context, goalID uuid.UUID) ([]models.GoalOutcome, error) {
	rows, err := s.query(ctx, `
		SELECT id, goal_id, trigger_type, trigger_value, outcome_type, insight_to_record,
			insight_value, defer_days, priority
		FROM goal_outcomes WHERE goal_id = ? ORDER BY ordinal
	`, goalID.String())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.GoalOutcome
	for rows.Next() {
		var o models.GoalOutcome
		var idStr, goalStr string
		if err := rows.Scan(&idStr, &goalStr, &o.TriggerType, &o.TriggerValue, &o.OutcomeType,
			&o.InsightToRecord, &o.InsightValue, &o.DeferDays, &o.Priority); err != nil {
			return nil, err
		}
		var err error
		if o.ID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("failed to parse outcome ID: %w", err)
		}
		if o.GoalID, err = uuid.Parse(goalStr); err != nil {
			return nil, fmt.Errorf("failed to parse goal ID: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// UpsertRoutingRule validates and stores a routing rule, matched by name.
func (s *Store) UpsertRoutingRule(ctx context.Context, r *models.RoutingRule) error {
	if err := rules.ValidateRoutingRule(r); err != nil {
		return err
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	now := time.Now().UTC()
	_, err := s.exec(ctx, `
		INSERT INTO routing_rules (id, name, channel, requires_chat, requires_email, priority, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			channel = excluded.channel,
			requires_chat = excluded.requires_chat,
			requires_email = excluded.requires_email,
			priority = excluded.priority,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`, r.ID.String(), r.Name, r.Channel, r.RequiresChat, r.RequiresEmail, r.Priority, r.Enabled, now, now)
	if err != nil {
		return err
	}
	stored, err := s.getRoutingRuleByName(ctx, r.Name)
	if err != nil {
		return err
	}
	r.ID = stored.ID
	return nil
}

// SetRoutingRuleEnabled toggles a routing rule by name.
func (s *Store) SetRoutingRuleEnabled(ctx context.Context, name string, enabled bool) error {
	res, err := s.exec(ctx, `UPDATE routing_rules SET enabled = ?, updated_at = ? WHERE name = ?`, enabled, time.Now().UTC(), name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("routing rule %q: %w", name, ErrNotFound)
	}
	return nil
}

// ListRoutingRules returns routing rules by descending priority.
func (s *Store) ListRoutingRules(ctx context.Context, enabledOnly bool) ([]models.RoutingRule, error) {
	query := `SELECT id, name, channel, requires_chat, requires_email, priority, enabled FROM routing_rules`
	var args []any
	if enabledOnly {
		query += ` WHERE enabled = ?`
		args = append(args, true)
	}
	query += ` ORDER BY priority DESC, name`
	return s.listRoutingRules(ctx, query, args...)
}

func (s *Store) getRoutingRuleByName(ctx context.Context, name string) (*models.RoutingRule, error) {
	list, err := s.listRoutingRules(ctx, `SELECT id, name, channel, requires_chat, requires_email, priority, enabled
		FROM routing_rules WHERE name = ?`, name)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("routing rule %q: %w", name, ErrNotFound)
	}
	return &list[0], nil
}

func (s *Store) listRoutingRules(ctx context.Context, query string, args ...any) ([]models.RoutingRule, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.RoutingRule
	for rows.Next() {
		var r models.RoutingRule
		var idStr string
		if err := rows.Scan(&idStr, &r.Name, &r.Channel, &r.RequiresChat, &r.RequiresEmail, &r.Priority, &r.Enabled); err != nil {
			return nil, err
		}
		var err error
		if r.ID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("failed to parse routing rule ID: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LoadRuleSet returns every stored goal and routing rule, enabled or not.
func (s *Store) LoadRuleSet(ctx context.Context) (*rules.RuleSet, error) {
	goals, err := s.ListGoals(ctx, false)
	if err != nil {
		return nil, err
	}
	routing, err := s.ListRoutingRules(ctx, false)
	if err != nil {
		return nil, err
	}
	return &rules.RuleSet{Goals: goals, RoutingRules: routing}, nil
}

// ImportRuleSet validates a whole rule set and stores it in one transaction.
// Goals already stored under the same name keep their IDs.
func (s *Store) ImportRuleSet(ctx context.Context, rs *rules.RuleSet) error {
	if err := rules.Validate(rs); err != nil {
		return err
	}
	return s.InTx(ctx, func(tx *Store) error {
		for i := range rs.Goals {
			g := &rs.Goals[i]
			existing, err := tx.GetGoalByName(ctx, g.Name)
			switch {
			case err == nil:
				g.ID = existing.ID
			case !errors.Is(err, ErrNotFound):
				return err
			}
			if err := tx.UpsertGoal(ctx, g); err != nil {
				return fmt.Errorf("goal %q: %w", g.Name, err)
			}
		}
		for i := range rs.RoutingRules {
			if err := tx.UpsertRoutingRule(ctx, &rs.RoutingRules[i]); err != nil {
				return fmt.Errorf("routing rule %q: %w", rs.RoutingRules[i].Name, err)
			}
		}
		return nil
	})
}
