// ABOUTME: Rule set loading from TOML seed files and canonical snapshots for versioning
// ABOUTME: Assigns deterministic IDs so the same file always produces the same rule content
package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/harperreed/engage/models"
)

// Namespace for name-derived rule IDs.
var ruleNamespace = uuid.MustParse("6f1c4a52-9a0e-4c1b-8f7e-2d4b1e0a9c33")

// RuleSet is the complete governing configuration: outreach goals and routing rules.
type RuleSet struct {
	Goals        []models.Goal        `toml:"goal"`
	RoutingRules []models.RoutingRule `toml:"routing"`
}

// LoadFile reads a TOML rule file, fills in derived IDs and validates it.
func LoadFile(path string) (*RuleSet, error) {
	var rs RuleSet
	if _, err := toml.DecodeFile(path, &rs); err != nil {
		return nil, fmt.Errorf("failed to decode rule file: %w", err)
	}
	rs.Normalize()
	if err := Validate(&rs); err != nil {
		return nil, err
	}
	return &rs, nil
}

// Normalize assigns name-derived IDs to rules and outcomes that lack one.
func (rs *RuleSet) Normalize() {
	for i := range rs.Goals {
		g := &rs.Goals[i]
		if g.ID == uuid.Nil {
			g.ID = uuid.NewSHA1(ruleNamespace, []byte("goal:"+g.Name))
		}
		for j := range g.Outcomes {
			o := &g.Outcomes[j]
			o.GoalID = g.ID
			if o.ID == uuid.Nil {
				key := fmt.Sprintf("outcome:%s:%s:%s:%d", g.Name, o.TriggerType, o.TriggerValue, j)
				o.ID = uuid.NewSHA1(ruleNamespace, []byte(key))
			}
		}
	}
	for i := range rs.RoutingRules {
		r := &rs.RoutingRules[i]
		if r.ID == uuid.Nil {
			r.ID = uuid.NewSHA1(ruleNamespace, []byte("routing:"+r.Name))
		}
	}
}

// Active returns a copy holding only enabled goals and routing rules.
func (rs *RuleSet) Active() *RuleSet {
	out := &RuleSet{}
	for _, g := range rs.Goals {
		if g.Enabled {
			out.Goals = append(out.Goals, g)
		}
	}
	for _, r := range rs.RoutingRules {
		if r.Enabled {
			out.RoutingRules = append(out.RoutingRules, r)
		}
	}
	return out
}

// TimeoutThreshold parses a timeout trigger value as a number of hours.
func TimeoutThreshold(v string) (float64, error) {
	v = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "h"))
	hours, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("timeout threshold %q is not a number of hours", v)
	}
	if hours < 0 {
		return 0, fmt.Errorf("timeout threshold must not be negative")
	}
	return hours, nil
}

type goalSnapshot struct {
	ID                    string            `json:"id"`
	Name                  string            `json:"name"`
	Category              string            `json:"category"`
	MessageTemplate       string            `json:"message_template"`
	LinkURL               string            `json:"link_url"`
	RequiresMapped        *bool             `json:"requires_mapped"`
	RequiresMinEngagement int               `json:"requires_min_engagement"`
	RequiresInsights      []string          `json:"requires_insights"`
	ExcludesInsights      []string          `json:"excludes_insights"`
	RequiresPersona       []string          `json:"requires_persona"`
	RequiresCompanyType   []string          `json:"requires_company_type"`
	BasePriority          int               `json:"base_priority"`
	CreatedAt             string            `json:"created_at"`
	Outcomes              []outcomeSnapshot `json:"outcomes"`
}

type outcomeSnapshot struct {
	ID              string `json:"id"`
	TriggerType     string `json:"trigger_type"`
	TriggerValue    string `json:"trigger_value"`
	OutcomeType     string `json:"outcome_type"`
	InsightToRecord string `json:"insight_to_record"`
	InsightValue    string `json:"insight_value"`
	DeferDays       int    `json:"defer_days"`
	Priority        int    `json:"priority"`
}

type routingSnapshot struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Channel       string `json:"channel"`
	RequiresChat  bool   `json:"requires_chat"`
	RequiresEmail bool   `json:"requires_email"`
	Priority      int    `json:"priority"`
}

type setSnapshot struct {
	ScoreFormula string            `json:"score_formula"`
	Goals        []goalSnapshot    `json:"goals"`
	Routing      []routingSnapshot `json:"routing"`
}

// Snapshot serializes the enabled rules canonically: rules sorted by ID, set-valued
// predicates sorted, volatile fields (updated_at, enabled) left out. It returns the
// snapshot bytes and the sorted list of active rule IDs.
func (rs *RuleSet) Snapshot(scoreFormula string) ([]byte, []string, error) {
	active := rs.Active()

	snap := setSnapshot{ScoreFormula: scoreFormula}
	var ids []string

	for _, g := range active.Goals {
		gs := goalSnapshot{
			ID:                    g.ID.String(),
			Name:                  g.Name,
			Category:              g.Category,
			MessageTemplate:       g.MessageTemplate,
			LinkURL:               g.LinkURL,
			RequiresMapped:        g.RequiresMapped,
			RequiresMinEngagement: g.RequiresMinEngagement,
			RequiresInsights:      sortedCopy(g.RequiresInsights),
			ExcludesInsights:      sortedCopy(g.ExcludesInsights),
			RequiresPersona:       sortedCopy(g.RequiresPersona),
			RequiresCompanyType:   sortedCopy(g.RequiresCompanyType),
			BasePriority:          g.BasePriority,
			CreatedAt:             g.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
		for _, o := range g.Outcomes {
			gs.Outcomes = append(gs.Outcomes, outcomeSnapshot{
				ID:              o.ID.String(),
				TriggerType:     o.TriggerType,
				TriggerValue:    o.TriggerValue,
				OutcomeType:     o.OutcomeType,
				InsightToRecord: o.InsightToRecord,
				InsightValue:    o.InsightValue,
				DeferDays:       o.DeferDays,
				Priority:        o.Priority,
			})
		}
		sort.Slice(gs.Outcomes, func(i, j int) bool { return gs.Outcomes[i].ID < gs.Outcomes[j].ID })
		snap.Goals = append(snap.Goals, gs)
		ids = append(ids, "goal:"+gs.ID)
	}

	for _, r := range active.RoutingRules {
		snap.Routing = append(snap.Routing, routingSnapshot{
			ID:            r.ID.String(),
			Name:          r.Name,
			Channel:       r.Channel,
			RequiresChat:  r.RequiresChat,
			RequiresEmail: r.RequiresEmail,
			Priority:      r.Priority,
		})
		ids = append(ids, "routing:"+r.ID.String())
	}

	sort.Slice(snap.Goals, func(i, j int) bool { return snap.Goals[i].ID < snap.Goals[j].ID })
	sort.Slice(snap.Routing, func(i, j int) bool { return snap.Routing[i].ID < snap.Routing[j].ID })
	sort.Strings(ids)

	data, err := json.Marshal(snap)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal rule snapshot: %w", err)
	}
	return data, ids, nil
}

// ErrNotInSnapshot is returned when a snapshot does not hold the requested goal.
var ErrNotInSnapshot = errors.New("goal not in snapshot")

// GoalFromSnapshot rebuilds a goal and its outcome table as a version snapshot
// recorded them.
func GoalFromSnapshot(snapshot []byte, goalID uuid.UUID) (*models.Goal, error) {
	var snap setSnapshot
	if err := json.Unmarshal(snapshot, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode rule snapshot: %w", err)
	}
	want := goalID.String()
	for _, gs := range snap.Goals {
		if gs.ID != want {
			continue
		}
		g := &models.Goal{
			ID:                    goalID,
			Name:                  gs.Name,
			Category:              gs.Category,
			MessageTemplate:       gs.MessageTemplate,
			LinkURL:               gs.LinkURL,
			RequiresMapped:        gs.RequiresMapped,
			RequiresMinEngagement: gs.RequiresMinEngagement,
			RequiresInsights:      gs.RequiresInsights,
			ExcludesInsights:      gs.ExcludesInsights,
			RequiresPersona:       gs.RequiresPersona,
			RequiresCompanyType:   gs.RequiresCompanyType,
			BasePriority:          gs.BasePriority,
			Enabled:               true,
		}
		if t, err := time.Parse(time.RFC3339Nano, gs.CreatedAt); err == nil {
			g.CreatedAt = t
		}
		for _, oc := range gs.Outcomes {
			id, err := uuid.Parse(oc.ID)
			if err != nil {
				return nil, fmt.Errorf("outcome id %q in snapshot: %w", oc.ID, err)
			}
			g.Outcomes = append(g.Outcomes, models.GoalOutcome{
				ID:              id,
				GoalID:          goalID,
				TriggerType:     oc.TriggerType,
				TriggerValue:    oc.TriggerValue,
				OutcomeType:     oc.OutcomeType,
				InsightToRecord: oc.InsightToRecord,
				InsightValue:    oc.InsightValue,
				DeferDays:       oc.DeferDays,
				Priority:        oc.Priority,
			})
		}
		return g, nil
	}
	return nil, fmt.Errorf("goal %s: %w", goalID, ErrNotInSnapshot)
}

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}
