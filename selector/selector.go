// ABOUTME: Goal Selector choosing the single best outreach goal for a person
// ABOUTME: Pure predicate evaluation with a deterministic ranking and channel routing
package selector

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/engage/models"
	"github.com/harperreed/engage/rules"
)

// Context is everything selection needs, fetched ahead of time.
type Context struct {
	Person   *models.Person
	Org      *models.Organization
	Insights []models.Insight
	States   map[uuid.UUID]models.GoalState
	Goals    []models.Goal
	Routing  []models.RoutingRule
	AsOf     time.Time
}

// Selection is the chosen goal with its rendered message and delivery channel.
type Selection struct {
	Goal    models.Goal `json:"goal"`
	Message string      `json:"message"`
	Channel string      `json:"channel"`
}

// Verdict explains why a goal was or was not eligible.
type Verdict struct {
	GoalID   uuid.UUID `json:"goal_id"`
	GoalName string    `json:"goal_name"`
	Eligible bool      `json:"eligible"`
	Reason   string    `json:"reason,omitempty"`
}

// Select returns the highest ranked eligible goal, or nil when none applies.
func Select(c Context) *Selection {
	var eligible []models.Goal
	for _, g := range c.Goals {
		if reason := check(c, &g); reason == "" {
			eligible = append(eligible, g)
		}
	}
	if len(eligible) == 0 {
		return nil
	}

	Rank(eligible)
	best := eligible[0]
	return &Selection{
		Goal:    best,
		Message: rules.Render(best.MessageTemplate, Vars(c.Person, c.Org, &best)),
		Channel: Route(c.Person, c.Routing),
	}
}

// Explain evaluates every goal and reports the first failing predicate for each.
// Verdicts come back in ranking order.
func Explain(c Context) []Verdict {
	goals := make([]models.Goal, len(c.Goals))
	copy(goals, c.Goals)
	Rank(goals)

	out := make([]Verdict, 0, len(goals))
	for _, g := range goals {
		reason := check(c, &g)
		out = append(out, Verdict{GoalID: g.ID, GoalName: g.Name, Eligible: reason == "", Reason: reason})
	}
	return out
}

// Rank orders goals best first: higher base priority, then newer, then lower id.
func Rank(goals []models.Goal) {
	sort.SliceStable(goals, func(i, j int) bool {
		a, b := goals[i], goals[j]
		if a.BasePriority != b.BasePriority {
			return a.BasePriority > b.BasePriority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
}

// check returns an empty string when the goal applies, else the reason it does not.
func check(c Context, g *models.Goal) string {
	p := c.Person

	if !g.Enabled {
		return "disabled"
	}
	if g.RequiresMapped != nil && *g.RequiresMapped != p.IsMapped() {
		if *g.RequiresMapped {
			return "requires a mapped person"
		}
		return "requires an unmapped person"
	}
	if p.Score < g.RequiresMinEngagement {
		return "engagement " + strconv.Itoa(p.Score) + " below " + strconv.Itoa(g.RequiresMinEngagement)
	}

	live := liveInsightTypes(c.Insights, c.AsOf)
	for _, t := range g.RequiresInsights {
		if !live[t] {
			return "missing insight " + t
		}
	}
	for _, t := range g.ExcludesInsights {
		if live[t] {
			return "excluded by insight " + t
		}
	}

	if len(g.RequiresPersona) > 0 {
		if c.Org == nil || !contains(g.RequiresPersona, c.Org.Persona) {
			return "persona not targeted"
		}
	}
	if len(g.RequiresCompanyType) > 0 {
		if c.Org == nil || !intersects(g.RequiresCompanyType, c.Org.CompanyTypes) {
			return "company type not targeted"
		}
	}

	if st, ok := c.States[g.ID]; ok {
		if st.Terminal() {
			return "goal already " + st.Status
		}
		if st.Status == models.GoalDeferred && st.DeferredUntil != nil && !c.AsOf.After(*st.DeferredUntil) {
			return "deferred until " + st.DeferredUntil.UTC().Format(time.RFC3339)
		}
	}

	return ""
}

// Route picks the delivery channel: the highest priority enabled routing rule whose
// identity requirements the person meets, falling back to the in-app web channel.
func Route(p *models.Person, routing []models.RoutingRule) string {
	candidates := make([]models.RoutingRule, 0, len(routing))
	for _, r := range routing {
		if r.Enabled {
			candidates = append(candidates, r)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].Name < candidates[j].Name
	})

	for _, r := range candidates {
		if r.RequiresChat && p.ChatID == "" {
			continue
		}
		if r.RequiresEmail && p.Email == "" {
			continue
		}
		return r.Channel
	}
	return models.ChannelWeb
}

// Vars builds the template substitution values for a person and organization.
func Vars(p *models.Person, org *models.Organization, g *models.Goal) map[string]string {
	vars := map[string]string{
		rules.VarUserName:  p.DisplayName,
		rules.VarFirstName: firstName(p.DisplayName),
		rules.VarLinkURL:   g.LinkURL,
		rules.VarScore:     strconv.Itoa(p.Score),
	}
	if org != nil {
		vars[rules.VarCompanyName] = org.Name
		vars[rules.VarPersona] = org.Persona
		vars[rules.VarJourneyStage] = org.JourneyStage
	}
	return vars
}

func firstName(display string) string {
	fields := strings.Fields(display)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func liveInsightTypes(insights []models.Insight, asOf time.Time) map[string]bool {
	live := make(map[string]bool, len(insights))
	for i := range insights {
		if insights[i].Live(asOf) {
			live[insights[i].Type] = true
		}
	}
	return live
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	for _, v := range b {
		if contains(a, v) {
			return true
		}
	}
	return false
}
