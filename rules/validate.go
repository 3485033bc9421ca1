// ABOUTME: Authoring-time validation for goals, outcomes and routing rules
// ABOUTME: Collects every problem so a rule file can be fixed in one pass
package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/harperreed/engage/models"
)

var ErrInvalidRule = errors.New("invalid rule")

// Problem is a single validation failure.
type Problem struct {
	Field string `json:"field"`
	Msg   string `json:"message"`
}

func (p Problem) Error() string { return fmt.Sprintf("%s: %s", p.Field, p.Msg) }

// ValidationError lists all problems found in a rule or rule set.
type ValidationError struct {
	Problems []Problem
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.Error()
	}
	return "invalid rule: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidRule }

var insightTypeRe = regexp.MustCompile(`^[a-z][a-z0-9_:]*$`)

var validTriggers = map[string]bool{
	models.TriggerSentiment: true,
	models.TriggerIntent:    true,
	models.TriggerTimeout:   true,
	models.TriggerDefault:   true,
}

var validOutcomes = map[string]bool{
	models.OutcomeSuccess:  true,
	models.OutcomeDecline:  true,
	models.OutcomeClarify:  true,
	models.OutcomeDefer:    true,
	models.OutcomeEscalate: true,
}

var validChannels = map[string]bool{
	models.ChannelSlack: true,
	models.ChannelEmail: true,
	models.ChannelWeb:   true,
}

// ValidateGoal checks a goal and its outcome table. Every goal needs a default outcome.
func ValidateGoal(g *models.Goal) error {
	var probs []Problem
	add := func(field, msg string) { probs = append(probs, Problem{Field: field, Msg: msg}) }

	if strings.TrimSpace(g.Name) == "" {
		add("name", "required")
	}
	if _, err := ParseTemplate(g.MessageTemplate); err != nil {
		add("message_template", err.Error())
	}
	if g.RequiresMinEngagement < 0 || g.RequiresMinEngagement > 100 {
		add("requires_min_engagement", "must be between 0 and 100")
	}
	for i, t := range g.RequiresInsights {
		if !insightTypeRe.MatchString(t) {
			add(fmt.Sprintf("requires_insights[%d]", i), fmt.Sprintf("invalid insight type %q", t))
		}
	}
	for i, t := range g.ExcludesInsights {
		if !insightTypeRe.MatchString(t) {
			add(fmt.Sprintf("excludes_insights[%d]", i), fmt.Sprintf("invalid insight type %q", t))
		}
	}
	for i, p := range g.RequiresPersona {
		if !contains(models.Personas, p) {
			add(fmt.Sprintf("requires_persona[%d]", i), fmt.Sprintf("unknown persona %q", p))
		}
	}
	for i, c := range g.RequiresCompanyType {
		if !contains(models.CompanyTypes, c) {
			add(fmt.Sprintf("requires_company_type[%d]", i), fmt.Sprintf("unknown company type %q", c))
		}
	}

	hasDefault := false
	for i, o := range g.Outcomes {
		field := fmt.Sprintf("outcomes[%d]", i)
		if !validTriggers[o.TriggerType] {
			add(field+".trigger_type", fmt.Sprintf("unknown trigger type %q", o.TriggerType))
		}
		if !validOutcomes[o.OutcomeType] {
			add(field+".outcome_type", fmt.Sprintf("unknown outcome type %q", o.OutcomeType))
		}
		switch o.TriggerType {
		case models.TriggerDefault:
			hasDefault = true
		case models.TriggerSentiment, models.TriggerIntent:
			if o.TriggerValue == "" {
				add(field+".trigger_value", "required for "+o.TriggerType)
			}
		case models.TriggerTimeout:
			if o.TriggerValue != "" {
				if _, err := TimeoutThreshold(o.TriggerValue); err != nil {
					add(field+".trigger_value", err.Error())
				}
			}
		}
		if o.DeferDays < 0 {
			add(field+".defer_days", "must not be negative")
		}
		if o.InsightToRecord != "" && !insightTypeRe.MatchString(o.InsightToRecord) {
			add(field+".insight_to_record", fmt.Sprintf("invalid insight type %q", o.InsightToRecord))
		}
	}
	if !hasDefault {
		add("outcomes", "a default outcome is required")
	}

	if len(probs) > 0 {
		return &ValidationError{Problems: probs}
	}
	return nil
}

// ValidateRoutingRule checks a routing rule.
func ValidateRoutingRule(r *models.RoutingRule) error {
	var probs []Problem
	if strings.TrimSpace(r.Name) == "" {
		probs = append(probs, Problem{Field: "name", Msg: "required"})
	}
	if !validChannels[r.Channel] {
		probs = append(probs, Problem{Field: "channel", Msg: fmt.Sprintf("unknown channel %q", r.Channel)})
	}
	if len(probs) > 0 {
		return &ValidationError{Problems: probs}
	}
	return nil
}

// Validate checks a whole rule set, prefixing problems with the rule they belong to.
func Validate(rs *RuleSet) error {
	var probs []Problem
	names := make(map[string]bool)

	for i := range rs.Goals {
		g := &rs.Goals[i]
		prefix := fmt.Sprintf("goals[%s]", g.Name)
		if g.Name == "" {
			prefix = fmt.Sprintf("goals[%d]", i)
		}
		if names[g.Name] {
			probs = append(probs, Problem{Field: prefix + ".name", Msg: "duplicate goal name"})
		}
		names[g.Name] = true

		var verr *ValidationError
		if err := ValidateGoal(g); errors.As(err, &verr) {
			for _, p := range verr.Problems {
				probs = append(probs, Problem{Field: prefix + "." + p.Field, Msg: p.Msg})
			}
		}
	}

	for i := range rs.RoutingRules {
		r := &rs.RoutingRules[i]
		var verr *ValidationError
		if err := ValidateRoutingRule(r); errors.As(err, &verr) {
			for _, p := range verr.Problems {
				probs = append(probs, Problem{Field: fmt.Sprintf("routing[%d].%s", i, p.Field), Msg: p.Msg})
			}
		}
	}

	if len(probs) > 0 {
		return &ValidationError{Problems: probs}
	}
	return nil
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
