// ABOUTME: Rule models for outreach goals, outcomes, routing and config versions
// ABOUTME: Also holds goal state and journey stage enums shared by the engine packages
package models

import (
	"time"

	"github.com/google/uuid"
)

// Goal category constants.
const (
	CategoryOnboarding   = "onboarding"
	CategoryEngagement   = "engagement"
	CategoryMembership   = "membership"
	CategoryEvents       = "events"
	CategoryDiscovery    = "discovery"
	CategoryReactivation = "reactivation"
)

// Goal is an outreach rule: when it applies, what it says, and how replies are handled.
type Goal struct {
	ID                    uuid.UUID     `json:"id" toml:"id"`
	Name                  string        `json:"name" toml:"name"`
	Category              string        `json:"category" toml:"category"`
	MessageTemplate       string        `json:"message_template" toml:"message_template"`
	LinkURL               string        `json:"link_url,omitempty" toml:"link_url"`
	RequiresMapped        *bool         `json:"requires_mapped,omitempty" toml:"requires_mapped"`
	RequiresMinEngagement int           `json:"requires_min_engagement" toml:"requires_min_engagement"`
	RequiresInsights      []string      `json:"requires_insights,omitempty" toml:"requires_insights"`
	ExcludesInsights      []string      `json:"excludes_insights,omitempty" toml:"excludes_insights"`
	RequiresPersona       []string      `json:"requires_persona,omitempty" toml:"requires_persona"`
	RequiresCompanyType   []string      `json:"requires_company_type,omitempty" toml:"requires_company_type"`
	BasePriority          int           `json:"base_priority" toml:"base_priority"`
	Enabled               bool          `json:"enabled" toml:"enabled"`
	Outcomes              []GoalOutcome `json:"outcomes" toml:"outcomes"`
	CreatedAt             time.Time     `json:"created_at" toml:"created_at"`
	UpdatedAt             time.Time     `json:"updated_at" toml:"-"`
}

// Trigger type constants.
const (
	TriggerSentiment = "sentiment"
	TriggerIntent    = "intent"
	TriggerTimeout   = "timeout"
	TriggerDefault   = "default"
)

// Outcome type constants.
const (
	OutcomeSuccess  = "success"
	OutcomeDecline  = "decline"
	OutcomeClarify  = "clarify"
	OutcomeDefer    = "defer"
	OutcomeEscalate = "escalate"
)

// GoalOutcome maps an observed signal to an outcome for one goal.
type GoalOutcome struct {
	ID              uuid.UUID `json:"id" toml:"id"`
	GoalID          uuid.UUID `json:"goal_id" toml:"-"`
	TriggerType     string    `json:"trigger_type" toml:"trigger_type"`
	TriggerValue    string    `json:"trigger_value,omitempty" toml:"trigger_value"`
	OutcomeType     string    `json:"outcome_type" toml:"outcome_type"`
	InsightToRecord string    `json:"insight_to_record,omitempty" toml:"insight_to_record"`
	InsightValue    string    `json:"insight_value,omitempty" toml:"insight_value"`
	DeferDays       int       `json:"defer_days,omitempty" toml:"defer_days"`
	Priority        int       `json:"priority" toml:"priority"`
}

// Channel constants.
const (
	ChannelSlack = "slack"
	ChannelEmail = "email"
	ChannelWeb   = "web"
)

// RoutingRule picks the delivery channel for a selected goal.
type RoutingRule struct {
	ID            uuid.UUID `json:"id" toml:"id"`
	Name          string    `json:"name" toml:"name"`
	Channel       string    `json:"channel" toml:"channel"`
	RequiresChat  bool      `json:"requires_chat" toml:"requires_chat"`
	RequiresEmail bool      `json:"requires_email" toml:"requires_email"`
	Priority      int       `json:"priority" toml:"priority"`
	Enabled       bool      `json:"enabled" toml:"enabled"`
}

// Signal kind constants.
const (
	SignalSentiment                 = "sentiment"
	SignalIntent                    = "intent"
	SignalTimeout                   = "timeout"
	SignalDispatchFailed            = "dispatch_failed"
	SignalClassificationUnavailable = "classification_unavailable"
)

// Sentiment values.
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
	SentimentRefusal  = "refusal"
)

// Signal is a classified observation about how a goal's message was received.
type Signal struct {
	Kind         string  `json:"kind"`
	Value        string  `json:"value,omitempty"`
	ElapsedHours float64 `json:"elapsed_hours,omitempty"`
}

// Goal state constants.
const (
	GoalProposed  = "proposed"
	GoalDeferred  = "deferred"
	GoalSucceeded = "succeeded"
	GoalDeclined  = "declined"
	GoalEscalated = "escalated"
)

// GoalState is the per person/goal position in the outreach state machine.
type GoalState struct {
	PersonID       uuid.UUID  `json:"person_id"`
	GoalID         uuid.UUID  `json:"goal_id"`
	Status         string     `json:"status"`
	DeferredUntil  *time.Time `json:"deferred_until,omitempty"`
	LastDecisionID string     `json:"last_decision_id,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Terminal reports whether the state admits no further selection without an admin reset.
func (s *GoalState) Terminal() bool {
	switch s.Status {
	case GoalSucceeded, GoalDeclined, GoalEscalated:
		return true
	}
	return false
}

// GoalTransition is one row of the goal state audit log.
type GoalTransition struct {
	ID         int64     `json:"id"`
	PersonID   uuid.UUID `json:"person_id"`
	GoalID     uuid.UUID `json:"goal_id"`
	FromStatus string    `json:"from_status,omitempty"`
	ToStatus   string    `json:"to_status"`
	Trigger    string    `json:"trigger"`
	DecisionID string    `json:"decision_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Journey stages, in order.
const (
	StageAware         = "aware"
	StageEvaluating    = "evaluating"
	StageJoined        = "joined"
	StageOnboarding    = "onboarding"
	StageParticipating = "participating"
	StageContributing  = "contributing"
	StageLeading       = "leading"
	StageAdvocating    = "advocating"
)

// JourneyStages lists the stages from earliest to latest.
var JourneyStages = []string{
	StageAware,
	StageEvaluating,
	StageJoined,
	StageOnboarding,
	StageParticipating,
	StageContributing,
	StageLeading,
	StageAdvocating,
}

// Journey trigger constants.
const (
	JourneyTriggerManual       = "manual"
	JourneyTriggerSubscription = "subscription"
	JourneyTriggerEngagement   = "engagement"
	JourneyTriggerOutreach     = "outreach"
)

type JourneyTransition struct {
	ID             int64     `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	FromStage      string    `json:"from_stage,omitempty"`
	ToStage        string    `json:"to_stage"`
	Trigger        string    `json:"trigger"`
	Reason         string    `json:"reason,omitempty"`
	Regression     bool      `json:"regression"`
	CreatedAt      time.Time `json:"created_at"`
}

// ConfigVersion is an immutable snapshot of the active rule set plus mutable tallies.
type ConfigVersion struct {
	ID               int64     `json:"id"`
	Hash             string    `json:"hash"`
	RuleIDs          []string  `json:"rule_ids"`
	Snapshot         []byte    `json:"snapshot"`
	ScoreFormula     string    `json:"score_formula"`
	MessageCount     int64     `json:"message_count"`
	PositiveFeedback int64     `json:"positive_feedback"`
	NegativeFeedback int64     `json:"negative_feedback"`
	RatingSum        int64     `json:"rating_sum"`
	RatingCount      int64     `json:"rating_count"`
	CreatedAt        time.Time `json:"created_at"`
}

// AvgRating returns the mean rating, or 0 when nothing has been rated.
func (v *ConfigVersion) AvgRating() float64 {
	if v.RatingCount == 0 {
		return 0
	}
	return float64(v.RatingSum) / float64(v.RatingCount)
}

// Tally kinds recorded against a config version, at most once per decision each.
const (
	TallyMessage  = "message"
	TallyFeedback = "feedback"
)

// Tally is one decision-scoped contribution to a config version's counters.
type Tally struct {
	DecisionID string `json:"decision_id"`
	Kind       string `json:"kind"`
	Positive   bool   `json:"positive,omitempty"`
	Negative   bool   `json:"negative,omitempty"`
	Rating     *int   `json:"rating,omitempty"`
}
