// ABOUTME: Data models for the engagement engine
// ABOUTME: Defines Person, Organization, ActivityEvent, Insight, Decision and their enums
package models

import (
	"time"

	"github.com/google/uuid"
)

// Mapping status constants.
const (
	MappingMapped   = "mapped"
	MappingUnmapped = "unmapped"
)

// Actor kinds identify which identity an inbound event carries.
const (
	ActorAccount = "account"
	ActorChat    = "chat"
	ActorEmail   = "email"
)

type Person struct {
	ID               uuid.UUID       `json:"id"`
	AccountID        string          `json:"account_id,omitempty"`
	ChatID           string          `json:"chat_id,omitempty"`
	Email            string          `json:"email,omitempty"`
	DisplayName      string          `json:"display_name,omitempty"`
	OrganizationID   *uuid.UUID      `json:"organization_id,omitempty"`
	MappingStatus    string          `json:"mapping_status"`
	Score            int             `json:"score"`
	ScoreComponents  ScoreComponents `json:"score_components"`
	ScoreFormula     string          `json:"score_formula,omitempty"`
	ScoresComputedAt *time.Time      `json:"scores_computed_at,omitempty"`
	LastActivityAt   *time.Time      `json:"last_activity_at,omitempty"`
	Deleted          bool            `json:"deleted,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// IsMapped reports whether the person is linked to a full platform account.
func (p *Person) IsMapped() bool {
	return p.MappingStatus == MappingMapped
}

// HasIdentity reports whether at least one identity is set.
func (p *Person) HasIdentity() bool {
	return p.AccountID != "" || p.ChatID != "" || p.Email != ""
}

// ScoreComponents holds the per-component breakdown of an engagement score.
type ScoreComponents struct {
	Activity int `json:"activity"`
	Events   int `json:"events"`
}

// Score is the result of one engagement score computation.
type Score struct {
	Total      int             `json:"total"`
	Components ScoreComponents `json:"components"`
	Formula    string          `json:"formula"`
	ComputedAt time.Time       `json:"computed_at"`
}

// Subscription status constants (external billing truth, read only here).
const (
	SubscriptionNone     = "none"
	SubscriptionTrialing = "trialing"
	SubscriptionActive   = "active"
	SubscriptionPastDue  = "past_due"
	SubscriptionCanceled = "canceled"
)

// Persona constants.
const (
	PersonaMoleculeBuilder    = "molecule_builder"
	PersonaDataDecoder        = "data_decoder"
	PersonaPurebloodProtector = "pureblood_protector"
	PersonaResopsIntegrator   = "resops_integrator"
	PersonaLadderClimber      = "ladder_climber"
	PersonaSimpleStarter      = "simple_starter"
)

// Personas lists every valid persona.
var Personas = []string{
	PersonaMoleculeBuilder,
	PersonaDataDecoder,
	PersonaPurebloodProtector,
	PersonaResopsIntegrator,
	PersonaLadderClimber,
	PersonaSimpleStarter,
}

// Company type constants.
const (
	CompanyAdtech    = "adtech"
	CompanyAgency    = "agency"
	CompanyBrand     = "brand"
	CompanyPublisher = "publisher"
	CompanyData      = "data"
	CompanyAI        = "ai"
	CompanyOther     = "other"
)

// CompanyTypes lists every valid company type.
var CompanyTypes = []string{
	CompanyAdtech,
	CompanyAgency,
	CompanyBrand,
	CompanyPublisher,
	CompanyData,
	CompanyAI,
	CompanyOther,
}

type Organization struct {
	ID                 uuid.UUID  `json:"id"`
	Name               string     `json:"name"`
	SubscriptionStatus string     `json:"subscription_status"`
	Persona            string     `json:"persona,omitempty"`
	CompanyTypes       []string   `json:"company_types,omitempty"`
	JourneyStage       string     `json:"journey_stage"`
	EngagementScore    int        `json:"engagement_score"`
	ScoresComputedAt   *time.Time `json:"scores_computed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Activity type constants.
const (
	ActivityChatMessage     = "chat_message"
	ActivitySlackMessage    = "slack_message"
	ActivitySlackReaction   = "slack_reaction"
	ActivitySlackReply      = "slack_reply"
	ActivityEventRegistered = "event_registered"
	ActivityEventAttended   = "event_attended"
	ActivityEmailInbound    = "email_inbound"
	ActivityContentShared   = "content_shared"
)

// ActivityTypes lists every accepted activity type.
var ActivityTypes = []string{
	ActivityChatMessage,
	ActivitySlackMessage,
	ActivitySlackReaction,
	ActivitySlackReply,
	ActivityEventRegistered,
	ActivityEventAttended,
	ActivityEmailInbound,
	ActivityContentShared,
}

// ActivityEvent is an immutable record of one observable action.
type ActivityEvent struct {
	ID             uuid.UUID  `json:"id"`
	DedupKey       string     `json:"dedup_key"`
	PersonID       uuid.UUID  `json:"person_id"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
	Type           string     `json:"type"`
	URL            string     `json:"url,omitempty"`
	OccurredAt     time.Time  `json:"occurred_at"`
	RecordedAt     time.Time  `json:"recorded_at"`
}

// InboundEvent is an activity event as reported by a collaborator, before actor resolution.
type InboundEvent struct {
	ExternalID     string     `json:"external_id,omitempty"`
	ActorID        string     `json:"actor_id"`
	ActorKind      string     `json:"actor_kind"`
	DisplayName    string     `json:"display_name,omitempty"`
	Type           string     `json:"type"`
	Timestamp      time.Time  `json:"timestamp"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
	URL            string     `json:"url,omitempty"`
}

// Insight types.
const (
	InsightRole             = "role"
	InsightInterest         = "interest"
	InsightMembershipIntent = "membership_intent"
	InsightEventInterest    = "event_interest"
	InsightWorkingGroup     = "working_group_interest"
	InsightCompanyFocus     = "company_focus"
	InsightFeedback         = "feedback"
	InsightOptOut           = "outreach_opt_out"
)

// Insight subject kinds.
const (
	SubjectPerson       = "person"
	SubjectOrganization = "organization"
)

// Insight is a durable, provenance-tagged fact. Superseded rows are kept with IsCurrent=false.
type Insight struct {
	ID           uuid.UUID  `json:"id"`
	SubjectKind  string     `json:"subject_kind"`
	SubjectID    uuid.UUID  `json:"subject_id"`
	Type         string     `json:"type"`
	Value        string     `json:"value"`
	Confidence   float64    `json:"confidence"`
	Source       string     `json:"source"`
	IsCurrent    bool       `json:"is_current"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	SupersededAt *time.Time `json:"superseded_at,omitempty"`
}

// Live reports whether the insight is current and unexpired at asOf.
func (i *Insight) Live(asOf time.Time) bool {
	if !i.IsCurrent {
		return false
	}
	if i.ExpiresAt != nil && !asOf.Before(*i.ExpiresAt) {
		return false
	}
	return true
}

// Decision status constants.
const (
	DecisionPending        = "pending"
	DecisionDispatched     = "dispatched"
	DecisionDispatchFailed = "dispatch_failed"
	DecisionResolved       = "resolved"
)

// Decision is one goal attempt for one person, tagged with the config version that produced it.
type Decision struct {
	ID              string     `json:"id"`
	PersonID        uuid.UUID  `json:"person_id"`
	OrganizationID  *uuid.UUID `json:"organization_id,omitempty"`
	GoalID          uuid.UUID  `json:"goal_id"`
	GoalName        string     `json:"goal_name"`
	ConfigVersionID int64      `json:"config_version_id"`
	Channel         string     `json:"channel"`
	Message         string     `json:"message"`
	Status          string     `json:"status"`
	OutcomeType     string     `json:"outcome_type,omitempty"`
	SignalKind      string     `json:"signal_kind,omitempty"`
	SignalValue     string     `json:"signal_value,omitempty"`
	Rating          *int       `json:"rating,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	DispatchedAt    *time.Time `json:"dispatched_at,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
}

// Open reports whether the decision still awaits a response.
func (d *Decision) Open() bool {
	return d.ResolvedAt == nil
}

// WaitingSince is when the response window opened: dispatch, or creation if the
// message has not been dispatched.
func (d *Decision) WaitingSince() time.Time {
	if d.DispatchedAt != nil {
		return *d.DispatchedAt
	}
	return d.CreatedAt
}

// Escalation is the structured notification handed to the human-notification collaborator.
type Escalation struct {
	DecisionID     string `json:"decision_id"`
	PersonID       string `json:"person_id"`
	OrganizationID string `json:"org_id,omitempty"`
	GoalName       string `json:"goal_name"`
	Reason         string `json:"reason"`
}

// DispatchRequest is the outbound message handed to the message-dispatch collaborator.
type DispatchRequest struct {
	DecisionID      string `json:"decision_id"`
	PersonID        string `json:"person_id"`
	Channel         string `json:"channel"`
	Message         string `json:"message"`
	GoalName        string `json:"goal_name"`
	ConfigVersionID int64  `json:"config_version_id"`
}

type OutboxMessage struct {
	ID            string     `json:"id"`
	Topic         string     `json:"topic"`
	DedupKey      string     `json:"dedup_key"`
	Key           string     `json:"key"`
	Payload       []byte     `json:"payload"`
	Attempts      int        `json:"attempts"`
	NextAttemptAt time.Time  `json:"next_attempt_at"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
	AbandonedAt   *time.Time `json:"abandoned_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
