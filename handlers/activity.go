// ABOUTME: Activity and person MCP tool handlers
// ABOUTME: Implements record_activity, compute_score and map_person tools
package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/engage/engine"
	"github.com/harperreed/engage/models"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type ActivityHandlers struct {
	eng *engine.Engine
}

func NewActivityHandlers(eng *engine.Engine) *ActivityHandlers {
	return &ActivityHandlers{eng: eng}
}

func parseID(field, value string) (uuid.UUID, error) {
	if value == "" {
		return uuid.Nil, fmt.Errorf("%s is required", field)
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %w", field, err)
	}
	return id, nil
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

type RecordActivityInput struct {
	ActorID        string `json:"actor_id" jsonschema:"Actor identity value: account id, chat user id or email (required)"`
	ActorKind      string `json:"actor_kind" jsonschema:"Identity kind: account, chat or email (required)"`
	DisplayName    string `json:"display_name,omitempty" jsonschema:"Display name used when the person is new"`
	Type           string `json:"type" jsonschema:"Activity type, e.g. chat_message, slack_reaction, event_attended, content_shared (required)"`
	Timestamp      string `json:"timestamp,omitempty" jsonschema:"RFC3339 time the activity happened (default now)"`
	OrganizationID string `json:"organization_id,omitempty" jsonschema:"Organization context UUID"`
	ExternalID     string `json:"external_id,omitempty" jsonschema:"Upstream event id used for deduplication"`
	URL            string `json:"url,omitempty" jsonschema:"Shared link for content_shared events"`
}

type ActivityOutput struct {
	ID         string `json:"id"`
	PersonID   string `json:"person_id"`
	Type       string `json:"type"`
	DedupKey   string `json:"dedup_key"`
	OccurredAt string `json:"occurred_at"`
	Created    bool   `json:"created"`
}

func (h *ActivityHandlers) RecordActivity(ctx context.Context, request *mcp.CallToolRequest, input RecordActivityInput) (*mcp.CallToolResult, ActivityOutput, error) {
	in := models.InboundEvent{
		ExternalID:  input.ExternalID,
		ActorID:     input.ActorID,
		ActorKind:   input.ActorKind,
		DisplayName: input.DisplayName,
		Type:        input.Type,
		URL:         input.URL,
	}
	if input.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, input.Timestamp)
		if err != nil {
			return nil, ActivityOutput{}, fmt.Errorf("invalid timestamp: %w", err)
		}
		in.Timestamp = ts
	}
	if input.OrganizationID != "" {
		orgID, err := parseID("organization_id", input.OrganizationID)
		if err != nil {
			return nil, ActivityOutput{}, err
		}
		in.OrganizationID = &orgID
	}

	ev, created, err := h.eng.RecordActivity(ctx, in)
	if err != nil {
		return nil, ActivityOutput{}, fmt.Errorf("failed to record activity: %w", err)
	}
	return nil, ActivityOutput{
		ID:         ev.ID.String(),
		PersonID:   ev.PersonID.String(),
		Type:       ev.Type,
		DedupKey:   ev.DedupKey,
		OccurredAt: ev.OccurredAt.Format(time.RFC3339),
		Created:    created,
	}, nil
}

type ComputeScoreInput struct {
	PersonID       string `json:"person_id,omitempty" jsonschema:"Person UUID to score"`
	OrganizationID string `json:"organization_id,omitempty" jsonschema:"Organization UUID to score from its members (instead of person_id)"`
}

type ScoreOutput struct {
	SubjectID  string                  `json:"subject_id"`
	Total      int                     `json:"total"`
	Components *models.ScoreComponents `json:"components,omitempty"`
	Formula    string                  `json:"formula"`
	ComputedAt string                  `json:"computed_at"`
}

func (h *ActivityHandlers) ComputeScore(ctx context.Context, request *mcp.CallToolRequest, input ComputeScoreInput) (*mcp.CallToolResult, ScoreOutput, error) {
	if input.OrganizationID != "" {
		orgID, err := parseID("organization_id", input.OrganizationID)
		if err != nil {
			return nil, ScoreOutput{}, err
		}
		total, err := h.eng.ComputeOrgScore(ctx, orgID)
		if err != nil {
			return nil, ScoreOutput{}, fmt.Errorf("failed to compute organization score: %w", err)
		}
		return nil, ScoreOutput{
			SubjectID:  orgID.String(),
			Total:      total,
			Formula:    h.eng.Options().ScoreFormula,
			ComputedAt: time.Now().UTC().Format(time.RFC3339),
		}, nil
	}

	personID, err := parseID("person_id", input.PersonID)
	if err != nil {
		return nil, ScoreOutput{}, err
	}
	score, err := h.eng.ComputeScore(ctx, personID)
	if err != nil {
		return nil, ScoreOutput{}, fmt.Errorf("failed to compute score: %w", err)
	}
	return nil, ScoreOutput{
		SubjectID:  personID.String(),
		Total:      score.Total,
		Components: &score.Components,
		Formula:    score.Formula,
		ComputedAt: score.ComputedAt.Format(time.RFC3339),
	}, nil
}

type MapPersonInput struct {
	PersonID  string `json:"person_id" jsonschema:"Person UUID (required)"`
	AccountID string `json:"account_id" jsonschema:"Platform account id to link (required)"`
}

type PersonOutput struct {
	ID             string  `json:"id"`
	AccountID      string  `json:"account_id,omitempty"`
	ChatID         string  `json:"chat_id,omitempty"`
	Email          string  `json:"email,omitempty"`
	DisplayName    string  `json:"display_name,omitempty"`
	OrganizationID *string `json:"organization_id,omitempty"`
	MappingStatus  string  `json:"mapping_status"`
	Score          int     `json:"score"`
	LastActivityAt *string `json:"last_activity_at,omitempty"`
}

func personToOutput(p *models.Person) PersonOutput {
	out := PersonOutput{
		ID:             p.ID.String(),
		AccountID:      p.AccountID,
		ChatID:         p.ChatID,
		Email:          p.Email,
		DisplayName:    p.DisplayName,
		MappingStatus:  p.MappingStatus,
		Score:          p.Score,
		LastActivityAt: formatTime(p.LastActivityAt),
	}
	if p.OrganizationID != nil {
		s := p.OrganizationID.String()
		out.OrganizationID = &s
	}
	return out
}

func (h *ActivityHandlers) MapPerson(ctx context.Context, request *mcp.CallToolRequest, input MapPersonInput) (*mcp.CallToolResult, PersonOutput, error) {
	personID, err := parseID("person_id", input.PersonID)
	if err != nil {
		return nil, PersonOutput{}, err
	}
	if input.AccountID == "" {
		return nil, PersonOutput{}, fmt.Errorf("account_id is required")
	}
	p, err := h.eng.MapPerson(ctx, personID, input.AccountID)
	if err != nil {
		return nil, PersonOutput{}, fmt.Errorf("failed to map person: %w", err)
	}
	return nil, personToOutput(p), nil
}
