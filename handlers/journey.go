// ABOUTME: Journey MCP tool handlers
// ABOUTME: Implements set_journey_stage with regression flagging and an audit trail
package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/harperreed/engage/engine"
	"github.com/harperreed/engage/models"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type JourneyHandlers struct {
	eng *engine.Engine
}

func NewJourneyHandlers(eng *engine.Engine) *JourneyHandlers {
	return &JourneyHandlers{eng: eng}
}

type SetJourneyStageInput struct {
	OrganizationID string `json:"organization_id" jsonschema:"Organization UUID (required)"`
	Stage          string `json:"stage" jsonschema:"aware, evaluating, joined, onboarding, participating, contributing, leading or advocating (required)"`
	Trigger        string `json:"trigger,omitempty" jsonschema:"What caused the change (default manual)"`
	Reason         string `json:"reason,omitempty" jsonschema:"Free-text reason kept in the audit trail"`
}

type JourneyOutput struct {
	OrganizationID string `json:"organization_id"`
	Changed        bool   `json:"changed"`
	FromStage      string `json:"from_stage,omitempty"`
	ToStage        string `json:"to_stage"`
	Regression     bool   `json:"regression"`
	CreatedAt      string `json:"created_at,omitempty"`
}

func (h *JourneyHandlers) SetJourneyStage(ctx context.Context, request *mcp.CallToolRequest, input SetJourneyStageInput) (*mcp.CallToolResult, JourneyOutput, error) {
	orgID, err := parseID("organization_id", input.OrganizationID)
	if err != nil {
		return nil, JourneyOutput{}, err
	}
	trigger := input.Trigger
	if trigger == "" {
		trigger = models.JourneyTriggerManual
	}

	t, err := h.eng.Journey().SetStage(ctx, orgID, input.Stage, trigger, input.Reason)
	if err != nil {
		return nil, JourneyOutput{}, fmt.Errorf("failed to set journey stage: %w", err)
	}
	if t == nil {
		return nil, JourneyOutput{OrganizationID: orgID.String(), ToStage: input.Stage}, nil
	}
	return nil, JourneyOutput{
		OrganizationID: orgID.String(),
		Changed:        true,
		FromStage:      t.FromStage,
		ToStage:        t.ToStage,
		Regression:     t.Regression,
		CreatedAt:      t.CreatedAt.Format(time.RFC3339),
	}, nil
}
