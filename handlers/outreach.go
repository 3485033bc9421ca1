// ABOUTME: Outreach MCP tool handlers
// ABOUTME: Implements evaluate_outreach, preview_outreach and respond_to_decision tools
package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/harperreed/engage/engine"
	"github.com/harperreed/engage/models"
	"github.com/harperreed/engage/selector"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type OutreachHandlers struct {
	eng *engine.Engine
}

func NewOutreachHandlers(eng *engine.Engine) *OutreachHandlers {
	return &OutreachHandlers{eng: eng}
}

type PersonInput struct {
	PersonID string `json:"person_id" jsonschema:"Person UUID (required)"`
}

type DecisionOutput struct {
	ID              string  `json:"id"`
	PersonID        string  `json:"person_id"`
	GoalName        string  `json:"goal_name"`
	ConfigVersionID int64   `json:"config_version_id"`
	Channel         string  `json:"channel"`
	Message         string  `json:"message"`
	Status          string  `json:"status"`
	OutcomeType     string  `json:"outcome_type,omitempty"`
	CreatedAt       string  `json:"created_at"`
	ResolvedAt      *string `json:"resolved_at,omitempty"`
}

func decisionToOutput(d *models.Decision) DecisionOutput {
	return DecisionOutput{
		ID:              d.ID,
		PersonID:        d.PersonID.String(),
		GoalName:        d.GoalName,
		ConfigVersionID: d.ConfigVersionID,
		Channel:         d.Channel,
		Message:         d.Message,
		Status:          d.Status,
		OutcomeType:     d.OutcomeType,
		CreatedAt:       d.CreatedAt.Format(time.RFC3339),
		ResolvedAt:      formatTime(d.ResolvedAt),
	}
}

type EvaluateOutput struct {
	Selected bool            `json:"selected"`
	Decision *DecisionOutput `json:"decision,omitempty"`
}

func (h *OutreachHandlers) EvaluateOutreach(ctx context.Context, request *mcp.CallToolRequest, input PersonInput) (*mcp.CallToolResult, EvaluateOutput, error) {
	personID, err := parseID("person_id", input.PersonID)
	if err != nil {
		return nil, EvaluateOutput{}, err
	}
	d, err := h.eng.Evaluate(ctx, personID)
	if err != nil {
		return nil, EvaluateOutput{}, fmt.Errorf("failed to evaluate outreach: %w", err)
	}
	if d == nil {
		return nil, EvaluateOutput{}, nil
	}
	out := decisionToOutput(d)
	return nil, EvaluateOutput{Selected: true, Decision: &out}, nil
}

// PreviewOutput reports config_version_id 0 when the rule content has not been stored yet;
// config_hash identifies it either way.
type PreviewOutput struct {
	ConfigVersionID int64              `json:"config_version_id"`
	ConfigHash      string             `json:"config_hash"`
	Score           int                `json:"score"`
	GoalName        string             `json:"goal_name,omitempty"`
	Channel         string             `json:"channel,omitempty"`
	Message         string             `json:"message,omitempty"`
	Verdicts        []selector.Verdict `json:"verdicts"`
}

func (h *OutreachHandlers) PreviewOutreach(ctx context.Context, request *mcp.CallToolRequest, input PersonInput) (*mcp.CallToolResult, PreviewOutput, error) {
	personID, err := parseID("person_id", input.PersonID)
	if err != nil {
		return nil, PreviewOutput{}, err
	}
	p, err := h.eng.Preview(ctx, personID)
	if err != nil {
		return nil, PreviewOutput{}, fmt.Errorf("failed to preview outreach: %w", err)
	}
	out := PreviewOutput{
		ConfigVersionID: p.Version.ID,
		ConfigHash:      p.Version.Hash,
		Score:           p.Person.Score,
		Verdicts:        p.Verdicts,
	}
	if p.Selection != nil {
		out.GoalName = p.Selection.Goal.Name
		out.Channel = p.Selection.Channel
		out.Message = p.Selection.Message
	}
	return nil, out, nil
}

type RespondInput struct {
	DecisionID   string  `json:"decision_id" jsonschema:"Decision id (required)"`
	SignalKind   string  `json:"signal_kind" jsonschema:"sentiment, intent, timeout, dispatch_failed or classification_unavailable (required)"`
	SignalValue  string  `json:"signal_value,omitempty" jsonschema:"Classified value, e.g. positive, negative, refusal or an intent label"`
	ElapsedHours float64 `json:"elapsed_hours,omitempty" jsonschema:"Hours since dispatch, for timeout signals"`
	Rating       *int    `json:"rating,omitempty" jsonschema:"Optional 1-5 rating of the exchange"`
}

type RespondOutput struct {
	Decision      DecisionOutput `json:"decision"`
	OutcomeType   string         `json:"outcome_type"`
	GoalState     string         `json:"goal_state"`
	DeferredUntil *string        `json:"deferred_until,omitempty"`
	InsightType   string         `json:"insight_type,omitempty"`
	Escalated     bool           `json:"escalated"`
}

func (h *OutreachHandlers) RespondToDecision(ctx context.Context, request *mcp.CallToolRequest, input RespondInput) (*mcp.CallToolResult, RespondOutput, error) {
	if input.DecisionID == "" {
		return nil, RespondOutput{}, fmt.Errorf("decision_id is required")
	}
	sig := models.Signal{Kind: input.SignalKind, Value: input.SignalValue, ElapsedHours: input.ElapsedHours}
	res, err := h.eng.RespondToDecision(ctx, input.DecisionID, sig, input.Rating)
	if err != nil {
		return nil, RespondOutput{}, fmt.Errorf("failed to apply response: %w", err)
	}

	out := RespondOutput{
		Decision:      decisionToOutput(&res.Decision),
		OutcomeType:   res.Outcome.OutcomeType,
		GoalState:     res.GoalState.Status,
		DeferredUntil: formatTime(res.GoalState.DeferredUntil),
		Escalated:     res.Escalated,
	}
	if res.Insight != nil {
		out.InsightType = res.Insight.Type
	}
	return nil, out, nil
}
