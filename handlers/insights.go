// ABOUTME: Insight MCP tool handlers
// ABOUTME: Implements record_insight and list_insights tools over the provenance ledger
package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/harperreed/engage/engine"
	"github.com/harperreed/engage/models"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type InsightHandlers struct {
	eng *engine.Engine
}

func NewInsightHandlers(eng *engine.Engine) *InsightHandlers {
	return &InsightHandlers{eng: eng}
}

type RecordInsightInput struct {
	SubjectKind string  `json:"subject_kind,omitempty" jsonschema:"person or organization (default person)"`
	SubjectID   string  `json:"subject_id" jsonschema:"Person or organization UUID (required)"`
	Type        string  `json:"type" jsonschema:"Insight type, e.g. role, interest, membership_intent (required)"`
	Value       string  `json:"value" jsonschema:"Insight value"`
	Confidence  float64 `json:"confidence,omitempty" jsonschema:"Confidence between 0 and 1 (default 1)"`
	Source      string  `json:"source,omitempty" jsonschema:"Who or what asserted the insight"`
	ExpiresAt   string  `json:"expires_at,omitempty" jsonschema:"RFC3339 expiry time"`
}

type InsightOutput struct {
	ID           string  `json:"id"`
	SubjectKind  string  `json:"subject_kind"`
	SubjectID    string  `json:"subject_id"`
	Type         string  `json:"type"`
	Value        string  `json:"value"`
	Confidence   float64 `json:"confidence"`
	Source       string  `json:"source,omitempty"`
	IsCurrent    bool    `json:"is_current"`
	ExpiresAt    *string `json:"expires_at,omitempty"`
	CreatedAt    string  `json:"created_at"`
	SupersededAt *string `json:"superseded_at,omitempty"`
}

func insightToOutput(ins *models.Insight) InsightOutput {
	return InsightOutput{
		ID:           ins.ID.String(),
		SubjectKind:  ins.SubjectKind,
		SubjectID:    ins.SubjectID.String(),
		Type:         ins.Type,
		Value:        ins.Value,
		Confidence:   ins.Confidence,
		Source:       ins.Source,
		IsCurrent:    ins.IsCurrent,
		ExpiresAt:    formatTime(ins.ExpiresAt),
		CreatedAt:    ins.CreatedAt.Format(time.RFC3339),
		SupersededAt: formatTime(ins.SupersededAt),
	}
}

func (h *InsightHandlers) RecordInsight(ctx context.Context, request *mcp.CallToolRequest, input RecordInsightInput) (*mcp.CallToolResult, InsightOutput, error) {
	subjectID, err := parseID("subject_id", input.SubjectID)
	if err != nil {
		return nil, InsightOutput{}, err
	}
	kind := input.SubjectKind
	if kind == "" {
		kind = models.SubjectPerson
	}

	in := engine.InsightInput{
		SubjectKind: kind,
		SubjectID:   subjectID,
		Type:        input.Type,
		Value:       input.Value,
		Confidence:  input.Confidence,
		Source:      input.Source,
	}
	if input.ExpiresAt != "" {
		at, err := time.Parse(time.RFC3339, input.ExpiresAt)
		if err != nil {
			return nil, InsightOutput{}, fmt.Errorf("invalid expires_at: %w", err)
		}
		in.ExpiresAt = &at
	}

	ins, err := h.eng.RecordInsight(ctx, in)
	if err != nil {
		return nil, InsightOutput{}, fmt.Errorf("failed to record insight: %w", err)
	}
	return nil, insightToOutput(ins), nil
}

type ListInsightsInput struct {
	SubjectKind       string `json:"subject_kind,omitempty" jsonschema:"person or organization (default person)"`
	SubjectID         string `json:"subject_id" jsonschema:"Person or organization UUID (required)"`
	IncludeSuperseded bool   `json:"include_superseded,omitempty" jsonschema:"Include superseded insights from the ledger"`
}

type ListInsightsOutput struct {
	Insights []InsightOutput `json:"insights"`
}

func (h *InsightHandlers) ListInsights(ctx context.Context, request *mcp.CallToolRequest, input ListInsightsInput) (*mcp.CallToolResult, ListInsightsOutput, error) {
	subjectID, err := parseID("subject_id", input.SubjectID)
	if err != nil {
		return nil, ListInsightsOutput{}, err
	}
	kind := input.SubjectKind
	if kind == "" {
		kind = models.SubjectPerson
	}

	list, err := h.eng.Store().ListInsights(ctx, kind, subjectID, !input.IncludeSuperseded)
	if err != nil {
		return nil, ListInsightsOutput{}, fmt.Errorf("failed to list insights: %w", err)
	}
	result := make([]InsightOutput, len(list))
	for i := range list {
		result[i] = insightToOutput(&list[i])
	}
	return nil, ListInsightsOutput{Insights: result}, nil
}
