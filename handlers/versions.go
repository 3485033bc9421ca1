// ABOUTME: Configuration version MCP tool handlers
// ABOUTME: Implements current_config_version and list_config_versions tools
package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/harperreed/engage/engine"
	"github.com/harperreed/engage/models"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type VersionHandlers struct {
	eng *engine.Engine
}

func NewVersionHandlers(eng *engine.Engine) *VersionHandlers {
	return &VersionHandlers{eng: eng}
}

type VersionOutput struct {
	ID               int64    `json:"id"`
	Hash             string   `json:"hash"`
	RuleIDs          []string `json:"rule_ids"`
	ScoreFormula     string   `json:"score_formula"`
	MessageCount     int64    `json:"message_count"`
	PositiveFeedback int64    `json:"positive_feedback"`
	NegativeFeedback int64    `json:"negative_feedback"`
	AvgRating        float64  `json:"avg_rating"`
	CreatedAt        string   `json:"created_at"`
}

func versionToOutput(v *models.ConfigVersion) VersionOutput {
	return VersionOutput{
		ID:               v.ID,
		Hash:             v.Hash,
		RuleIDs:          v.RuleIDs,
		ScoreFormula:     v.ScoreFormula,
		MessageCount:     v.MessageCount,
		PositiveFeedback: v.PositiveFeedback,
		NegativeFeedback: v.NegativeFeedback,
		AvgRating:        v.AvgRating(),
		CreatedAt:        v.CreatedAt.Format(time.RFC3339),
	}
}

type CurrentVersionInput struct{}

func (h *VersionHandlers) CurrentConfigVersion(ctx context.Context, request *mcp.CallToolRequest, input CurrentVersionInput) (*mcp.CallToolResult, VersionOutput, error) {
	v, err := h.eng.Versioner().CurrentVersion(ctx)
	if err != nil {
		return nil, VersionOutput{}, fmt.Errorf("failed to resolve config version: %w", err)
	}
	return nil, versionToOutput(v), nil
}

type ListVersionsInput struct {
	Limit     int  `json:"limit,omitempty" jsonschema:"Maximum versions to return (default 20)"`
	WithStats bool `json:"with_stats,omitempty" jsonschema:"Include decision and outcome breakdown per version"`
}

type VersionStatsOutput struct {
	VersionOutput
	PositiveRate     float64        `json:"positive_rate"`
	Decisions        int            `json:"decisions"`
	OpenDecisions    int            `json:"open_decisions"`
	OutcomeBreakdown map[string]int `json:"outcome_breakdown,omitempty"`
}

type ListVersionsOutput struct {
	Versions []VersionStatsOutput `json:"versions"`
}

func (h *VersionHandlers) ListConfigVersions(ctx context.Context, request *mcp.CallToolRequest, input ListVersionsInput) (*mcp.CallToolResult, ListVersionsOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}
	versions, err := h.eng.Versioner().ListVersions(ctx, limit)
	if err != nil {
		return nil, ListVersionsOutput{}, fmt.Errorf("failed to list versions: %w", err)
	}

	result := make([]VersionStatsOutput, len(versions))
	for i := range versions {
		result[i] = VersionStatsOutput{VersionOutput: versionToOutput(&versions[i])}
		if !input.WithStats {
			continue
		}
		st, err := h.eng.Versioner().VersionStats(ctx, versions[i].ID)
		if err != nil {
			return nil, ListVersionsOutput{}, fmt.Errorf("failed to load stats for version %d: %w", versions[i].ID, err)
		}
		result[i].PositiveRate = st.PositiveRate
		result[i].Decisions = st.Decisions
		result[i].OpenDecisions = st.OpenDecisions
		result[i].OutcomeBreakdown = st.OutcomeBreakdown
	}
	return nil, ListVersionsOutput{Versions: result}, nil
}
