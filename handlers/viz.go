// ABOUTME: GraphViz visualization MCP handlers
// ABOUTME: Provides the generate_graph tool for goal rule graphs and journey histories
package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/harperreed/engage/engine"
	"github.com/harperreed/engage/viz"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type VizHandlers struct {
	eng *engine.Engine
}

func NewVizHandlers(eng *engine.Engine) *VizHandlers {
	return &VizHandlers{eng: eng}
}

type GenerateGraphInput struct {
	Type     string `json:"type" jsonschema:"Graph type: goals or journey"`
	GoalName string `json:"goal_name,omitempty" jsonschema:"Limit the goals graph to one goal"`
	EntityID string `json:"entity_id,omitempty" jsonschema:"Organization UUID (required for journey)"`
}

type GenerateGraphOutput struct {
	GraphType string `json:"graph_type"`
	DOTSource string `json:"dot_source"`
	EdgeCount int    `json:"edge_count"`
}

func (h *VizHandlers) GenerateGraph(ctx context.Context, request *mcp.CallToolRequest, input GenerateGraphInput) (*mcp.CallToolResult, GenerateGraphOutput, error) {
	if input.Type == "" {
		return nil, GenerateGraphOutput{}, fmt.Errorf("type is required")
	}

	generator := viz.NewGraphGenerator(h.eng.Store())
	var dot string
	var err error

	switch input.Type {
	case "goals":
		dot, err = generator.GenerateGoalGraph(ctx, input.GoalName)

	case "journey":
		orgID, perr := parseID("entity_id", input.EntityID)
		if perr != nil {
			return nil, GenerateGraphOutput{}, perr
		}
		dot, err = generator.GenerateJourneyGraph(ctx, orgID)

	default:
		return nil, GenerateGraphOutput{}, fmt.Errorf("unknown graph type: %s (valid types: goals, journey)", input.Type)
	}

	if err != nil {
		return nil, GenerateGraphOutput{}, fmt.Errorf("failed to generate graph: %w", err)
	}

	return nil, GenerateGraphOutput{
		GraphType: input.Type,
		DOTSource: dot,
		EdgeCount: strings.Count(dot, "->"),
	}, nil
}
