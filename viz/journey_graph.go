// ABOUTME: GraphViz rendering of an organization's journey stage history
// ABOUTME: Stages are laid out in order; regressions are drawn in red
package viz

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
	"github.com/google/uuid"
	"github.com/harperreed/engage/models"
)

// GenerateJourneyGraph renders every journey stage with the organization's recorded
// transitions as numbered edges. The current stage is highlighted.
func (g *GraphGenerator) GenerateJourneyGraph(ctx context.Context, orgID uuid.UUID) (string, error) {
	org, err := g.store.GetOrganization(ctx, orgID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch organization: %w", err)
	}
	history, err := g.store.JourneyHistory(ctx, orgID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch journey history: %w", err)
	}

	gv, err := graphviz.New(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create graphviz: %w", err)
	}
	defer func() {
		if err := gv.Close(); err != nil {
			fmt.Printf("Error closing graphviz: %v\n", err)
		}
	}()

	graph, err := gv.Graph()
	if err != nil {
		return "", fmt.Errorf("failed to create graph: %w", err)
	}
	defer func() {
		if err := graph.Close(); err != nil {
			fmt.Printf("Error closing graph: %v\n", err)
		}
	}()

	graph.SetLabel(fmt.Sprintf("%s journey", org.Name))
	graph.SetRankDir(cgraph.LRRank)

	nodes := make(map[string]*cgraph.Node, len(models.JourneyStages))
	for _, stage := range models.JourneyStages {
		node, err := graph.CreateNodeByName(stage)
		if err != nil {
			return "", fmt.Errorf("failed to create stage node: %w", err)
		}
		node.SetShape("box")
		node.SetStyle("filled")
		if stage == org.JourneyStage {
			node.SetFillColor("gold")
		} else {
			node.SetFillColor("white")
		}
		nodes[stage] = node
	}

	for i, t := range history {
		from, ok := nodes[t.FromStage]
		if !ok {
			continue
		}
		edge, err := graph.CreateEdgeByName(fmt.Sprintf("t%d", t.ID), from, nodes[t.ToStage])
		if err != nil {
			return "", fmt.Errorf("failed to create transition edge: %w", err)
		}
		edge.SetLabel(fmt.Sprintf("%d. %s\n%s", i+1, t.Trigger, t.CreatedAt.Format("2006-01-02")))
		if t.Regression {
			edge.SetColor("red")
		}
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, graphviz.XDOT, &buf); err != nil {
		return "", fmt.Errorf("failed to render graph: %w", err)
	}
	return buf.String(), nil
}
