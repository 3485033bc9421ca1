// ABOUTME: GraphViz rendering of outreach goals and their outcome tables
// ABOUTME: Each goal fans out to the outcome types its triggers lead to
package viz

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
	"github.com/harperreed/engage/db"
	"github.com/harperreed/engage/models"
)

type GraphGenerator struct {
	store *db.Store
}

func NewGraphGenerator(store *db.Store) *GraphGenerator {
	return &GraphGenerator{store: store}
}

var outcomeColors = map[string]string{
	models.OutcomeSuccess:  "palegreen",
	models.OutcomeDecline:  "lightpink",
	models.OutcomeClarify:  "lightyellow",
	models.OutcomeDefer:    "lightblue",
	models.OutcomeEscalate: "orange",
}

// GenerateGoalGraph renders goals as boxes with an edge per outcome row, labelled with
// the trigger. An empty name renders every goal, disabled ones greyed out.
func (g *GraphGenerator) GenerateGoalGraph(ctx context.Context, goalName string) (string, error) {
	var goals []models.Goal
	if goalName != "" {
		goal, err := g.store.GetGoalByName(ctx, goalName)
		if err != nil {
			return "", fmt.Errorf("failed to fetch goal: %w", err)
		}
		goals = []models.Goal{*goal}
	} else {
		var err error
		goals, err = g.store.ListGoals(ctx, false)
		if err != nil {
			return "", fmt.Errorf("failed to fetch goals: %w", err)
		}
	}

	gv, err := graphviz.New(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create graphviz instance: %w", err)
	}
	defer gv.Close()

	graph, err := gv.Graph()
	if err != nil {
		return "", fmt.Errorf("failed to create graph: %w", err)
	}
	defer graph.Close()

	graph.SetLabel("Outreach goals")
	graph.SetRankDir(cgraph.LRRank)

	outcomeNodes := make(map[string]*cgraph.Node)
	for _, goal := range goals {
		gn, err := graph.CreateNodeByName("goal_" + goal.Name)
		if err != nil {
			return "", fmt.Errorf("failed to create goal node: %w", err)
		}
		gn.SetLabel(fmt.Sprintf("%s\npriority %d, min %d", goal.Name, goal.BasePriority, goal.RequiresMinEngagement))
		gn.SetShape("box")
		gn.SetStyle("filled")
		if goal.Enabled {
			gn.SetFillColor("white")
		} else {
			gn.SetFillColor("lightgrey")
		}

		for _, o := range goal.Outcomes {
			key := o.OutcomeType
			if o.DeferDays > 0 {
				key = fmt.Sprintf("%s_%dd", o.OutcomeType, o.DeferDays)
			}
			on, ok := outcomeNodes[key]
			if !ok {
				on, err = graph.CreateNodeByName("outcome_" + key)
				if err != nil {
					return "", fmt.Errorf("failed to create outcome node: %w", err)
				}
				label := o.OutcomeType
				if o.DeferDays > 0 {
					label = fmt.Sprintf("%s\n%d days", o.OutcomeType, o.DeferDays)
				}
				on.SetLabel(label)
				on.SetShape("ellipse")
				on.SetStyle("filled")
				on.SetFillColor(outcomeColors[o.OutcomeType])
				outcomeNodes[key] = on
			}

			edge, err := graph.CreateEdgeByName(fmt.Sprintf("%s_%s", goal.Name, o.ID), gn, on)
			if err != nil {
				return "", fmt.Errorf("failed to create edge: %w", err)
			}
			edge.SetLabel(triggerLabel(o))
			if o.TriggerType == models.TriggerDefault {
				edge.SetStyle("dashed")
			}
		}
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, graphviz.XDOT, &buf); err != nil {
		return "", fmt.Errorf("failed to render graph: %w", err)
	}
	return buf.String(), nil
}

func triggerLabel(o models.GoalOutcome) string {
	switch o.TriggerType {
	case models.TriggerDefault:
		return "default"
	case models.TriggerTimeout:
		if o.TriggerValue == "" {
			return "timeout"
		}
		return "timeout >= " + o.TriggerValue + "h"
	}
	label := o.TriggerType + "=" + o.TriggerValue
	if o.InsightToRecord != "" {
		label += "\n+" + o.InsightToRecord
	}
	return label
}
