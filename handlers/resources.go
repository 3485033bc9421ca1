// ABOUTME: MCP resource handlers exposing engine state
// ABOUTME: Read-only access to the rule set, config versions and persons via engage:// URIs
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/harperreed/engage/engine"
	"github.com/harperreed/engage/models"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const resourceScheme = "engage://"

type ResourceHandlers struct {
	eng *engine.Engine
}

func NewResourceHandlers(eng *engine.Engine) *ResourceHandlers {
	return &ResourceHandlers{eng: eng}
}

// ReadResource handles resource read requests
func (h *ResourceHandlers) ReadResource(ctx context.Context, request *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := request.Params.URI
	if !strings.HasPrefix(uri, resourceScheme) {
		return nil, fmt.Errorf("invalid URI scheme: expected %s", resourceScheme)
	}

	parts := strings.Split(strings.TrimPrefix(uri, resourceScheme), "/")
	switch parts[0] {
	case "goals":
		return h.readGoals(ctx, uri)
	case "versions":
		return h.readVersions(ctx, uri)
	case "persons":
		if len(parts) < 2 || parts[1] == "" {
			return nil, fmt.Errorf("person id required: %spersons/{id}", resourceScheme)
		}
		return h.readPerson(ctx, uri, parts[1])
	default:
		return nil, fmt.Errorf("unknown resource: %s", parts[0])
	}
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{
		{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}}, nil
}

func (h *ResourceHandlers) readGoals(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	rs, err := h.eng.Store().LoadRuleSet(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	return jsonResource(uri, rs)
}

func (h *ResourceHandlers) readVersions(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	versions, err := h.eng.Versioner().ListVersions(ctx, 100)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	out := make([]VersionOutput, len(versions))
	for i := range versions {
		out[i] = versionToOutput(&versions[i])
	}
	return jsonResource(uri, out)
}

// readPerson returns the person with current insights, goal states and recent decisions.
func (h *ResourceHandlers) readPerson(ctx context.Context, uri, idStr string) (*mcp.ReadResourceResult, error) {
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid person ID: %w", err)
	}
	store := h.eng.Store()

	person, err := store.GetPerson(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch person: %w", err)
	}
	insights, err := store.CurrentInsightsFor(ctx, id, person.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch insights: %w", err)
	}
	states, err := store.GoalStatesFor(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch goal states: %w", err)
	}
	decisions, err := store.ListDecisions(ctx, id, 20)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch decisions: %w", err)
	}

	goalStates := make([]models.GoalState, 0, len(states))
	for _, st := range states {
		goalStates = append(goalStates, st)
	}
	sort.Slice(goalStates, func(i, j int) bool {
		return goalStates[i].UpdatedAt.After(goalStates[j].UpdatedAt)
	})

	return jsonResource(uri, struct {
		models.Person
		Insights   []models.Insight   `json:"insights"`
		GoalStates []models.GoalState `json:"goal_states"`
		Decisions  []models.Decision  `json:"decisions"`
	}{
		Person:     *person,
		Insights:   insights,
		GoalStates: goalStates,
		Decisions:  decisions,
	})
}
