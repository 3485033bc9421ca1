// ABOUTME: MCP server assembly
// ABOUTME: Registers every engage tool, resource and prompt on one server
package handlers

import (
	"github.com/harperreed/engage/engine"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewServer builds an MCP server exposing the engine.
func NewServer(eng *engine.Engine, name, version string) *mcp.Server {
	activity := NewActivityHandlers(eng)
	outreach := NewOutreachHandlers(eng)
	insights := NewInsightHandlers(eng)
	versions := NewVersionHandlers(eng)
	journeys := NewJourneyHandlers(eng)
	vizHandlers := NewVizHandlers(eng)
	resources := NewResourceHandlers(eng)
	prompts := NewPromptHandlers(eng)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    name,
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "record_activity",
		Description: "Record an activity event, resolving the actor to a person. Replayed events are deduplicated",
	}, activity.RecordActivity)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "compute_score",
		Description: "Recompute the engagement score of a person or an organization",
	}, activity.ComputeScore)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "map_person",
		Description: "Link an unmapped person to a platform account",
	}, activity.MapPerson)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "evaluate_outreach",
		Description: "Choose the next outreach goal for a person and queue the message for dispatch",
	}, outreach.EvaluateOutreach)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "preview_outreach",
		Description: "Show which goal would be chosen for a person and why each goal is or is not eligible, without recording anything",
	}, outreach.PreviewOutreach)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "respond_to_decision",
		Description: "Apply a classified response signal and optional rating to an open outreach decision",
	}, outreach.RespondToDecision)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "record_insight",
		Description: "Record a fact about a person or organization, superseding the current insight of the same type",
	}, insights.RecordInsight)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_insights",
		Description: "List the current insights of a person or organization, optionally with superseded history",
	}, insights.ListInsights)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "current_config_version",
		Description: "Return the config version for the active rule set, creating it if the rules changed",
	}, versions.CurrentConfigVersion)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_config_versions",
		Description: "List config versions with message and feedback counters for A/B comparison",
	}, versions.ListConfigVersions)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "set_journey_stage",
		Description: "Move an organization to a journey stage. Regressions are allowed and flagged",
	}, journeys.SetJourneyStage)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "generate_graph",
		Description: "Render the goal outcome graph or an organization's journey history as GraphViz source",
	}, vizHandlers.GenerateGraph)

	server.AddResource(&mcp.Resource{
		URI:         resourceScheme + "goals",
		Name:        "goals",
		Description: "The stored rule set: goals with outcomes and routing rules",
		MIMEType:    "application/json",
	}, resources.ReadResource)

	server.AddResource(&mcp.Resource{
		URI:         resourceScheme + "versions",
		Name:        "versions",
		Description: "Recent config versions with their counters",
		MIMEType:    "application/json",
	}, resources.ReadResource)

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: resourceScheme + "persons/{id}",
		Name:        "person",
		Description: "A person with current insights, goal states and recent decisions",
		MIMEType:    "application/json",
	}, resources.ReadResource)

	server.AddPrompt(&mcp.Prompt{
		Name:        "outreach-review",
		Description: "Review the next outreach planned for a person",
		Arguments: []*mcp.PromptArgument{
			{Name: "person_id", Description: "Person UUID", Required: true},
		},
	}, prompts.GetPrompt)

	server.AddPrompt(&mcp.Prompt{
		Name:        "version-comparison",
		Description: "Compare recent config versions by response quality",
	}, prompts.GetPrompt)

	return server
}
