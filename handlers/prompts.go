// ABOUTME: MCP prompt handlers for reusable outreach review workflows
// ABOUTME: Provides outreach-review and version-comparison prompts built from live engine state
package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/harperreed/engage/engine"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type PromptHandlers struct {
	eng *engine.Engine
}

func NewPromptHandlers(eng *engine.Engine) *PromptHandlers {
	return &PromptHandlers{eng: eng}
}

// GetPrompt generates the prompt message based on the template
func (h *PromptHandlers) GetPrompt(ctx context.Context, request *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	name := request.Params.Name
	arguments := request.Params.Arguments
	switch name {
	case "outreach-review":
		return h.getOutreachReviewPrompt(ctx, arguments)
	case "version-comparison":
		return h.getVersionComparisonPrompt(ctx)
	default:
		return nil, fmt.Errorf("unknown prompt: %s", name)
	}
}

func userPrompt(description, text string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Description: description,
		Messages: []*mcp.PromptMessage{
			{
				Role:    "user",
				Content: &mcp.TextContent{Text: text},
			},
		},
	}
}

func (h *PromptHandlers) getOutreachReviewPrompt(ctx context.Context, args map[string]string) (*mcp.GetPromptResult, error) {
	personIDStr, ok := args["person_id"]
	if !ok {
		return nil, fmt.Errorf("person_id is required")
	}
	personID, err := uuid.Parse(personIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid person_id: %w", err)
	}

	preview, err := h.eng.Preview(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("failed to preview outreach: %w", err)
	}
	p := preview.Person

	var promptText strings.Builder
	promptText.WriteString("Please review the next outreach planned for this person:\n\n")
	name := p.DisplayName
	if name == "" {
		name = p.ID.String()
	}
	promptText.WriteString(fmt.Sprintf("Person: %s (%s)\n", name, p.MappingStatus))
	promptText.WriteString(fmt.Sprintf("Engagement score: %d (activity %d, events %d)\n",
		p.Score, p.ScoreComponents.Activity, p.ScoreComponents.Events))
	if p.LastActivityAt != nil {
		promptText.WriteString(fmt.Sprintf("Last activity: %s\n", p.LastActivityAt.Format("2006-01-02")))
	}
	promptText.WriteString(fmt.Sprintf("Config version: %d (%s)\n", preview.Version.ID, preview.Version.Hash[:12]))

	if preview.Selection != nil {
		promptText.WriteString(fmt.Sprintf("\nSelected goal: %s via %s\n", preview.Selection.Goal.Name, preview.Selection.Channel))
		promptText.WriteString(fmt.Sprintf("Message: %q\n", preview.Selection.Message))
	} else {
		promptText.WriteString("\nNo goal is currently eligible.\n")
	}

	promptText.WriteString("\nGoal verdicts:\n")
	for _, v := range preview.Verdicts {
		if v.Eligible {
			promptText.WriteString(fmt.Sprintf("- %s: eligible\n", v.GoalName))
			continue
		}
		promptText.WriteString(fmt.Sprintf("- %s: %s\n", v.GoalName, v.Reason))
	}

	promptText.WriteString("\nPlease assess:")
	promptText.WriteString("\n1. Whether the selected goal fits what we know about this person")
	promptText.WriteString("\n2. Whether the message reads naturally for the channel")
	promptText.WriteString("\n3. Any goal that looks wrongly excluded")

	return userPrompt(fmt.Sprintf("Outreach review for %s", name), promptText.String()), nil
}

func (h *PromptHandlers) getVersionComparisonPrompt(ctx context.Context) (*mcp.GetPromptResult, error) {
	versions, err := h.eng.Versioner().ListVersions(ctx, 10)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("no config versions recorded yet")
	}

	var promptText strings.Builder
	promptText.WriteString("Please compare how these outreach configuration versions performed:\n\n")
	for _, v := range versions {
		st, err := h.eng.Versioner().VersionStats(ctx, v.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load stats for version %d: %w", v.ID, err)
		}
		promptText.WriteString(fmt.Sprintf("Version %d (%s, formula %s, %d rules)\n",
			v.ID, v.CreatedAt.Format("2006-01-02"), v.ScoreFormula, len(v.RuleIDs)))
		promptText.WriteString(fmt.Sprintf("  messages %d, positive %d, negative %d, avg rating %.2f\n",
			v.MessageCount, v.PositiveFeedback, v.NegativeFeedback, st.AvgRating))
		for outcome, n := range st.OutcomeBreakdown {
			promptText.WriteString(fmt.Sprintf("  %s: %d\n", outcome, n))
		}
	}

	promptText.WriteString("\nPlease identify:")
	promptText.WriteString("\n1. Which version earns better responses, and whether the sample is large enough to say")
	promptText.WriteString("\n2. Outcome patterns that suggest a goal or template should change")

	return userPrompt("Config version comparison", promptText.String()), nil
}
