// ABOUTME: Terminal dashboard statistics and rendering
// ABOUTME: Summarises journeys, open decisions, config versions and the outbox backlog
package viz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harperreed/engage/db"
	"github.com/harperreed/engage/models"
)

type DashboardStats struct {
	StageCounts map[string]int

	TotalPersons       int
	UnmappedPersons    int
	TotalOrganizations int
	OpenDecisions      int
	ConfigVersions     int

	ActiveVersion *models.ConfigVersion

	// Needs attention
	OverdueDecisions []models.Decision
	PendingOutbox    int
	AbandonedOutbox  int
	StaleScores      int
}

// GenerateDashboardStats collects the dashboard numbers. Decisions open longer than
// responseTimeout and scores older than maxScoreAge count as needing attention.
func GenerateDashboardStats(ctx context.Context, store *db.Store, now time.Time, responseTimeout, maxScoreAge time.Duration) (*DashboardStats, error) {
	stats := &DashboardStats{StageCounts: make(map[string]int)}

	orgs, err := store.ListOrganizations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch organizations: %w", err)
	}
	stats.TotalOrganizations = len(orgs)
	for _, o := range orgs {
		stats.StageCounts[o.JourneyStage]++
	}

	persons, err := store.ListPersons(ctx, 100000)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch persons: %w", err)
	}
	stats.TotalPersons = len(persons)
	for _, p := range persons {
		if !p.IsMapped() {
			stats.UnmappedPersons++
		}
		if p.ScoresComputedAt == nil || now.Sub(*p.ScoresComputedAt) > maxScoreAge {
			stats.StaleScores++
		}
	}

	open, err := store.ListOpenDecisionsBefore(ctx, now, 100000)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch open decisions: %w", err)
	}
	stats.OpenDecisions = len(open)
	cutoff := now.Add(-responseTimeout)
	for _, d := range open {
		if !d.WaitingSince().After(cutoff) {
			stats.OverdueDecisions = append(stats.OverdueDecisions, d)
		}
	}

	versions, err := store.ListVersions(ctx, 100000)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch config versions: %w", err)
	}
	stats.ConfigVersions = len(versions)
	if active, err := store.GetActiveVersion(ctx); err == nil {
		stats.ActiveVersion = active
	}

	outbox, err := store.ListOutbox(ctx, "", false)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch outbox: %w", err)
	}
	for _, m := range outbox {
		switch {
		case m.AbandonedAt != nil:
			stats.AbandonedOutbox++
		case m.PublishedAt == nil:
			stats.PendingOutbox++
		}
	}

	return stats, nil
}

func RenderDashboard(stats *DashboardStats) string {
	var out strings.Builder

	out.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	out.WriteString("  ENGAGE DASHBOARD\n")
	out.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

	out.WriteString("JOURNEY STAGES\n")
	renderStages(&out, stats.StageCounts)
	out.WriteString("\n")

	out.WriteString("STATS\n")
	out.WriteString(fmt.Sprintf("  %d persons (%d unmapped)  %d organizations  %d open decisions\n",
		stats.TotalPersons, stats.UnmappedPersons, stats.TotalOrganizations, stats.OpenDecisions))
	if stats.ActiveVersion != nil {
		v := stats.ActiveVersion
		out.WriteString(fmt.Sprintf("  config v%d of %d: %d messages, +%d/-%d feedback, avg rating %.1f\n",
			v.ID, stats.ConfigVersions, v.MessageCount, v.PositiveFeedback, v.NegativeFeedback, v.AvgRating()))
	}
	out.WriteString("\n")

	if len(stats.OverdueDecisions) > 0 || stats.PendingOutbox > 0 || stats.AbandonedOutbox > 0 || stats.StaleScores > 0 {
		out.WriteString("NEEDS ATTENTION\n")
		if n := len(stats.OverdueDecisions); n > 0 {
			out.WriteString(fmt.Sprintf("  ⚠️  %d decisions past the response timeout (run sweep)\n", n))
		}
		if stats.PendingOutbox > 0 {
			out.WriteString(fmt.Sprintf("  ⚠️  %d outbox messages waiting for the relay\n", stats.PendingOutbox))
		}
		if stats.AbandonedOutbox > 0 {
			out.WriteString(fmt.Sprintf("  ⚠️  %d outbox messages abandoned\n", stats.AbandonedOutbox))
		}
		if stats.StaleScores > 0 {
			out.WriteString(fmt.Sprintf("  ⚠️  %d persons with stale scores\n", stats.StaleScores))
		}
	}

	return out.String()
}

func renderStages(out *strings.Builder, counts map[string]int) {
	maxCount := 0
	for _, c := range counts {
		if c > maxCount {
			maxCount = c
		}
	}
	if maxCount == 0 {
		maxCount = 1
	}

	for _, stage := range models.JourneyStages {
		count := counts[stage]
		barLength := (count * 10) / maxCount
		bar := strings.Repeat("█", barLength) + strings.Repeat("░", 10-barLength)
		out.WriteString(fmt.Sprintf("  %-14s %s  %3d\n", stage, bar, count))
	}
}
