// ABOUTME: Config version and journey CLI commands
// ABOUTME: Compare versions for A/B analysis and inspect or move organization journeys
package cli

import (
	"context"
	"flag"
	"fmt"
	"sort"
	"strconv"

	"github.com/harperreed/engage/engine"
	"github.com/harperreed/engage/models"
)

// VersionsListCommand lists config versions with their counters.
func VersionsListCommand(eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("versions list", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Maximum results")
	_ = fs.Parse(args)

	ctx := context.Background()
	versions, err := eng.Versioner().ListVersions(ctx, *limit)
	if err != nil {
		return fmt.Errorf("failed to list versions: %w", err)
	}
	if len(versions) == 0 {
		fmt.Println("No config versions yet")
		return nil
	}
	var activeID int64
	if active, err := eng.Store().GetActiveVersion(ctx); err == nil {
		activeID = active.ID
	}

	w := newTable()
	_, _ = fmt.Fprintln(w, "ID\tHASH\tRULES\tFORMULA\tMESSAGES\tPOSITIVE\tNEGATIVE\tAVG RATING\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t----\t-----\t-------\t--------\t--------\t--------\t----------\t-------")
	for _, v := range versions {
		id := strconv.FormatInt(v.ID, 10)
		if v.ID == activeID {
			id = okStyle.Render(id + "*")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\t%d\t%d\t%.2f\t%s\n",
			id, v.Hash[:12], len(v.RuleIDs), v.ScoreFormula, v.MessageCount,
			v.PositiveFeedback, v.NegativeFeedback, v.AvgRating(), v.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

// VersionsStatsCommand shows one version's outcome breakdown.
func VersionsStatsCommand(eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("versions stats", flag.ExitOnError)
	_ = fs.Parse(args)
	if fs.NArg() == 0 {
		return fmt.Errorf("version ID required")
	}
	id, err := strconv.ParseInt(fs.Arg(0), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version ID: %w", err)
	}

	st, err := eng.Versioner().VersionStats(context.Background(), id)
	if err != nil {
		return err
	}
	v := st.Version
	fmt.Println(titleStyle.Render(fmt.Sprintf("Config version %d", v.ID)))
	fmt.Printf("  Hash: %s\n", v.Hash)
	fmt.Printf("  Score formula: %s  Rules: %d\n", v.ScoreFormula, len(v.RuleIDs))
	fmt.Printf("  Messages: %d  Decisions: %d (%d open)\n", v.MessageCount, st.Decisions, st.OpenDecisions)
	fmt.Printf("  Feedback: +%d / -%d (%.0f%% positive)\n", v.PositiveFeedback, v.NegativeFeedback, st.PositiveRate*100)
	fmt.Printf("  Ratings: %d, average %.2f\n", v.RatingCount, st.AvgRating)

	if len(st.OutcomeBreakdown) > 0 {
		outcomes := make([]string, 0, len(st.OutcomeBreakdown))
		for o := range st.OutcomeBreakdown {
			outcomes = append(outcomes, o)
		}
		sort.Strings(outcomes)
		fmt.Println("\n  Outcomes:")
		for _, o := range outcomes {
			fmt.Printf("    %-10s %d\n", statusStyle(o).Render(o), st.OutcomeBreakdown[o])
		}
	}
	return nil
}

// JourneySetCommand moves an organization to a stage by hand.
func JourneySetCommand(eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("journey set", flag.ExitOnError)
	org := fs.String("org", "", "Organization ID (required)")
	stage := fs.String("stage", "", "Target stage (required)")
	reason := fs.String("reason", "", "Reason kept in the history")
	_ = fs.Parse(args)

	orgID, err := parseUUIDFlag("org", *org)
	if err != nil {
		return err
	}
	t, err := eng.Journey().SetStage(context.Background(), orgID, *stage, models.JourneyTriggerManual, *reason)
	if err != nil {
		return err
	}
	if t == nil {
		fmt.Printf("%s Already at %s\n", mutedStyle.Render("-"), *stage)
		return nil
	}
	fmt.Printf("%s Journey: %s → %s\n", okStyle.Render("✓"), orDash(t.FromStage), t.ToStage)
	if t.Regression {
		fmt.Println(warnStyle.Render("  ⚠️  This moves the organization backwards"))
	}
	return nil
}

// JourneyHistoryCommand prints an organization's stage transitions.
func JourneyHistoryCommand(eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("journey history", flag.ExitOnError)
	org := fs.String("org", "", "Organization ID (required)")
	_ = fs.Parse(args)

	orgID, err := parseUUIDFlag("org", *org)
	if err != nil {
		return err
	}
	history, err := eng.Journey().History(context.Background(), orgID)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Println("No journey transitions recorded")
		return nil
	}

	w := newTable()
	_, _ = fmt.Fprintln(w, "WHEN\tFROM\tTO\tTRIGGER\tREASON")
	_, _ = fmt.Fprintln(w, "----\t----\t--\t-------\t------")
	for _, t := range history {
		to := t.ToStage
		if t.Regression {
			to = errorStyle.Render(to)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			t.CreatedAt.Format("2006-01-02 15:04"), orDash(t.FromStage), to, t.Trigger, orDash(t.Reason))
	}
	return w.Flush()
}
