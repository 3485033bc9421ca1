// ABOUTME: Goal CLI commands
// ABOUTME: Load, validate, list, enable, disable and reset outreach goals
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/harperreed/engage/config"
	"github.com/harperreed/engage/db"
	"github.com/harperreed/engage/engine"
	"github.com/harperreed/engage/rules"
)

func ruleFile(fs *flag.FlagSet, cfg *config.Config) string {
	if fs.NArg() > 0 {
		return fs.Arg(0)
	}
	return cfg.Engine.RulesFile
}

func printValidation(err error) error {
	var verr *rules.ValidationError
	if errors.As(err, &verr) {
		fmt.Println(errorStyle.Render(fmt.Sprintf("✗ %d problems", len(verr.Problems))))
		for _, p := range verr.Problems {
			fmt.Printf("  %s: %s\n", p.Field, p.Msg)
		}
		return rules.ErrInvalidRule
	}
	return err
}

// GoalsValidateCommand checks a rule file without touching the database.
func GoalsValidateCommand(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("goals validate", flag.ExitOnError)
	_ = fs.Parse(args)

	path := ruleFile(fs, cfg)
	rs, err := rules.LoadFile(path)
	if err != nil {
		return printValidation(err)
	}
	fmt.Printf("%s %s: %d goals, %d routing rules\n", okStyle.Render("✓"), path, len(rs.Goals), len(rs.RoutingRules))
	return nil
}

// GoalsLoadCommand imports a rule file and reports the config version it yields.
func GoalsLoadCommand(eng *engine.Engine, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("goals load", flag.ExitOnError)
	_ = fs.Parse(args)

	ctx := context.Background()
	path := ruleFile(fs, cfg)
	rs, err := rules.LoadFile(path)
	if err != nil {
		return printValidation(err)
	}
	if err := eng.Store().ImportRuleSet(ctx, rs); err != nil {
		return printValidation(err)
	}

	v, err := eng.Versioner().CurrentVersion(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s Loaded %d goals and %d routing rules from %s\n", okStyle.Render("✓"), len(rs.Goals), len(rs.RoutingRules), path)
	fmt.Printf("  Config version: %d (%s)\n", v.ID, v.Hash[:12])
	return nil
}

// GoalsListCommand lists stored goals in ranking order.
func GoalsListCommand(eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("goals list", flag.ExitOnError)
	enabledOnly := fs.Bool("enabled", false, "Only show enabled goals")
	_ = fs.Parse(args)

	goals, err := eng.Store().ListGoals(context.Background(), *enabledOnly)
	if err != nil {
		return fmt.Errorf("failed to list goals: %w", err)
	}
	if len(goals) == 0 {
		fmt.Println("No goals loaded (run: engage goals load)")
		return nil
	}

	w := newTable()
	_, _ = fmt.Fprintln(w, "NAME\tCATEGORY\tPRIORITY\tMIN SCORE\tREQUIRES\tEXCLUDES\tOUTCOMES\tENABLED")
	_, _ = fmt.Fprintln(w, "----\t--------\t--------\t---------\t--------\t--------\t--------\t-------")
	for _, g := range goals {
		enabled := okStyle.Render("yes")
		if !g.Enabled {
			enabled = mutedStyle.Render("no")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\t%d\t%s\n",
			g.Name, g.Category, g.BasePriority, g.RequiresMinEngagement,
			orDash(strings.Join(g.RequiresInsights, ",")), orDash(strings.Join(g.ExcludesInsights, ",")),
			len(g.Outcomes), enabled)
	}
	_ = w.Flush()
	return nil
}

// GoalsSetEnabledCommand enables or disables goals by name.
func GoalsSetEnabledCommand(eng *engine.Engine, enabled bool, args []string) error {
	fs := flag.NewFlagSet("goals enable", flag.ExitOnError)
	_ = fs.Parse(args)
	if fs.NArg() == 0 {
		return fmt.Errorf("goal name required")
	}

	ctx := context.Background()
	for _, name := range fs.Args() {
		if err := eng.Store().SetGoalEnabled(ctx, name, enabled); err != nil {
			return fmt.Errorf("goal %s: %w", name, err)
		}
		state := "enabled"
		if !enabled {
			state = "disabled"
		}
		fmt.Printf("%s Goal %s %s\n", okStyle.Render("✓"), name, state)
	}

	v, err := eng.Versioner().CurrentVersion(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("  Config version: %d\n", v.ID)
	return nil
}

// GoalsResetCommand returns a person's goal to proposed after a terminal outcome.
func GoalsResetCommand(eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("goals reset", flag.ExitOnError)
	person := fs.String("person", "", "Person ID (required)")
	goalName := fs.String("goal", "", "Goal name (required)")
	_ = fs.Parse(args)

	personID, err := parseUUIDFlag("person", *person)
	if err != nil {
		return err
	}
	if *goalName == "" {
		return fmt.Errorf("--goal is required")
	}

	ctx := context.Background()
	g, err := eng.Store().GetGoalByName(ctx, *goalName)
	if err != nil {
		return err
	}
	st, err := eng.ResetGoal(ctx, personID, g.ID)
	if errors.Is(err, db.ErrConflict) {
		return fmt.Errorf("goal %s still has an open decision; respond or sweep first", *goalName)
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s Goal %s is %s for %s\n", okStyle.Render("✓"), *goalName, st.Status, personID)
	return nil
}
