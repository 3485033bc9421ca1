// ABOUTME: Visualization CLI commands
// ABOUTME: Handles the dashboard and goal and journey graph generation
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/harperreed/engage/engine"
	"github.com/harperreed/engage/viz"
)

func writeGraph(output, dot string) error {
	if output != "" {
		return os.WriteFile(output, []byte(dot), 0644)
	}
	fmt.Println(dot)
	return nil
}

// VizGoalsCommand renders goals and their outcome tables.
func VizGoalsCommand(eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("viz goals", flag.ExitOnError)
	output := fs.String("output", "", "Output file (default: stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	dot, err := viz.NewGraphGenerator(eng.Store()).GenerateGoalGraph(context.Background(), fs.Arg(0))
	if err != nil {
		return err
	}
	return writeGraph(*output, dot)
}

// VizJourneyCommand renders an organization's journey history.
func VizJourneyCommand(eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("viz journey", flag.ExitOnError)
	output := fs.String("output", "", "Output file (default: stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("organization ID required")
	}
	orgID, err := parseUUIDFlag("org", fs.Arg(0))
	if err != nil {
		return err
	}

	dot, err := viz.NewGraphGenerator(eng.Store()).GenerateJourneyGraph(context.Background(), orgID)
	if err != nil {
		return err
	}
	return writeGraph(*output, dot)
}

// VizDashboardCommand prints the terminal dashboard.
func VizDashboardCommand(eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("viz dashboard", flag.ExitOnError)
	_ = fs.Parse(args)

	opts := eng.Options()
	stats, err := viz.GenerateDashboardStats(context.Background(), eng.Store(), time.Now().UTC(),
		opts.ResponseTimeout, opts.ScoreMaxAge)
	if err != nil {
		return err
	}
	fmt.Print(viz.RenderDashboard(stats))
	return nil
}
