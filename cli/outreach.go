// ABOUTME: Scoring and outreach CLI commands
// ABOUTME: Score, evaluate or preview outreach, respond to decisions and sweep timeouts
package cli

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/engage/engine"
	"github.com/harperreed/engage/logging"
	"github.com/harperreed/engage/models"
	"go.uber.org/zap"
)

// ScoreCommand recomputes a person's or an organization's engagement score.
func ScoreCommand(eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("score", flag.ExitOnError)
	person := fs.String("person", "", "Person ID")
	org := fs.String("org", "", "Organization ID")
	_ = fs.Parse(args)

	ctx := context.Background()
	if *org != "" {
		orgID, err := parseUUIDFlag("org", *org)
		if err != nil {
			return err
		}
		total, err := eng.ComputeOrgScore(ctx, orgID)
		if err != nil {
			return err
		}
		fmt.Printf("Organization %s engagement: %s\n", orgID, titleStyle.Render(fmt.Sprint(total)))
		return nil
	}

	personID, err := parseUUIDFlag("person", *person)
	if err != nil {
		return err
	}
	score, err := eng.ComputeScore(ctx, personID)
	if err != nil {
		return err
	}
	fmt.Printf("Person %s engagement: %s\n", personID, titleStyle.Render(fmt.Sprint(score.Total)))
	fmt.Printf("  Activity: %d  Events: %d  Formula: %s\n", score.Components.Activity, score.Components.Events, score.Formula)
	return nil
}

// EvaluateCommand picks the next goal for one person, or for everyone with --all.
func EvaluateCommand(eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("evaluate", flag.ExitOnError)
	person := fs.String("person", "", "Person ID")
	all := fs.Bool("all", false, "Evaluate every person")
	preview := fs.Bool("preview", false, "Explain the choice without recording a decision")
	_ = fs.Parse(args)

	ctx := context.Background()
	if *all {
		persons, err := eng.Store().ListPersons(ctx, 100000)
		if err != nil {
			return err
		}
		decided := 0
		for _, p := range persons {
			d, err := eng.Evaluate(ctx, p.ID)
			if err != nil {
				logging.Error("evaluation failed", zap.String("person_id", p.ID.String()), zap.Error(err))
				fmt.Printf("%s %s: %v\n", errorStyle.Render("✗"), p.ID, err)
				continue
			}
			if d != nil {
				decided++
			}
		}
		fmt.Printf("%s Evaluated %d persons, %d with an open decision\n", okStyle.Render("✓"), len(persons), decided)
		return nil
	}

	personID, err := parseUUIDFlag("person", *person)
	if err != nil {
		return err
	}
	if *preview {
		return printPreview(ctx, eng, personID)
	}

	d, err := eng.Evaluate(ctx, personID)
	if err != nil {
		return err
	}
	if d == nil {
		fmt.Println("No eligible goal (try --preview for reasons)")
		return nil
	}
	printDecision(d)
	return nil
}

func printPreview(ctx context.Context, eng *engine.Engine, personID uuid.UUID) error {
	p, err := eng.Preview(ctx, personID)
	if err != nil {
		return err
	}
	version := fmt.Sprintf("v%d", p.Version.ID)
	if p.Version.ID == 0 {
		version = "unsaved " + p.Version.Hash[:12]
	}
	fmt.Println(titleStyle.Render(fmt.Sprintf("Preview for %s (score %d, config %s)", personID, p.Person.Score, version)))
	if p.Selection != nil {
		fmt.Printf("  Would send %s via %s:\n    %q\n", p.Selection.Goal.Name, p.Selection.Channel, p.Selection.Message)
	} else {
		fmt.Println("  Nothing would be sent")
	}
	fmt.Println()

	w := newTable()
	_, _ = fmt.Fprintln(w, "GOAL\tELIGIBLE\tREASON")
	_, _ = fmt.Fprintln(w, "----\t--------\t------")
	for _, v := range p.Verdicts {
		eligible := okStyle.Render("yes")
		if !v.Eligible {
			eligible = mutedStyle.Render("no")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", v.GoalName, eligible, orDash(v.Reason))
	}
	return w.Flush()
}

func printDecision(d *models.Decision) {
	fmt.Printf("%s Decision %s\n", okStyle.Render("✓"), d.ID)
	fmt.Printf("  Goal: %s  Channel: %s  Config version: %d\n", d.GoalName, d.Channel, d.ConfigVersionID)
	fmt.Printf("  Status: %s\n", statusStyle(d.Status).Render(d.Status))
	fmt.Printf("  Message: %q\n", d.Message)
}

// RespondCommand applies a classified response signal to an open decision.
func RespondCommand(eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("respond", flag.ExitOnError)
	decision := fs.String("decision", "", "Decision ID (required)")
	kind := fs.String("signal", "", "Signal kind: sentiment, intent, timeout, dispatch_failed, classification_unavailable (required)")
	value := fs.String("value", "", "Signal value, e.g. positive, negative, refusal or an intent label")
	elapsed := fs.Float64("elapsed", 0, "Hours since dispatch, for timeout signals")
	rating := fs.Int("rating", 0, "Optional 1-5 rating of the exchange")
	_ = fs.Parse(args)

	if *decision == "" || *kind == "" {
		return fmt.Errorf("--decision and --signal are required")
	}
	var ratingPtr *int
	if *rating != 0 {
		ratingPtr = rating
	}

	res, err := eng.RespondToDecision(context.Background(), *decision,
		models.Signal{Kind: *kind, Value: *value, ElapsedHours: *elapsed}, ratingPtr)
	if err != nil {
		return err
	}

	fmt.Printf("%s Decision %s resolved: %s\n", okStyle.Render("✓"), res.Decision.ID,
		statusStyle(res.Outcome.OutcomeType).Render(res.Outcome.OutcomeType))
	fmt.Printf("  Goal %s is now %s", res.Decision.GoalName, statusStyle(res.GoalState.Status).Render(res.GoalState.Status))
	if res.GoalState.DeferredUntil != nil {
		fmt.Printf(" until %s", res.GoalState.DeferredUntil.Format("2006-01-02 15:04"))
	}
	fmt.Println()
	if res.Insight != nil {
		fmt.Printf("  Insight recorded: %s = %s\n", res.Insight.Type, res.Insight.Value)
	}
	if res.Escalated {
		fmt.Println(warnStyle.Render("  ⚠️  Escalated to a human"))
	}
	return nil
}

// SweepCommand resolves timed-out decisions once, or repeatedly with --every.
func SweepCommand(eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	every := fs.Duration("every", 0, "Repeat at this interval until interrupted")
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweep := func() error {
		n, err := eng.SweepTimeouts(ctx)
		if n > 0 || *every == 0 {
			fmt.Printf("%s %d decisions timed out\n", okStyle.Render("✓"), n)
		}
		return err
	}

	if *every <= 0 {
		return sweep()
	}

	ticker := time.NewTicker(*every)
	defer ticker.Stop()
	for {
		if err := sweep(); err != nil {
			logging.Error("sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
