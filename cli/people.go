// ABOUTME: Activity, person and organization CLI commands
// ABOUTME: Records activity by hand and manages identities, mapping and subscriptions
package cli

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/engage/engine"
	"github.com/harperreed/engage/models"
)

// ActivityRecordCommand records one activity event for an actor.
func ActivityRecordCommand(eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("activity record", flag.ExitOnError)
	actor := fs.String("actor", "", "Actor id: account id, chat user id or email (required)")
	kind := fs.String("kind", models.ActorChat, "Actor kind: account, chat or email")
	name := fs.String("name", "", "Display name for a new person")
	typ := fs.String("type", "", "Activity type (required): "+strings.Join(models.ActivityTypes, ", "))
	at := fs.String("at", "", "When it happened, RFC3339 (default now)")
	org := fs.String("org", "", "Organization ID")
	external := fs.String("external-id", "", "Upstream event id for deduplication")
	link := fs.String("url", "", "Shared link for content_shared")
	_ = fs.Parse(args)

	if *actor == "" || *typ == "" {
		return fmt.Errorf("--actor and --type are required")
	}
	in := models.InboundEvent{
		ExternalID:  *external,
		ActorID:     *actor,
		ActorKind:   *kind,
		DisplayName: *name,
		Type:        *typ,
		URL:         *link,
	}
	if *at != "" {
		ts, err := time.Parse(time.RFC3339, *at)
		if err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
		in.Timestamp = ts
	}
	if *org != "" {
		orgID, err := parseUUIDFlag("org", *org)
		if err != nil {
			return err
		}
		in.OrganizationID = &orgID
	}

	ev, created, err := eng.RecordActivity(context.Background(), in)
	if err != nil {
		return err
	}
	if !created {
		fmt.Printf("%s Already recorded (%s)\n", mutedStyle.Render("-"), ev.DedupKey)
		return nil
	}
	fmt.Printf("%s Recorded %s for person %s\n", okStyle.Render("✓"), ev.Type, ev.PersonID)
	return nil
}

// PersonAddCommand creates a person from one or more identities.
func PersonAddCommand(eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("person add", flag.ExitOnError)
	account := fs.String("account", "", "Platform account id")
	chat := fs.String("chat", "", "Chat user id")
	email := fs.String("email", "", "Email address")
	name := fs.String("name", "", "Display name")
	org := fs.String("org", "", "Organization ID")
	_ = fs.Parse(args)

	p := &models.Person{AccountID: *account, ChatID: *chat, Email: *email, DisplayName: *name}
	if *org != "" {
		orgID, err := parseUUIDFlag("org", *org)
		if err != nil {
			return err
		}
		p.OrganizationID = &orgID
	}
	if err := eng.Store().CreatePerson(context.Background(), p); err != nil {
		return fmt.Errorf("failed to create person: %w", err)
	}
	fmt.Printf("%s Person created: %s (%s)\n", okStyle.Render("✓"), p.ID, p.MappingStatus)
	return nil
}

// PersonMapCommand links an unmapped person to a platform account.
func PersonMapCommand(eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("person map", flag.ExitOnError)
	person := fs.String("person", "", "Person ID (required)")
	account := fs.String("account", "", "Platform account id (required)")
	_ = fs.Parse(args)

	personID, err := parseUUIDFlag("person", *person)
	if err != nil {
		return err
	}
	if *account == "" {
		return fmt.Errorf("--account is required")
	}
	p, err := eng.MapPerson(context.Background(), personID, *account)
	if err != nil {
		return err
	}
	fmt.Printf("%s Person %s mapped to account %s\n", okStyle.Render("✓"), p.ID, p.AccountID)
	return nil
}

// PersonListCommand lists persons, most recently active first.
func PersonListCommand(eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("person list", flag.ExitOnError)
	limit := fs.Int("limit", 50, "Maximum results")
	_ = fs.Parse(args)

	persons, err := eng.Store().ListPersons(context.Background(), *limit)
	if err != nil {
		return fmt.Errorf("failed to list persons: %w", err)
	}
	if len(persons) == 0 {
		fmt.Println("No persons found")
		return nil
	}

	w := newTable()
	_, _ = fmt.Fprintln(w, "NAME\tCHAT\tEMAIL\tMAPPING\tSCORE\tLAST ACTIVE\tID")
	_, _ = fmt.Fprintln(w, "----\t----\t-----\t-------\t-----\t-----------\t--")
	for _, p := range persons {
		last := "-"
		if p.LastActivityAt != nil {
			last = p.LastActivityAt.Format("2006-01-02")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			orDash(p.DisplayName), orDash(p.ChatID), orDash(p.Email), p.MappingStatus, p.Score, last, p.ID)
	}
	_ = w.Flush()
	return nil
}

// OrgAddCommand creates an organization.
func OrgAddCommand(eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("org add", flag.ExitOnError)
	name := fs.String("name", "", "Organization name (required)")
	subscription := fs.String("subscription", models.SubscriptionNone, "Subscription status")
	persona := fs.String("persona", "", "Persona: "+strings.Join(models.Personas, ", "))
	companyTypes := fs.String("company-types", "", "Comma-separated company types")
	_ = fs.Parse(args)

	if *name == "" {
		return fmt.Errorf("--name is required")
	}
	o := &models.Organization{
		Name:               *name,
		SubscriptionStatus: *subscription,
		Persona:            *persona,
		CompanyTypes:       splitCSV(*companyTypes),
	}
	ctx := context.Background()
	if err := eng.Store().CreateOrganization(ctx, o); err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}
	fmt.Printf("%s Organization created: %s (ID: %s)\n", okStyle.Render("✓"), o.Name, o.ID)
	return syncJourney(ctx, eng, o.ID, models.JourneyTriggerSubscription)
}

// OrgSubscriptionCommand records a billing status change and lets the journey follow it.
func OrgSubscriptionCommand(eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("org subscription", flag.ExitOnError)
	org := fs.String("org", "", "Organization ID (required)")
	status := fs.String("status", "", "none, trialing, active, past_due or canceled (required)")
	_ = fs.Parse(args)

	orgID, err := parseUUIDFlag("org", *org)
	if err != nil {
		return err
	}
	switch *status {
	case models.SubscriptionNone, models.SubscriptionTrialing, models.SubscriptionActive,
		models.SubscriptionPastDue, models.SubscriptionCanceled:
	default:
		return fmt.Errorf("unknown subscription status %q", *status)
	}

	ctx := context.Background()
	o, err := eng.Store().GetOrganization(ctx, orgID)
	if err != nil {
		return err
	}
	o.SubscriptionStatus = *status
	if err := eng.Store().UpdateOrganizationProfile(ctx, o); err != nil {
		return err
	}
	fmt.Printf("%s %s subscription is %s\n", okStyle.Render("✓"), o.Name, *status)
	return syncJourney(ctx, eng, orgID, models.JourneyTriggerSubscription)
}

func syncJourney(ctx context.Context, eng *engine.Engine, orgID uuid.UUID, trigger string) error {
	t, err := eng.Journey().Sync(ctx, orgID, trigger)
	if err != nil {
		return fmt.Errorf("failed to update journey: %w", err)
	}
	if t != nil {
		fmt.Printf("  Journey: %s → %s\n", orDash(t.FromStage), t.ToStage)
	}
	return nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
