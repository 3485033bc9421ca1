// ABOUTME: Score Aggregator computing person and organization engagement scores on demand
// ABOUTME: Persists totals, components, formula name and computation time for staleness checks
package scoring

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/engage/models"
)

// DefaultWindow is the trailing activity window scores are computed over.
const DefaultWindow = 30 * 24 * time.Hour

// Store is the persistence the aggregator reads from and writes to.
type Store interface {
	GetPerson(ctx context.Context, id uuid.UUID) (*models.Person, error)
	ListActivity(ctx context.Context, personID uuid.UUID, since, until time.Time) ([]models.ActivityEvent, error)
	SavePersonScore(ctx context.Context, personID uuid.UUID, score models.Score) error
	ListMembers(ctx context.Context, orgID uuid.UUID) ([]models.Person, error)
	SaveOrganizationScore(ctx context.Context, orgID uuid.UUID, score int, computedAt time.Time) error
}

type Aggregator struct {
	store   Store
	formula Formula
	window  time.Duration
}

// NewAggregator returns an aggregator using the named formula over window.
func NewAggregator(store Store, formulaName string, window time.Duration) (*Aggregator, error) {
	f, err := Lookup(formulaName)
	if err != nil {
		return nil, err
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Aggregator{store: store, formula: f, window: window}, nil
}

// FormulaName reports which formula the aggregator applies.
func (a *Aggregator) FormulaName() string { return a.formula.Name() }

// ComputeScore scores a person over the window ending at asOf and stores the result.
func (a *Aggregator) ComputeScore(ctx context.Context, personID uuid.UUID, asOf time.Time) (models.Score, error) {
	score, err := a.Score(ctx, personID, asOf)
	if err != nil {
		return models.Score{}, err
	}
	if err := a.store.SavePersonScore(ctx, personID, score); err != nil {
		return models.Score{}, fmt.Errorf("failed to save score: %w", err)
	}
	return score, nil
}

// Score scores a person over the window ending at asOf without storing anything.
func (a *Aggregator) Score(ctx context.Context, personID uuid.UUID, asOf time.Time) (models.Score, error) {
	person, err := a.store.GetPerson(ctx, personID)
	if err != nil {
		return models.Score{}, fmt.Errorf("failed to load person: %w", err)
	}

	events, err := a.store.ListActivity(ctx, personID, asOf.Add(-a.window), asOf)
	if err != nil {
		return models.Score{}, fmt.Errorf("failed to load activity: %w", err)
	}

	components := a.formula.Score(person, events, asOf)
	score := models.Score{
		Total:      Total(components),
		Components: components,
		Formula:    a.formula.Name(),
		ComputedAt: asOf.UTC(),
	}
	return score, nil
}

// ComputeOrgScore recomputes every member's score and stores their rounded mean.
// An organization without members scores 0.
func (a *Aggregator) ComputeOrgScore(ctx context.Context, orgID uuid.UUID, asOf time.Time) (int, error) {
	members, err := a.store.ListMembers(ctx, orgID)
	if err != nil {
		return 0, fmt.Errorf("failed to load members: %w", err)
	}

	sum := 0
	for _, m := range members {
		s, err := a.ComputeScore(ctx, m.ID, asOf)
		if err != nil {
			return 0, err
		}
		sum += s.Total
	}

	total := 0
	if len(members) > 0 {
		total = int(math.Round(float64(sum) / float64(len(members))))
	}

	if err := a.store.SaveOrganizationScore(ctx, orgID, total, asOf.UTC()); err != nil {
		return 0, fmt.Errorf("failed to save organization score: %w", err)
	}
	return total, nil
}

// Stale reports whether a person's stored score is older than maxAge at asOf.
// A score computed by a different formula is always stale.
func (a *Aggregator) Stale(p *models.Person, asOf time.Time, maxAge time.Duration) bool {
	if p.ScoresComputedAt == nil || p.ScoreFormula != a.formula.Name() {
		return true
	}
	return asOf.Sub(*p.ScoresComputedAt) > maxAge
}
