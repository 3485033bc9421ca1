// ABOUTME: Organization journey stages: ordering, derivation from billing and engagement
// ABOUTME: Every stage change is recorded with its trigger; regressions are flagged, not refused
package journey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/engage/db"
	"github.com/harperreed/engage/logging"
	"github.com/harperreed/engage/models"
	"go.uber.org/zap"
)

var ErrInvalidStage = errors.New("invalid journey stage")

// Ordinal returns a stage's position, or -1 for an unknown stage.
func Ordinal(stage string) int {
	for i, s := range models.JourneyStages {
		if s == stage {
			return i
		}
	}
	return -1
}

// Valid reports whether stage is a known journey stage.
func Valid(stage string) bool { return Ordinal(stage) >= 0 }

// IsRegression reports whether moving from one stage to another goes backwards.
func IsRegression(from, to string) bool {
	return Valid(from) && Valid(to) && Ordinal(to) < Ordinal(from)
}

// Derive suggests the stage an organization should be at given its subscription and
// engagement score. Leading and advocating are only ever set by hand and stay put
// while the subscription is live.
func Derive(org *models.Organization) string {
	switch org.SubscriptionStatus {
	case models.SubscriptionTrialing:
		return models.StageEvaluating
	case models.SubscriptionActive, models.SubscriptionPastDue:
		if org.JourneyStage == models.StageLeading || org.JourneyStage == models.StageAdvocating {
			return org.JourneyStage
		}
		switch score := org.EngagementScore; {
		case score < 20:
			return models.StageJoined
		case score < 40:
			return models.StageOnboarding
		case score < 60:
			return models.StageParticipating
		default:
			return models.StageContributing
		}
	default:
		if org.EngagementScore == 0 {
			return models.StageAware
		}
		return models.StageEvaluating
	}
}

// Store is the persistence the journey service needs.
type Store interface {
	GetOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	RecordJourneyTransition(ctx context.Context, t *models.JourneyTransition) error
	JourneyHistory(ctx context.Context, orgID uuid.UUID) ([]models.JourneyTransition, error)
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// SetStage moves an organization to stage. Setting the current stage is a no-op
// and returns nil.
func (s *Service) SetStage(ctx context.Context, orgID uuid.UUID, stage, trigger, reason string) (*models.JourneyTransition, error) {
	if !Valid(stage) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStage, stage)
	}
	if trigger == "" {
		return nil, fmt.Errorf("journey transition needs a trigger")
	}

	org, err := s.store.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org.JourneyStage == stage {
		return nil, nil
	}

	t := &models.JourneyTransition{
		OrganizationID: orgID,
		FromStage:      org.JourneyStage,
		ToStage:        stage,
		Trigger:        trigger,
		Reason:         reason,
		Regression:     IsRegression(org.JourneyStage, stage),
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.RecordJourneyTransition(ctx, t); err != nil {
		if errors.Is(err, db.ErrConflict) {
			return nil, fmt.Errorf("organization %s changed stage concurrently: %w", orgID, err)
		}
		return nil, err
	}

	fields := []zap.Field{
		zap.String("org_id", orgID.String()),
		zap.String("from", t.FromStage),
		zap.String("to", t.ToStage),
		zap.String("trigger", trigger),
	}
	if t.Regression {
		logging.Warn("journey stage regressed", fields...)
	} else {
		logging.Info("journey stage changed", fields...)
	}
	return t, nil
}

// Sync applies Derive to an organization, recording a transition when the
// suggestion differs from the stored stage.
func (s *Service) Sync(ctx context.Context, orgID uuid.UUID, trigger string) (*models.JourneyTransition, error) {
	org, err := s.store.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	next := Derive(org)
	if next == org.JourneyStage {
		return nil, nil
	}
	reason := fmt.Sprintf("subscription %s, engagement %d", org.SubscriptionStatus, org.EngagementScore)
	return s.SetStage(ctx, orgID, next, trigger, reason)
}

// History returns an organization's stage transitions, oldest first.
func (s *Service) History(ctx context.Context, orgID uuid.UUID) ([]models.JourneyTransition, error) {
	return s.store.JourneyHistory(ctx, orgID)
}
