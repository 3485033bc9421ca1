// ABOUTME: Engine orchestrating activity, scoring, goal selection, outcomes and versioning
// ABOUTME: All state lives in the store; each operation is a short synchronous pass over it
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/engage/config"
	"github.com/harperreed/engage/db"
	"github.com/harperreed/engage/journey"
	"github.com/harperreed/engage/logging"
	"github.com/harperreed/engage/models"
	"github.com/harperreed/engage/scoring"
	"github.com/harperreed/engage/versioning"
	"go.uber.org/zap"
)

var (
	// ErrAlreadyResolved means another caller resolved the decision first.
	ErrAlreadyResolved = errors.New("decision already resolved")
	// ErrConfiguration marks a rule gap found while evaluating, which validation should have caught.
	ErrConfiguration = errors.New("configuration error")
	ErrInvalidInput  = errors.New("invalid input")
)

// Options are the engine knobs, normally taken from the [engine] config section.
type Options struct {
	ScoreFormula    string
	ScoreWindow     time.Duration
	ScoreMaxAge     time.Duration
	ResponseTimeout time.Duration
	DispatchTopic   string
	EscalationTopic string
}

// OptionsFromConfig copies the engine section of a loaded config.
func OptionsFromConfig(cfg config.EngineConfig) Options {
	return Options{
		ScoreFormula:    cfg.ScoreFormula,
		ScoreWindow:     cfg.ScoreWindow,
		ScoreMaxAge:     cfg.ScoreMaxAge,
		ResponseTimeout: cfg.ResponseTimeout,
		DispatchTopic:   cfg.DispatchTopic,
		EscalationTopic: cfg.EscalationTopic,
	}
}

func (o *Options) fill() {
	d := config.Default().Engine
	if o.ScoreFormula == "" {
		o.ScoreFormula = d.ScoreFormula
	}
	if o.ScoreWindow <= 0 {
		o.ScoreWindow = d.ScoreWindow
	}
	if o.ScoreMaxAge <= 0 {
		o.ScoreMaxAge = d.ScoreMaxAge
	}
	if o.ResponseTimeout <= 0 {
		o.ResponseTimeout = d.ResponseTimeout
	}
	if o.DispatchTopic == "" {
		o.DispatchTopic = d.DispatchTopic
	}
	if o.EscalationTopic == "" {
		o.EscalationTopic = d.EscalationTopic
	}
}

type Engine struct {
	store      *db.Store
	opts       Options
	aggregator *scoring.Aggregator
	versioner  *versioning.Versioner
	journey    *journey.Service
	now        func() time.Time
}

// New builds an engine over store. Unset options take the config defaults.
func New(store *db.Store, opts Options) (*Engine, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	opts.fill()

	agg, err := scoring.NewAggregator(store, opts.ScoreFormula, opts.ScoreWindow)
	if err != nil {
		return nil, err
	}
	return &Engine{
		store:      store,
		opts:       opts,
		aggregator: agg,
		versioner:  versioning.New(store, agg.FormulaName()),
		journey:    journey.NewService(store),
		now:        time.Now,
	}, nil
}

// Store exposes the underlying store for read-only listings.
func (e *Engine) Store() *db.Store { return e.store }

func (e *Engine) Versioner() *versioning.Versioner { return e.versioner }

func (e *Engine) Journey() *journey.Service { return e.journey }

func (e *Engine) Options() Options { return e.opts }

// RecordActivity resolves the actor to a person, creating one on first sight, and
// appends the event. A replayed event returns the stored row with created=false.
func (e *Engine) RecordActivity(ctx context.Context, in models.InboundEvent) (*models.ActivityEvent, bool, error) {
	in.ActorID = strings.TrimSpace(in.ActorID)
	if in.ActorID == "" {
		return nil, false, fmt.Errorf("%w: actor id is required", ErrInvalidInput)
	}
	switch in.ActorKind {
	case models.ActorAccount, models.ActorChat, models.ActorEmail:
	default:
		return nil, false, fmt.Errorf("%w: unknown actor kind %q", ErrInvalidInput, in.ActorKind)
	}
	if !models.IsActivityType(in.Type) {
		return nil, false, fmt.Errorf("%w: unknown activity type %q", ErrInvalidInput, in.Type)
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = e.now()
	}

	actorID := in.ActorID
	if in.ActorKind == models.ActorEmail {
		actorID = db.NormalizeEmail(actorID)
	}
	person, _, err := e.store.ResolveActor(ctx, in.ActorKind, actorID, in.DisplayName, in.OrganizationID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to resolve actor: %w", err)
	}

	orgID := in.OrganizationID
	if orgID == nil {
		orgID = person.OrganizationID
	}
	ev := &models.ActivityEvent{
		DedupKey:       models.ActivityDedupKey(in.ExternalID, person.ID, in.Type, in.Timestamp, in.URL),
		PersonID:       person.ID,
		OrganizationID: orgID,
		Type:           in.Type,
		URL:            models.NormalizeURL(in.URL),
		OccurredAt:     in.Timestamp.UTC(),
		RecordedAt:     e.now().UTC(),
	}
	created, err := e.store.InsertActivity(ctx, ev)
	if err != nil {
		return nil, false, fmt.Errorf("failed to store activity: %w", err)
	}
	if !created {
		existing, err := e.store.GetActivityByDedupKey(ctx, ev.DedupKey)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	if err := e.store.TouchLastActivity(ctx, person.ID, ev.OccurredAt); err != nil {
		return nil, false, err
	}
	logging.Debug("activity recorded",
		zap.String("person_id", person.ID.String()),
		zap.String("type", ev.Type),
		zap.String("dedup_key", ev.DedupKey))
	return ev, true, nil
}

// ComputeScore recomputes and stores a person's score as of now.
func (e *Engine) ComputeScore(ctx context.Context, personID uuid.UUID) (models.Score, error) {
	return e.aggregator.ComputeScore(ctx, personID, e.now())
}

// ComputeOrgScore recomputes an organization's members and aggregate, then lets the
// journey follow the new engagement level.
func (e *Engine) ComputeOrgScore(ctx context.Context, orgID uuid.UUID) (int, error) {
	score, err := e.aggregator.ComputeOrgScore(ctx, orgID, e.now())
	if err != nil {
		return 0, err
	}
	if _, err := e.journey.Sync(ctx, orgID, models.JourneyTriggerEngagement); err != nil {
		logging.Warn("journey sync failed", zap.String("org_id", orgID.String()), zap.Error(err))
	}
	return score, nil
}

// InsightInput is a fact asserted by a collaborator such as conversation analysis.
type InsightInput struct {
	SubjectKind string
	SubjectID   uuid.UUID
	Type        string
	Value       string
	Confidence  float64
	Source      string
	ExpiresAt   *time.Time
}

// RecordInsight supersedes the subject's current insight of the same type. When a
// concurrent writer wins, its insight is returned instead.
func (e *Engine) RecordInsight(ctx context.Context, in InsightInput) (*models.Insight, error) {
	if in.SubjectKind != models.SubjectPerson && in.SubjectKind != models.SubjectOrganization {
		return nil, fmt.Errorf("%w: unknown subject kind %q", ErrInvalidInput, in.SubjectKind)
	}
	if strings.TrimSpace(in.Type) == "" {
		return nil, fmt.Errorf("%w: insight type is required", ErrInvalidInput)
	}
	if in.Confidence < 0 || in.Confidence > 1 {
		return nil, fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidInput)
	}
	if in.Confidence == 0 {
		in.Confidence = 1
	}

	ins := &models.Insight{
		SubjectKind: in.SubjectKind,
		SubjectID:   in.SubjectID,
		Type:        in.Type,
		Value:       in.Value,
		Confidence:  in.Confidence,
		Source:      in.Source,
		ExpiresAt:   in.ExpiresAt,
		CreatedAt:   e.now().UTC(),
	}
	err := e.store.RecordInsight(ctx, ins)
	if errors.Is(err, db.ErrConflict) {
		logging.Debug("insight write lost race", zap.String("subject_id", in.SubjectID.String()), zap.String("type", in.Type))
		return e.store.CurrentInsight(ctx, in.SubjectKind, in.SubjectID, in.Type)
	}
	if err != nil {
		return nil, err
	}
	return ins, nil
}

// MapPerson links an unmapped person to a platform account.
func (e *Engine) MapPerson(ctx context.Context, personID uuid.UUID, accountID string) (*models.Person, error) {
	p, err := e.store.MapPerson(ctx, personID, strings.TrimSpace(accountID))
	if err != nil {
		return nil, err
	}
	logging.Info("person mapped", zap.String("person_id", personID.String()), zap.String("account_id", p.AccountID))
	return p, nil
}
