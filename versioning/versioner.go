// ABOUTME: Configuration Versioner: content-addressed snapshots of the active rule set
// ABOUTME: Tags decisions with the version that produced them and tallies feedback per version
package versioning

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/harperreed/engage/logging"
	"github.com/harperreed/engage/models"
	"github.com/harperreed/engage/rules"
	"go.uber.org/zap"
)

// Store is the persistence the versioner needs.
type Store interface {
	LoadRuleSet(ctx context.Context) (*rules.RuleSet, error)
	EnsureVersion(ctx context.Context, v *models.ConfigVersion) (bool, error)
	GetVersion(ctx context.Context, id int64) (*models.ConfigVersion, error)
	ListVersions(ctx context.Context, limit int) ([]models.ConfigVersion, error)
	ApplyTally(ctx context.Context, versionID int64, t models.Tally) (bool, error)
	ListDecisionsByVersion(ctx context.Context, versionID int64) ([]models.Decision, error)
}

type Versioner struct {
	store   Store
	formula string
}

// New returns a versioner whose snapshots record the given score formula name.
func New(store Store, scoreFormula string) *Versioner {
	return &Versioner{store: store, formula: scoreFormula}
}

// Hash is the content hash of a snapshot: sha256 over the sorted rule ids and the
// canonical rule content.
func Hash(ruleIDs []string, snapshot []byte) string {
	h := sha256.New()
	h.Write([]byte(strings.Join(ruleIDs, "\n")))
	h.Write([]byte{0})
	h.Write(snapshot)
	return hex.EncodeToString(h.Sum(nil))
}

// Build snapshots rs without touching storage.
func (v *Versioner) Build(rs *rules.RuleSet) (*models.ConfigVersion, error) {
	snapshot, ids, err := rs.Snapshot(v.formula)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return &models.ConfigVersion{
		Hash:         Hash(ids, snapshot),
		RuleIDs:      ids,
		Snapshot:     snapshot,
		ScoreFormula: v.formula,
	}, nil
}

// CurrentVersion snapshots the stored rule set and returns the matching version,
// creating it when the content is new. Calls with unchanged rules return the same version.
func (v *Versioner) CurrentVersion(ctx context.Context) (*models.ConfigVersion, error) {
	rs, err := v.store.LoadRuleSet(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	return v.VersionFor(ctx, rs)
}

// VersionFor returns the stored version matching rs, creating it when new.
func (v *Versioner) VersionFor(ctx context.Context, rs *rules.RuleSet) (*models.ConfigVersion, error) {
	cv, err := v.Build(rs)
	if err != nil {
		return nil, err
	}
	created, err := v.store.EnsureVersion(ctx, cv)
	if err != nil {
		return nil, fmt.Errorf("failed to store config version: %w", err)
	}
	if created {
		logging.Info("config version created",
			zap.Int64("version_id", cv.ID),
			zap.String("hash", cv.Hash),
			zap.Int("rules", len(cv.RuleIDs)))
	}
	return cv, nil
}

// RecordDecision adds a decision's contribution to a version's counters. Repeating
// the same decision and kind is a no-op; the result reports whether it counted.
func (v *Versioner) RecordDecision(ctx context.Context, versionID int64, t models.Tally) (bool, error) {
	if t.DecisionID == "" {
		return false, fmt.Errorf("tally needs a decision id")
	}
	applied, err := v.store.ApplyTally(ctx, versionID, t)
	if err != nil {
		return false, fmt.Errorf("failed to record %s tally for decision %s: %w", t.Kind, t.DecisionID, err)
	}
	if !applied {
		logging.Debug("tally already recorded", zap.String("decision_id", t.DecisionID), zap.String("kind", t.Kind))
	}
	return applied, nil
}

// ListVersions returns the newest versions first.
func (v *Versioner) ListVersions(ctx context.Context, limit int) ([]models.ConfigVersion, error) {
	return v.store.ListVersions(ctx, limit)
}

// Stats summarises one version for A/B comparison.
type Stats struct {
	Version          models.ConfigVersion `json:"version"`
	AvgRating        float64              `json:"avg_rating"`
	PositiveRate     float64              `json:"positive_rate"`
	Decisions        int                  `json:"decisions"`
	OpenDecisions    int                  `json:"open_decisions"`
	OutcomeBreakdown map[string]int       `json:"outcome_breakdown"`
}

// VersionStats returns a version's counters plus the outcome mix of its decisions.
func (v *Versioner) VersionStats(ctx context.Context, versionID int64) (*Stats, error) {
	cv, err := v.store.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	decisions, err := v.store.ListDecisionsByVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}

	st := &Stats{
		Version:          *cv,
		AvgRating:        cv.AvgRating(),
		Decisions:        len(decisions),
		OutcomeBreakdown: make(map[string]int),
	}
	if rated := cv.PositiveFeedback + cv.NegativeFeedback; rated > 0 {
		st.PositiveRate = float64(cv.PositiveFeedback) / float64(rated)
	}
	for _, d := range decisions {
		if d.Open() {
			st.OpenDecisions++
			continue
		}
		st.OutcomeBreakdown[d.OutcomeType]++
	}
	return st, nil
}
