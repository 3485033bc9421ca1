// ABOUTME: Configuration version storage: hash-keyed snapshots, the active pointer and tallies
// ABOUTME: Snapshots are immutable; only counters change, by atomic in-place increments
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/harperreed/engage/models"
)

const versionColumns = `id, hash, rule_ids, snapshot, score_formula, message_count, positive_feedback,
	negative_feedback, rating_sum, rating_count, created_at`

// EnsureVersion inserts v unless a version with the same hash exists, then points the
// active version at whichever row holds that hash. Both happen in one transaction.
// It reports whether a new row was created.
func (s *Store) EnsureVersion(ctx context.Context, v *models.ConfigVersion) (bool, error) {
	ruleIDs, err := encodeList(v.RuleIDs)
	if err != nil {
		return false, err
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}

	created := false
	err = s.InTx(ctx, func(tx *Store) error {
		res, err := tx.exec(ctx, `
			INSERT INTO config_versions (hash, rule_ids, snapshot, score_formula, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (hash) DO NOTHING
		`, v.Hash, ruleIDs, v.Snapshot, v.ScoreFormula, v.CreatedAt.UTC())
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		created = n == 1

		stored, err := tx.GetVersionByHash(ctx, v.Hash)
		if err != nil {
			return err
		}
		*v = *stored

		_, err = tx.exec(ctx, `
			INSERT INTO active_config_version (singleton, version_id, updated_at)
			VALUES (1, ?, ?)
			ON CONFLICT (singleton) DO UPDATE SET version_id = excluded.version_id, updated_at = excluded.updated_at
		`, v.ID, time.Now().UTC())
		return err
	})
	return created, err
}

// GetActiveVersion returns the version the active pointer references.
func (s *Store) GetActiveVersion(ctx context.Context) (*models.ConfigVersion, error) {
	v, err := s.scanVersion(s.queryRow(ctx, `
		SELECT `+versionColumns+` FROM config_versions
		WHERE id = (SELECT version_id FROM active_config_version WHERE singleton = 1)
	`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("active config version: %w", ErrNotFound)
	}
	return v, err
}

// GetVersion retrieves a version by ID.
func (s *Store) GetVersion(ctx context.Context, id int64) (*models.ConfigVersion, error) {
	v, err := s.scanVersion(s.queryRow(ctx, `SELECT `+versionColumns+` FROM config_versions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("config version %d: %w", id, ErrNotFound)
	}
	return v, err
}

// GetVersionByHash retrieves a version by content hash.
func (s *Store) GetVersionByHash(ctx context.Context, hash string) (*models.ConfigVersion, error) {
	v, err := s.scanVersion(s.queryRow(ctx, `SELECT `+versionColumns+` FROM config_versions WHERE hash = ?`, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("config version %s: %w", hash, ErrNotFound)
	}
	return v, err
}

// ListVersions returns versions newest first.
func (s *Store) ListVersions(ctx context.Context, limit int) ([]models.ConfigVersion, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.query(ctx, `SELECT `+versionColumns+` FROM config_versions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.ConfigVersion
	for rows.Next() {
		v, err := s.scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func (s *Store) scanVersion(row rowScanner) (*models.ConfigVersion, error) {
	var v models.ConfigVersion
	var ruleIDs string
	if err := row.Scan(&v.ID, &v.Hash, &ruleIDs, &v.Snapshot, &v.ScoreFormula, &v.MessageCount,
		&v.PositiveFeedback, &v.NegativeFeedback, &v.RatingSum, &v.RatingCount, &v.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(ruleIDs), &v.RuleIDs); err != nil {
		return nil, fmt.Errorf("failed to decode rule ids: %w", err)
	}
	v.CreatedAt = v.CreatedAt.UTC()
	return &v, nil
}

// ApplyTally adds one decision's contribution to a version's counters. Each
// (decision, kind) pair counts at most once; a repeat reports false and changes nothing.
func (s *Store) ApplyTally(ctx context.Context, versionID int64, t models.Tally) (bool, error) {
	applied := false
	err := s.InTx(ctx, func(tx *Store) error {
		res, err := tx.exec(ctx, `
			INSERT INTO version_tallies (decision_id, kind, version_id, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (decision_id, kind) DO NOTHING
		`, t.DecisionID, t.Kind, versionID, time.Now().UTC())
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}

		switch t.Kind {
		case models.TallyMessage:
			res, err = tx.exec(ctx, `UPDATE config_versions SET message_count = message_count + 1 WHERE id = ?`, versionID)
		case models.TallyFeedback:
			pos, neg, ratingCount, rating := 0, 0, 0, 0
			if t.Positive {
				pos = 1
			}
			if t.Negative {
				neg = 1
			}
			if t.Rating != nil {
				ratingCount = 1
				rating = *t.Rating
			}
			res, err = tx.exec(ctx, `
				UPDATE config_versions SET
					positive_feedback = positive_feedback + ?,
					negative_feedback = negative_feedback + ?,
					rating_sum = rating_sum + ?,
					rating_count = rating_count + ?
				WHERE id = ?
			`, pos, neg, rating, ratingCount, versionID)
		default:
			return fmt.Errorf("unknown tally kind %q", t.Kind)
		}
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return fmt.Errorf("config version %d: %w", versionID, ErrNotFound)
		}
		applied = true
		return nil
	})
	return applied, err
}
