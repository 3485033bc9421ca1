// ABOUTME: Insight ledger storage with soft supersession
// ABOUTME: A partial unique index keeps at most one current insight per subject and type
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/engage/models"
)

const insightColumns = `id, subject_kind, subject_id, type, value, confidence, source, is_current,
	expires_at, created_at, superseded_at`

// RecordInsight marks the subject's current insight of the same type superseded and
// inserts ins as the new current one. Losing a race to another writer returns ErrConflict
// and leaves the ledger as the winner wrote it.
func (s *Store) RecordInsight(ctx context.Context, ins *models.Insight) error {
	if ins.ID == uuid.Nil {
		ins.ID = uuid.New()
	}
	if ins.CreatedAt.IsZero() {
		ins.CreatedAt = time.Now().UTC()
	}
	ins.IsCurrent = true
	ins.SupersededAt = nil

	return s.InTx(ctx, func(tx *Store) error {
		return tx.savepoint(ctx, "record_insight", func() error {
			if _, err := tx.exec(ctx, `
				UPDATE insights SET is_current = ?, superseded_at = ?
				WHERE subject_kind = ? AND subject_id = ? AND type = ? AND is_current = ?
			`, false, ins.CreatedAt.UTC(), ins.SubjectKind, ins.SubjectID.String(), ins.Type, true); err != nil {
				return err
			}

			_, err := tx.exec(ctx, `
				INSERT INTO insights (`+insightColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, ins.ID.String(), ins.SubjectKind, ins.SubjectID.String(), ins.Type, ins.Value, ins.Confidence,
				ins.Source, true, nullTime(ins.ExpiresAt), ins.CreatedAt.UTC(), nil)
			if isUniqueViolation(err) {
				return fmt.Errorf("current %s insight for %s: %w", ins.Type, ins.SubjectID, ErrConflict)
			}
			return err
		})
	})
}

// CurrentInsight returns the current insight of a type for a subject.
func (s *Store) CurrentInsight(ctx context.Context, kind string, subjectID uuid.UUID, insightType string) (*models.Insight, error) {
	list, err := s.listInsights(ctx, `SELECT `+insightColumns+` FROM insights
		WHERE subject_kind = ? AND subject_id = ? AND type = ? AND is_current = ?`,
		kind, subjectID.String(), insightType, true)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("current %s insight for %s: %w", insightType, subjectID, ErrNotFound)
	}
	return &list[0], nil
}

// ListInsights returns a subject's insights, newest first. With currentOnly,
// superseded rows are left out.
func (s *Store) ListInsights(ctx context.Context, kind string, subjectID uuid.UUID, currentOnly bool) ([]models.Insight, error) {
	query := `SELECT ` + insightColumns + ` FROM insights WHERE subject_kind = ? AND subject_id = ?`
	args := []any{kind, subjectID.String()}
	if currentOnly {
		query += ` AND is_current = ?`
		args = append(args, true)
	}
	query += ` ORDER BY created_at DESC, id`
	return s.listInsights(ctx, query, args...)
}

// CurrentInsightsFor returns the current insights of a person and, when set, their organization.
func (s *Store) CurrentInsightsFor(ctx context.Context, personID uuid.UUID, orgID *uuid.UUID) ([]models.Insight, error) {
	out, err := s.ListInsights(ctx, models.SubjectPerson, personID, true)
	if err != nil {
		return nil, err
	}
	if orgID != nil {
		orgInsights, err := s.ListInsights(ctx, models.SubjectOrganization, *orgID, true)
		if err != nil {
			return nil, err
		}
		out = append(out, orgInsights...)
	}
	return out, nil
}

// CountCurrentInsights counts current insights of a type for a subject.
func (s *Store) CountCurrentInsights(ctx context.Context, kind string, subjectID uuid.UUID, insightType string) (int, error) {
	var n int
	err := s.queryRow(ctx, `SELECT COUNT(*) FROM insights
		WHERE subject_kind = ? AND subject_id = ? AND type = ? AND is_current = ?`,
		kind, subjectID.String(), insightType, true).Scan(&n)
	return n, err
}

func (s *Store) listInsights(ctx context.Context, query string, args ...any) ([]models.Insight, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.Insight
	for rows.Next() {
		var ins models.Insight
		var idStr, subjectStr string
		var expiresAt, supersededAt sql.NullTime
		if err := rows.Scan(&idStr, &ins.SubjectKind, &subjectStr, &ins.Type, &ins.Value, &ins.Confidence,
			&ins.Source, &ins.IsCurrent, &expiresAt, &ins.CreatedAt, &supersededAt); err != nil {
			return nil, err
		}
		var err error
		if ins.ID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("failed to parse insight ID: %w", err)
		}
		if ins.SubjectID, err = uuid.Parse(subjectStr); err != nil {
			return nil, fmt.Errorf("failed to parse subject ID: %w", err)
		}
		ins.ExpiresAt = timePtr(expiresAt)
		ins.SupersededAt = timePtr(supersededAt)
		ins.CreatedAt = ins.CreatedAt.UTC()
		out = append(out, ins)
	}
	return out, rows.Err()
}

// IsConflict reports whether err is a lost uniqueness race.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }
