// ABOUTME: Database operations for organizations and their journey stage history
// ABOUTME: Stage changes and their history rows are written in one transaction
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/engage/models"
)

const orgColumns = `id, name, subscription_status, persona, company_types, journey_stage,
	engagement_score, scores_computed_at, created_at, updated_at`

func scanOrganization(row rowScanner) (*models.Organization, error) {
	var o models.Organization
	var idStr, companyTypes string
	var persona sql.NullString
	var computedAt sql.NullTime

	err := row.Scan(&idStr, &o.Name, &o.SubscriptionStatus, &persona, &companyTypes, &o.JourneyStage,
		&o.EngagementScore, &computedAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}

	o.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse organization ID: %w", err)
	}
	o.Persona = persona.String
	if err := json.Unmarshal([]byte(companyTypes), &o.CompanyTypes); err != nil {
		return nil, fmt.Errorf("failed to decode company types: %w", err)
	}
	o.ScoresComputedAt = timePtr(computedAt)
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return &o, nil
}

func encodeList(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CreateOrganization inserts a new organization.
func (s *Store) CreateOrganization(ctx context.Context, o *models.Organization) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.SubscriptionStatus == "" {
		o.SubscriptionStatus = models.SubscriptionNone
	}
	if o.JourneyStage == "" {
		o.JourneyStage = models.StageAware
	}
	companyTypes, err := encodeList(o.CompanyTypes)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now

	_, err = s.exec(ctx, `
		INSERT INTO organizations (id, name, subscription_status, persona, company_types,
			journey_stage, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, o.ID.String(), o.Name, o.SubscriptionStatus, nullString(o.Persona), companyTypes,
		o.JourneyStage, o.CreatedAt, o.UpdatedAt)
	return err
}

// GetOrganization retrieves an organization by ID.
func (s *Store) GetOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	row := s.queryRow(ctx, `SELECT `+orgColumns+` FROM organizations WHERE id = ?`, id.String())
	o, err := scanOrganization(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("organization %s: %w", id, ErrNotFound)
	}
	return o, err
}

// ListOrganizations returns organizations ordered by name.
func (s *Store) ListOrganizations(ctx context.Context) ([]models.Organization, error) {
	rows, err := s.query(ctx, `SELECT `+orgColumns+` FROM organizations ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var orgs []models.Organization
	for rows.Next() {
		o, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}
		orgs = append(orgs, *o)
	}
	return orgs, rows.Err()
}

// UpdateOrganizationProfile updates the externally sourced attributes: name,
// subscription status, persona and company types. Journey stage is changed through
// RecordJourneyTransition only.
func (s *Store) UpdateOrganizationProfile(ctx context.Context, o *models.Organization) error {
	companyTypes, err := encodeList(o.CompanyTypes)
	if err != nil {
		return err
	}
	o.UpdatedAt = time.Now().UTC()
	res, err := s.exec(ctx, `
		UPDATE organizations SET name = ?, subscription_status = ?, persona = ?, company_types = ?, updated_at = ?
		WHERE id = ?
	`, o.Name, o.SubscriptionStatus, nullString(o.Persona), companyTypes, o.UpdatedAt, o.ID.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("organization %s: %w", o.ID, ErrNotFound)
	}
	return nil
}

// SaveOrganizationScore stores an aggregated engagement score.
func (s *Store) SaveOrganizationScore(ctx context.Context, orgID uuid.UUID, score int, computedAt time.Time) error {
	_, err := s.exec(ctx, `
		UPDATE organizations SET engagement_score = ?, scores_computed_at = ? WHERE id = ?
	`, score, computedAt.UTC(), orgID.String())
	return err
}

// RecordJourneyTransition moves an organization to t.ToStage and appends the history row.
// The update is guarded on the expected from-stage so concurrent moves cannot interleave.
func (s *Store) RecordJourneyTransition(ctx context.Context, t *models.JourneyTransition) error {
	return s.InTx(ctx, func(tx *Store) error {
		if t.CreatedAt.IsZero() {
			t.CreatedAt = time.Now().UTC()
		}
		res, err := tx.exec(ctx, `
			UPDATE organizations SET journey_stage = ?, updated_at = ? WHERE id = ? AND journey_stage = ?
		`, t.ToStage, t.CreatedAt, t.OrganizationID.String(), t.FromStage)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("organization %s is no longer at stage %s: %w", t.OrganizationID, t.FromStage, ErrConflict)
		}

		return tx.queryRow(ctx, `
			INSERT INTO journey_history (organization_id, from_stage, to_stage, trigger_kind, reason, regression, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			RETURNING id
		`, t.OrganizationID.String(), t.FromStage, t.ToStage, t.Trigger, t.Reason, t.Regression, t.CreatedAt).Scan(&t.ID)
	})
}

// JourneyHistory returns an organization's stage transitions, oldest first.
func (s *Store) JourneyHistory(ctx context.Context, orgID uuid.UUID) ([]models.JourneyTransition, error) {
	rows, err := s.query(ctx, `
		SELECT id, organization_id, from_stage, to_stage, trigger_kind, reason, regression, created_at
		FROM journey_history WHERE organization_id = ? ORDER BY created_at, id
	`, orgID.String())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.JourneyTransition
	for rows.Next() {
		var t models.JourneyTransition
		var org string
		if err := rows.Scan(&t.ID, &org, &t.FromStage, &t.ToStage, &t.Trigger, &t.Reason, &t.Regression, &t.CreatedAt); err != nil {
			return nil, err
		}
		if t.OrganizationID, err = uuid.Parse(org); err != nil {
			return nil, fmt.Errorf("failed to parse organization ID: %w", err)
		}
		t.CreatedAt = t.CreatedAt.UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}
