// ABOUTME: Database operations for persons: identity resolution, mapping and scores
// ABOUTME: Each identity is unique; mapping an unmapped person to an account is irreversible
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/engage/models"
)

const personColumns = `id, account_id, chat_id, email, display_name, organization_id, mapping_status,
	score, score_activity, score_events, score_formula, scores_computed_at, last_activity_at,
	deleted, created_at, updated_at`

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullUUID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func parseNullUUID(ns sql.NullString) (*uuid.UUID, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	id, err := uuid.Parse(ns.String)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPerson(row rowScanner) (*models.Person, error) {
	var p models.Person
	var idStr string
	var accountID, chatID, email, orgID sql.NullString
	var computedAt, lastActivity sql.NullTime

	err := row.Scan(
		&idStr, &accountID, &chatID, &email, &p.DisplayName, &orgID, &p.MappingStatus,
		&p.Score, &p.ScoreComponents.Activity, &p.ScoreComponents.Events, &p.ScoreFormula,
		&computedAt, &lastActivity, &p.Deleted, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse person ID: %w", err)
	}
	p.AccountID = accountID.String
	p.ChatID = chatID.String
	p.Email = email.String
	p.OrganizationID, err = parseNullUUID(orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse organization ID: %w", err)
	}
	p.ScoresComputedAt = timePtr(computedAt)
	p.LastActivityAt = timePtr(lastActivity)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

// CreatePerson inserts a new person. At least one identity is required.
func (s *Store) CreatePerson(ctx context.Context, p *models.Person) error {
	p.Email = NormalizeEmail(p.Email)
	if !p.HasIdentity() {
		return fmt.Errorf("person needs an account, chat or email identity")
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.AccountID != "" {
		p.MappingStatus = models.MappingMapped
	} else if p.MappingStatus == "" {
		p.MappingStatus = models.MappingUnmapped
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.exec(ctx, `
		INSERT INTO persons (id, account_id, chat_id, email, display_name, organization_id,
			mapping_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID.String(), nullString(p.AccountID), nullString(p.ChatID), nullString(p.Email),
		p.DisplayName, nullUUID(p.OrganizationID), p.MappingStatus, p.CreatedAt, p.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("person identity already exists: %w", ErrConflict)
	}
	return err
}

// GetPerson retrieves a person by ID.
func (s *Store) GetPerson(ctx context.Context, id uuid.UUID) (*models.Person, error) {
	row := s.queryRow(ctx, `SELECT `+personColumns+` FROM persons WHERE id = ?`, id.String())
	p, err := scanPerson(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("person %s: %w", id, ErrNotFound)
	}
	return p, err
}

func identityColumn(kind string) (string, error) {
	switch kind {
	case models.ActorAccount:
		return "account_id", nil
	case models.ActorChat:
		return "chat_id", nil
	case models.ActorEmail:
		return "email", nil
	}
	return "", fmt.Errorf("unknown actor kind %q", kind)
}

// FindPersonByIdentity looks a person up by one of their identities.
func (s *Store) FindPersonByIdentity(ctx context.Context, kind, value string) (*models.Person, error) {
	col, err := identityColumn(kind)
	if err != nil {
		return nil, err
	}
	if kind == models.ActorEmail {
		value = NormalizeEmail(value)
	}
	row := s.queryRow(ctx, `SELECT `+personColumns+` FROM persons WHERE `+col+` = ?`, value)
	p, err := scanPerson(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("person with %s %q: %w", kind, value, ErrNotFound)
	}
	return p, err
}

// ResolveActor returns the person behind an actor identity, creating them on first sight.
// A concurrent creation of the same identity is absorbed by re-reading the winner.
func (s *Store) ResolveActor(ctx context.Context, kind, value, displayName string, orgID *uuid.UUID) (*models.Person, bool, error) {
	p, err := s.FindPersonByIdentity(ctx, kind, value)
	if err == nil {
		return p, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	p = &models.Person{DisplayName: displayName, OrganizationID: orgID}
	switch kind {
	case models.ActorAccount:
		p.AccountID = value
	case models.ActorChat:
		p.ChatID = value
	case models.ActorEmail:
		p.Email = value
	}

	err = s.savepoint(ctx, "resolve_actor", func() error { return s.CreatePerson(ctx, p) })
	if errors.Is(err, ErrConflict) {
		existing, findErr := s.FindPersonByIdentity(ctx, kind, value)
		return existing, false, findErr
	}
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

// MapPerson links an unmapped person to a platform account. Mapping is one way:
// a person already mapped to a different account is rejected.
func (s *Store) MapPerson(ctx context.Context, id uuid.UUID, accountID string) (*models.Person, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, fmt.Errorf("account id is required")
	}

	p, err := s.GetPerson(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.IsMapped() {
		if p.AccountID == accountID {
			return p, nil
		}
		return nil, fmt.Errorf("person %s is already mapped to another account: %w", id, ErrConflict)
	}

	now := time.Now().UTC()
	res, err := s.exec(ctx, `
		UPDATE persons SET account_id = ?, mapping_status = ?, updated_at = ?
		WHERE id = ? AND mapping_status = ?
	`, accountID, models.MappingMapped, now, id.String(), models.MappingUnmapped)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("account %s belongs to another person: %w", accountID, ErrConflict)
	}
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, fmt.Errorf("person %s was mapped concurrently: %w", id, ErrConflict)
	}

	p.AccountID = accountID
	p.MappingStatus = models.MappingMapped
	p.UpdatedAt = now
	return p, nil
}

// UpdatePersonProfile sets display name, email, chat id and organization.
// Empty strings leave identities unchanged.
func (s *Store) UpdatePersonProfile(ctx context.Context, p *models.Person) error {
	p.Email = NormalizeEmail(p.Email)
	p.UpdatedAt = time.Now().UTC()
	res, err := s.exec(ctx, `
		UPDATE persons SET
			display_name = ?,
			chat_id = COALESCE(?, chat_id),
			email = COALESCE(?, email),
			organization_id = ?,
			updated_at = ?
		WHERE id = ?
	`, p.DisplayName, nullString(p.ChatID), nullString(p.Email), nullUUID(p.OrganizationID), p.UpdatedAt, p.ID.String())
	if isUniqueViolation(err) {
		return fmt.Errorf("identity already belongs to another person: %w", ErrConflict)
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("person %s: %w", p.ID, ErrNotFound)
	}
	return nil
}

// SoftDeletePerson flags a person as deleted. Rows are never removed.
func (s *Store) SoftDeletePerson(ctx context.Context, id uuid.UUID) error {
	res, err := s.exec(ctx, `UPDATE persons SET deleted = ?, updated_at = ? WHERE id = ?`, true, time.Now().UTC(), id.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("person %s: %w", id, ErrNotFound)
	}
	return nil
}

// SavePersonScore stores a computed score and its components.
func (s *Store) SavePersonScore(ctx context.Context, personID uuid.UUID, score models.Score) error {
	_, err := s.exec(ctx, `
		UPDATE persons SET score = ?, score_activity = ?, score_events = ?, score_formula = ?,
			scores_computed_at = ?
		WHERE id = ?
	`, score.Total, score.Components.Activity, score.Components.Events, score.Formula,
		score.ComputedAt.UTC(), personID.String())
	return err
}

// TouchLastActivity advances a person's last activity time, never moving it backwards.
func (s *Store) TouchLastActivity(ctx context.Context, personID uuid.UUID, at time.Time) error {
	_, err := s.exec(ctx, `
		UPDATE persons SET last_activity_at = ?
		WHERE id = ? AND (last_activity_at IS NULL OR last_activity_at < ?)
	`, at.UTC(), personID.String(), at.UTC())
	return err
}

// ListMembers returns the non-deleted persons of an organization.
func (s *Store) ListMembers(ctx context.Context, orgID uuid.UUID) ([]models.Person, error) {
	return s.listPersons(ctx, `SELECT `+personColumns+` FROM persons
		WHERE organization_id = ? AND deleted = ? ORDER BY created_at`, orgID.String(), false)
}

// ListPersons returns non-deleted persons, most recently active first.
func (s *Store) ListPersons(ctx context.Context, limit int) ([]models.Person, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.listPersons(ctx, `SELECT `+personColumns+` FROM persons
		WHERE deleted = ? ORDER BY last_activity_at DESC, created_at DESC LIMIT ?`, false, limit)
}

func (s *Store) listPersons(ctx context.Context, query string, args ...any) ([]models.Person, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var people []models.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, err
		}
		people = append(people, *p)
	}
	return people, rows.Err()
}
