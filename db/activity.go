// ABOUTME: Append-only activity log storage
// ABOUTME: Inserts are idempotent on the event dedup key; rows are never updated
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/engage/models"
)

// InsertActivity appends an event. It reports false when an event with the same
// dedup key already exists, leaving the stored row untouched.
func (s *Store) InsertActivity(ctx context.Context, e *models.ActivityEvent) (bool, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}

	res, err := s.exec(ctx, `
		INSERT INTO activity_events (id, dedup_key, person_id, organization_id, type, url, occurred_at, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (dedup_key) DO NOTHING
	`, e.ID.String(), e.DedupKey, e.PersonID.String(), nullUUID(e.OrganizationID), e.Type, e.URL,
		e.OccurredAt.UTC(), e.RecordedAt.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetActivityByDedupKey returns the stored event for a dedup key.
func (s *Store) GetActivityByDedupKey(ctx context.Context, key string) (*models.ActivityEvent, error) {
	rows, err := s.query(ctx, `
		SELECT id, dedup_key, person_id, organization_id, type, url, occurred_at, recorded_at
		FROM activity_events WHERE dedup_key = ?
	`, key)
	if err != nil {
		return nil, err
	}
	events, err := scanActivity(rows)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("activity %s: %w", key, ErrNotFound)
	}
	return &events[0], nil
}

// ListActivity returns a person's events with since <= occurred_at <= until, oldest first.
func (s *Store) ListActivity(ctx context.Context, personID uuid.UUID, since, until time.Time) ([]models.ActivityEvent, error) {
	rows, err := s.query(ctx, `
		SELECT id, dedup_key, person_id, organization_id, type, url, occurred_at, recorded_at
		FROM activity_events
		WHERE person_id = ? AND occurred_at >= ? AND occurred_at <= ?
		ORDER BY occurred_at, id
	`, personID.String(), since.UTC(), until.UTC())
	if err != nil {
		return nil, err
	}
	return scanActivity(rows)
}

func scanActivity(rows *sql.Rows) ([]models.ActivityEvent, error) {
	defer func() { _ = rows.Close() }()

	var events []models.ActivityEvent
	for rows.Next() {
		var e models.ActivityEvent
		var idStr, personStr string
		var orgStr sql.NullString
		if err := rows.Scan(&idStr, &e.DedupKey, &personStr, &orgStr, &e.Type, &e.URL, &e.OccurredAt, &e.RecordedAt); err != nil {
			return nil, err
		}
		var err error
		if e.ID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("failed to parse activity ID: %w", err)
		}
		if e.PersonID, err = uuid.Parse(personStr); err != nil {
			return nil, fmt.Errorf("failed to parse person ID: %w", err)
		}
		if e.OrganizationID, err = parseNullUUID(orgStr); err != nil {
			return nil, fmt.Errorf("failed to parse organization ID: %w", err)
		}
		e.OccurredAt = e.OccurredAt.UTC()
		e.RecordedAt = e.RecordedAt.UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}
