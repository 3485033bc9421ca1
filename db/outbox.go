// ABOUTME: Transactional outbox for messages bound for the dispatch and escalation collaborators
// ABOUTME: Enqueue is idempotent per dedup key; the relay claims due rows under a short lease
package db

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/harperreed/engage/models"
	"github.com/oklog/ulid/v2"
)

const outboxColumns = `id, topic, dedup_key, msg_key, payload, attempts, next_attempt_at, published_at,
	abandoned_at, last_error, created_at`

// EnqueueOutbox stores a message for later publishing. It reports false when a
// message with the same dedup key is already queued.
func (s *Store) EnqueueOutbox(ctx context.Context, m *models.OutboxMessage) (bool, error) {
	if m.ID == "" {
		m.ID = ulid.Make().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.NextAttemptAt.IsZero() {
		m.NextAttemptAt = m.CreatedAt
	}

	res, err := s.exec(ctx, `
		INSERT INTO outbox (id, topic, dedup_key, msg_key, payload, attempts, next_attempt_at, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT (dedup_key) DO NOTHING
	`, m.ID, m.Topic, m.DedupKey, m.Key, m.Payload, m.NextAttemptAt.UTC(), m.CreatedAt.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ClaimOutbox returns up to limit unpublished messages due at now and pushes their
// next attempt out by lease so a concurrent relay skips them.
func (s *Store) ClaimOutbox(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]models.OutboxMessage, error) {
	if limit <= 0 {
		limit = 200
	}
	lock := ""
	if s.dialect == Postgres {
		lock = " FOR UPDATE SKIP LOCKED"
	}

	var out []models.OutboxMessage
	err := s.InTx(ctx, func(tx *Store) error {
		rows, err := tx.query(ctx, `
			UPDATE outbox SET next_attempt_at = ?
			WHERE id IN (
				SELECT id FROM outbox
				WHERE published_at IS NULL AND abandoned_at IS NULL AND next_attempt_at <= ?
				ORDER BY next_attempt_at, id
				LIMIT ?`+lock+`
			)
			RETURNING `+outboxColumns,
			now.Add(lease).UTC(), now.UTC(), limit)
		if err != nil {
			return err
		}
		out, err = scanOutbox(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// MarkOutboxPublished records a successful publish.
func (s *Store) MarkOutboxPublished(ctx context.Context, id string, at time.Time) error {
	_, err := s.exec(ctx, `
		UPDATE outbox SET published_at = ?, attempts = attempts + 1, last_error = ''
		WHERE id = ?
	`, at.UTC(), id)
	return err
}

// MarkOutboxFailed records a failed publish and schedules the next attempt.
func (s *Store) MarkOutboxFailed(ctx context.Context, id string, next time.Time, lastErr string) error {
	_, err := s.exec(ctx, `
		UPDATE outbox SET attempts = attempts + 1, next_attempt_at = ?, last_error = ?
		WHERE id = ?
	`, next.UTC(), lastErr, id)
	return err
}

// MarkOutboxAbandoned stops retrying a message that exhausted its attempts.
func (s *Store) MarkOutboxAbandoned(ctx context.Context, id string, at time.Time, lastErr string) error {
	_, err := s.exec(ctx, `
		UPDATE outbox SET attempts = attempts + 1, abandoned_at = ?, last_error = ?
		WHERE id = ?
	`, at.UTC(), lastErr, id)
	return err
}

// GetOutboxByDedupKey returns the queued message for a dedup key.
func (s *Store) GetOutboxByDedupKey(ctx context.Context, key string) (*models.OutboxMessage, error) {
	rows, err := s.query(ctx, `SELECT `+outboxColumns+` FROM outbox WHERE dedup_key = ?`, key)
	if err != nil {
		return nil, err
	}
	list, err := scanOutbox(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return &list[0], nil
}

// ListOutbox returns messages for a topic, oldest first. An empty topic lists all.
func (s *Store) ListOutbox(ctx context.Context, topic string, pendingOnly bool) ([]models.OutboxMessage, error) {
	query := `SELECT ` + outboxColumns + ` FROM outbox WHERE 1 = 1`
	var args []any
	if topic != "" {
		query += ` AND topic = ?`
		args = append(args, topic)
	}
	if pendingOnly {
		query += ` AND published_at IS NULL AND abandoned_at IS NULL`
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanOutbox(rows)
}

func scanOutbox(rows *sql.Rows) ([]models.OutboxMessage, error) {
	defer func() { _ = rows.Close() }()

	var out []models.OutboxMessage
	for rows.Next() {
		var m models.OutboxMessage
		var publishedAt, abandonedAt sql.NullTime
		if err := rows.Scan(&m.ID, &m.Topic, &m.DedupKey, &m.Key, &m.Payload, &m.Attempts, &m.NextAttemptAt,
			&publishedAt, &abandonedAt, &m.LastError, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.NextAttemptAt = m.NextAttemptAt.UTC()
		m.CreatedAt = m.CreatedAt.UTC()
		m.PublishedAt = timePtr(publishedAt)
		m.AbandonedAt = timePtr(abandonedAt)
		out = append(out, m)
	}
	return out, rows.Err()
}
