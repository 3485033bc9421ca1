// ABOUTME: Outbox relay moving committed dispatch and escalation messages to the publisher
// ABOUTME: Failed publishes back off exponentially and are abandoned after a maximum attempt count
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/harperreed/engage/logging"
	"github.com/harperreed/engage/models"
	"go.uber.org/zap"
)

const (
	defaultBatchSize    = 200
	defaultPollInterval = 500 * time.Millisecond
	defaultLease        = 30 * time.Second
	maxRetryDelay       = 5 * time.Minute
)

// OutboxStore is the outbox persistence the relay drives.
type OutboxStore interface {
	ClaimOutbox(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]models.OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, id string, at time.Time) error
	MarkOutboxFailed(ctx context.Context, id string, next time.Time, lastErr string) error
	MarkOutboxAbandoned(ctx context.Context, id string, at time.Time, lastErr string) error
}

type RelayConfig struct {
	BatchSize    int
	PollInterval time.Duration
	Lease        time.Duration
	MaxAttempts  int // 0 retries forever
}

// Relay publishes outbox rows. OnPublished and OnAbandoned, when set, run after a
// row is marked; their errors are logged and do not undo the mark.
type Relay struct {
	store OutboxStore
	pub   Publisher
	cfg   RelayConfig
	now   func() time.Time

	OnPublished func(ctx context.Context, msg models.OutboxMessage) error
	OnAbandoned func(ctx context.Context, msg models.OutboxMessage, cause error) error
}

func NewRelay(store OutboxStore, pub Publisher, cfg RelayConfig) *Relay {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Lease <= 0 {
		cfg.Lease = defaultLease
	}
	return &Relay{store: store, pub: pub, cfg: cfg, now: time.Now}
}

// Run relays until ctx is cancelled. Claim errors back off up to 30 seconds.
func (r *Relay) Run(ctx context.Context) error {
	if r.store == nil {
		return errors.New("outbox store is nil")
	}
	if r.pub == nil {
		return errors.New("publisher is nil")
	}

	backoff := r.cfg.PollInterval
	for {
		n, err := r.RunOnce(ctx)
		wait := r.cfg.PollInterval
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			wait = backoff
			backoff *= 2
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
		case n > 0:
			backoff = r.cfg.PollInterval
			wait = 0
		default:
			backoff = r.cfg.PollInterval
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// RunOnce claims one batch and publishes it, returning how many rows were claimed.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	now := r.now()
	batch, err := r.store.ClaimOutbox(ctx, now, r.cfg.Lease, r.cfg.BatchSize)
	if err != nil {
		logging.Warn("outbox claim failed", zap.Error(err))
		return 0, err
	}

	for _, msg := range batch {
		r.publish(ctx, msg)
	}
	return len(batch), nil
}

func (r *Relay) publish(ctx context.Context, msg models.OutboxMessage) {
	key := []byte(msg.Key)
	if len(key) == 0 {
		key = []byte(msg.DedupKey)
	}

	res, pubErr := r.pub.Publish(ctx, Message{
		Topic: msg.Topic,
		Key:   key,
		Value: msg.Payload,
		Headers: map[string]string{
			"message_id": msg.ID,
			"dedup_key":  msg.DedupKey,
		},
	})
	at := r.now()

	if pubErr != nil {
		attempts := msg.Attempts + 1
		if r.cfg.MaxAttempts > 0 && attempts >= r.cfg.MaxAttempts {
			if err := r.store.MarkOutboxAbandoned(ctx, msg.ID, at, pubErr.Error()); err != nil {
				logging.Warn("outbox mark abandoned failed", zap.String("id", msg.ID), zap.Error(err))
				return
			}
			logging.Error("outbox message abandoned",
				zap.String("id", msg.ID),
				zap.String("topic", msg.Topic),
				zap.Int("attempts", attempts),
				zap.Error(pubErr))
			if r.OnAbandoned != nil {
				if err := r.OnAbandoned(ctx, msg, pubErr); err != nil {
					logging.Warn("outbox abandon hook failed", zap.String("id", msg.ID), zap.Error(err))
				}
			}
			return
		}

		next := computeNextRetry(at, msg.Attempts)
		if err := r.store.MarkOutboxFailed(ctx, msg.ID, next, pubErr.Error()); err != nil {
			logging.Warn("outbox mark failed failed", zap.String("id", msg.ID), zap.Error(err))
		}
		logging.Debug("outbox publish failed", zap.String("id", msg.ID), zap.Time("next", next), zap.Error(pubErr))
		return
	}

	if err := r.store.MarkOutboxPublished(ctx, msg.ID, at); err != nil {
		logging.Warn("outbox mark published failed", zap.String("id", msg.ID), zap.Error(err))
		return
	}
	logging.Debug("outbox message published",
		zap.String("id", msg.ID),
		zap.String("topic", msg.Topic),
		zap.Int32("partition", res.Partition),
		zap.Int64("offset", res.Offset))
	if r.OnPublished != nil {
		if err := r.OnPublished(ctx, msg); err != nil {
			logging.Warn("outbox publish hook failed", zap.String("id", msg.ID), zap.Error(err))
		}
	}
}

// computeNextRetry doubles a 500ms base per prior attempt, capped at five minutes.
func computeNextRetry(now time.Time, attempts int) time.Time {
	if attempts < 0 {
		attempts = 0
	}
	d := 500 * time.Millisecond
	for i := 0; i < attempts && d < maxRetryDelay; i++ {
		d *= 2
	}
	if d > maxRetryDelay {
		d = maxRetryDelay
	}
	return now.Add(d)
}
