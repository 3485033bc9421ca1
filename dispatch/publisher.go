// ABOUTME: Publisher abstraction for outbound dispatch and escalation messages
// ABOUTME: Includes a log-only publisher used when no broker is configured
package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/harperreed/engage/logging"
	"go.uber.org/zap"
)

type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

type PublishResult struct {
	Partition int32
	Offset    int64
}

// Publisher hands messages to the delivery collaborator.
type Publisher interface {
	Publish(ctx context.Context, msg Message) (PublishResult, error)
	Close() error
}

// LogPublisher writes messages to the structured log instead of a broker. Offsets
// count up from zero so published rows still get a position.
type LogPublisher struct {
	offset atomic.Int64
}

func NewLogPublisher() *LogPublisher { return &LogPublisher{} }

func (p *LogPublisher) Publish(ctx context.Context, msg Message) (PublishResult, error) {
	if err := ctx.Err(); err != nil {
		return PublishResult{}, err
	}
	if strings.TrimSpace(msg.Topic) == "" {
		return PublishResult{}, errors.New("topic is empty")
	}
	off := p.offset.Add(1) - 1
	logging.Info("outbox message",
		zap.String("topic", msg.Topic),
		zap.ByteString("key", msg.Key),
		zap.ByteString("payload", msg.Value),
		zap.Int64("offset", off))
	return PublishResult{Offset: off}, nil
}

func (p *LogPublisher) Close() error { return nil }
