// ABOUTME: Outbox relay CLI command
// ABOUTME: Publishes queued dispatch and escalation messages to Kafka or the log
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/harperreed/engage/config"
	"github.com/harperreed/engage/dispatch"
	"github.com/harperreed/engage/engine"
	"github.com/harperreed/engage/logging"
	"go.uber.org/zap"
)

// newPublisher returns a Kafka publisher when kafka is enabled, else the log publisher.
func newPublisher(cfg *config.Config, ensureTopics bool) (dispatch.Publisher, error) {
	if !cfg.Kafka.Enabled {
		logging.Info("kafka disabled, relaying to the log")
		return dispatch.NewLogPublisher(), nil
	}
	kc := dispatch.KafkaConfig{Brokers: cfg.Kafka.Brokers, ClientID: cfg.Kafka.ClientID}
	if ensureTopics {
		topics := []string{cfg.Engine.DispatchTopic, cfg.Engine.EscalationTopic}
		if err := dispatch.EnsureTopics(kc, topics, 3, 1); err != nil {
			return nil, fmt.Errorf("failed to create topics: %w", err)
		}
	}
	return dispatch.NewKafkaPublisher(kc)
}

// RelayCommand runs the outbox relay until interrupted, or one pass with --once.
func RelayCommand(eng *engine.Engine, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("relay", flag.ExitOnError)
	once := fs.Bool("once", false, "Relay due messages once and exit")
	createTopics := fs.Bool("create-topics", false, "Create the outbox topics on the broker first")
	_ = fs.Parse(args)

	pub, err := newPublisher(cfg, *createTopics)
	if err != nil {
		return err
	}
	defer func() {
		if err := pub.Close(); err != nil {
			logging.Warn("publisher close failed", zap.Error(err))
		}
	}()

	relay := dispatch.NewRelay(eng.Store(), pub, dispatch.RelayConfig{
		BatchSize:    cfg.Engine.RelayBatchSize,
		PollInterval: cfg.Engine.RelayPollInterval,
		MaxAttempts:  cfg.Engine.RelayMaxAttempts,
	})
	relay.OnPublished = eng.OnPublished
	relay.OnAbandoned = eng.OnAbandoned

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *once {
		n, err := relay.RunOnce(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%s Relayed %d messages\n", okStyle.Render("✓"), n)
		return nil
	}

	logging.Info("relay started", zap.Bool("kafka", cfg.Kafka.Enabled))
	if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logging.Info("relay stopped")
	return nil
}
