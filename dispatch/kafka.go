// ABOUTME: Kafka publisher built on sarama's idempotent sync producer
// ABOUTME: Also creates outbox topics on startup when they are missing
package dispatch

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/IBM/sarama"
)

type KafkaConfig struct {
	Brokers  []string
	ClientID string
}

type kafkaPublisher struct {
	p sarama.SyncProducer
}

func producerConfig(clientID string) *sarama.Config {
	sc := sarama.NewConfig()
	sc.Version = sarama.V2_8_0_0
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 10
	sc.Producer.Retry.Backoff = 100 * time.Millisecond
	sc.Producer.Idempotent = true
	sc.Net.MaxOpenRequests = 1
	sc.Producer.Partitioner = sarama.NewHashPartitioner
	sc.ClientID = strings.TrimSpace(clientID)
	return sc
}

// NewKafkaPublisher connects a sync producer. Messages keyed by decision id land on
// one partition, so a decision's dispatch and escalation stay ordered.
func NewKafkaPublisher(cfg KafkaConfig) (Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers is empty")
	}
	p, err := sarama.NewSyncProducer(cfg.Brokers, producerConfig(cfg.ClientID))
	if err != nil {
		return nil, err
	}
	return &kafkaPublisher{p: p}, nil
}

func newKafkaPublisherFromProducer(p sarama.SyncProducer) *kafkaPublisher {
	return &kafkaPublisher{p: p}
}

func (kp *kafkaPublisher) Publish(ctx context.Context, msg Message) (PublishResult, error) {
	select {
	case <-ctx.Done():
		return PublishResult{}, ctx.Err()
	default:
	}
	if strings.TrimSpace(msg.Topic) == "" {
		return PublishResult{}, errors.New("kafka topic is empty")
	}

	m := &sarama.ProducerMessage{
		Topic: msg.Topic,
		Key:   sarama.ByteEncoder(msg.Key),
		Value: sarama.ByteEncoder(msg.Value),
	}
	for k, v := range msg.Headers {
		if k = strings.TrimSpace(k); k == "" {
			continue
		}
		m.Headers = append(m.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}

	partition, offset, err := kp.p.SendMessage(m)
	if err != nil {
		return PublishResult{}, err
	}
	return PublishResult{Partition: partition, Offset: offset}, nil
}

func (kp *kafkaPublisher) Close() error {
	if kp == nil || kp.p == nil {
		return nil
	}
	return kp.p.Close()
}

// EnsureTopics creates any missing topics. Zero partitions or replication means 1.
func EnsureTopics(cfg KafkaConfig, topics []string, partitions int32, replication int16) error {
	if len(cfg.Brokers) == 0 {
		return errors.New("kafka brokers is empty")
	}
	if partitions <= 0 {
		partitions = 1
	}
	if replication <= 0 {
		replication = 1
	}

	sc := sarama.NewConfig()
	sc.Version = sarama.V2_8_0_0
	sc.ClientID = strings.TrimSpace(cfg.ClientID)

	admin, err := sarama.NewClusterAdmin(cfg.Brokers, sc)
	if err != nil {
		return err
	}
	defer func() { _ = admin.Close() }()

	existing, err := admin.ListTopics()
	if err != nil {
		return err
	}
	for _, topic := range topics {
		topic = strings.TrimSpace(topic)
		if topic == "" {
			continue
		}
		if _, ok := existing[topic]; ok {
			continue
		}
		err := admin.CreateTopic(topic, &sarama.TopicDetail{
			NumPartitions:     partitions,
			ReplicationFactor: replication,
		}, false)
		if err != nil && !errors.Is(err, sarama.ErrTopicAlreadyExists) {
			return err
		}
	}
	return nil
}
