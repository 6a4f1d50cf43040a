package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"policylens/logger"
)

// KafkaConfig holds broker and topic settings for the extraction queue.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// KafkaPublisher writes extraction jobs to a Kafka topic, keyed by record ID
// so all versions of one record land on the same partition in order.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	log      *logger.Logger
}

func NewKafkaPublisher(cfg KafkaConfig, log *logger.Logger) (*KafkaPublisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_6_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return &KafkaPublisher{
		producer: producer,
		topic:    cfg.Topic,
		log:      log.With("component", "kafka-publisher"),
	}, nil
}

func (p *KafkaPublisher) Publish(_ context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(job.RecordID.String()),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return fmt.Errorf("publish extraction job: %w", err)
	}
	p.log.Debug("published extraction job",
		"record_id", job.RecordID, "version", job.Version,
		"partition", partition, "offset", offset)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// KafkaConsumer delivers extraction jobs from a consumer group. Messages are
// only marked after the handler returns nil, so failures redeliver.
type KafkaConsumer struct {
	group   sarama.ConsumerGroup
	topic   string
	groupID string
	log     *logger.Logger
	ready   chan bool
}

func NewKafkaConsumer(cfg KafkaConfig, log *logger.Logger) (*KafkaConsumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_6_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaConfig.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group: %w", err)
	}
	return &KafkaConsumer{
		group:   group,
		topic:   cfg.Topic,
		groupID: cfg.GroupID,
		log:     log.With("component", "kafka-consumer", "group", cfg.GroupID),
		ready:   make(chan bool),
	}, nil
}

// Consume joins the group and blocks until ctx is cancelled.
func (c *KafkaConsumer) Consume(ctx context.Context, handler Handler) error {
	h := &groupHandler{handler: handler, log: c.log, ready: c.ready}

	go func() {
		for err := range c.group.Errors() {
			c.log.Error("kafka consumer error", "error", err)
		}
	}()

	for {
		if err := c.group.Consume(ctx, []string{c.topic}, h); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Error("kafka consume session ended", "error", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		h.ready = make(chan bool)
	}
}

func (c *KafkaConsumer) Close() error {
	return c.group.Close()
}

type groupHandler struct {
	handler Handler
	log     *logger.Logger
	ready   chan bool
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error {
	select {
	case <-h.ready:
	default:
		close(h.ready)
	}
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}

			var job Job
			if err := json.Unmarshal(message.Value, &job); err != nil {
				// Malformed payloads can never succeed; mark and move on.
				h.log.Error("dropping malformed extraction job",
					"partition", message.Partition, "offset", message.Offset, "error", err)
				session.MarkMessage(message, "")
				continue
			}

			if err := h.handler(session.Context(), job); err != nil {
				h.log.Error("extraction job handler failed, leaving unmarked",
					"record_id", job.RecordID, "version", job.Version, "error", err)
				continue
			}
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}
