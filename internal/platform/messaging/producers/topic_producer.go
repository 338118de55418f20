package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/crowdfund-ledger/internal/config"
	"github.com/segmentio/kafka-go"
)

// TopicProducer writes JSON messages synchronously to one topic.
type TopicProducer struct {
	logger *slog.Logger
	writer messageWriter
	topic  string
}

// NewSettlementCommandProducer is used by the API gateway to hand settlement
// commands to the processor.
func NewSettlementCommandProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*TopicProducer, error) {
	if cfg.CommandTopic == "" {
		return nil, fmt.Errorf("kafka command topic is not configured")
	}
	return newTopicProducer(logger, cfg, cfg.CommandTopic)
}

// NewEventProducer publishes committed ledger events for subscribers.
func NewEventProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*TopicProducer, error) {
	if cfg.EventTopic == "" {
		return nil, fmt.Errorf("kafka event topic is not configured")
	}
	return newTopicProducer(logger, cfg, cfg.EventTopic)
}

func newTopicProducer(logger *slog.Logger, cfg *config.KafkaConfig, topic string) (*TopicProducer, error) {
	if err := dialAndEnsureTopic(cfg.Brokers, topic, cfg.NumPartitions, cfg.ReplicationFactor, logger); err != nil {
		return nil, fmt.Errorf("failed to ensure topic %s exists: %w", topic, err)
	}

	return &TopicProducer{
		logger: logger,
		writer: newSyncWriter(cfg, topic, &kafka.Hash{}),
		topic:  topic,
	}, nil
}

func (p *TopicProducer) Publish(ctx context.Context, key string, value interface{}, headers ...kafka.Header) error {
	jsonValue, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message for topic %s: %w", p.topic, err)
	}

	msg := kafka.Message{
		Key:     []byte(key),
		Value:   jsonValue,
		Headers: headers,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish message",
			"topic", p.topic,
			"key", key,
			"error", err,
		)
		return fmt.Errorf("failed to publish message to %s: %w", p.topic, err)
	}

	p.logger.Debug("Published message",
		"topic", p.topic,
		"key", key,
	)
	return nil
}

func (p *TopicProducer) Topic() string {
	return p.topic
}

func (p *TopicProducer) Close() error {
	p.logger.Info("Closing Kafka producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
