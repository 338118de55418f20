package producers

import (
	"context"

	"github.com/crowdfund-ledger/internal/config"
	"github.com/segmentio/kafka-go"
)

// MessagePublisher publishes JSON values to a single topic. Messages sharing
// a key land on the same partition, which keeps per-campaign order.
type MessagePublisher interface {
	Publish(ctx context.Context, key string, value interface{}, headers ...kafka.Header) error
	Close() error
}

var _ MessagePublisher = (*TopicProducer)(nil)

// messageWriter is the subset of *kafka.Writer the producers depend on.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// newSyncWriter returns a writer that blocks until every in-sync replica
// has acknowledged the batch.
func newSyncWriter(cfg *config.KafkaConfig, topic string, balancer kafka.Balancer) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        topic,
		Balancer:     balancer,
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: cfg.MaxWait,
	}
}
