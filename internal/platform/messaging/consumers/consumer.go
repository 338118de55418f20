package consumers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/crowdfund-ledger/internal/config"
	"github.com/segmentio/kafka-go"
)

const (
	defaultHandlerAttempts = 3
	defaultHandlerBackoff  = 500 * time.Millisecond
	fetchErrorDelay        = time.Second
	maxDeadLetterBackoff   = 30 * time.Second
)

type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Permanent marks a handler error that must not be retried. The message goes
// straight to the dead letter topic.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// KafkaReader is the subset of *kafka.Reader the consumer relies on.
type KafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DeadLetterSink receives messages the handler gave up on.
type DeadLetterSink interface {
	PublishToDLQ(ctx context.Context, key string, originalMessageValue []byte, reason string) error
}

// KafkaConsumer drives a MessageHandler from a consumer group. Offsets are
// committed only after the handler succeeded or the message was dead-lettered.
type KafkaConsumer struct {
	reader   KafkaReader
	dlq      DeadLetterSink
	logger   *slog.Logger
	topic    string
	groupID  string
	attempts uint
	delay    time.Duration
}

func NewKafkaConsumer(_ context.Context, logger *slog.Logger, cfg *config.KafkaConfig, dlq DeadLetterSink) *KafkaConsumer {
	startOffset := cfg.StartOffset
	if startOffset != kafka.LastOffset {
		startOffset = kafka.FirstOffset
	}

	return &KafkaConsumer{
		logger:   logger,
		dlq:      dlq,
		topic:    cfg.CommandTopic,
		groupID:  cfg.ConsumerGroup,
		attempts: defaultHandlerAttempts,
		delay:    defaultHandlerBackoff,
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     []string{cfg.Brokers},
			Topic:       cfg.CommandTopic,
			GroupID:     cfg.ConsumerGroup,
			MinBytes:    cfg.MinBytes,
			MaxBytes:    cfg.MaxBytes,
			MaxWait:     cfg.MaxWait,
			StartOffset: startOffset,
		}),
	}
}

// Subscribe starts Run in the background.
func (c *KafkaConsumer) Subscribe(ctx context.Context, handler MessageHandler) {
	c.logger.Info("Subscribed to Kafka topic",
		"topic", c.topic,
		"group_id", c.groupID,
	)
	go c.Run(ctx, handler)
}

// Run fetches and handles messages until ctx is canceled.
func (c *KafkaConsumer) Run(ctx context.Context, handler MessageHandler) {
	for {
		if ctx.Err() != nil {
			c.logger.Info("Context canceled, stopping consumer",
				"topic", c.topic,
				"group_id", c.groupID,
			)
			return
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				continue
			}
			c.logger.Error("Failed to fetch message from Kafka",
				"topic", c.topic,
				"group_id", c.groupID,
				"error", err,
			)
			select {
			case <-ctx.Done():
			case <-time.After(fetchErrorDelay):
			}
			continue
		}

		c.logger.Debug("Received message from Kafka",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
		)

		if !c.handle(ctx, msg, handler) {
			continue
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("Failed to commit message",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"key", string(msg.Key),
				"error", err,
			)
		}
	}
}

// handle reports whether the message offset may be committed.
func (c *KafkaConsumer) handle(ctx context.Context, msg kafka.Message, handler MessageHandler) bool {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, handler(ctx, msg.Key, msg.Value)
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(c.delay)),
		backoff.WithMaxTries(c.attempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn("Message handler failed, retrying",
				"key", string(msg.Key),
				"offset", msg.Offset,
				"retry_in", next,
				"error", err,
			)
		}),
	)
	if err == nil {
		return true
	}
	if ctx.Err() != nil {
		// Leave the offset uncommitted so the message is redelivered.
		return false
	}

	c.logger.Error("Message handler gave up, sending to DLQ",
		"topic", msg.Topic,
		"offset", msg.Offset,
		"key", string(msg.Key),
		"error", err,
	)

	return c.deadLetter(ctx, msg, err.Error())
}

// deadLetter keeps publishing msg to the DLQ until it is accepted or ctx ends,
// so the consumer never moves past a message that is neither handled nor
// dead-lettered.
func (c *KafkaConsumer) deadLetter(ctx context.Context, msg kafka.Message, reason string) bool {
	if c.dlq == nil {
		return true
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.delay
	b.MaxInterval = maxDeadLetterBackoff

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, c.dlq.PublishToDLQ(ctx, string(msg.Key), msg.Value, reason)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Error("Failed to dead-letter message, retrying",
				"key", string(msg.Key),
				"offset", msg.Offset,
				"retry_in", next,
				"error", err,
			)
		}),
	)
	if err != nil {
		c.logger.Warn("Stopped dead-lettering message, offset will not be committed",
			"key", string(msg.Key),
			"offset", msg.Offset,
			"error", err,
		)
		return false
	}
	return true
}

func (c *KafkaConsumer) Close() error {
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}
