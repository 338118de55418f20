package outbox_poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/crowdfund-ledger/internal/domain/audit"
	"github.com/crowdfund-ledger/internal/domain/outbox"
	"github.com/crowdfund-ledger/internal/domain/shared"
	"github.com/crowdfund-ledger/internal/platform/messaging/producers"
	"github.com/segmentio/kafka-go"
)

const eventKindHeader = "event-kind"

// EventPublisher delivers one outbox message to subscribers
type EventPublisher interface {
	Publish(ctx context.Context, message *outbox.Message) error
}

// EventPublisherImpl sends the event to the Kafka event topic, appends it to
// the audit trail and marks the outbox row processed, in that order. Both
// sinks tolerate redelivery, so a crash between steps is safe.
type EventPublisherImpl struct {
	outboxRepo outbox.Repository
	producer   producers.MessagePublisher
	auditRepo  audit.Repository
	logger     *slog.Logger
	now        func() time.Time
}

func NewEventPublisher(
	outboxRepo outbox.Repository,
	producer producers.MessagePublisher,
	auditRepo audit.Repository,
	logger *slog.Logger,
) EventPublisher {
	return &EventPublisherImpl{
		outboxRepo: outboxRepo,
		producer:   producer,
		auditRepo:  auditRepo,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (p *EventPublisherImpl) Publish(ctx context.Context, message *outbox.Message) error {
	event, err := message.GetEvent()
	if err != nil {
		p.logger.Error("Failed to decode event from outbox payload",
			"outbox_id", message.ID, "event_id", message.EventID.String(), "error", err,
		)
		if updateErr := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusFailedToPublish); updateErr != nil {
			p.logger.Error("Also failed to update outbox status to FAILED_TO_PUBLISH after decode error", "outbox_id", message.ID, "update_error", updateErr)
		}
		return fmt.Errorf("decode payload for outbox %d failed: %w", message.ID, err)
	}

	logger := p.logger.With(
		"outbox_id", message.ID,
		"event_id", event.EventID.String(),
		"event_kind", string(event.Kind),
		"campaign_id", event.CampaignID.String(),
	)

	header := kafka.Header{Key: eventKindHeader, Value: []byte(event.Kind)}
	if err := p.producer.Publish(ctx, event.CampaignID.String(), event, header); err != nil {
		logger.Error("Failed to publish event to Kafka", "error", err)
		return fmt.Errorf("failed to publish event %s: %w", event.EventID, err)
	}

	if err := p.auditRepo.Append(ctx, audit.NewEntry(event, p.now())); err != nil {
		logger.Error("Failed to append event to audit trail", "error", err)
		return fmt.Errorf("event %s published, but audit append failed: %w", event.EventID, err)
	}

	if err := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusProcessed); err != nil {
		logger.Error("Failed to update outbox message status to PROCESSED", "error", err)
		return fmt.Errorf("event %s delivered, but failed to mark outbox %d as PROCESSED: %w", event.EventID, message.ID, err)
	}

	logger.Debug("Outbox message delivered and marked as PROCESSED")
	return nil
}
