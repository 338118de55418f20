package components

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/crowdfund-ledger/internal/domain/outbox"
	"github.com/crowdfund-ledger/internal/domain/shared"
	"github.com/crowdfund-ledger/internal/settlement_processor/service"
	"github.com/jackc/pgx/v5"
)

type OutboxRecorderImpl struct {
	outboxRepo outbox.Repository
	logger     *slog.Logger
}

func NewOutboxRecorder(outboxRepo outbox.Repository, logger *slog.Logger) service.EventRecorder {
	return &OutboxRecorderImpl{
		outboxRepo: outboxRepo,
		logger:     logger,
	}
}

// Record stores event in the outbox using tx, so it commits or rolls back
// with the change it describes.
func (r *OutboxRecorderImpl) Record(ctx context.Context, tx pgx.Tx, event *shared.Event) error {
	message, err := outbox.NewMessage(event)
	if err != nil {
		r.logger.Error("Failed to build outbox message",
			"event_id", event.EventID.String(),
			"event_kind", string(event.Kind),
			"error", err,
		)
		return fmt.Errorf("failed to build outbox message for event %s: %w", event.EventID, err)
	}

	if err := r.outboxRepo.WithTx(tx).Create(ctx, message); err != nil {
		r.logger.Error("Failed to create outbox message",
			"event_id", event.EventID.String(),
			"campaign_id", event.CampaignID.String(),
			"error", err,
		)
		return fmt.Errorf("failed to create outbox message for event %s: %w", event.EventID, err)
	}

	r.logger.Debug("Outbox message created",
		"outbox_id", message.ID,
		"event_kind", string(event.Kind),
		"campaign_id", event.CampaignID.String(),
	)
	return nil
}
