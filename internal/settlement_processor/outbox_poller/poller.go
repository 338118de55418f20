package outbox_poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/crowdfund-ledger/internal/config"
	"github.com/crowdfund-ledger/internal/domain/outbox"
	"github.com/crowdfund-ledger/internal/domain/shared"
	"github.com/crowdfund-ledger/internal/metrics"
	"github.com/google/uuid"
)

// Poller processes pending outbox messages
type Poller struct {
	outboxRepo       outbox.Repository
	publisher        EventPublisher
	metrics          *metrics.Metrics
	logger           *slog.Logger
	now              func() time.Time
	pollInterval     time.Duration
	batchSize        int
	maxRetryAttempts int
	retention        time.Duration
}

func NewPoller(
	cfg *config.OutboxConfig,
	outboxRepo outbox.Repository,
	publisher EventPublisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Poller {
	return &Poller{
		outboxRepo:       outboxRepo,
		publisher:        publisher,
		metrics:          m,
		logger:           logger,
		now:              func() time.Time { return time.Now().UTC() },
		pollInterval:     cfg.PollingInterval,
		batchSize:        cfg.BatchSize,
		maxRetryAttempts: cfg.MaxRetryAttempts,
		retention:        cfg.Retention,
	}
}

// Start begins polling until context is canceled
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("Starting Outbox Poller",
		"poll_interval", p.pollInterval.String(),
		"batch_size", p.batchSize,
		"max_retry_attempts", p.maxRetryAttempts,
		"retention", p.retention.String(),
	)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox Poller stopping due to context cancellation.")
			return
		case <-ticker.C:
			if err := p.processPendingMessages(ctx); err != nil {
				p.logger.Error("Error during batch processing of pending outbox messages", "error", err)
			}
			p.purgeDelivered(ctx)
		}
	}
}

func (p *Poller) processPendingMessages(ctx context.Context) error {
	messages, err := p.outboxRepo.GetPending(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("failed to get pending outbox messages: %w", err)
	}

	if len(messages) == 0 {
		return nil
	}

	p.logger.Debug("Fetched pending outbox messages", "count", len(messages))

	// Messages arrive in id order. Once a campaign's message fails, its later
	// messages wait for the next tick so subscribers see them in order.
	blocked := make(map[uuid.UUID]struct{})
	for _, msg := range messages {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, skip := blocked[msg.CampaignID]; skip {
			continue
		}

		if err := p.publisher.Publish(ctx, msg); err != nil {
			blocked[msg.CampaignID] = struct{}{}
			p.handleFailure(ctx, msg, err)
			continue
		}
		p.metrics.OutboxResult(metrics.OutboxPublished)
	}
	return nil
}

func (p *Poller) handleFailure(ctx context.Context, msg *outbox.Message, publishErr error) {
	logger := p.logger.With("outbox_id", msg.ID, "event_id", msg.EventID.String(), "current_attempts", msg.Attempts)
	logger.Error("Failed to deliver outbox message", "error", publishErr)

	if err := p.outboxRepo.IncrementAttempts(ctx, msg.ID); err != nil {
		logger.Error("Failed to increment attempts for outbox message", "error", err)
		return
	}

	if !msg.ExhaustedRetries(p.maxRetryAttempts) {
		p.metrics.OutboxResult(metrics.OutboxRetried)
		return
	}

	logger.Warn("Max retry attempts reached for outbox message, marking as FAILED_TO_PUBLISH", "attempts_made", msg.Attempts+1)
	if err := p.outboxRepo.UpdateStatus(ctx, msg.ID, shared.OutboxStatusFailedToPublish); err != nil {
		logger.Error("Failed to update outbox status to FAILED_TO_PUBLISH after max retries", "error", err)
		return
	}
	p.metrics.OutboxResult(metrics.OutboxFailed)
}

// purgeDelivered removes one batch of delivered messages past retention.
// Parked messages are kept for operators to inspect.
func (p *Poller) purgeDelivered(ctx context.Context) {
	if p.retention <= 0 || ctx.Err() != nil {
		return
	}
	cutoff := p.now().Add(-p.retention)
	purged, err := p.outboxRepo.PurgeProcessed(ctx, cutoff, p.batchSize)
	if err != nil {
		p.logger.Error("Failed to purge delivered outbox messages", "cutoff", cutoff, "error", err)
		return
	}
	if purged > 0 {
		p.logger.Debug("Purged delivered outbox messages", "count", purged, "cutoff", cutoff)
	}
}
