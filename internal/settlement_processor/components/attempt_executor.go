package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/crowdfund-ledger/internal/config"
	"github.com/crowdfund-ledger/internal/domain/settlement"
	"github.com/crowdfund-ledger/internal/metrics"
	"github.com/crowdfund-ledger/internal/platform/transfer"
	"github.com/crowdfund-ledger/internal/settlement_processor/service"
)

type AttemptExecutorImpl struct {
	gateway        transfer.Gateway
	settlementRepo settlement.Repository
	metrics        *metrics.Metrics
	logger         *slog.Logger
	maxAttempts    uint
	initialBackoff time.Duration
	maxBackoff     time.Duration
	callTimeout    time.Duration
	now            func() time.Time
}

func NewAttemptExecutor(
	gateway transfer.Gateway,
	settlementRepo settlement.Repository,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg *config.SettlementConfig,
) service.AttemptExecutor {
	return &AttemptExecutorImpl{
		gateway:        gateway,
		settlementRepo: settlementRepo,
		metrics:        m,
		logger:         logger,
		maxAttempts:    uint(cfg.MaxAttempts),
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		callTimeout:    cfg.TransferTimeout,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Execute sends the attempt's transfer, retrying retryable failures with
// exponential backoff. The attempt count is persisted before every call and
// every call carries the attempt's idempotency key.
func (e *AttemptExecutorImpl) Execute(ctx context.Context, attempt *settlement.Attempt) (string, error) {
	logger := e.logger.With(
		"campaign_id", attempt.CampaignID.String(),
		"attempt_id", attempt.ID.String(),
		"recipient_ref", attempt.RecipientRef,
		"kind", string(attempt.Kind),
	)

	req := transfer.Request{
		Recipient:      attempt.RecipientRef,
		Amount:         attempt.Amount,
		IdempotencyKey: attempt.IdempotencyKey(),
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = e.initialBackoff
	policy.MaxInterval = e.maxBackoff

	send := func() (string, error) {
		if err := e.settlementRepo.IncrementAttemptCount(ctx, attempt.ID, e.now()); err != nil {
			var missing settlement.ErrAttemptNotFound
			if errors.As(err, &missing) {
				return "", backoff.Permanent(err)
			}
			return "", fmt.Errorf("failed to record transfer attempt: %w", err)
		}

		callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
		defer cancel()

		started := time.Now()
		transferRef, err := e.gateway.Send(callCtx, req)
		e.metrics.ObserveTransfer(started, err)
		if err == nil {
			return transferRef, nil
		}
		if !transfer.IsRetryable(err) {
			logger.Warn("Transfer rejected permanently", "error", err)
			return "", backoff.Permanent(err)
		}
		return "", err
	}

	transferRef, err := backoff.Retry(ctx, send,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(e.maxAttempts),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("Transfer failed, retrying", "retry_in", next.String(), "error", err)
		}),
	)
	if err != nil {
		return "", err
	}
	return transferRef, nil
}
