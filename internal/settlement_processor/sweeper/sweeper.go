package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/crowdfund-ledger/internal/config"
	"github.com/crowdfund-ledger/internal/domain/campaign"
	"github.com/crowdfund-ledger/internal/domain/shared"
	"github.com/crowdfund-ledger/internal/metrics"
	"github.com/crowdfund-ledger/internal/platform/persistence"
	"github.com/crowdfund-ledger/internal/settlement_processor/service"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type campaignClosedPayload struct {
	ClosedAt time.Time `json:"closed_at"`
}

// Sweeper closes campaigns whose deadline passed, optionally begins their
// settlement, and re-drives settlements abandoned by a crashed driver.
type Sweeper struct {
	txManager    persistence.TxManager
	campaignRepo campaign.Repository
	events       service.EventRecorder
	coordinator  service.SettlementCoordinator
	metrics      *metrics.Metrics
	logger       *slog.Logger
	now          func() time.Time

	interval   time.Duration
	staleAfter time.Duration
	limit      int
	autoBegin  bool
	operator   string
}

func NewSweeper(
	cfg *config.SettlementConfig,
	txManager persistence.TxManager,
	campaignRepo campaign.Repository,
	events service.EventRecorder,
	coordinator service.SettlementCoordinator,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Sweeper {
	return &Sweeper{
		txManager:    txManager,
		campaignRepo: campaignRepo,
		events:       events,
		coordinator:  coordinator,
		metrics:      m,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
		interval:     cfg.SweepInterval,
		staleAfter:   cfg.StaleAfter,
		limit:        cfg.CampaignsPerSweep,
		autoBegin:    cfg.AutoBegin,
		operator:     cfg.SchedulerOperator,
	}
}

// Start sweeps on every tick until ctx is canceled.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("Starting deadline sweeper",
		"interval", s.interval.String(),
		"stale_after", s.staleAfter.String(),
		"auto_begin", s.autoBegin,
	)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Deadline sweeper stopping due to context cancellation.")
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error("Deadline sweep failed", "error", err)
			}
		}
	}
}

// Sweep runs one pass. A failing step is logged and the following steps still run.
func (s *Sweeper) Sweep(ctx context.Context) error {
	var errs []error
	if _, err := s.closeExpired(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.autoBegin {
		if err := s.beginClosed(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.recoverStale(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Sweeper) closeExpired(ctx context.Context) ([]uuid.UUID, error) {
	now := s.now()
	var closed []uuid.UUID
	err := s.txManager.ExecuteTx(ctx, func(tx pgx.Tx) error {
		ids, err := s.campaignRepo.WithTx(tx).CloseExpired(ctx, now, s.limit)
		if err != nil {
			return err
		}
		for _, id := range ids {
			event, err := shared.NewEvent(id, shared.EventCampaignClosed, campaignClosedPayload{ClosedAt: now}, now)
			if err != nil {
				return err
			}
			if err := s.events.Record(ctx, tx, event); err != nil {
				return err
			}
		}
		closed = ids
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to close expired campaigns: %w", err)
	}

	if len(closed) > 0 {
		s.metrics.CampaignsClosed(len(closed))
		s.logger.Info("Closed expired campaigns", "count", len(closed))
	}
	return closed, nil
}

func (s *Sweeper) beginClosed(ctx context.Context) error {
	campaigns, err := s.campaignRepo.ListByStatus(ctx, campaign.StatusClosed, s.now(), s.limit)
	if err != nil {
		return fmt.Errorf("failed to list closed campaigns: %w", err)
	}

	for _, c := range campaigns {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger := s.logger.With("campaign_id", c.ID.String())
		result, err := s.coordinator.BeginSettlement(ctx, c.ID, s.operator)
		switch {
		case err == nil:
			logger.Info("Scheduled settlement finished", "status", string(result.Status))
		case errors.Is(err, campaign.ErrAlreadySettling), errors.Is(err, service.ErrDriverBusy):
			logger.Debug("Campaign already picked up by another driver", "error", err)
		default:
			logger.Error("Scheduled settlement failed", "error", err)
		}
	}
	return nil
}

func (s *Sweeper) recoverStale(ctx context.Context) error {
	cutoff := s.now().Add(-s.staleAfter)
	campaigns, err := s.campaignRepo.ListByStatus(ctx, campaign.StatusSettling, cutoff, s.limit)
	if err != nil {
		return fmt.Errorf("failed to list stale settlements: %w", err)
	}

	for _, c := range campaigns {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger := s.logger.With("campaign_id", c.ID.String(), "updated_at", c.UpdatedAt)
		result, err := s.coordinator.RecoverSettlement(ctx, c.ID)
		switch {
		case err == nil:
			logger.Info("Recovered stale settlement", "status", string(result.Status))
		case errors.Is(err, service.ErrDriverBusy), errors.Is(err, service.ErrNotSettling):
			logger.Debug("Stale settlement no longer needs recovery", "error", err)
		default:
			logger.Error("Failed to recover stale settlement", "error", err)
		}
	}
	return nil
}
