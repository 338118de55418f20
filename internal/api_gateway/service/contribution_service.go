package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/crowdfund-ledger/internal/domain/campaign"
	"github.com/crowdfund-ledger/internal/domain/contribution"
	"github.com/crowdfund-ledger/internal/domain/outbox"
	"github.com/crowdfund-ledger/internal/domain/shared"
	"github.com/crowdfund-ledger/internal/metrics"
	"github.com/crowdfund-ledger/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

var rejectionReasons = map[error]string{
	contribution.ErrInvalidAmount:           "invalid_amount",
	contribution.ErrEmptyContributorRef:     "missing_contributor",
	contribution.ErrEmptyTransferRef:        "missing_transfer_ref",
	campaign.ErrCampaignNotOpen:             "campaign_not_open",
	campaign.ErrFundingLimit:                "funding_limit",
	campaign.ErrCampaignNotFound{}:          "campaign_not_found",
	contribution.ErrDuplicateContribution{}: "duplicate_transfer",
}

type contributionRecordedPayload struct {
	ContributionID uuid.UUID       `json:"contribution_id"`
	ContributorRef string          `json:"contributor_ref"`
	Amount         decimal.Decimal `json:"amount"`
	TransferRef    string          `json:"transfer_ref"`
	CurrentFunding decimal.Decimal `json:"current_funding"`
}

// ContributionServiceImpl implements the ContributionService interface
type ContributionServiceImpl struct {
	txManager        persistence.TxManager
	campaignRepo     campaign.Repository
	contributionRepo contribution.Repository
	outboxRepo       outbox.Repository
	metrics          *metrics.Metrics
	logger           *slog.Logger
	now              func() time.Time
}

// NewContributionService creates a new contribution service
func NewContributionService(
	logger *slog.Logger,
	txManager persistence.TxManager,
	campaignRepo campaign.Repository,
	contributionRepo contribution.Repository,
	outboxRepo outbox.Repository,
	m *metrics.Metrics,
) ContributionService {
	return &ContributionServiceImpl{
		txManager:        txManager,
		campaignRepo:     campaignRepo,
		contributionRepo: contributionRepo,
		outboxRepo:       outboxRepo,
		metrics:          m,
		logger:           logger,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// RecordContribution locks the campaign row, checks it still accepts
// contributions, then writes the contribution, the new total and the
// CONTRIBUTION_RECORDED outbox entry together.
func (s *ContributionServiceImpl) RecordContribution(ctx context.Context, campaignID uuid.UUID, contributorRef string, amount decimal.Decimal, transferRef string) (*contribution.Contribution, decimal.Decimal, error) {
	logger := s.logger.With("campaign_id", campaignID.String(), "contributor_ref", contributorRef)
	now := s.now()

	c, err := contribution.NewContribution(campaignID, contributorRef, amount, transferRef, now)
	if err != nil {
		s.reject(logger, err)
		return nil, decimal.Zero, err
	}

	var total decimal.Decimal
	err = s.txManager.ExecuteTx(ctx, func(tx pgx.Tx) error {
		campaigns := s.campaignRepo.WithTx(tx)

		locked, err := campaigns.LockForUpdate(ctx, campaignID)
		if err != nil {
			return err
		}
		if err := locked.AcceptsContributions(now); err != nil {
			return err
		}

		if err := s.contributionRepo.WithTx(tx).Create(ctx, c); err != nil {
			return err
		}

		total, err = campaigns.AddFunding(ctx, campaignID, c.Amount, now)
		if err != nil {
			return err
		}

		event, err := shared.NewEvent(campaignID, shared.EventContributionRecorded, contributionRecordedPayload{
			ContributionID: c.ID,
			ContributorRef: c.ContributorRef,
			Amount:         c.Amount,
			TransferRef:    c.TransferRef,
			CurrentFunding: total,
		}, now)
		if err != nil {
			return err
		}
		msg, err := outbox.NewMessage(event)
		if err != nil {
			return err
		}
		return s.outboxRepo.WithTx(tx).Create(ctx, msg)
	})
	if err != nil {
		s.reject(logger, err)
		return nil, decimal.Zero, err
	}

	s.metrics.ContributionRecorded()
	logger.Info("Contribution recorded",
		"contribution_id", c.ID.String(),
		"amount", c.Amount.String(),
		"current_funding", total.String(),
	)
	return c, total, nil
}

func (s *ContributionServiceImpl) reject(logger *slog.Logger, err error) {
	reason := metrics.ErrorReason(err, rejectionReasons)
	s.metrics.ContributionRejected(reason)
	if reason == "unknown" {
		logger.Error("Failed to record contribution", "error", err)
		return
	}
	logger.Warn("Contribution rejected", "reason", reason, "error", err)
}
