package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/crowdfund-ledger/internal/domain/audit"
	"github.com/crowdfund-ledger/internal/domain/campaign"
	"github.com/crowdfund-ledger/internal/domain/contribution"
	"github.com/crowdfund-ledger/internal/domain/settlement"
	"github.com/crowdfund-ledger/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// topSupporters is how many hall-of-fame entries are flagged.
const topSupporters = 3

// QueryServiceImpl implements the QueryService interface. Every read goes to
// committed storage; nothing is cached. Views assembled from more than one
// statement read a single snapshot.
type QueryServiceImpl struct {
	readTx           persistence.ReadTxManager
	campaignRepo     campaign.Repository
	contributionRepo contribution.Repository
	settlementRepo   settlement.Repository
	auditRepo        audit.Repository
	logger           *slog.Logger
	now              func() time.Time
}

// NewQueryService creates a new query service
func NewQueryService(
	logger *slog.Logger,
	readTx persistence.ReadTxManager,
	campaignRepo campaign.Repository,
	contributionRepo contribution.Repository,
	settlementRepo settlement.Repository,
	auditRepo audit.Repository,
) QueryService {
	return &QueryServiceImpl{
		readTx:           readTx,
		campaignRepo:     campaignRepo,
		contributionRepo: contributionRepo,
		settlementRepo:   settlementRepo,
		auditRepo:        auditRepo,
		logger:           logger,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

func (s *QueryServiceImpl) GetRunningTotal(ctx context.Context, campaignID uuid.UUID) (decimal.Decimal, error) {
	c, err := s.campaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return decimal.Zero, err
	}
	return c.CurrentFunding, nil
}

// GetContributions lists a campaign's contributions in insertion order, or by
// amount descending with earlier contributions first on ties.
func (s *QueryServiceImpl) GetContributions(ctx context.Context, campaignID uuid.UUID, order contribution.Order) ([]*contribution.Contribution, error) {
	if _, err := s.campaignRepo.GetByID(ctx, campaignID); err != nil {
		return nil, err
	}
	return s.contributionRepo.ListByCampaign(ctx, campaignID, order)
}

func (s *QueryServiceImpl) GetHallOfFame(ctx context.Context, campaignID uuid.UUID) ([]RankedContribution, error) {
	contributions, err := s.GetContributions(ctx, campaignID, contribution.OrderAmount)
	if err != nil {
		return nil, err
	}

	ranked := make([]RankedContribution, len(contributions))
	for i, c := range contributions {
		ranked[i] = RankedContribution{
			Rank:         i + 1,
			TopSupporter: i < topSupporters,
			Contribution: c,
		}
	}
	return ranked, nil
}

func (s *QueryServiceImpl) GetStats(ctx context.Context, campaignID uuid.UUID) (*contribution.Stats, error) {
	if _, err := s.campaignRepo.GetByID(ctx, campaignID); err != nil {
		return nil, err
	}
	return s.contributionRepo.CampaignStats(ctx, campaignID)
}

func (s *QueryServiceImpl) GetContributorHistory(ctx context.Context, contributorRef string, page, perPage int) (*ContributorHistory, error) {
	offset := (page - 1) * perPage
	history := &ContributorHistory{ContributorRef: contributorRef}

	err := s.readTx.ExecuteReadTx(ctx, func(tx pgx.Tx) error {
		contributions := s.contributionRepo.WithTx(tx)

		var err error
		history.Contributions, err = contributions.ListByContributor(ctx, contributorRef, perPage, offset)
		if err != nil {
			return err
		}
		history.ContributionCount, history.TotalContributed, err = contributions.ContributorSummary(ctx, contributorRef)
		return err
	})
	if err != nil {
		return nil, err
	}
	return history, nil
}

func (s *QueryServiceImpl) GetCreatorSummary(ctx context.Context, creatorRef string) (*campaign.CreatorSummary, error) {
	creatorRef = strings.TrimSpace(creatorRef)
	if creatorRef == "" {
		return nil, campaign.ErrEmptyCreatorRef
	}
	return s.campaignRepo.SummarizeCreator(ctx, creatorRef, s.now())
}

func (s *QueryServiceImpl) GetSettlement(ctx context.Context, campaignID uuid.UUID) (*SettlementView, error) {
	view := &SettlementView{}

	err := s.readTx.ExecuteReadTx(ctx, func(tx pgx.Tx) error {
		settlements := s.settlementRepo.WithTx(tx)

		var err error
		view.Record, err = settlements.GetRecord(ctx, campaignID)
		if err != nil {
			return err
		}
		view.Attempts, err = settlements.ListAttempts(ctx, campaignID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (s *QueryServiceImpl) GetEvents(ctx context.Context, campaignID uuid.UUID, page, perPage int) ([]*audit.Entry, int64, error) {
	offset := (page - 1) * perPage

	entries, err := s.auditRepo.ListByCampaign(ctx, campaignID, perPage, offset)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.auditRepo.CountByCampaign(ctx, campaignID)
	if err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}
