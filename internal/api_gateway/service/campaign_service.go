package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/crowdfund-ledger/internal/domain/campaign"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CampaignServiceImpl implements the CampaignService interface
type CampaignServiceImpl struct {
	campaignRepo campaign.Repository
	logger       *slog.Logger
	now          func() time.Time
}

// NewCampaignService creates a new campaign service
func NewCampaignService(logger *slog.Logger, campaignRepo campaign.Repository) CampaignService {
	return &CampaignServiceImpl{
		campaignRepo: campaignRepo,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *CampaignServiceImpl) RegisterCampaign(ctx context.Context, creatorRef string, fundingGoal decimal.Decimal, deadline time.Time) (*campaign.Campaign, error) {
	c, err := campaign.NewCampaign(creatorRef, fundingGoal, deadline, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.campaignRepo.Create(ctx, c); err != nil {
		return nil, err
	}

	s.logger.Info("Campaign registered",
		"campaign_id", c.ID.String(),
		"creator_ref", c.CreatorRef,
		"funding_goal", c.FundingGoal.String(),
		"deadline", c.Deadline,
	)
	return c, nil
}

// GetCampaign reports an Open campaign past its deadline as Closed even
// before the sweeper has persisted the transition.
func (s *CampaignServiceImpl) GetCampaign(ctx context.Context, id uuid.UUID) (*campaign.Campaign, error) {
	c, err := s.campaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Status = c.EffectiveStatus(s.now())
	return c, nil
}
