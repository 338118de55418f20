package service

import (
	"context"
	"time"

	"github.com/crowdfund-ledger/internal/domain/audit"
	"github.com/crowdfund-ledger/internal/domain/campaign"
	"github.com/crowdfund-ledger/internal/domain/contribution"
	"github.com/crowdfund-ledger/internal/domain/settlement"
	"github.com/crowdfund-ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CampaignService defines the interface for campaign registration and lookup
type CampaignService interface {
	// RegisterCampaign creates an Open campaign with no funding
	RegisterCampaign(ctx context.Context, creatorRef string, fundingGoal decimal.Decimal, deadline time.Time) (*campaign.Campaign, error)

	// GetCampaign returns the campaign with its effective status
	// Returns ErrCampaignNotFound if the campaign doesn't exist
	GetCampaign(ctx context.Context, id uuid.UUID) (*campaign.Campaign, error)
}

// ContributionService defines the ledger write path
type ContributionService interface {
	// RecordContribution inserts the contribution and increments the campaign
	// total in one transaction. Returns the new running total.
	RecordContribution(ctx context.Context, campaignID uuid.UUID, contributorRef string, amount decimal.Decimal, transferRef string) (*contribution.Contribution, decimal.Decimal, error)
}

// QueryService defines the read-only projections over the ledger
type QueryService interface {
	GetRunningTotal(ctx context.Context, campaignID uuid.UUID) (decimal.Decimal, error)
	GetContributions(ctx context.Context, campaignID uuid.UUID, order contribution.Order) ([]*contribution.Contribution, error)
	GetHallOfFame(ctx context.Context, campaignID uuid.UUID) ([]RankedContribution, error)
	GetStats(ctx context.Context, campaignID uuid.UUID) (*contribution.Stats, error)

	// GetContributorHistory returns a page of the contributor's contributions,
	// newest first, plus totals across all campaigns
	GetContributorHistory(ctx context.Context, contributorRef string, page, perPage int) (*ContributorHistory, error)

	// GetCreatorSummary totals current funding across every campaign of the
	// creator. Returns ErrEmptyCreatorRef for a blank reference
	GetCreatorSummary(ctx context.Context, creatorRef string) (*campaign.CreatorSummary, error)

	// GetSettlement returns ErrSettlementNotFound before settlement begins
	GetSettlement(ctx context.Context, campaignID uuid.UUID) (*SettlementView, error)

	// GetEvents returns a page of the campaign's audit trail and the total count
	GetEvents(ctx context.Context, campaignID uuid.UUID, page, perPage int) ([]*audit.Entry, int64, error)
}

// SettlementCommandService validates a settlement request and hands it to the
// settlement processor
type SettlementCommandService interface {
	RequestSettlement(ctx context.Context, campaignID uuid.UUID, action shared.CommandAction, operatorRef, correlationID string) (*shared.SettlementCommand, error)
}

// RankedContribution is one entry of a campaign's hall of fame.
type RankedContribution struct {
	Rank         int
	TopSupporter bool
	Contribution *contribution.Contribution
}

// ContributorHistory is one page of a contributor's contributions.
type ContributorHistory struct {
	ContributorRef    string
	Contributions     []*contribution.Contribution
	ContributionCount int64
	TotalContributed  decimal.Decimal
}

// SettlementView is a settlement record with its attempts.
type SettlementView struct {
	Record   *settlement.Record
	Attempts []*settlement.Attempt
}
