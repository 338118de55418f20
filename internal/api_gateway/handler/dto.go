package handler

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// RegisterCampaignRequest represents a request to register a new campaign
type RegisterCampaignRequest struct {
	CreatorRef  string          `json:"creator_ref" binding:"required"`
	FundingGoal decimal.Decimal `json:"funding_goal"`
	Deadline    time.Time       `json:"deadline"`
}

// CampaignResponse represents a campaign in API responses
type CampaignResponse struct {
	ID             string          `json:"id"`
	CreatorRef     string          `json:"creator_ref"`
	FundingGoal    decimal.Decimal `json:"funding_goal"`
	CurrentFunding decimal.Decimal `json:"current_funding"`
	GoalReached    bool            `json:"goal_reached"`
	Deadline       string          `json:"deadline"`
	Status         string          `json:"status"`
	CreatedAt      string          `json:"created_at"`
	UpdatedAt      string          `json:"updated_at"`
}

// RunningTotalResponse represents the committed running total of a campaign
type RunningTotalResponse struct {
	CampaignID     string          `json:"campaign_id"`
	CurrentFunding decimal.Decimal `json:"current_funding"`
}

// StatsResponse represents aggregate statistics of a campaign
type StatsResponse struct {
	CampaignID          string          `json:"campaign_id"`
	TotalRaised         decimal.Decimal `json:"total_raised"`
	ContributorCount    int64           `json:"contributor_count"`
	ContributionCount   int64           `json:"contribution_count"`
	AverageContribution decimal.Decimal `json:"average_contribution"`
}

// RecordContributionRequest represents a contribution. The contributor comes
// from the X-Contributor-ID header.
type RecordContributionRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	TransferRef string          `json:"transfer_ref" binding:"required"`
}

// ContributionResponse represents a contribution in API responses
type ContributionResponse struct {
	ID             string          `json:"id"`
	CampaignID     string          `json:"campaign_id"`
	ContributorRef string          `json:"contributor_ref"`
	Amount         decimal.Decimal `json:"amount"`
	TransferRef    string          `json:"transfer_ref"`
	RecordedAt     string          `json:"recorded_at"`
}

// RecordContributionResponse carries the recorded contribution and the new total
type RecordContributionResponse struct {
	Contribution   ContributionResponse `json:"contribution"`
	CurrentFunding decimal.Decimal      `json:"current_funding"`
}

// HallOfFameEntry represents one ranked contribution
type HallOfFameEntry struct {
	Rank         int  `json:"rank"`
	TopSupporter bool `json:"top_supporter"`
	ContributionResponse
}

// CreatorSummaryResponse is the total raised across a creator's campaigns
type CreatorSummaryResponse struct {
	CreatorRef    string          `json:"creator_ref"`
	TotalRaised   decimal.Decimal `json:"total_raised"`
	CampaignCount int64           `json:"campaign_count"`
	ActiveCount   int64           `json:"active_campaign_count"`
}

// ContributorHistoryResponse represents a page of a contributor's history
type ContributorHistoryResponse struct {
	ContributorRef    string                 `json:"contributor_ref"`
	TotalContributed  decimal.Decimal        `json:"total_contributed"`
	ContributionCount int64                  `json:"contribution_count"`
	Contributions     []ContributionResponse `json:"contributions"`
}

// SettlementCommandResponse is returned when a settlement request is accepted
type SettlementCommandResponse struct {
	CommandID   string `json:"command_id"`
	CampaignID  string `json:"campaign_id"`
	Action      string `json:"action"`
	OperatorRef string `json:"operator_ref"`
	Status      string `json:"status"`
	RequestedAt string `json:"requested_at"`
}

// SettlementResponse represents a settlement record and its attempts
type SettlementResponse struct {
	CampaignID           string            `json:"campaign_id"`
	Decision             string            `json:"decision"`
	FundingGoal          decimal.Decimal   `json:"funding_goal"`
	FundingSnapshot      decimal.Decimal   `json:"funding_snapshot"`
	DecidedBy            string            `json:"decided_by"`
	DecidedAt            string            `json:"decided_at"`
	CompletedAt          string            `json:"completed_at,omitempty"`
	AllAttemptsSucceeded bool              `json:"all_attempts_succeeded"`
	Attempts             []AttemptResponse `json:"attempts"`
}

// AttemptResponse represents one settlement attempt
type AttemptResponse struct {
	ID           string          `json:"id"`
	RecipientRef string          `json:"recipient_ref"`
	Amount       decimal.Decimal `json:"amount"`
	Kind         string          `json:"kind"`
	Outcome      string          `json:"outcome"`
	TransferRef  string          `json:"transfer_ref,omitempty"`
	AttemptCount int             `json:"attempt_count"`
	LastError    string          `json:"last_error,omitempty"`
	UpdatedAt    string          `json:"updated_at"`
}

// EventResponse represents one audit trail entry
type EventResponse struct {
	EventID     string          `json:"event_id"`
	Kind        string          `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	CommittedAt string          `json:"committed_at"`
	RecordedAt  string          `json:"recorded_at"`
}

// PaginationParams represents pagination parameters for list endpoints
type PaginationParams struct {
	Page    int `form:"page,default=1" binding:"min=1"`
	PerPage int `form:"per_page,default=10" binding:"min=1,max=100"`
}

// ContributionListParams selects the order of a campaign's contributions
type ContributionListParams struct {
	Rank string `form:"rank" binding:"omitempty,oneof=amount recorded"`
}
