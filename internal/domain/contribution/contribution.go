// Package contribution holds the append-only contribution ledger entries.
package contribution

import (
	"errors"
	"strings"
	"time"

	"github.com/crowdfund-ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount       = errors.New("contribution amount must be positive, below 1e12 and have at most 8 decimal places")
	ErrEmptyContributorRef = errors.New("contributor reference cannot be empty")
	ErrEmptyTransferRef    = errors.New("transfer reference cannot be empty")
)

// Order selects how a campaign's contributions are listed.
type Order string

const (
	// OrderRecorded is insertion order.
	OrderRecorded Order = "recorded"
	// OrderAmount ranks by amount descending, earliest first on ties.
	OrderAmount Order = "amount"
)

// Contribution is a single accepted payment toward a campaign. It is never
// modified after it is recorded.
type Contribution struct {
	ID             uuid.UUID       `json:"id"`
	CampaignID     uuid.UUID       `json:"campaign_id"`
	ContributorRef string          `json:"contributor_ref"`
	Amount         decimal.Decimal `json:"amount"`
	RecordedAt     time.Time       `json:"recorded_at"`
	TransferRef    string          `json:"transfer_ref"`
}

// NewContribution validates and builds a contribution recorded at now.
func NewContribution(campaignID uuid.UUID, contributorRef string, amount decimal.Decimal, transferRef string, now time.Time) (*Contribution, error) {
	if !shared.ValidMoney(amount) {
		return nil, ErrInvalidAmount
	}
	contributorRef = strings.TrimSpace(contributorRef)
	if contributorRef == "" {
		return nil, ErrEmptyContributorRef
	}
	transferRef = strings.TrimSpace(transferRef)
	if transferRef == "" {
		return nil, ErrEmptyTransferRef
	}

	return &Contribution{
		ID:             uuid.New(),
		CampaignID:     campaignID,
		ContributorRef: contributorRef,
		Amount:         amount,
		RecordedAt:     now,
		TransferRef:    transferRef,
	}, nil
}

// ContributorTotal is one contributor's summed contribution to a campaign.
type ContributorTotal struct {
	ContributorRef  string
	Total           decimal.Decimal
	FirstRecordedAt time.Time
}

// Stats aggregates a campaign's ledger.
type Stats struct {
	TotalRaised         decimal.Decimal `json:"total_raised"`
	ContributorCount    int64           `json:"contributor_count"`
	ContributionCount   int64           `json:"contribution_count"`
	AverageContribution decimal.Decimal `json:"average_contribution"`
}

const averagePrecision = 8

// NewStats derives the average from the total and the contribution count.
func NewStats(total decimal.Decimal, contributors, contributions int64) *Stats {
	avg := decimal.Zero
	if contributions > 0 {
		avg = total.DivRound(decimal.NewFromInt(contributions), averagePrecision)
	}
	return &Stats{
		TotalRaised:         total,
		ContributorCount:    contributors,
		ContributionCount:   contributions,
		AverageContribution: avg,
	}
}

// Sum adds up the amounts of the given contributions.
func Sum(contributions []*Contribution) decimal.Decimal {
	total := decimal.Zero
	for _, c := range contributions {
		total = total.Add(c.Amount)
	}
	return total
}
