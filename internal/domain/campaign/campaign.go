// Package campaign models a fundraising campaign and its lifecycle.
package campaign

import (
	"errors"
	"strings"
	"time"

	"github.com/crowdfund-ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a campaign.
type Status string

const (
	StatusOpen              Status = "OPEN"
	StatusClosed            Status = "CLOSED"
	StatusSettling          Status = "SETTLING"
	StatusSettled           Status = "SETTLED"
	StatusSettlementStalled Status = "SETTLEMENT_STALLED"
)

var (
	ErrEmptyCreatorRef     = errors.New("creator reference cannot be empty")
	ErrInvalidFundingGoal  = errors.New("funding goal must be positive, below 1e12 and have at most 8 decimal places")
	ErrDeadlineNotInFuture = errors.New("deadline must be in the future")

	ErrCampaignNotOpen   = errors.New("campaign is not open for contributions")
	ErrNotClosed         = errors.New("campaign has not closed yet")
	ErrAlreadySettling   = errors.New("campaign settlement has already begun")
	ErrNotStalled        = errors.New("campaign settlement is not stalled")
	ErrInvalidTransition = errors.New("invalid campaign status transition")
	ErrFundingLimit      = errors.New("campaign funding would exceed the ledger limit")
)

// transitions lists the forward moves allowed from each status.
var transitions = map[Status][]Status{
	StatusOpen:              {StatusClosed, StatusSettling},
	StatusClosed:            {StatusSettling},
	StatusSettling:          {StatusSettled, StatusSettlementStalled},
	StatusSettlementStalled: {StatusSettled},
}

// CanTransition reports whether the state machine allows moving from one
// status to another. Open to Settling is only legal once the deadline has
// passed, which callers check with EffectiveStatus.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ParseStatus converts a stored or user supplied value into a Status.
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	switch s {
	case StatusOpen, StatusClosed, StatusSettling, StatusSettled, StatusSettlementStalled:
		return s, true
	}
	return "", false
}

// Campaign is a fundraising effort with a goal and a deadline.
// CurrentFunding and Status are only mutated by the ledger engine.
type Campaign struct {
	ID             uuid.UUID       `json:"id"`
	CreatorRef     string          `json:"creator_ref"`
	FundingGoal    decimal.Decimal `json:"funding_goal"`
	CurrentFunding decimal.Decimal `json:"current_funding"`
	Deadline       time.Time       `json:"deadline"`
	Status         Status          `json:"status"`
	Version        int             `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// NewCampaign registers a campaign that starts Open with no funding.
func NewCampaign(creatorRef string, fundingGoal decimal.Decimal, deadline, now time.Time) (*Campaign, error) {
	if strings.TrimSpace(creatorRef) == "" {
		return nil, ErrEmptyCreatorRef
	}
	if !shared.ValidMoney(fundingGoal) {
		return nil, ErrInvalidFundingGoal
	}
	if !deadline.After(now) {
		return nil, ErrDeadlineNotInFuture
	}

	return &Campaign{
		ID:             uuid.New(),
		CreatorRef:     strings.TrimSpace(creatorRef),
		FundingGoal:    fundingGoal,
		CurrentFunding: decimal.Zero,
		Deadline:       deadline.UTC(),
		Status:         StatusOpen,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// DeadlinePassed reports whether now is at or after the deadline.
func (c *Campaign) DeadlinePassed(now time.Time) bool {
	return !now.Before(c.Deadline)
}

// EffectiveStatus is the status callers should observe. An Open campaign whose
// deadline has passed is Closed even before the sweeper persists it.
func (c *Campaign) EffectiveStatus(now time.Time) Status {
	if c.Status == StatusOpen && c.DeadlinePassed(now) {
		return StatusClosed
	}
	return c.Status
}

// AcceptsContributions returns ErrCampaignNotOpen unless the campaign is Open
// and its deadline is still ahead.
func (c *Campaign) AcceptsContributions(now time.Time) error {
	if c.EffectiveStatus(now) != StatusOpen {
		return ErrCampaignNotOpen
	}
	return nil
}

// CanBeginSettlement checks the Closed to Settling precondition.
func (c *Campaign) CanBeginSettlement(now time.Time) error {
	switch c.EffectiveStatus(now) {
	case StatusClosed:
		return nil
	case StatusOpen:
		return ErrNotClosed
	default:
		return ErrAlreadySettling
	}
}

// CanResumeSettlement checks that settlement is stalled.
func (c *Campaign) CanResumeSettlement() error {
	if c.Status != StatusSettlementStalled {
		return ErrNotStalled
	}
	return nil
}

// GoalReached reports whether current funding meets or exceeds the goal.
func (c *Campaign) GoalReached() bool {
	return c.CurrentFunding.GreaterThanOrEqual(c.FundingGoal)
}

// CreatorSummary totals what a creator has raised across all of their
// campaigns. ActiveCount only counts campaigns still taking contributions.
type CreatorSummary struct {
	CreatorRef    string
	CampaignCount int64
	ActiveCount   int64
	TotalRaised   decimal.Decimal
}
