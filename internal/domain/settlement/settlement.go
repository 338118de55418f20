// Package settlement models the one-shot settlement decision of a campaign and
// the per-recipient transfers that carry it out.
package settlement

import (
	"errors"
	"fmt"
	"time"

	"github.com/crowdfund-ledger/internal/domain/contribution"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind is both the campaign-level decision and the kind of each attempt.
type Kind string

const (
	KindPayout Kind = "PAYOUT"
	KindRefund Kind = "REFUND"
)

// Outcome is the state of a single attempt.
type Outcome string

const (
	OutcomePending   Outcome = "PENDING"
	OutcomeSucceeded Outcome = "SUCCEEDED"
	OutcomeFailed    Outcome = "FAILED"
)

var (
	ErrEmptyCreatorRef = errors.New("payout recipient cannot be empty")
	ErrLedgerMismatch  = errors.New("refund shares do not add up to the funding snapshot")
)

// Record is the durable settlement decision for a campaign. A campaign has at
// most one record.
type Record struct {
	CampaignID           uuid.UUID       `json:"campaign_id"`
	Decision             Kind            `json:"decision"`
	FundingGoal          decimal.Decimal `json:"funding_goal"`
	FundingSnapshot      decimal.Decimal `json:"funding_snapshot"`
	DecidedBy            string          `json:"decided_by"`
	DecidedAt            time.Time       `json:"decided_at"`
	CompletedAt          *time.Time      `json:"completed_at,omitempty"`
	AllAttemptsSucceeded bool            `json:"all_attempts_succeeded"`
}

// Decide returns Payout when funding meets the goal, Refund otherwise.
func Decide(currentFunding, fundingGoal decimal.Decimal) Kind {
	if currentFunding.GreaterThanOrEqual(fundingGoal) {
		return KindPayout
	}
	return KindRefund
}

// NewRecord snapshots the funding figures and fixes the decision.
func NewRecord(campaignID uuid.UUID, fundingGoal, currentFunding decimal.Decimal, decidedBy string, now time.Time) *Record {
	return &Record{
		CampaignID:      campaignID,
		Decision:        Decide(currentFunding, fundingGoal),
		FundingGoal:     fundingGoal,
		FundingSnapshot: currentFunding,
		DecidedBy:       decidedBy,
		DecidedAt:       now,
	}
}

// Attempt is one recipient-level money movement.
type Attempt struct {
	ID           uuid.UUID       `json:"id"`
	CampaignID   uuid.UUID       `json:"campaign_id"`
	RecipientRef string          `json:"recipient_ref"`
	Amount       decimal.Decimal `json:"amount"`
	Kind         Kind            `json:"kind"`
	Outcome      Outcome         `json:"outcome"`
	TransferRef  string          `json:"transfer_ref,omitempty"`
	AttemptCount int             `json:"attempt_count"`
	LastError    string          `json:"last_error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func newAttempt(campaignID uuid.UUID, recipient string, amount decimal.Decimal, kind Kind, now time.Time) *Attempt {
	return &Attempt{
		ID:           uuid.New(),
		CampaignID:   campaignID,
		RecipientRef: recipient,
		Amount:       amount,
		Kind:         kind,
		Outcome:      OutcomePending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// IdempotencyKey is sent with every transfer for this attempt. It never
// changes, so a repeated send cannot move value twice.
func (a *Attempt) IdempotencyKey() string {
	return a.ID.String()
}

func (a *Attempt) Succeeded() bool {
	return a.Outcome == OutcomeSucceeded
}

// Plan materializes the attempts for a record: a single payout to the creator,
// or one refund per contributor carrying that contributor's total.
func Plan(record *Record, creatorRef string, totals []contribution.ContributorTotal, now time.Time) ([]*Attempt, error) {
	if record.Decision == KindPayout {
		if creatorRef == "" {
			return nil, ErrEmptyCreatorRef
		}
		return []*Attempt{newAttempt(record.CampaignID, creatorRef, record.FundingSnapshot, KindPayout, now)}, nil
	}

	attempts := make([]*Attempt, 0, len(totals))
	for _, t := range totals {
		if !t.Total.IsPositive() {
			continue
		}
		attempts = append(attempts, newAttempt(record.CampaignID, t.ContributorRef, t.Total, KindRefund, now))
	}
	if sum := TotalAmount(attempts); !sum.Equal(record.FundingSnapshot) {
		return nil, fmt.Errorf("%w: shares %s, snapshot %s", ErrLedgerMismatch, sum, record.FundingSnapshot)
	}
	return attempts, nil
}

// Unsettled returns the attempts that have not succeeded yet.
func Unsettled(attempts []*Attempt) []*Attempt {
	var out []*Attempt
	for _, a := range attempts {
		if !a.Succeeded() {
			out = append(out, a)
		}
	}
	return out
}

// AllSucceeded is true for an empty set.
func AllSucceeded(attempts []*Attempt) bool {
	for _, a := range attempts {
		if !a.Succeeded() {
			return false
		}
	}
	return true
}

// TotalAmount sums the amounts the attempts move.
func TotalAmount(attempts []*Attempt) decimal.Decimal {
	total := decimal.Zero
	for _, a := range attempts {
		total = total.Add(a.Amount)
	}
	return total
}
