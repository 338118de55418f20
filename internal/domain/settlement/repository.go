package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository persists settlement records and attempts.
type Repository interface {
	// CreateRecord fails with ErrSettlementExists if the campaign already has one.
	CreateRecord(ctx context.Context, record *Record) error
	GetRecord(ctx context.Context, campaignID uuid.UUID) (*Record, error)
	FinalizeRecord(ctx context.Context, campaignID uuid.UUID, allSucceeded bool, now time.Time) error

	CreateAttempts(ctx context.Context, attempts []*Attempt) error
	ListAttempts(ctx context.Context, campaignID uuid.UUID) ([]*Attempt, error)

	// IncrementAttemptCount is written before each gateway call.
	IncrementAttemptCount(ctx context.Context, attemptID uuid.UUID, now time.Time) error
	MarkAttemptSucceeded(ctx context.Context, attemptID uuid.UUID, transferRef string, now time.Time) error
	MarkAttemptFailed(ctx context.Context, attemptID uuid.UUID, reason string, now time.Time) error

	WithTx(tx pgx.Tx) Repository
}

// ErrSettlementNotFound indicates the campaign has no settlement record
type ErrSettlementNotFound struct {
	CampaignID uuid.UUID
}

func (e ErrSettlementNotFound) Error() string {
	return "settlement not found for campaign: " + e.CampaignID.String()
}

func (e ErrSettlementNotFound) Is(target error) bool {
	t, ok := target.(ErrSettlementNotFound)
	if !ok {
		return false
	}
	return t.CampaignID == uuid.Nil || e.CampaignID == t.CampaignID
}

// ErrSettlementExists indicates a second record for the same campaign
type ErrSettlementExists struct {
	CampaignID uuid.UUID
}

func (e ErrSettlementExists) Error() string {
	return "settlement already recorded for campaign: " + e.CampaignID.String()
}

func (e ErrSettlementExists) Is(target error) bool {
	t, ok := target.(ErrSettlementExists)
	if !ok {
		return false
	}
	return t.CampaignID == uuid.Nil || e.CampaignID == t.CampaignID
}

// ErrAttemptNotFound indicates a missing attempt row
type ErrAttemptNotFound struct {
	AttemptID uuid.UUID
}

func (e ErrAttemptNotFound) Error() string {
	return "settlement attempt not found: " + e.AttemptID.String()
}
