package campaign

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Repository defines campaign persistence operations
type Repository interface {
	Create(ctx context.Context, c *Campaign) error
	GetByID(ctx context.Context, id uuid.UUID) (*Campaign, error)

	// LockForUpdate takes a row lock so funding updates and status changes serialize
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Campaign, error)

	// AddFunding increments current funding while the campaign is Open and
	// before its deadline. It returns ErrCampaignNotOpen when the guard fails.
	AddFunding(ctx context.Context, id uuid.UUID, amount decimal.Decimal, now time.Time) (decimal.Decimal, error)

	// BeginSettling moves a campaign whose deadline has passed from Open or
	// Closed to Settling. It reports false when another caller already won.
	BeginSettling(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)

	// TransitionStatus is a compare-and-swap on status.
	TransitionStatus(ctx context.Context, id uuid.UUID, from []Status, to Status, now time.Time) (bool, error)

	// CloseExpired marks Open campaigns past their deadline as Closed and
	// returns their ids.
	CloseExpired(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)

	// ListByStatus returns campaigns in status last updated before the given time.
	ListByStatus(ctx context.Context, status Status, updatedBefore time.Time, limit int) ([]*Campaign, error)

	// SummarizeCreator sums current funding over every campaign of creatorRef.
	// A creator with no campaigns gets a zero summary.
	SummarizeCreator(ctx context.Context, creatorRef string, now time.Time) (*CreatorSummary, error)

	WithTx(tx pgx.Tx) Repository
}

// ErrCampaignNotFound indicates missing campaign
type ErrCampaignNotFound struct {
	CampaignID uuid.UUID
}

func (e ErrCampaignNotFound) Error() string {
	return "campaign not found: " + e.CampaignID.String()
}

// Is matches any ErrCampaignNotFound when the target carries no id.
func (e ErrCampaignNotFound) Is(target error) bool {
	t, ok := target.(ErrCampaignNotFound)
	if !ok {
		return false
	}
	if t.CampaignID == uuid.Nil {
		return true
	}
	return e.CampaignID == t.CampaignID
}
