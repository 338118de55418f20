package contribution

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Repository manages contribution persistence. Writes are expected to run in
// the same transaction as the campaign funding update.
type Repository interface {
	Create(ctx context.Context, c *Contribution) error
	ListByCampaign(ctx context.Context, campaignID uuid.UUID, order Order) ([]*Contribution, error)
	TotalsByContributor(ctx context.Context, campaignID uuid.UUID) ([]ContributorTotal, error)
	CampaignStats(ctx context.Context, campaignID uuid.UUID) (*Stats, error)
	ListByContributor(ctx context.Context, contributorRef string, limit, offset int) ([]*Contribution, error)
	ContributorSummary(ctx context.Context, contributorRef string) (int64, decimal.Decimal, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrDuplicateContribution indicates the transfer was already recorded
type ErrDuplicateContribution struct {
	TransferRef string
}

func (e ErrDuplicateContribution) Error() string {
	return "contribution already recorded for transfer: " + e.TransferRef
}

// Is matches any ErrDuplicateContribution when the target carries no reference.
func (e ErrDuplicateContribution) Is(target error) bool {
	t, ok := target.(ErrDuplicateContribution)
	if !ok {
		return false
	}
	return t.TransferRef == "" || t.TransferRef == e.TransferRef
}
