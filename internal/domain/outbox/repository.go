package outbox

import (
	"context"
	"strconv"
	"time"

	"github.com/crowdfund-ledger/internal/domain/shared"
	"github.com/jackc/pgx/v5"
)

// Repository persists outbox messages. Writers bind it to the transaction of
// the ledger change with WithTx; the poller uses it unbound.
type Repository interface {
	Create(ctx context.Context, message *Message) error

	// GetPending returns PENDING messages in write order.
	GetPending(ctx context.Context, limit int) ([]*Message, error)
	UpdateStatus(ctx context.Context, id int64, status shared.OutboxStatus) error
	IncrementAttempts(ctx context.Context, id int64) error

	// PurgeProcessed deletes at most limit PROCESSED messages whose last
	// delivery happened before cutoff, returning how many were removed.
	PurgeProcessed(ctx context.Context, cutoff time.Time, limit int) (int64, error)

	WithTx(tx pgx.Tx) Repository
}

// ErrMessageNotFound indicates missing outbox message
type ErrMessageNotFound struct {
	ID int64
}

func (e ErrMessageNotFound) Error() string {
	return "outbox message not found: " + strconv.FormatInt(e.ID, 10)
}

// Is matches any ErrMessageNotFound when the target carries no id.
func (e ErrMessageNotFound) Is(target error) bool {
	t, ok := target.(ErrMessageNotFound)
	if !ok {
		return false
	}
	return t.ID == 0 || t.ID == e.ID
}
