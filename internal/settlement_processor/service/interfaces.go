package service

import (
	"context"

	"github.com/crowdfund-ledger/internal/domain/settlement"
	"github.com/crowdfund-ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SettlementCoordinator makes the one-shot settlement decision and drives the
// resulting transfers.
type SettlementCoordinator interface {
	BeginSettlement(ctx context.Context, campaignID uuid.UUID, operatorRef string) (*DriveResult, error)
	ResumeSettlement(ctx context.Context, campaignID uuid.UUID, operatorRef string) (*DriveResult, error)
	// RecoverSettlement re-drives a campaign left in SETTLING by a driver that
	// never finished.
	RecoverSettlement(ctx context.Context, campaignID uuid.UUID) (*DriveResult, error)
}

// AttemptExecutor moves value for one attempt, retrying transient gateway
// failures. It returns the transfer handle on success.
type AttemptExecutor interface {
	Execute(ctx context.Context, attempt *settlement.Attempt) (string, error)
}

// EventRecorder writes an event to the outbox inside the caller's transaction
type EventRecorder interface {
	Record(ctx context.Context, tx pgx.Tx, event *shared.Event) error
}

// AttemptDispatcher runs n independent tasks and waits for all of them.
type AttemptDispatcher interface {
	Dispatch(ctx context.Context, n int, task func(ctx context.Context, i int)) error
}
