package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/crowdfund-ledger/internal/domain/settlement"
	"github.com/crowdfund-ledger/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SettlementRepository implements settlement.Repository for PostgreSQL
type SettlementRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewSettlementRepository(logger *slog.Logger, db *persistence.PostgresDB) settlement.Repository {
	return &SettlementRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *SettlementRepository) WithTx(tx pgx.Tx) settlement.Repository {
	return &SettlementRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// CreateRecord persists the settlement decision. The primary key on
// campaign_id keeps it one per campaign.
func (r *SettlementRepository) CreateRecord(ctx context.Context, record *settlement.Record) error {
	query := `
		INSERT INTO settlement_records (campaign_id, decision, funding_goal, funding_snapshot, decided_by, decided_at, completed_at, all_attempts_succeeded)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.querier.Exec(ctx, query,
		record.CampaignID,
		record.Decision,
		record.FundingGoal,
		record.FundingSnapshot,
		record.DecidedBy,
		record.DecidedAt,
		record.CompletedAt,
		record.AllAttemptsSucceeded,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return settlement.ErrSettlementExists{CampaignID: record.CampaignID}
		}
		r.logger.Error("Failed to create settlement record", "campaign_id", record.CampaignID.String(), "error", err)
		return fmt.Errorf("failed to create settlement record: %w", err)
	}

	return nil
}

func (r *SettlementRepository) GetRecord(ctx context.Context, campaignID uuid.UUID) (*settlement.Record, error) {
	query := `
		SELECT campaign_id, decision, funding_goal, funding_snapshot, decided_by, decided_at, completed_at, all_attempts_succeeded
		FROM settlement_records
		WHERE campaign_id = $1
	`

	var record settlement.Record
	err := r.querier.QueryRow(ctx, query, campaignID).Scan(
		&record.CampaignID,
		&record.Decision,
		&record.FundingGoal,
		&record.FundingSnapshot,
		&record.DecidedBy,
		&record.DecidedAt,
		&record.CompletedAt,
		&record.AllAttemptsSucceeded,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, settlement.ErrSettlementNotFound{CampaignID: campaignID}
		}
		r.logger.Error("Failed to get settlement record", "campaign_id", campaignID.String(), "error", err)
		return nil, fmt.Errorf("failed to get settlement record: %w", err)
	}

	return &record, nil
}

// FinalizeRecord stamps completion once every attempt is terminal. A stalled
// settlement that is later resumed is finalized again.
func (r *SettlementRepository) FinalizeRecord(ctx context.Context, campaignID uuid.UUID, allSucceeded bool, now time.Time) error {
	query := `
		UPDATE settlement_records
		SET completed_at = $1, all_attempts_succeeded = $2
		WHERE campaign_id = $3
	`

	result, err := r.querier.Exec(ctx, query, now, allSucceeded, campaignID)
	if err != nil {
		r.logger.Error("Failed to finalize settlement record", "campaign_id", campaignID.String(), "error", err)
		return fmt.Errorf("failed to finalize settlement record: %w", err)
	}
	if result.RowsAffected() == 0 {
		return settlement.ErrSettlementNotFound{CampaignID: campaignID}
	}

	return nil
}

// CreateAttempts inserts the planned attempts. Callers run it in the same
// transaction as CreateRecord.
func (r *SettlementRepository) CreateAttempts(ctx context.Context, attempts []*settlement.Attempt) error {
	query := `
		INSERT INTO settlement_attempts (id, campaign_id, recipient_ref, amount, kind, outcome, transfer_ref, attempt_count, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	for _, a := range attempts {
		_, err := r.querier.Exec(ctx, query,
			a.ID,
			a.CampaignID,
			a.RecipientRef,
			a.Amount,
			a.Kind,
			a.Outcome,
			a.TransferRef,
			a.AttemptCount,
			a.LastError,
			a.CreatedAt,
			a.UpdatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to create settlement attempt",
				"campaign_id", a.CampaignID.String(),
				"recipient_ref", a.RecipientRef,
				"error", err,
			)
			return fmt.Errorf("failed to create settlement attempt: %w", err)
		}
	}

	return nil
}

func (r *SettlementRepository) ListAttempts(ctx context.Context, campaignID uuid.UUID) ([]*settlement.Attempt, error) {
	query := `
		SELECT id, campaign_id, recipient_ref, amount, kind, outcome, transfer_ref, attempt_count, last_error, created_at, updated_at
		FROM settlement_attempts
		WHERE campaign_id = $1
		ORDER BY created_at ASC, recipient_ref ASC
	`

	rows, err := r.querier.Query(ctx, query, campaignID)
	if err != nil {
		r.logger.Error("Failed to list settlement attempts", "campaign_id", campaignID.String(), "error", err)
		return nil, fmt.Errorf("failed to list settlement attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*settlement.Attempt
	for rows.Next() {
		var a settlement.Attempt
		err := rows.Scan(
			&a.ID,
			&a.CampaignID,
			&a.RecipientRef,
			&a.Amount,
			&a.Kind,
			&a.Outcome,
			&a.TransferRef,
			&a.AttemptCount,
			&a.LastError,
			&a.CreatedAt,
			&a.UpdatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to scan settlement attempt", "error", err)
			return nil, fmt.Errorf("failed to scan settlement attempt: %w", err)
		}
		attempts = append(attempts, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over settlement attempts: %w", err)
	}

	return attempts, nil
}

func (r *SettlementRepository) IncrementAttemptCount(ctx context.Context, attemptID uuid.UUID, now time.Time) error {
	query := `
		UPDATE settlement_attempts
		SET attempt_count = attempt_count + 1, updated_at = $1
		WHERE id = $2 AND outcome <> $3
	`

	return r.updateAttempt(ctx, "increment settlement attempt count", attemptID, query, now, attemptID, settlement.OutcomeSucceeded)
}

// MarkAttemptSucceeded is terminal; a succeeded attempt is never touched again.
func (r *SettlementRepository) MarkAttemptSucceeded(ctx context.Context, attemptID uuid.UUID, transferRef string, now time.Time) error {
	query := `
		UPDATE settlement_attempts
		SET outcome = $1, transfer_ref = $2, last_error = '', updated_at = $3
		WHERE id = $4 AND outcome <> $1
	`

	return r.updateAttempt(ctx, "mark settlement attempt succeeded", attemptID, query, settlement.OutcomeSucceeded, transferRef, now, attemptID)
}

func (r *SettlementRepository) MarkAttemptFailed(ctx context.Context, attemptID uuid.UUID, reason string, now time.Time) error {
	query := `
		UPDATE settlement_attempts
		SET outcome = $1, last_error = $2, updated_at = $3
		WHERE id = $4 AND outcome <> $5
	`

	return r.updateAttempt(ctx, "mark settlement attempt failed", attemptID, query, settlement.OutcomeFailed, reason, now, attemptID, settlement.OutcomeSucceeded)
}

func (r *SettlementRepository) updateAttempt(ctx context.Context, action string, attemptID uuid.UUID, query string, args ...interface{}) error {
	result, err := r.querier.Exec(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to "+action, "attempt_id", attemptID.String(), "error", err)
		return fmt.Errorf("failed to %s: %w", action, err)
	}
	if result.RowsAffected() == 0 {
		return settlement.ErrAttemptNotFound{AttemptID: attemptID}
	}
	return nil
}
