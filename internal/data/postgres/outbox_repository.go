package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/crowdfund-ledger/internal/domain/outbox"
	"github.com/crowdfund-ledger/internal/domain/shared"
	"github.com/crowdfund-ledger/internal/platform/persistence"
	"github.com/jackc/pgx/v5"
)

const (
	insertOutboxQuery = `
		INSERT INTO outbox (event_id, campaign_id, event_kind, payload, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	pendingOutboxQuery = `
		SELECT id, event_id, campaign_id, event_kind, payload, status, attempts, created_at, last_attempt_at
		FROM outbox WHERE status = $1 ORDER BY id ASC LIMIT $2`

	updateOutboxStatusQuery = `UPDATE outbox SET status = $1, last_attempt_at = $2 WHERE id = $3`

	incrementOutboxAttemptsQuery = `UPDATE outbox SET attempts = attempts + 1, last_attempt_at = $1 WHERE id = $2`

	// Deleting through a bounded id list keeps each purge short.
	purgeOutboxQuery = `
		DELETE FROM outbox WHERE id IN (
			SELECT id FROM outbox WHERE status = $1 AND last_attempt_at < $2 ORDER BY id LIMIT $3
		)`
)

// OutboxRepository implements the outbox.Repository interface for PostgreSQL
type OutboxRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
	now     func() time.Time
}

// NewOutboxRepository creates a new PostgreSQL outbox repository
func NewOutboxRepository(logger *slog.Logger, db *persistence.PostgresDB) outbox.Repository {
	return &OutboxRepository{
		querier: db.Pool(),
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithTx binds the repository to tx so an event commits with the change it describes.
func (r *OutboxRepository) WithTx(tx pgx.Tx) outbox.Repository {
	return &OutboxRepository{querier: tx, logger: r.logger, now: r.now}
}

func (r *OutboxRepository) Create(ctx context.Context, message *outbox.Message) error {
	err := r.querier.QueryRow(ctx, insertOutboxQuery,
		message.EventID,
		message.CampaignID,
		message.EventKind,
		message.Payload,
		message.Status,
		message.Attempts,
		message.CreatedAt,
	).Scan(&message.ID)
	if err != nil {
		r.logger.Error("Failed to create outbox message",
			"event_id", message.EventID.String(),
			"campaign_id", message.CampaignID.String(),
			"event_kind", string(message.EventKind),
			"error", err,
		)
		return fmt.Errorf("failed to create outbox message: %w", err)
	}
	return nil
}

func (r *OutboxRepository) GetPending(ctx context.Context, limit int) ([]*outbox.Message, error) {
	rows, err := r.querier.Query(ctx, pendingOutboxQuery, shared.OutboxStatusPending, limit)
	if err != nil {
		r.logger.Error("Failed to get pending outbox messages", "error", err)
		return nil, fmt.Errorf("failed to get pending outbox messages: %w", err)
	}

	messages, err := pgx.CollectRows(rows, scanOutboxMessage)
	if err != nil {
		r.logger.Error("Failed to read pending outbox messages", "error", err)
		return nil, fmt.Errorf("failed to read pending outbox messages: %w", err)
	}
	return messages, nil
}

func (r *OutboxRepository) UpdateStatus(ctx context.Context, id int64, status shared.OutboxStatus) error {
	if err := r.execOne(ctx, id, updateOutboxStatusQuery, status, r.now(), id); err != nil {
		r.logger.Error("Failed to update outbox message status", "id", id, "status", string(status), "error", err)
		return fmt.Errorf("failed to update outbox message status: %w", err)
	}
	return nil
}

func (r *OutboxRepository) IncrementAttempts(ctx context.Context, id int64) error {
	if err := r.execOne(ctx, id, incrementOutboxAttemptsQuery, r.now(), id); err != nil {
		r.logger.Error("Failed to increment outbox message attempts", "id", id, "error", err)
		return fmt.Errorf("failed to increment outbox message attempts: %w", err)
	}
	return nil
}

func (r *OutboxRepository) PurgeProcessed(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	tag, err := r.querier.Exec(ctx, purgeOutboxQuery, shared.OutboxStatusProcessed, cutoff, limit)
	if err != nil {
		r.logger.Error("Failed to purge processed outbox messages", "cutoff", cutoff, "error", err)
		return 0, fmt.Errorf("failed to purge processed outbox messages: %w", err)
	}
	return tag.RowsAffected(), nil
}

// execOne runs an update that must touch exactly the row with id.
func (r *OutboxRepository) execOne(ctx context.Context, id int64, query string, args ...any) error {
	tag, err := r.querier.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return outbox.ErrMessageNotFound{ID: id}
	}
	return nil
}

func scanOutboxMessage(row pgx.CollectableRow) (*outbox.Message, error) {
	var m outbox.Message
	err := row.Scan(
		&m.ID,
		&m.EventID,
		&m.CampaignID,
		&m.EventKind,
		&m.Payload,
		&m.Status,
		&m.Attempts,
		&m.CreatedAt,
		&m.LastAttemptAt,
	)
	return &m, err
}
