// Package postgres provides PostgreSQL implementations of the ledger
// repositories. Every repository can be rebound to a transaction with WithTx
// so that funding, ledger rows, settlement state and outbox events commit
// together.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/crowdfund-ledger/internal/domain/campaign"
	"github.com/crowdfund-ledger/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// numericOutOfRangeCode is raised when current_funding would overflow NUMERIC(20,8).
const numericOutOfRangeCode = "22003"

const campaignColumns = `id, creator_ref, funding_goal, current_funding, deadline, status, version, created_at, updated_at`

// CampaignRepository implements the campaign.Repository interface for PostgreSQL
type CampaignRepository struct {
	querier persistence.Querier // Can be the pool or a pgx.Tx
	logger  *slog.Logger
}

// NewCampaignRepository creates a new PostgreSQL campaign repository
func NewCampaignRepository(logger *slog.Logger, db *persistence.PostgresDB) campaign.Repository {
	return &CampaignRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *CampaignRepository) WithTx(tx pgx.Tx) campaign.Repository {
	return &CampaignRepository{
		querier: tx,
		logger:  r.logger,
	}
}

func scanCampaign(row pgx.Row) (*campaign.Campaign, error) {
	var c campaign.Campaign
	err := row.Scan(
		&c.ID,
		&c.CreatorRef,
		&c.FundingGoal,
		&c.CurrentFunding,
		&c.Deadline,
		&c.Status,
		&c.Version,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create stores a newly registered campaign
func (r *CampaignRepository) Create(ctx context.Context, c *campaign.Campaign) error {
	query := `
		INSERT INTO campaigns (id, creator_ref, funding_goal, current_funding, deadline, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.querier.Exec(ctx, query,
		c.ID,
		c.CreatorRef,
		c.FundingGoal,
		c.CurrentFunding,
		c.Deadline,
		c.Status,
		c.Version,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create campaign", "campaign_id", c.ID.String(), "error", err)
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	return nil
}

// GetByID reads the latest committed state of a campaign
func (r *CampaignRepository) GetByID(ctx context.Context, id uuid.UUID) (*campaign.Campaign, error) {
	query := `SELECT ` + campaignColumns + `
		FROM campaigns
		WHERE id = $1
	`

	c, err := scanCampaign(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, campaign.ErrCampaignNotFound{CampaignID: id}
		}
		r.logger.Error("Failed to get campaign", "campaign_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	return c, nil
}

// LockForUpdate obtains a row lock on the campaign. Must run inside a transaction.
func (r *CampaignRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*campaign.Campaign, error) {
	query := `SELECT ` + campaignColumns + `
		FROM campaigns
		WHERE id = $1
		FOR UPDATE
	`

	c, err := scanCampaign(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, campaign.ErrCampaignNotFound{CampaignID: id}
		}
		r.logger.Error("Failed to lock campaign for update", "campaign_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to lock campaign for update: %w", err)
	}

	return c, nil
}

// AddFunding increments current_funding. The status and deadline guard in the
// WHERE clause rejects the update if the campaign stopped accepting
// contributions after it was read.
func (r *CampaignRepository) AddFunding(ctx context.Context, id uuid.UUID, amount decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	query := `
		UPDATE campaigns
		SET current_funding = current_funding + $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND status = $4 AND deadline > $2
		RETURNING current_funding
	`

	var total decimal.Decimal
	err := r.querier.QueryRow(ctx, query, amount, now, id, campaign.StatusOpen).Scan(&total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, campaign.ErrCampaignNotOpen
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == numericOutOfRangeCode {
			return decimal.Zero, campaign.ErrFundingLimit
		}
		r.logger.Error("Failed to add campaign funding", "campaign_id", id.String(), "error", err)
		return decimal.Zero, fmt.Errorf("failed to add campaign funding: %w", err)
	}

	return total, nil
}

// SummarizeCreator is the "total raised" projection for one creator.
func (r *CampaignRepository) SummarizeCreator(ctx context.Context, creatorRef string, now time.Time) (*campaign.CreatorSummary, error) {
	query := `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = $2 AND deadline > $3),
			COALESCE(SUM(current_funding), 0)
		FROM campaigns
		WHERE creator_ref = $1
	`

	summary := &campaign.CreatorSummary{CreatorRef: creatorRef}
	err := r.querier.QueryRow(ctx, query, creatorRef, campaign.StatusOpen, now).
		Scan(&summary.CampaignCount, &summary.ActiveCount, &summary.TotalRaised)
	if err != nil {
		r.logger.Error("Failed to summarize creator", "creator_ref", creatorRef, "error", err)
		return nil, fmt.Errorf("failed to summarize creator: %w", err)
	}

	return summary, nil
}

// BeginSettling is the Closed to Settling compare-and-swap. Open campaigns
// qualify once their deadline has passed.
func (r *CampaignRepository) BeginSettling(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	query := `
		UPDATE campaigns
		SET status = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND status = ANY($4) AND deadline <= $2
	`

	from := []string{string(campaign.StatusOpen), string(campaign.StatusClosed)}
	result, err := r.querier.Exec(ctx, query, campaign.StatusSettling, now, id, from)
	if err != nil {
		r.logger.Error("Failed to begin settling campaign", "campaign_id", id.String(), "error", err)
		return false, fmt.Errorf("failed to begin settling campaign: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

// TransitionStatus moves the campaign to status to if it is currently in one
// of from. Every from status must be allowed to move to to.
func (r *CampaignRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from []campaign.Status, to campaign.Status, now time.Time) (bool, error) {
	for _, f := range from {
		if !campaign.CanTransition(f, to) {
			return false, fmt.Errorf("%w: %s to %s", campaign.ErrInvalidTransition, f, to)
		}
	}

	query := `
		UPDATE campaigns
		SET status = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND status = ANY($4)
	`

	result, err := r.querier.Exec(ctx, query, to, now, id, statusStrings(from))
	if err != nil {
		r.logger.Error("Failed to transition campaign status",
			"campaign_id", id.String(),
			"to", string(to),
			"error", err,
		)
		return false, fmt.Errorf("failed to transition campaign status: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

// CloseExpired persists the Open to Closed transition for campaigns whose
// deadline has passed. Rows locked by a concurrent contribution are skipped
// and picked up on the next sweep.
func (r *CampaignRepository) CloseExpired(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	query := `
		UPDATE campaigns
		SET status = $1, version = version + 1, updated_at = $2
		WHERE id IN (
			SELECT id FROM campaigns
			WHERE status = $3 AND deadline <= $2
			ORDER BY deadline ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id
	`

	rows, err := r.querier.Query(ctx, query, campaign.StatusClosed, now, campaign.StatusOpen, limit)
	if err != nil {
		r.logger.Error("Failed to close expired campaigns", "error", err)
		return nil, fmt.Errorf("failed to close expired campaigns: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			r.logger.Error("Failed to scan closed campaign id", "error", err)
			return nil, fmt.Errorf("failed to scan closed campaign id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over closed campaigns: %w", err)
	}

	return ids, nil
}

// ListByStatus returns up to limit campaigns in status, oldest update first.
func (r *CampaignRepository) ListByStatus(ctx context.Context, status campaign.Status, updatedBefore time.Time, limit int) ([]*campaign.Campaign, error) {
	query := `SELECT ` + campaignColumns + `
		FROM campaigns
		WHERE status = $1 AND updated_at <= $2
		ORDER BY updated_at ASC
		LIMIT $3
	`

	rows, err := r.querier.Query(ctx, query, status, updatedBefore, limit)
	if err != nil {
		r.logger.Error("Failed to list campaigns by status", "status", string(status), "error", err)
		return nil, fmt.Errorf("failed to list campaigns by status: %w", err)
	}
	defer rows.Close()

	var campaigns []*campaign.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			r.logger.Error("Failed to scan campaign", "error", err)
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over campaigns: %w", err)
	}

	return campaigns, nil
}

func statusStrings(statuses []campaign.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
