package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/crowdfund-ledger/internal/domain/contribution"
	"github.com/crowdfund-ledger/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

const uniqueViolationCode = "23505"

// ContributionRepository implements contribution.Repository for PostgreSQL
type ContributionRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewContributionRepository(logger *slog.Logger, db *persistence.PostgresDB) contribution.Repository {
	return &ContributionRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *ContributionRepository) WithTx(tx pgx.Tx) contribution.Repository {
	return &ContributionRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create appends a contribution. A transfer already recorded for the campaign
// yields ErrDuplicateContribution.
func (r *ContributionRepository) Create(ctx context.Context, c *contribution.Contribution) error {
	query := `
		INSERT INTO contributions (id, campaign_id, contributor_ref, amount, recorded_at, transfer_ref)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.querier.Exec(ctx, query,
		c.ID,
		c.CampaignID,
		c.ContributorRef,
		c.Amount,
		c.RecordedAt,
		c.TransferRef,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return contribution.ErrDuplicateContribution{TransferRef: c.TransferRef}
		}
		r.logger.Error("Failed to create contribution",
			"campaign_id", c.CampaignID.String(),
			"contributor_ref", c.ContributorRef,
			"error", err,
		)
		return fmt.Errorf("failed to create contribution: %w", err)
	}

	return nil
}

// ListByCampaign returns every contribution of a campaign in insertion order,
// or ranked by amount with the earliest contribution first on ties.
func (r *ContributionRepository) ListByCampaign(ctx context.Context, campaignID uuid.UUID, order contribution.Order) ([]*contribution.Contribution, error) {
	orderBy := "seq ASC"
	if order == contribution.OrderAmount {
		orderBy = "amount DESC, recorded_at ASC, seq ASC"
	}

	query := `
		SELECT id, campaign_id, contributor_ref, amount, recorded_at, transfer_ref
		FROM contributions
		WHERE campaign_id = $1
		ORDER BY ` + orderBy

	rows, err := r.querier.Query(ctx, query, campaignID)
	if err != nil {
		r.logger.Error("Failed to list campaign contributions", "campaign_id", campaignID.String(), "error", err)
		return nil, fmt.Errorf("failed to list campaign contributions: %w", err)
	}

	return r.collect(rows)
}

// TotalsByContributor sums contributions per contributor, ordered by each
// contributor's first contribution.
func (r *ContributionRepository) TotalsByContributor(ctx context.Context, campaignID uuid.UUID) ([]contribution.ContributorTotal, error) {
	query := `
		SELECT contributor_ref, SUM(amount), MIN(recorded_at)
		FROM contributions
		WHERE campaign_id = $1
		GROUP BY contributor_ref
		ORDER BY MIN(seq) ASC
	`

	rows, err := r.querier.Query(ctx, query, campaignID)
	if err != nil {
		r.logger.Error("Failed to total contributions by contributor", "campaign_id", campaignID.String(), "error", err)
		return nil, fmt.Errorf("failed to total contributions by contributor: %w", err)
	}
	defer rows.Close()

	var totals []contribution.ContributorTotal
	for rows.Next() {
		var t contribution.ContributorTotal
		if err := rows.Scan(&t.ContributorRef, &t.Total, &t.FirstRecordedAt); err != nil {
			r.logger.Error("Failed to scan contributor total", "error", err)
			return nil, fmt.Errorf("failed to scan contributor total: %w", err)
		}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over contributor totals: %w", err)
	}

	return totals, nil
}

// CampaignStats aggregates in a single statement so the figures come from one snapshot.
func (r *ContributionRepository) CampaignStats(ctx context.Context, campaignID uuid.UUID) (*contribution.Stats, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0), COUNT(DISTINCT contributor_ref), COUNT(*)
		FROM contributions
		WHERE campaign_id = $1
	`

	var (
		total         decimal.Decimal
		contributors  int64
		contributions int64
	)
	err := r.querier.QueryRow(ctx, query, campaignID).Scan(&total, &contributors, &contributions)
	if err != nil {
		r.logger.Error("Failed to compute campaign stats", "campaign_id", campaignID.String(), "error", err)
		return nil, fmt.Errorf("failed to compute campaign stats: %w", err)
	}

	return contribution.NewStats(total, contributors, contributions), nil
}

// ListByContributor pages through a contributor's history, newest first.
func (r *ContributionRepository) ListByContributor(ctx context.Context, contributorRef string, limit, offset int) ([]*contribution.Contribution, error) {
	query := `
		SELECT id, campaign_id, contributor_ref, amount, recorded_at, transfer_ref
		FROM contributions
		WHERE contributor_ref = $1
		ORDER BY recorded_at DESC, seq DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.querier.Query(ctx, query, contributorRef, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list contributor history", "contributor_ref", contributorRef, "error", err)
		return nil, fmt.Errorf("failed to list contributor history: %w", err)
	}

	return r.collect(rows)
}

// ContributorSummary returns how many contributions a contributor made and
// their total across all campaigns.
func (r *ContributionRepository) ContributorSummary(ctx context.Context, contributorRef string) (int64, decimal.Decimal, error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(amount), 0)
		FROM contributions
		WHERE contributor_ref = $1
	`

	var (
		count int64
		total decimal.Decimal
	)
	if err := r.querier.QueryRow(ctx, query, contributorRef).Scan(&count, &total); err != nil {
		r.logger.Error("Failed to summarize contributor", "contributor_ref", contributorRef, "error", err)
		return 0, decimal.Zero, fmt.Errorf("failed to summarize contributor: %w", err)
	}

	return count, total, nil
}

func (r *ContributionRepository) collect(rows pgx.Rows) ([]*contribution.Contribution, error) {
	defer rows.Close()

	var out []*contribution.Contribution
	for rows.Next() {
		var c contribution.Contribution
		err := rows.Scan(
			&c.ID,
			&c.CampaignID,
			&c.ContributorRef,
			&c.Amount,
			&c.RecordedAt,
			&c.TransferRef,
		)
		if err != nil {
			r.logger.Error("Failed to scan contribution", "error", err)
			return nil, fmt.Errorf("failed to scan contribution: %w", err)
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over contributions", "error", err)
		return nil, fmt.Errorf("error iterating over contributions: %w", err)
	}

	return out, nil
}
