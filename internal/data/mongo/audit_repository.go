package mongo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/crowdfund-ledger/internal/domain/audit"
)

const (
	// AuditCollectionName is the name of the audit trail collection in MongoDB
	AuditCollectionName = "campaign_events"
)

// AuditRepository implements the audit.Repository interface for MongoDB
type AuditRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewAuditRepository creates a new MongoDB audit repository
func NewAuditRepository(logger *slog.Logger, db *mongo.Database) *AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// EnsureIndexes creates the unique event index and the per-campaign listing index.
func (r *AuditRepository) EnsureIndexes(ctx context.Context) error {
	collection := r.db.Collection(AuditCollectionName)

	_, err := collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "event_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "campaign_id", Value: 1}, {Key: "committed_at", Value: -1}},
		},
	})
	if err != nil {
		r.logger.Error("Failed to create audit indexes", "error", err)
		return fmt.Errorf("failed to create audit indexes: %w", err)
	}

	return nil
}

// Append stores an entry once. Redelivery of the same event is a no-op.
func (r *AuditRepository) Append(ctx context.Context, entry *audit.Entry) error {
	collection := r.db.Collection(AuditCollectionName)

	filter := bson.M{"event_id": entry.EventID}
	update := bson.M{"$setOnInsert": entry}
	opts := options.Update().SetUpsert(true)

	result, err := collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		r.logger.Error("Failed to append audit entry",
			"event_id", entry.EventID.String(),
			"campaign_id", entry.CampaignID.String(),
			"error", err)
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	if result.MatchedCount > 0 {
		r.logger.Debug("Audit entry already recorded", "event_id", entry.EventID.String())
	}

	return nil
}

// ListByCampaign returns a page of a campaign's events, newest first.
func (r *AuditRepository) ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit, offset int) ([]*audit.Entry, error) {
	collection := r.db.Collection(AuditCollectionName)

	filter := bson.M{"campaign_id": campaignID}
	opts := options.Find().
		SetSort(bson.D{{Key: "committed_at", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to get audit entries",
			"campaign_id", campaignID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to get audit entries: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*audit.Entry
	if err := cursor.All(ctx, &entries); err != nil {
		r.logger.Error("Failed to decode audit entries",
			"campaign_id", campaignID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to decode audit entries: %w", err)
	}

	return entries, nil
}

// CountByCampaign counts the total number of audit entries for a campaign
func (r *AuditRepository) CountByCampaign(ctx context.Context, campaignID uuid.UUID) (int64, error) {
	collection := r.db.Collection(AuditCollectionName)

	count, err := collection.CountDocuments(ctx, bson.M{"campaign_id": campaignID})
	if err != nil {
		r.logger.Error("Failed to count audit entries",
			"campaign_id", campaignID.String(),
			"error", err)
		return 0, fmt.Errorf("failed to count audit entries: %w", err)
	}

	return count, nil
}
