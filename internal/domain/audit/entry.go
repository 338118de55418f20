// Package audit keeps the append-only trail of delivered ledger events.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/crowdfund-ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// Entry is one delivered event as stored in the audit trail.
type Entry struct {
	EventID     uuid.UUID        `json:"event_id" bson:"event_id"`
	CampaignID  uuid.UUID        `json:"campaign_id" bson:"campaign_id"`
	Kind        shared.EventKind `json:"kind" bson:"kind"`
	Payload     json.RawMessage  `json:"payload" bson:"payload"`
	CommittedAt time.Time        `json:"committed_at" bson:"committed_at"`
	RecordedAt  time.Time        `json:"recorded_at" bson:"recorded_at"`
}

// NewEntry copies an event into an audit entry.
func NewEntry(event *shared.Event, recordedAt time.Time) *Entry {
	return &Entry{
		EventID:     event.EventID,
		CampaignID:  event.CampaignID,
		Kind:        event.Kind,
		Payload:     event.Payload,
		CommittedAt: event.CommittedAt,
		RecordedAt:  recordedAt,
	}
}

// Repository stores audit entries. Append is idempotent on EventID because the
// outbox may deliver an event more than once.
type Repository interface {
	Append(ctx context.Context, entry *Entry) error
	ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit, offset int) ([]*Entry, error)
	CountByCampaign(ctx context.Context, campaignID uuid.UUID) (int64, error)
}
