package shared

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is what subscribers receive for every committed change.
type Event struct {
	EventID     uuid.UUID       `json:"event_id"`
	CampaignID  uuid.UUID       `json:"campaign_id"`
	Kind        EventKind       `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	CommittedAt time.Time       `json:"committed_at"`
}

// NewEvent marshals payload and stamps the event.
func NewEvent(campaignID uuid.UUID, kind EventKind, payload any, committedAt time.Time) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}
	return &Event{
		EventID:     uuid.New(),
		CampaignID:  campaignID,
		Kind:        kind,
		Payload:     raw,
		CommittedAt: committedAt,
	}, nil
}
