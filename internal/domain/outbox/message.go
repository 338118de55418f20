package outbox

import (
	"encoding/json"
	"time"

	"github.com/crowdfund-ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// Message stores an event written in the same transaction as the change it
// describes, waiting to be delivered.
type Message struct {
	ID            int64               `json:"id"`
	EventID       uuid.UUID           `json:"event_id"`
	CampaignID    uuid.UUID           `json:"campaign_id"`
	EventKind     shared.EventKind    `json:"event_kind"`
	Payload       json.RawMessage     `json:"payload"`
	Status        shared.OutboxStatus `json:"status"`
	Attempts      int                 `json:"attempts"`
	CreatedAt     time.Time           `json:"created_at"`
	LastAttemptAt *time.Time          `json:"last_attempt_at,omitempty"`
}

func NewMessage(event *shared.Event) (*Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	return &Message{
		EventID:    event.EventID,
		CampaignID: event.CampaignID,
		EventKind:  event.Kind,
		Payload:    payload,
		Status:     shared.OutboxStatusPending,
		CreatedAt:  event.CommittedAt,
	}, nil
}

// GetEvent decodes the stored event.
func (m *Message) GetEvent() (*shared.Event, error) {
	var event shared.Event
	if err := json.Unmarshal(m.Payload, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// ExhaustedRetries reports whether one more failure should park the message.
func (m *Message) ExhaustedRetries(maxAttempts int) bool {
	return m.Attempts+1 >= maxAttempts
}
