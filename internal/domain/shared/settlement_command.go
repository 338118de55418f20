package shared

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidCommandAction = errors.New("invalid settlement command action")
	ErrMissingCampaignID    = errors.New("settlement command is missing campaign id")
)

// SettlementCommand defines a Kafka message asking the processor to begin or
// resume settlement of a campaign.
type SettlementCommand struct {
	CommandID     uuid.UUID     `json:"command_id"`
	CampaignID    uuid.UUID     `json:"campaign_id"`
	Action        CommandAction `json:"action"`
	OperatorRef   string        `json:"operator_ref"`
	CorrelationID string        `json:"correlation_id,omitempty"`
	RequestedAt   time.Time     `json:"requested_at"`
}

// Validate checks the fields a processor needs before acting.
func (c *SettlementCommand) Validate() error {
	if c.CampaignID == uuid.Nil {
		return ErrMissingCampaignID
	}
	switch c.Action {
	case CommandActionBegin, CommandActionResume:
		return nil
	default:
		return ErrInvalidCommandAction
	}
}
