package audit

import (
	"testing"
	"time"

	"github.com/crowdfund-ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEntry(t *testing.T) {
	committedAt := time.Now().Add(-time.Second).UTC()
	recordedAt := time.Now().UTC()
	event, err := shared.NewEvent(uuid.New(), shared.EventSettlementCompleted, map[string]bool{"all_attempts_succeeded": true}, committedAt)
	require.NoError(t, err)

	entry := NewEntry(event, recordedAt)

	assert.Equal(t, event.EventID, entry.EventID)
	assert.Equal(t, event.CampaignID, entry.CampaignID)
	assert.Equal(t, shared.EventSettlementCompleted, entry.Kind)
	assert.JSONEq(t, `{"all_attempts_succeeded":true}`, string(entry.Payload))
	assert.Equal(t, committedAt, entry.CommittedAt)
	assert.Equal(t, recordedAt, entry.RecordedAt)
}
