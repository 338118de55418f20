package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/crowdfund-ledger/internal/domain/campaign"
	"github.com/crowdfund-ledger/internal/domain/settlement"
	"github.com/crowdfund-ledger/internal/domain/shared"
	"github.com/crowdfund-ledger/internal/platform/messaging/producers"
	"github.com/google/uuid"
)

// SettlementCommandServiceImpl implements the SettlementCommandService interface
type SettlementCommandServiceImpl struct {
	campaignRepo campaign.Repository
	operators    *settlement.Operators
	producer     producers.MessagePublisher
	logger       *slog.Logger
	now          func() time.Time
}

// NewSettlementCommandService creates a new settlement command service
func NewSettlementCommandService(
	logger *slog.Logger,
	campaignRepo campaign.Repository,
	operators *settlement.Operators,
	producer producers.MessagePublisher,
) SettlementCommandService {
	if operators.Len() == 0 {
		logger.Warn("No settlement operators configured, every settlement request will be refused")
	}
	return &SettlementCommandServiceImpl{
		campaignRepo: campaignRepo,
		operators:    operators,
		producer:     producer,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// RequestSettlement rejects requests that would fail anyway and publishes the
// rest, keyed by campaign. The processor repeats every check when it consumes
// the command.
func (s *SettlementCommandServiceImpl) RequestSettlement(ctx context.Context, campaignID uuid.UUID, action shared.CommandAction, operatorRef, correlationID string) (*shared.SettlementCommand, error) {
	logger := s.logger.With("campaign_id", campaignID.String(), "operator_ref", operatorRef, "action", string(action))

	if err := s.operators.Authorize(operatorRef); err != nil {
		logger.Warn("Settlement request from unauthorized operator")
		return nil, err
	}

	now := s.now()
	cmd := &shared.SettlementCommand{
		CommandID:     uuid.New(),
		CampaignID:    campaignID,
		Action:        action,
		OperatorRef:   operatorRef,
		CorrelationID: correlationID,
		RequestedAt:   now,
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	c, err := s.campaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	switch action {
	case shared.CommandActionBegin:
		err = c.CanBeginSettlement(now)
	case shared.CommandActionResume:
		err = c.CanResumeSettlement()
	}
	if err != nil {
		logger.Info("Settlement request rejected", "status", string(c.EffectiveStatus(now)), "error", err)
		return nil, err
	}

	if err := s.producer.Publish(ctx, campaignID.String(), cmd); err != nil {
		logger.Error("Failed to publish settlement command", "error", err)
		return nil, err
	}

	logger.Info("Settlement command published", "command_id", cmd.CommandID.String())
	return cmd, nil
}
