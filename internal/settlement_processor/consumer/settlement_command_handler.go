package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/crowdfund-ledger/internal/domain/campaign"
	"github.com/crowdfund-ledger/internal/domain/settlement"
	"github.com/crowdfund-ledger/internal/domain/shared"
	"github.com/crowdfund-ledger/internal/metrics"
	"github.com/crowdfund-ledger/internal/platform/messaging/consumers"
	"github.com/crowdfund-ledger/internal/settlement_processor/service"
)

// SettlementCommandHandler handles settlement commands published by the API gateway
type SettlementCommandHandler struct {
	coordinator service.SettlementCoordinator
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func NewSettlementCommandHandler(
	logger *slog.Logger,
	coordinator service.SettlementCoordinator,
	m *metrics.Metrics,
) *SettlementCommandHandler {
	return &SettlementCommandHandler{
		coordinator: coordinator,
		metrics:     m,
		logger:      logger,
	}
}

// HandleMessage returns nil for commands that were carried out or that can
// never succeed, so their offsets are committed. Malformed payloads are marked
// permanent and dead-lettered; other errors are retried by the consumer.
func (h *SettlementCommandHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var cmd shared.SettlementCommand
	if err := json.Unmarshal(value, &cmd); err != nil {
		h.logger.Error("Failed to unmarshal settlement command", "message_key", string(key), "error", err)
		return consumers.Permanent(fmt.Errorf("failed to unmarshal settlement command: %w", err))
	}
	if err := cmd.Validate(); err != nil {
		h.logger.Error("Invalid settlement command", "message_key", string(key), "error", err)
		return consumers.Permanent(fmt.Errorf("invalid settlement command: %w", err))
	}

	logger := h.logger.With(
		"command_id", cmd.CommandID.String(),
		"campaign_id", cmd.CampaignID.String(),
		"action", string(cmd.Action),
		"operator_ref", cmd.OperatorRef,
	)
	if cmd.CorrelationID != "" {
		logger = logger.With("correlation_id", cmd.CorrelationID)
	}

	logger.Info("Received settlement command")

	var (
		result *service.DriveResult
		err    error
	)
	switch cmd.Action {
	case shared.CommandActionBegin:
		result, err = h.coordinator.BeginSettlement(ctx, cmd.CampaignID, cmd.OperatorRef)
	case shared.CommandActionResume:
		result, err = h.coordinator.ResumeSettlement(ctx, cmd.CampaignID, cmd.OperatorRef)
	}
	h.metrics.CommandConsumed(string(cmd.Action), err)

	if err != nil {
		if isRejection(err) {
			logger.Warn("Settlement command rejected", "error", err)
			return nil
		}
		logger.Error("Settlement command failed", "error", err)
		return fmt.Errorf("settlement command %s for campaign %s failed: %w", cmd.Action, cmd.CampaignID, err)
	}

	logger.Info("Settlement command processed",
		"decision", string(result.Decision),
		"status", string(result.Status),
		"succeeded", result.Succeeded,
		"failed", result.Failed,
	)
	return nil
}

// isRejection reports errors caused by the command itself or by campaign
// state. Retrying them cannot help.
func isRejection(err error) bool {
	switch {
	case errors.Is(err, settlement.ErrUnauthorizedOperator),
		errors.Is(err, campaign.ErrNotClosed),
		errors.Is(err, campaign.ErrAlreadySettling),
		errors.Is(err, campaign.ErrNotStalled),
		errors.Is(err, campaign.ErrCampaignNotFound{}),
		errors.Is(err, settlement.ErrLedgerMismatch),
		errors.Is(err, settlement.ErrSettlementExists{}),
		errors.Is(err, service.ErrDriverBusy):
		return true
	}
	return false
}
