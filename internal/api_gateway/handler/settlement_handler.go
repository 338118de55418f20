package handler

import (
	"log/slog"
	"strings"
	"time"

	"github.com/crowdfund-ledger/internal/api_gateway/middleware"
	"github.com/crowdfund-ledger/internal/api_gateway/service"
	"github.com/crowdfund-ledger/internal/domain/shared"
	"github.com/gin-gonic/gin"
)

// SettlementHandler handles operator settlement requests and the settlement view
type SettlementHandler struct {
	commandService service.SettlementCommandService
	queryService   service.QueryService
	logger         *slog.Logger
}

// NewSettlementHandler creates a new settlement handler
func NewSettlementHandler(logger *slog.Logger, commandService service.SettlementCommandService, queryService service.QueryService) *SettlementHandler {
	return &SettlementHandler{
		commandService: commandService,
		queryService:   queryService,
		logger:         logger,
	}
}

// Begin asks the settlement processor to settle a closed campaign
func (h *SettlementHandler) Begin(c *gin.Context) {
	h.request(c, shared.CommandActionBegin)
}

// Resume asks the settlement processor to re-drive a stalled settlement
func (h *SettlementHandler) Resume(c *gin.Context) {
	h.request(c, shared.CommandActionResume)
}

func (h *SettlementHandler) request(c *gin.Context, action shared.CommandAction) {
	campaignID, ok := parseCampaignID(c, h.logger)
	if !ok {
		return
	}

	operatorRef := strings.TrimSpace(c.GetHeader(OperatorIDHeader))
	if operatorRef == "" {
		RespondUnauthorized(c, "Missing "+OperatorIDHeader+" header")
		return
	}

	cmd, err := h.commandService.RequestSettlement(c.Request.Context(), campaignID, action, operatorRef, middleware.GetCorrelationID(c))
	if err != nil {
		respondWithDomainError(c, h.logger, err)
		return
	}

	RespondAccepted(c, SettlementCommandResponse{
		CommandID:   cmd.CommandID.String(),
		CampaignID:  cmd.CampaignID.String(),
		Action:      string(cmd.Action),
		OperatorRef: cmd.OperatorRef,
		Status:      "ACCEPTED",
		RequestedAt: cmd.RequestedAt.Format(time.RFC3339),
	})
}

// Get returns the settlement record and its attempts
func (h *SettlementHandler) Get(c *gin.Context) {
	campaignID, ok := parseCampaignID(c, h.logger)
	if !ok {
		return
	}

	view, err := h.queryService.GetSettlement(c.Request.Context(), campaignID)
	if err != nil {
		respondWithDomainError(c, h.logger, err)
		return
	}

	RespondOK(c, mapSettlementToResponse(view))
}

func mapSettlementToResponse(view *service.SettlementView) SettlementResponse {
	record := view.Record
	response := SettlementResponse{
		CampaignID:           record.CampaignID.String(),
		Decision:             string(record.Decision),
		FundingGoal:          record.FundingGoal,
		FundingSnapshot:      record.FundingSnapshot,
		DecidedBy:            record.DecidedBy,
		DecidedAt:            record.DecidedAt.Format(time.RFC3339),
		AllAttemptsSucceeded: record.AllAttemptsSucceeded,
		Attempts:             make([]AttemptResponse, 0, len(view.Attempts)),
	}
	if record.CompletedAt != nil {
		response.CompletedAt = record.CompletedAt.Format(time.RFC3339)
	}

	for _, a := range view.Attempts {
		response.Attempts = append(response.Attempts, AttemptResponse{
			ID:           a.ID.String(),
			RecipientRef: a.RecipientRef,
			Amount:       a.Amount,
			Kind:         string(a.Kind),
			Outcome:      string(a.Outcome),
			TransferRef:  a.TransferRef,
			AttemptCount: a.AttemptCount,
			LastError:    a.LastError,
			UpdatedAt:    a.UpdatedAt.Format(time.RFC3339),
		})
	}
	return response
}
