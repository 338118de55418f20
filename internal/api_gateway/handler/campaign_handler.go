package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/crowdfund-ledger/internal/api_gateway/service"
	"github.com/crowdfund-ledger/internal/domain/audit"
	"github.com/crowdfund-ledger/internal/domain/campaign"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CampaignHandler handles HTTP requests for campaign registration and
// campaign-level read views
type CampaignHandler struct {
	campaignService service.CampaignService
	queryService    service.QueryService
	logger          *slog.Logger
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(logger *slog.Logger, campaignService service.CampaignService, queryService service.QueryService) *CampaignHandler {
	return &CampaignHandler{
		campaignService: campaignService,
		queryService:    queryService,
		logger:          logger,
	}
}

// Register creates a new Open campaign
func (h *CampaignHandler) Register(c *gin.Context) {
	var req RegisterCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	created, err := h.campaignService.RegisterCampaign(c.Request.Context(), req.CreatorRef, req.FundingGoal, req.Deadline)
	if err != nil {
		respondWithDomainError(c, h.logger, err)
		return
	}

	RespondCreated(c, mapCampaignToResponse(created))
}

// GetByID returns the campaign with its effective status
func (h *CampaignHandler) GetByID(c *gin.Context) {
	id, ok := parseCampaignID(c, h.logger)
	if !ok {
		return
	}

	found, err := h.campaignService.GetCampaign(c.Request.Context(), id)
	if err != nil {
		respondWithDomainError(c, h.logger, err)
		return
	}

	RespondOK(c, mapCampaignToResponse(found))
}

// GetTotal returns the latest committed running total
func (h *CampaignHandler) GetTotal(c *gin.Context) {
	id, ok := parseCampaignID(c, h.logger)
	if !ok {
		return
	}

	total, err := h.queryService.GetRunningTotal(c.Request.Context(), id)
	if err != nil {
		respondWithDomainError(c, h.logger, err)
		return
	}

	RespondOK(c, RunningTotalResponse{CampaignID: id.String(), CurrentFunding: total})
}

func (h *CampaignHandler) GetStats(c *gin.Context) {
	id, ok := parseCampaignID(c, h.logger)
	if !ok {
		return
	}

	stats, err := h.queryService.GetStats(c.Request.Context(), id)
	if err != nil {
		respondWithDomainError(c, h.logger, err)
		return
	}

	RespondOK(c, StatsResponse{
		CampaignID:          id.String(),
		TotalRaised:         stats.TotalRaised,
		ContributorCount:    stats.ContributorCount,
		ContributionCount:   stats.ContributionCount,
		AverageContribution: stats.AverageContribution,
	})
}

// CreatorSummary returns what a creator has raised across all campaigns
func (h *CampaignHandler) CreatorSummary(c *gin.Context) {
	summary, err := h.queryService.GetCreatorSummary(c.Request.Context(), c.Param("ref"))
	if err != nil {
		respondWithDomainError(c, h.logger, err)
		return
	}

	RespondOK(c, CreatorSummaryResponse{
		CreatorRef:    summary.CreatorRef,
		TotalRaised:   summary.TotalRaised,
		CampaignCount: summary.CampaignCount,
		ActiveCount:   summary.ActiveCount,
	})
}

// GetEvents returns a page of the campaign's audit trail, newest first
func (h *CampaignHandler) GetEvents(c *gin.Context) {
	id, ok := parseCampaignID(c, h.logger)
	if !ok {
		return
	}

	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		h.logger.Error("Invalid pagination parameters", "error", err)
		RespondBadRequest(c, "Invalid pagination parameters")
		return
	}

	entries, total, err := h.queryService.GetEvents(c.Request.Context(), id, pagination.Page, pagination.PerPage)
	if err != nil {
		respondWithDomainError(c, h.logger, err)
		return
	}

	events := make([]EventResponse, 0, len(entries))
	for _, e := range entries {
		events = append(events, mapAuditEntryToResponse(e))
	}

	RespondWithPaginatedData(c, http.StatusOK, events, pagination.Page, pagination.PerPage, int(total))
}

func parseCampaignID(c *gin.Context, logger *slog.Logger) (uuid.UUID, bool) {
	idParam := c.Param("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		logger.Error("Invalid campaign ID", "id", idParam, "error", err)
		RespondBadRequest(c, "Invalid campaign ID")
		return uuid.Nil, false
	}
	return id, true
}

// mapCampaignToResponse maps a campaign entity to a campaign response DTO
func mapCampaignToResponse(c *campaign.Campaign) CampaignResponse {
	return CampaignResponse{
		ID:             c.ID.String(),
		CreatorRef:     c.CreatorRef,
		FundingGoal:    c.FundingGoal,
		CurrentFunding: c.CurrentFunding,
		GoalReached:    c.GoalReached(),
		Deadline:       c.Deadline.Format(time.RFC3339),
		Status:         string(c.Status),
		CreatedAt:      c.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      c.UpdatedAt.Format(time.RFC3339),
	}
}

func mapAuditEntryToResponse(e *audit.Entry) EventResponse {
	return EventResponse{
		EventID:     e.EventID.String(),
		Kind:        string(e.Kind),
		Payload:     e.Payload,
		CommittedAt: e.CommittedAt.Format(time.RFC3339Nano),
		RecordedAt:  e.RecordedAt.Format(time.RFC3339Nano),
	}
}
