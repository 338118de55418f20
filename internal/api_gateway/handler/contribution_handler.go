package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/crowdfund-ledger/internal/api_gateway/service"
	"github.com/crowdfund-ledger/internal/domain/contribution"
	"github.com/gin-gonic/gin"
)

// ContributionHandler handles HTTP requests for the contribution ledger
type ContributionHandler struct {
	contributionService service.ContributionService
	queryService        service.QueryService
	logger              *slog.Logger
}

// NewContributionHandler creates a new contribution handler
func NewContributionHandler(logger *slog.Logger, contributionService service.ContributionService, queryService service.QueryService) *ContributionHandler {
	return &ContributionHandler{
		contributionService: contributionService,
		queryService:        queryService,
		logger:              logger,
	}
}

// Record accepts a contribution from the contributor named in X-Contributor-ID
func (h *ContributionHandler) Record(c *gin.Context) {
	campaignID, ok := parseCampaignID(c, h.logger)
	if !ok {
		return
	}

	contributorRef := strings.TrimSpace(c.GetHeader(ContributorIDHeader))
	if contributorRef == "" {
		RespondUnauthorized(c, "Missing "+ContributorIDHeader+" header")
		return
	}

	var req RecordContributionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	recorded, total, err := h.contributionService.RecordContribution(c.Request.Context(), campaignID, contributorRef, req.Amount, req.TransferRef)
	if err != nil {
		respondWithDomainError(c, h.logger, err)
		return
	}

	RespondCreated(c, RecordContributionResponse{
		Contribution:   mapContributionToResponse(recorded),
		CurrentFunding: total,
	})
}

// List returns a campaign's contributions in insertion order, or ranked by
// amount with ?rank=amount
func (h *ContributionHandler) List(c *gin.Context) {
	campaignID, ok := parseCampaignID(c, h.logger)
	if !ok {
		return
	}

	var params ContributionListParams
	if err := c.ShouldBindQuery(&params); err != nil {
		h.logger.Error("Invalid list parameters", "error", err)
		RespondBadRequest(c, "rank must be 'amount' or 'recorded'")
		return
	}
	order := contribution.OrderRecorded
	if params.Rank == string(contribution.OrderAmount) {
		order = contribution.OrderAmount
	}

	contributions, err := h.queryService.GetContributions(c.Request.Context(), campaignID, order)
	if err != nil {
		respondWithDomainError(c, h.logger, err)
		return
	}

	RespondOK(c, mapContributionsToResponse(contributions))
}

func (h *ContributionHandler) HallOfFame(c *gin.Context) {
	campaignID, ok := parseCampaignID(c, h.logger)
	if !ok {
		return
	}

	ranked, err := h.queryService.GetHallOfFame(c.Request.Context(), campaignID)
	if err != nil {
		respondWithDomainError(c, h.logger, err)
		return
	}

	entries := make([]HallOfFameEntry, 0, len(ranked))
	for _, r := range ranked {
		entries = append(entries, HallOfFameEntry{
			Rank:                 r.Rank,
			TopSupporter:         r.TopSupporter,
			ContributionResponse: mapContributionToResponse(r.Contribution),
		})
	}
	RespondOK(c, entries)
}

// ContributorHistory returns a page of one contributor's contributions
// across all campaigns, newest first
func (h *ContributionHandler) ContributorHistory(c *gin.Context) {
	contributorRef := strings.TrimSpace(c.Param("ref"))
	if contributorRef == "" {
		RespondBadRequest(c, "Invalid contributor reference")
		return
	}

	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		h.logger.Error("Invalid pagination parameters", "error", err)
		RespondBadRequest(c, "Invalid pagination parameters")
		return
	}

	history, err := h.queryService.GetContributorHistory(c.Request.Context(), contributorRef, pagination.Page, pagination.PerPage)
	if err != nil {
		respondWithDomainError(c, h.logger, err)
		return
	}

	RespondWithPaginatedData(c, http.StatusOK, ContributorHistoryResponse{
		ContributorRef:    history.ContributorRef,
		TotalContributed:  history.TotalContributed,
		ContributionCount: history.ContributionCount,
		Contributions:     mapContributionsToResponse(history.Contributions),
	}, pagination.Page, pagination.PerPage, int(history.ContributionCount))
}

func mapContributionToResponse(c *contribution.Contribution) ContributionResponse {
	return ContributionResponse{
		ID:             c.ID.String(),
		CampaignID:     c.CampaignID.String(),
		ContributorRef: c.ContributorRef,
		Amount:         c.Amount,
		TransferRef:    c.TransferRef,
		RecordedAt:     c.RecordedAt.Format(time.RFC3339Nano),
	}
}

func mapContributionsToResponse(contributions []*contribution.Contribution) []ContributionResponse {
	out := make([]ContributionResponse, 0, len(contributions))
	for _, c := range contributions {
		out = append(out, mapContributionToResponse(c))
	}
	return out
}
