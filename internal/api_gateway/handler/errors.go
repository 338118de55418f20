package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/crowdfund-ledger/internal/domain/campaign"
	"github.com/crowdfund-ledger/internal/domain/contribution"
	"github.com/crowdfund-ledger/internal/domain/settlement"
	"github.com/crowdfund-ledger/internal/domain/shared"
	"github.com/gin-gonic/gin"
)

const (
	// ContributorIDHeader carries the authenticated contributor identity
	ContributorIDHeader = "X-Contributor-ID"

	// OperatorIDHeader carries the authenticated operator identity
	OperatorIDHeader = "X-Operator-ID"
)

type errorMapping struct {
	target error
	code   string
}

var validationErrors = []errorMapping{
	{contribution.ErrInvalidAmount, "INVALID_AMOUNT"},
	{contribution.ErrEmptyContributorRef, "INVALID_CONTRIBUTOR"},
	{contribution.ErrEmptyTransferRef, "INVALID_TRANSFER_REF"},
	{campaign.ErrEmptyCreatorRef, "INVALID_CREATOR"},
	{campaign.ErrInvalidFundingGoal, "INVALID_FUNDING_GOAL"},
	{campaign.ErrDeadlineNotInFuture, "INVALID_DEADLINE"},
	{shared.ErrInvalidCommandAction, "INVALID_ACTION"},
}

var stateErrors = []errorMapping{
	{campaign.ErrCampaignNotOpen, "CAMPAIGN_NOT_OPEN"},
	{campaign.ErrNotClosed, "NOT_CLOSED"},
	{campaign.ErrAlreadySettling, "ALREADY_SETTLING"},
	{campaign.ErrNotStalled, "NOT_STALLED"},
	{campaign.ErrFundingLimit, "FUNDING_LIMIT"},
	{contribution.ErrDuplicateContribution{}, "DUPLICATE_TRANSFER"},
	{settlement.ErrSettlementExists{}, "ALREADY_SETTLING"},
}

// respondWithDomainError maps domain errors onto the HTTP surface. Anything
// unrecognised is logged and hidden behind a 500.
func respondWithDomainError(c *gin.Context, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, campaign.ErrCampaignNotFound{}):
		RespondNotFound(c, "Campaign not found")
		return
	case errors.Is(err, settlement.ErrSettlementNotFound{}):
		RespondNotFound(c, "Settlement has not started")
		return
	case errors.Is(err, settlement.ErrUnauthorizedOperator):
		RespondForbidden(c, err.Error())
		return
	}

	for _, m := range validationErrors {
		if errors.Is(err, m.target) {
			RespondUnprocessable(c, m.code, err.Error())
			return
		}
	}
	for _, m := range stateErrors {
		if errors.Is(err, m.target) {
			RespondWithError(c, http.StatusConflict, m.code, err.Error())
			return
		}
	}

	logger.Error("Unhandled error", "path", c.FullPath(), "error", err)
	RespondInternalError(c)
}
