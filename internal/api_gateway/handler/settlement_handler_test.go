package handler

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/crowdfund-ledger/internal/api_gateway/middleware"
	"github.com/crowdfund-ledger/internal/api_gateway/service"
	"github.com/crowdfund-ledger/internal/domain/campaign"
	"github.com/crowdfund-ledger/internal/domain/settlement"
	"github.com/crowdfund-ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSettlementHandler_Request(t *testing.T) {
	campaignID := uuid.New()
	requestedAt := time.Date(2026, 11, 2, 10, 0, 0, 0, time.UTC)
	operator := map[string]string{OperatorIDHeader: "ops-1", middleware.CorrelationIDHeader: "corr-7"}

	command := func(action shared.CommandAction) *shared.SettlementCommand {
		return &shared.SettlementCommand{
			CommandID:     uuid.New(),
			CampaignID:    campaignID,
			Action:        action,
			OperatorRef:   "ops-1",
			CorrelationID: "corr-7",
			RequestedAt:   requestedAt,
		}
	}

	tests := []struct {
		name         string
		path         string
		headers      map[string]string
		setupMocks   func(tr *testRouter)
		expectStatus int
		expectCode   string
		expectAction string
	}{
		{
			name:    "BeginAccepted",
			path:    "/settlement",
			headers: operator,
			setupMocks: func(tr *testRouter) {
				tr.settlements.On("RequestSettlement", mock.Anything, campaignID, shared.CommandActionBegin, "ops-1", "corr-7").
					Return(command(shared.CommandActionBegin), nil)
			},
			expectStatus: http.StatusAccepted,
			expectAction: string(shared.CommandActionBegin),
		},
		{
			name:    "ResumeAccepted",
			path:    "/settlement/resume",
			headers: operator,
			setupMocks: func(tr *testRouter) {
				tr.settlements.On("RequestSettlement", mock.Anything, campaignID, shared.CommandActionResume, "ops-1", "corr-7").
					Return(command(shared.CommandActionResume), nil)
			},
			expectStatus: http.StatusAccepted,
			expectAction: string(shared.CommandActionResume),
		},
		{
			name:         "MissingOperator",
			path:         "/settlement",
			setupMocks:   func(tr *testRouter) {},
			expectStatus: http.StatusUnauthorized,
			expectCode:   "UNAUTHORIZED",
		},
		{
			name:    "UnknownOperator",
			path:    "/settlement",
			headers: operator,
			setupMocks: func(tr *testRouter) {
				tr.settlements.On("RequestSettlement", mock.Anything, campaignID, shared.CommandActionBegin, "ops-1", "corr-7").
					Return(nil, settlement.ErrUnauthorizedOperator)
			},
			expectStatus: http.StatusForbidden,
			expectCode:   "FORBIDDEN",
		},
		{
			name:    "StillOpen",
			path:    "/settlement",
			headers: operator,
			setupMocks: func(tr *testRouter) {
				tr.settlements.On("RequestSettlement", mock.Anything, campaignID, shared.CommandActionBegin, "ops-1", "corr-7").
					Return(nil, campaign.ErrNotClosed)
			},
			expectStatus: http.StatusConflict,
			expectCode:   "NOT_CLOSED",
		},
		{
			name:    "AlreadySettling",
			path:    "/settlement",
			headers: operator,
			setupMocks: func(tr *testRouter) {
				tr.settlements.On("RequestSettlement", mock.Anything, campaignID, shared.CommandActionBegin, "ops-1", "corr-7").
					Return(nil, campaign.ErrAlreadySettling)
			},
			expectStatus: http.StatusConflict,
			expectCode:   "ALREADY_SETTLING",
		},
		{
			name:    "ResumeNotStalled",
			path:    "/settlement/resume",
			headers: operator,
			setupMocks: func(tr *testRouter) {
				tr.settlements.On("RequestSettlement", mock.Anything, campaignID, shared.CommandActionResume, "ops-1", "corr-7").
					Return(nil, campaign.ErrNotStalled)
			},
			expectStatus: http.StatusConflict,
			expectCode:   "NOT_STALLED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestRouter()
			tt.setupMocks(tr)

			rr := tr.do(http.MethodPost, "/api/v1/campaigns/"+campaignID.String()+tt.path, "", tt.headers)

			assert.Equal(t, tt.expectStatus, rr.Code)
			env := decodeEnvelope(t, rr.Body.Bytes())
			if tt.expectCode != "" {
				require.NotNil(t, env.Error)
				assert.Equal(t, tt.expectCode, env.Error.Code)
			} else {
				var got SettlementCommandResponse
				require.NoError(t, json.Unmarshal(env.Data, &got))
				assert.Equal(t, tt.expectAction, got.Action)
				assert.Equal(t, "ACCEPTED", got.Status)
				assert.Equal(t, "corr-7", env.CorrelationID)
			}
			tr.assertExpectations(t)
		})
	}
}

func TestSettlementHandler_Get(t *testing.T) {
	campaignID := uuid.New()
	decidedAt := time.Date(2026, 11, 2, 10, 0, 0, 0, time.UTC)
	completedAt := decidedAt.Add(time.Minute)

	t.Run("ReturnsRecordAndAttempts", func(t *testing.T) {
		tr := newTestRouter()
		tr.queries.On("GetSettlement", mock.Anything, campaignID).Return(&service.SettlementView{
			Record: &settlement.Record{
				CampaignID:           campaignID,
				Decision:             settlement.KindRefund,
				FundingGoal:          decimal.RequireFromString("1000"),
				FundingSnapshot:      decimal.RequireFromString("60"),
				DecidedBy:            "ops-1",
				DecidedAt:            decidedAt,
				CompletedAt:          &completedAt,
				AllAttemptsSucceeded: false,
			},
			Attempts: []*settlement.Attempt{
				{
					ID:           uuid.New(),
					CampaignID:   campaignID,
					RecipientRef: "alice",
					Amount:       decimal.RequireFromString("40"),
					Kind:         settlement.KindRefund,
					Outcome:      settlement.OutcomeSucceeded,
					TransferRef:  "gw-1",
					AttemptCount: 1,
					UpdatedAt:    completedAt,
				},
				{
					ID:           uuid.New(),
					CampaignID:   campaignID,
					RecipientRef: "bob",
					Amount:       decimal.RequireFromString("20"),
					Kind:         settlement.KindRefund,
					Outcome:      settlement.OutcomeFailed,
					AttemptCount: 3,
					LastError:    "recipient account closed",
					UpdatedAt:    completedAt,
				},
			},
		}, nil)

		rr := tr.do(http.MethodGet, "/api/v1/campaigns/"+campaignID.String()+"/settlement", "", nil)

		assert.Equal(t, http.StatusOK, rr.Code)
		var got SettlementResponse
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, rr.Body.Bytes()).Data, &got))
		assert.Equal(t, "REFUND", got.Decision)
		assert.NotEmpty(t, got.CompletedAt)
		assert.False(t, got.AllAttemptsSucceeded)
		require.Len(t, got.Attempts, 2)
		assert.Equal(t, "FAILED", got.Attempts[1].Outcome)
		assert.Equal(t, "recipient account closed", got.Attempts[1].LastError)
		tr.assertExpectations(t)
	})

	t.Run("NotStarted", func(t *testing.T) {
		tr := newTestRouter()
		tr.queries.On("GetSettlement", mock.Anything, campaignID).
			Return(nil, settlement.ErrSettlementNotFound{CampaignID: campaignID})

		rr := tr.do(http.MethodGet, "/api/v1/campaigns/"+campaignID.String()+"/settlement", "", nil)

		assert.Equal(t, http.StatusNotFound, rr.Code)
		tr.assertExpectations(t)
	})
}
