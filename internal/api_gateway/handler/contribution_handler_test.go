package handler

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/crowdfund-ledger/internal/api_gateway/service"
	"github.com/crowdfund-ledger/internal/domain/campaign"
	"github.com/crowdfund-ledger/internal/domain/contribution"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func sampleContribution(campaignID uuid.UUID, contributor, amount string) *contribution.Contribution {
	return &contribution.Contribution{
		ID:             uuid.New(),
		CampaignID:     campaignID,
		ContributorRef: contributor,
		Amount:         decimal.RequireFromString(amount),
		TransferRef:    "tr-" + contributor,
		RecordedAt:     time.Date(2026, 10, 3, 8, 0, 0, 0, time.UTC),
	}
}

func TestContributionHandler_Record(t *testing.T) {
	campaignID := uuid.New()
	path := "/api/v1/campaigns/" + campaignID.String() + "/contributions"
	contributor := map[string]string{ContributorIDHeader: "alice"}

	tests := []struct {
		name         string
		body         string
		headers      map[string]string
		setupMocks   func(tr *testRouter)
		expectStatus int
		expectCode   string
	}{
		{
			name:    "Success",
			body:    `{"amount":"25.50","transfer_ref":"tr-1"}`,
			headers: contributor,
			setupMocks: func(tr *testRouter) {
				tr.contributions.On("RecordContribution", mock.Anything, campaignID, "alice", decimalEq("25.50"), "tr-1").
					Return(sampleContribution(campaignID, "alice", "25.50"), decimal.RequireFromString("125.50"), nil)
			},
			expectStatus: http.StatusCreated,
		},
		{
			name:         "MissingContributorHeader",
			body:         `{"amount":"25.50","transfer_ref":"tr-1"}`,
			setupMocks:   func(tr *testRouter) {},
			expectStatus: http.StatusUnauthorized,
			expectCode:   "UNAUTHORIZED",
		},
		{
			name:         "MissingTransferRef",
			body:         `{"amount":"25.50"}`,
			headers:      contributor,
			setupMocks:   func(tr *testRouter) {},
			expectStatus: http.StatusBadRequest,
			expectCode:   "BAD_REQUEST",
		},
		{
			name:    "NonPositiveAmount",
			body:    `{"amount":"-1","transfer_ref":"tr-1"}`,
			headers: contributor,
			setupMocks: func(tr *testRouter) {
				tr.contributions.On("RecordContribution", mock.Anything, campaignID, "alice", decimalEq("-1"), "tr-1").
					Return(nil, decimal.Zero, contribution.ErrInvalidAmount)
			},
			expectStatus: http.StatusUnprocessableEntity,
			expectCode:   "INVALID_AMOUNT",
		},
		{
			name:    "AmountBelowSmallestUnit",
			body:    `{"amount":"0.000000001","transfer_ref":"tr-1"}`,
			headers: contributor,
			setupMocks: func(tr *testRouter) {
				tr.contributions.On("RecordContribution", mock.Anything, campaignID, "alice", decimalEq("0.000000001"), "tr-1").
					Return(nil, decimal.Zero, contribution.ErrInvalidAmount)
			},
			expectStatus: http.StatusUnprocessableEntity,
			expectCode:   "INVALID_AMOUNT",
		},
		{
			name:    "FundingLimitReached",
			body:    `{"amount":"999999999999","transfer_ref":"tr-1"}`,
			headers: contributor,
			setupMocks: func(tr *testRouter) {
				tr.contributions.On("RecordContribution", mock.Anything, campaignID, "alice", mock.Anything, "tr-1").
					Return(nil, decimal.Zero, campaign.ErrFundingLimit)
			},
			expectStatus: http.StatusConflict,
			expectCode:   "FUNDING_LIMIT",
		},
		{
			name:    "CampaignClosed",
			body:    `{"amount":"5","transfer_ref":"tr-1"}`,
			headers: contributor,
			setupMocks: func(tr *testRouter) {
				tr.contributions.On("RecordContribution", mock.Anything, campaignID, "alice", mock.Anything, "tr-1").
					Return(nil, decimal.Zero, campaign.ErrCampaignNotOpen)
			},
			expectStatus: http.StatusConflict,
			expectCode:   "CAMPAIGN_NOT_OPEN",
		},
		{
			name:    "DuplicateTransfer",
			body:    `{"amount":"5","transfer_ref":"tr-1"}`,
			headers: contributor,
			setupMocks: func(tr *testRouter) {
				tr.contributions.On("RecordContribution", mock.Anything, campaignID, "alice", mock.Anything, "tr-1").
					Return(nil, decimal.Zero, contribution.ErrDuplicateContribution{TransferRef: "tr-1"})
			},
			expectStatus: http.StatusConflict,
			expectCode:   "DUPLICATE_TRANSFER",
		},
		{
			name:    "UnknownCampaign",
			body:    `{"amount":"5","transfer_ref":"tr-1"}`,
			headers: contributor,
			setupMocks: func(tr *testRouter) {
				tr.contributions.On("RecordContribution", mock.Anything, campaignID, "alice", mock.Anything, "tr-1").
					Return(nil, decimal.Zero, campaign.ErrCampaignNotFound{CampaignID: campaignID})
			},
			expectStatus: http.StatusNotFound,
			expectCode:   "NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestRouter()
			tt.setupMocks(tr)

			rr := tr.do(http.MethodPost, path, tt.body, tt.headers)

			assert.Equal(t, tt.expectStatus, rr.Code)
			env := decodeEnvelope(t, rr.Body.Bytes())
			if tt.expectCode != "" {
				require.NotNil(t, env.Error)
				assert.Equal(t, tt.expectCode, env.Error.Code)
			} else {
				var got RecordContributionResponse
				require.NoError(t, json.Unmarshal(env.Data, &got))
				assert.Equal(t, "alice", got.Contribution.ContributorRef)
				assert.True(t, got.CurrentFunding.Equal(decimal.RequireFromString("125.50")))
			}
			tr.assertExpectations(t)
		})
	}
}

func TestContributionHandler_List(t *testing.T) {
	campaignID := uuid.New()
	base := "/api/v1/campaigns/" + campaignID.String() + "/contributions"
	rows := []*contribution.Contribution{
		sampleContribution(campaignID, "bob", "50"),
		sampleContribution(campaignID, "alice", "10"),
	}

	tests := []struct {
		name         string
		query        string
		expectOrder  contribution.Order
		expectStatus int
	}{
		{name: "DefaultRecorded", query: "", expectOrder: contribution.OrderRecorded, expectStatus: http.StatusOK},
		{name: "RankedByAmount", query: "?rank=amount", expectOrder: contribution.OrderAmount, expectStatus: http.StatusOK},
		{name: "ExplicitRecorded", query: "?rank=recorded", expectOrder: contribution.OrderRecorded, expectStatus: http.StatusOK},
		{name: "UnknownRank", query: "?rank=size", expectStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestRouter()
			if tt.expectStatus == http.StatusOK {
				tr.queries.On("GetContributions", mock.Anything, campaignID, tt.expectOrder).Return(rows, nil)
			}

			rr := tr.do(http.MethodGet, base+tt.query, "", nil)

			assert.Equal(t, tt.expectStatus, rr.Code)
			if tt.expectStatus == http.StatusOK {
				var got []ContributionResponse
				require.NoError(t, json.Unmarshal(decodeEnvelope(t, rr.Body.Bytes()).Data, &got))
				require.Len(t, got, 2)
				assert.Equal(t, "bob", got[0].ContributorRef)
			}
			tr.assertExpectations(t)
		})
	}

	t.Run("EmptyCampaignReturnsEmptyList", func(t *testing.T) {
		tr := newTestRouter()
		tr.queries.On("GetContributions", mock.Anything, campaignID, contribution.OrderRecorded).
			Return([]*contribution.Contribution{}, nil)

		rr := tr.do(http.MethodGet, base, "", nil)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `[]`, string(decodeEnvelope(t, rr.Body.Bytes()).Data))
	})
}

func TestContributionHandler_HallOfFame(t *testing.T) {
	campaignID := uuid.New()
	tr := newTestRouter()
	tr.queries.On("GetHallOfFame", mock.Anything, campaignID).Return([]service.RankedContribution{
		{Rank: 1, TopSupporter: true, Contribution: sampleContribution(campaignID, "carol", "90")},
		{Rank: 2, TopSupporter: true, Contribution: sampleContribution(campaignID, "bob", "50")},
		{Rank: 3, TopSupporter: true, Contribution: sampleContribution(campaignID, "alice", "10")},
		{Rank: 4, TopSupporter: false, Contribution: sampleContribution(campaignID, "dave", "5")},
	}, nil)

	rr := tr.do(http.MethodGet, "/api/v1/campaigns/"+campaignID.String()+"/hall-of-fame", "", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	var got []HallOfFameEntry
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rr.Body.Bytes()).Data, &got))
	require.Len(t, got, 4)
	assert.Equal(t, 1, got[0].Rank)
	assert.Equal(t, "carol", got[0].ContributorRef)
	assert.True(t, got[2].TopSupporter)
	assert.False(t, got[3].TopSupporter)
	tr.assertExpectations(t)
}

func TestContributionHandler_ContributorHistory(t *testing.T) {
	campaignID := uuid.New()

	t.Run("Paginated", func(t *testing.T) {
		tr := newTestRouter()
		tr.queries.On("GetContributorHistory", mock.Anything, "alice", 1, 10).Return(&service.ContributorHistory{
			ContributorRef:    "alice",
			Contributions:     []*contribution.Contribution{sampleContribution(campaignID, "alice", "10")},
			ContributionCount: 1,
			TotalContributed:  decimal.RequireFromString("10"),
		}, nil)

		rr := tr.do(http.MethodGet, "/api/v1/contributors/alice/contributions", "", nil)

		assert.Equal(t, http.StatusOK, rr.Code)
		env := decodeEnvelope(t, rr.Body.Bytes())
		require.NotNil(t, env.Meta)
		assert.Equal(t, 1, env.Meta.TotalItems)

		var got ContributorHistoryResponse
		require.NoError(t, json.Unmarshal(env.Data, &got))
		assert.Equal(t, "alice", got.ContributorRef)
		assert.True(t, got.TotalContributed.Equal(decimal.RequireFromString("10")))
		require.Len(t, got.Contributions, 1)
		tr.assertExpectations(t)
	})

	t.Run("InvalidPage", func(t *testing.T) {
		tr := newTestRouter()

		rr := tr.do(http.MethodGet, "/api/v1/contributors/alice/contributions?page=0", "", nil)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		tr.assertExpectations(t)
	})
}
