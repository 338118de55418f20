package handler

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/crowdfund-ledger/internal/api_gateway/middleware"
	"github.com/crowdfund-ledger/internal/api_gateway/service"
	"github.com/crowdfund-ledger/internal/domain/audit"
	"github.com/crowdfund-ledger/internal/domain/campaign"
	"github.com/crowdfund-ledger/internal/domain/contribution"
	"github.com/crowdfund-ledger/internal/domain/shared"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type MockCampaignService struct {
	mock.Mock
}

func (m *MockCampaignService) RegisterCampaign(ctx context.Context, creatorRef string, fundingGoal decimal.Decimal, deadline time.Time) (*campaign.Campaign, error) {
	args := m.Called(ctx, creatorRef, fundingGoal, deadline)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*campaign.Campaign), args.Error(1)
}

func (m *MockCampaignService) GetCampaign(ctx context.Context, id uuid.UUID) (*campaign.Campaign, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*campaign.Campaign), args.Error(1)
}

type MockContributionService struct {
	mock.Mock
}

func (m *MockContributionService) RecordContribution(ctx context.Context, campaignID uuid.UUID, contributorRef string, amount decimal.Decimal, transferRef string) (*contribution.Contribution, decimal.Decimal, error) {
	args := m.Called(ctx, campaignID, contributorRef, amount, transferRef)
	if args.Get(0) == nil {
		return nil, decimal.Zero, args.Error(2)
	}
	return args.Get(0).(*contribution.Contribution), args.Get(1).(decimal.Decimal), args.Error(2)
}

type MockQueryService struct {
	mock.Mock
}

func (m *MockQueryService) GetRunningTotal(ctx context.Context, campaignID uuid.UUID) (decimal.Decimal, error) {
	args := m.Called(ctx, campaignID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockQueryService) GetContributions(ctx context.Context, campaignID uuid.UUID, order contribution.Order) ([]*contribution.Contribution, error) {
	args := m.Called(ctx, campaignID, order)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*contribution.Contribution), args.Error(1)
}

func (m *MockQueryService) GetHallOfFame(ctx context.Context, campaignID uuid.UUID) ([]service.RankedContribution, error) {
	args := m.Called(ctx, campaignID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]service.RankedContribution), args.Error(1)
}

func (m *MockQueryService) GetStats(ctx context.Context, campaignID uuid.UUID) (*contribution.Stats, error) {
	args := m.Called(ctx, campaignID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*contribution.Stats), args.Error(1)
}

func (m *MockQueryService) GetContributorHistory(ctx context.Context, contributorRef string, page, perPage int) (*service.ContributorHistory, error) {
	args := m.Called(ctx, contributorRef, page, perPage)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ContributorHistory), args.Error(1)
}

func (m *MockQueryService) GetCreatorSummary(ctx context.Context, creatorRef string) (*campaign.CreatorSummary, error) {
	args := m.Called(ctx, creatorRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*campaign.CreatorSummary), args.Error(1)
}

func (m *MockQueryService) GetSettlement(ctx context.Context, campaignID uuid.UUID) (*service.SettlementView, error) {
	args := m.Called(ctx, campaignID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SettlementView), args.Error(1)
}

func (m *MockQueryService) GetEvents(ctx context.Context, campaignID uuid.UUID, page, perPage int) ([]*audit.Entry, int64, error) {
	args := m.Called(ctx, campaignID, page, perPage)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*audit.Entry), args.Get(1).(int64), args.Error(2)
}

type MockSettlementCommandService struct {
	mock.Mock
}

func (m *MockSettlementCommandService) RequestSettlement(ctx context.Context, campaignID uuid.UUID, action shared.CommandAction, operatorRef, correlationID string) (*shared.SettlementCommand, error) {
	args := m.Called(ctx, campaignID, action, operatorRef, correlationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*shared.SettlementCommand), args.Error(1)
}

// testRouter mounts the handlers the way the gateway does, minus logging.
type testRouter struct {
	engine        *gin.Engine
	campaigns     *MockCampaignService
	contributions *MockContributionService
	queries       *MockQueryService
	settlements   *MockSettlementCommandService
}

func newTestRouter() *testRouter {
	gin.SetMode(gin.TestMode)
	logger := newTestLogger()

	tr := &testRouter{
		engine:        gin.New(),
		campaigns:     new(MockCampaignService),
		contributions: new(MockContributionService),
		queries:       new(MockQueryService),
		settlements:   new(MockSettlementCommandService),
	}

	ch := NewCampaignHandler(logger, tr.campaigns, tr.queries)
	coh := NewContributionHandler(logger, tr.contributions, tr.queries)
	sh := NewSettlementHandler(logger, tr.settlements, tr.queries)

	tr.engine.Use(middleware.CorrelationID())
	v1 := tr.engine.Group("/api/v1")
	v1.POST("/campaigns", ch.Register)
	v1.GET("/campaigns/:id", ch.GetByID)
	v1.GET("/campaigns/:id/total", ch.GetTotal)
	v1.GET("/campaigns/:id/stats", ch.GetStats)
	v1.GET("/campaigns/:id/events", ch.GetEvents)
	v1.POST("/campaigns/:id/contributions", coh.Record)
	v1.GET("/campaigns/:id/contributions", coh.List)
	v1.GET("/campaigns/:id/hall-of-fame", coh.HallOfFame)
	v1.POST("/campaigns/:id/settlement", sh.Begin)
	v1.POST("/campaigns/:id/settlement/resume", sh.Resume)
	v1.GET("/campaigns/:id/settlement", sh.Get)
	v1.GET("/contributors/:ref/contributions", coh.ContributorHistory)
	v1.GET("/creators/:ref/summary", ch.CreatorSummary)

	return tr
}

func (tr *testRouter) do(method, path string, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req, _ := http.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	tr.engine.ServeHTTP(rr, req)
	return rr
}

func (tr *testRouter) assertExpectations(t mock.TestingT) {
	tr.campaigns.AssertExpectations(t)
	tr.contributions.AssertExpectations(t)
	tr.queries.AssertExpectations(t)
	tr.settlements.AssertExpectations(t)
}
