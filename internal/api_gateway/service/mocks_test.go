package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/crowdfund-ledger/internal/domain/audit"
	"github.com/crowdfund-ledger/internal/domain/campaign"
	"github.com/crowdfund-ledger/internal/domain/contribution"
	"github.com/crowdfund-ledger/internal/domain/outbox"
	"github.com/crowdfund-ledger/internal/domain/settlement"
	"github.com/crowdfund-ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

type MockCampaignRepository struct {
	mock.Mock
}

func (m *MockCampaignRepository) Create(ctx context.Context, c *campaign.Campaign) error {
	return m.Called(ctx, c).Error(0)
}

func (m *MockCampaignRepository) GetByID(ctx context.Context, id uuid.UUID) (*campaign.Campaign, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*campaign.Campaign), args.Error(1)
}

func (m *MockCampaignRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*campaign.Campaign, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*campaign.Campaign), args.Error(1)
}

func (m *MockCampaignRepository) AddFunding(ctx context.Context, id uuid.UUID, amount decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	args := m.Called(ctx, id, amount, now)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockCampaignRepository) BeginSettling(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	args := m.Called(ctx, id, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockCampaignRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from []campaign.Status, to campaign.Status, now time.Time) (bool, error) {
	args := m.Called(ctx, id, from, to, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockCampaignRepository) CloseExpired(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockCampaignRepository) ListByStatus(ctx context.Context, status campaign.Status, updatedBefore time.Time, limit int) ([]*campaign.Campaign, error) {
	args := m.Called(ctx, status, updatedBefore, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*campaign.Campaign), args.Error(1)
}

func (m *MockCampaignRepository) SummarizeCreator(ctx context.Context, creatorRef string, now time.Time) (*campaign.CreatorSummary, error) {
	args := m.Called(ctx, creatorRef, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*campaign.CreatorSummary), args.Error(1)
}

func (m *MockCampaignRepository) WithTx(pgx.Tx) campaign.Repository {
	return m
}

type MockContributionRepository struct {
	mock.Mock
}

func (m *MockContributionRepository) Create(ctx context.Context, c *contribution.Contribution) error {
	return m.Called(ctx, c).Error(0)
}

func (m *MockContributionRepository) ListByCampaign(ctx context.Context, campaignID uuid.UUID, order contribution.Order) ([]*contribution.Contribution, error) {
	args := m.Called(ctx, campaignID, order)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*contribution.Contribution), args.Error(1)
}

func (m *MockContributionRepository) TotalsByContributor(ctx context.Context, campaignID uuid.UUID) ([]contribution.ContributorTotal, error) {
	args := m.Called(ctx, campaignID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]contribution.ContributorTotal), args.Error(1)
}

func (m *MockContributionRepository) CampaignStats(ctx context.Context, campaignID uuid.UUID) (*contribution.Stats, error) {
	args := m.Called(ctx, campaignID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*contribution.Stats), args.Error(1)
}

func (m *MockContributionRepository) ListByContributor(ctx context.Context, contributorRef string, limit, offset int) ([]*contribution.Contribution, error) {
	args := m.Called(ctx, contributorRef, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*contribution.Contribution), args.Error(1)
}

func (m *MockContributionRepository) ContributorSummary(ctx context.Context, contributorRef string) (int64, decimal.Decimal, error) {
	args := m.Called(ctx, contributorRef)
	return args.Get(0).(int64), args.Get(1).(decimal.Decimal), args.Error(2)
}

func (m *MockContributionRepository) WithTx(pgx.Tx) contribution.Repository {
	return m
}

type MockSettlementRepository struct {
	mock.Mock
}

func (m *MockSettlementRepository) CreateRecord(ctx context.Context, record *settlement.Record) error {
	return m.Called(ctx, record).Error(0)
}

func (m *MockSettlementRepository) GetRecord(ctx context.Context, campaignID uuid.UUID) (*settlement.Record, error) {
	args := m.Called(ctx, campaignID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.Record), args.Error(1)
}

func (m *MockSettlementRepository) FinalizeRecord(ctx context.Context, campaignID uuid.UUID, allSucceeded bool, now time.Time) error {
	return m.Called(ctx, campaignID, allSucceeded, now).Error(0)
}

func (m *MockSettlementRepository) CreateAttempts(ctx context.Context, attempts []*settlement.Attempt) error {
	return m.Called(ctx, attempts).Error(0)
}

func (m *MockSettlementRepository) ListAttempts(ctx context.Context, campaignID uuid.UUID) ([]*settlement.Attempt, error) {
	args := m.Called(ctx, campaignID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*settlement.Attempt), args.Error(1)
}

func (m *MockSettlementRepository) IncrementAttemptCount(ctx context.Context, attemptID uuid.UUID, now time.Time) error {
	return m.Called(ctx, attemptID, now).Error(0)
}

func (m *MockSettlementRepository) MarkAttemptSucceeded(ctx context.Context, attemptID uuid.UUID, transferRef string, now time.Time) error {
	return m.Called(ctx, attemptID, transferRef, now).Error(0)
}

func (m *MockSettlementRepository) MarkAttemptFailed(ctx context.Context, attemptID uuid.UUID, reason string, now time.Time) error {
	return m.Called(ctx, attemptID, reason, now).Error(0)
}

func (m *MockSettlementRepository) WithTx(pgx.Tx) settlement.Repository {
	return m
}

type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) Create(ctx context.Context, message *outbox.Message) error {
	return m.Called(ctx, message).Error(0)
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*outbox.Message, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outbox.Message), args.Error(1)
}

func (m *MockOutboxRepository) UpdateStatus(ctx context.Context, id int64, status shared.OutboxStatus) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *MockOutboxRepository) IncrementAttempts(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockOutboxRepository) PurgeProcessed(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	args := m.Called(ctx, cutoff, limit)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOutboxRepository) WithTx(pgx.Tx) outbox.Repository {
	return m
}

type MockAuditRepository struct {
	mock.Mock
}

func (m *MockAuditRepository) Append(ctx context.Context, entry *audit.Entry) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *MockAuditRepository) ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit, offset int) ([]*audit.Entry, error) {
	args := m.Called(ctx, campaignID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*audit.Entry), args.Error(1)
}

func (m *MockAuditRepository) CountByCampaign(ctx context.Context, campaignID uuid.UUID) (int64, error) {
	args := m.Called(ctx, campaignID)
	return args.Get(0).(int64), args.Error(1)
}

type MockMessagePublisher struct {
	mock.Mock
}

func (m *MockMessagePublisher) Publish(ctx context.Context, key string, value interface{}, headers ...kafka.Header) error {
	return m.Called(ctx, key, value).Error(0)
}

func (m *MockMessagePublisher) Close() error {
	return m.Called().Error(0)
}
