package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/crowdfund-ledger/internal/domain/campaign"
	"github.com/crowdfund-ledger/internal/domain/contribution"
	"github.com/crowdfund-ledger/internal/domain/settlement"
	"github.com/crowdfund-ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// inlineTx runs the unit of work without a real transaction.
type inlineTx struct{}

func (inlineTx) ExecuteTx(_ context.Context, fn func(tx pgx.Tx) error) error {
	return fn(nil)
}

// ledger is an in-memory stand-in for the three Postgres repositories.
type ledger struct {
	mu            sync.Mutex
	campaigns     map[uuid.UUID]*campaign.Campaign
	contributions []*contribution.Contribution
	records       map[uuid.UUID]*settlement.Record
	attempts      map[uuid.UUID][]*settlement.Attempt
}

func newLedger() *ledger {
	return &ledger{
		campaigns: make(map[uuid.UUID]*campaign.Campaign),
		records:   make(map[uuid.UUID]*settlement.Record),
		attempts:  make(map[uuid.UUID][]*settlement.Attempt),
	}
}

func (l *ledger) addCampaign(goal string, deadline time.Time, contributions map[string]string) *campaign.Campaign {
	l.mu.Lock()
	defer l.mu.Unlock()

	c := &campaign.Campaign{
		ID:             uuid.New(),
		CreatorRef:     "creator-1",
		FundingGoal:    decimal.RequireFromString(goal),
		CurrentFunding: decimal.Zero,
		Deadline:       deadline,
		Status:         campaign.StatusOpen,
		Version:        1,
		CreatedAt:      deadline.Add(-48 * time.Hour),
		UpdatedAt:      deadline.Add(-48 * time.Hour),
	}
	refs := make([]string, 0, len(contributions))
	for ref := range contributions {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	for i, ref := range refs {
		amount := decimal.RequireFromString(contributions[ref])
		l.contributions = append(l.contributions, &contribution.Contribution{
			ID:             uuid.New(),
			CampaignID:     c.ID,
			ContributorRef: ref,
			Amount:         amount,
			RecordedAt:     deadline.Add(-time.Duration(len(refs)-i) * time.Hour),
			TransferRef:    "in-" + ref,
		})
		c.CurrentFunding = c.CurrentFunding.Add(amount)
	}
	l.campaigns[c.ID] = c
	return c
}

func (l *ledger) status(id uuid.UUID) campaign.Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.campaigns[id].Status
}

func (l *ledger) recordCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

func (l *ledger) attemptsOf(id uuid.UUID) []settlement.Attempt {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]settlement.Attempt, 0, len(l.attempts[id]))
	for _, a := range l.attempts[id] {
		out = append(out, *a)
	}
	return out
}

type fakeCampaigns struct{ *ledger }

func (f fakeCampaigns) Create(_ context.Context, c *campaign.Campaign) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.campaigns[c.ID] = &cp
	return nil
}

func (f fakeCampaigns) GetByID(_ context.Context, id uuid.UUID) (*campaign.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return nil, campaign.ErrCampaignNotFound{CampaignID: id}
	}
	cp := *c
	return &cp, nil
}

func (f fakeCampaigns) LockForUpdate(ctx context.Context, id uuid.UUID) (*campaign.Campaign, error) {
	return f.GetByID(ctx, id)
}

func (f fakeCampaigns) AddFunding(_ context.Context, id uuid.UUID, amount decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok || c.AcceptsContributions(now) != nil {
		return decimal.Zero, campaign.ErrCampaignNotOpen
	}
	c.CurrentFunding = c.CurrentFunding.Add(amount)
	return c.CurrentFunding, nil
}

func (f fakeCampaigns) BeginSettling(_ context.Context, id uuid.UUID, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return false, nil
	}
	if (c.Status != campaign.StatusOpen && c.Status != campaign.StatusClosed) || now.Before(c.Deadline) {
		return false, nil
	}
	c.Status = campaign.StatusSettling
	c.UpdatedAt = now
	return true, nil
}

func (f fakeCampaigns) TransitionStatus(_ context.Context, id uuid.UUID, from []campaign.Status, to campaign.Status, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return false, nil
	}
	for _, s := range from {
		if c.Status == s {
			c.Status = to
			c.UpdatedAt = now
			return true, nil
		}
	}
	return false, nil
}

func (f fakeCampaigns) CloseExpired(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uuid.UUID
	for id, c := range f.campaigns {
		if len(ids) == limit {
			break
		}
		if c.Status == campaign.StatusOpen && !now.Before(c.Deadline) {
			c.Status = campaign.StatusClosed
			c.UpdatedAt = now
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f fakeCampaigns) ListByStatus(_ context.Context, status campaign.Status, updatedBefore time.Time, limit int) ([]*campaign.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*campaign.Campaign
	for _, c := range f.campaigns {
		if len(out) == limit {
			break
		}
		if c.Status == status && c.UpdatedAt.Before(updatedBefore) {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f fakeCampaigns) SummarizeCreator(context.Context, string, time.Time) (*campaign.CreatorSummary, error) {
	return nil, errors.New("creator summaries are not read by the settlement processor")
}

func (f fakeCampaigns) WithTx(pgx.Tx) campaign.Repository { return f }

type fakeContributions struct{ *ledger }

func (f fakeContributions) Create(_ context.Context, c *contribution.Contribution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contributions = append(f.contributions, c)
	return nil
}

func (f fakeContributions) ListByCampaign(_ context.Context, campaignID uuid.UUID, _ contribution.Order) ([]*contribution.Contribution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*contribution.Contribution
	for _, c := range f.contributions {
		if c.CampaignID == campaignID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f fakeContributions) TotalsByContributor(_ context.Context, campaignID uuid.UUID) ([]contribution.ContributorTotal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	index := make(map[string]int)
	var totals []contribution.ContributorTotal
	for _, c := range f.contributions {
		if c.CampaignID != campaignID {
			continue
		}
		i, ok := index[c.ContributorRef]
		if !ok {
			index[c.ContributorRef] = len(totals)
			totals = append(totals, contribution.ContributorTotal{ContributorRef: c.ContributorRef, Total: c.Amount, FirstRecordedAt: c.RecordedAt})
			continue
		}
		totals[i].Total = totals[i].Total.Add(c.Amount)
	}
	return totals, nil
}

func (f fakeContributions) CampaignStats(context.Context, uuid.UUID) (*contribution.Stats, error) {
	return contribution.NewStats(decimal.Zero, 0, 0), nil
}

func (f fakeContributions) ListByContributor(context.Context, string, int, int) ([]*contribution.Contribution, error) {
	return nil, nil
}

func (f fakeContributions) ContributorSummary(context.Context, string) (int64, decimal.Decimal, error) {
	return 0, decimal.Zero, nil
}

func (f fakeContributions) WithTx(pgx.Tx) contribution.Repository { return f }

type fakeSettlements struct{ *ledger }

func (f fakeSettlements) CreateRecord(_ context.Context, r *settlement.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.records[r.CampaignID]; exists {
		return settlement.ErrSettlementExists{CampaignID: r.CampaignID}
	}
	cp := *r
	f.records[r.CampaignID] = &cp
	return nil
}

func (f fakeSettlements) GetRecord(_ context.Context, campaignID uuid.UUID) (*settlement.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[campaignID]
	if !ok {
		return nil, settlement.ErrSettlementNotFound{CampaignID: campaignID}
	}
	cp := *r
	return &cp, nil
}

func (f fakeSettlements) FinalizeRecord(_ context.Context, campaignID uuid.UUID, allSucceeded bool, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[campaignID]
	if !ok {
		return settlement.ErrSettlementNotFound{CampaignID: campaignID}
	}
	r.CompletedAt = &now
	r.AllAttemptsSucceeded = allSucceeded
	return nil
}

func (f fakeSettlements) CreateAttempts(_ context.Context, attempts []*settlement.Attempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range attempts {
		cp := *a
		f.attempts[a.CampaignID] = append(f.attempts[a.CampaignID], &cp)
	}
	return nil
}

func (f fakeSettlements) ListAttempts(_ context.Context, campaignID uuid.UUID) ([]*settlement.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*settlement.Attempt, 0, len(f.attempts[campaignID]))
	for _, a := range f.attempts[campaignID] {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (f fakeSettlements) find(id uuid.UUID) *settlement.Attempt {
	for _, list := range f.attempts {
		for _, a := range list {
			if a.ID == id {
				return a
			}
		}
	}
	return nil
}

func (f fakeSettlements) IncrementAttemptCount(_ context.Context, attemptID uuid.UUID, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.find(attemptID)
	if a == nil || a.Succeeded() {
		return settlement.ErrAttemptNotFound{AttemptID: attemptID}
	}
	a.AttemptCount++
	a.UpdatedAt = now
	return nil
}

func (f fakeSettlements) MarkAttemptSucceeded(_ context.Context, attemptID uuid.UUID, transferRef string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.find(attemptID)
	if a == nil || a.Succeeded() {
		return settlement.ErrAttemptNotFound{AttemptID: attemptID}
	}
	a.Outcome = settlement.OutcomeSucceeded
	a.TransferRef = transferRef
	a.LastError = ""
	a.UpdatedAt = now
	return nil
}

func (f fakeSettlements) MarkAttemptFailed(_ context.Context, attemptID uuid.UUID, reason string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.find(attemptID)
	if a == nil || a.Succeeded() {
		return settlement.ErrAttemptNotFound{AttemptID: attemptID}
	}
	a.Outcome = settlement.OutcomeFailed
	a.LastError = reason
	a.UpdatedAt = now
	return nil
}

func (f fakeSettlements) WithTx(pgx.Tx) settlement.Repository { return f }

// fakeGatewayExecutor stands in for the retrying executor. Recipients listed
// in failures fail until cleared.
// Recipients listed in hangs block until the drive is cancelled.
type fakeGatewayExecutor struct {
	mu       sync.Mutex
	failures map[string]error
	hangs    map[string]bool
	sends    map[string][]string
}

func newFakeExecutor() *fakeGatewayExecutor {
	return &fakeGatewayExecutor{
		failures: make(map[string]error),
		hangs:    make(map[string]bool),
		sends:    make(map[string][]string),
	}
}

func (f *fakeGatewayExecutor) hangFor(recipient string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hangs[recipient] = true
}

func (f *fakeGatewayExecutor) failFor(recipient string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, recipient)
		return
	}
	f.failures[recipient] = err
}

func (f *fakeGatewayExecutor) Execute(ctx context.Context, a *settlement.Attempt) (string, error) {
	f.mu.Lock()
	f.sends[a.RecipientRef] = append(f.sends[a.RecipientRef], a.IdempotencyKey())
	hang := f.hangs[a.RecipientRef]
	failure := f.failures[a.RecipientRef]
	f.mu.Unlock()

	if hang {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if failure != nil {
		return "", failure
	}
	return "transfer-" + a.RecipientRef, nil
}

func (f *fakeGatewayExecutor) keysFor(recipient string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sends[recipient]...)
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []*shared.Event
}

func (r *fakeRecorder) Record(_ context.Context, _ pgx.Tx, event *shared.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *fakeRecorder) kinds() []shared.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]shared.EventKind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

func (r *fakeRecorder) count(kind shared.EventKind) int {
	n := 0
	for _, k := range r.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}
