package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/crowdfund-ledger/internal/domain/campaign"
	"github.com/crowdfund-ledger/internal/domain/contribution"
	"github.com/crowdfund-ledger/internal/domain/outbox"
	"github.com/crowdfund-ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

var errNotSupported = errors.New("not supported by the in-memory ledger")

// memLedger behaves like the Postgres ledger for the contribution path.
// LockForUpdate holds the campaign row until the unit of work ends and writes
// only become visible when it commits.
type memLedger struct {
	mu            sync.Mutex
	rowLocks      map[uuid.UUID]*sync.Mutex
	campaigns     map[uuid.UUID]*campaign.Campaign
	contributions []*contribution.Contribution
	messages      []*outbox.Message
}

func newMemLedger() *memLedger {
	return &memLedger{
		rowLocks:  make(map[uuid.UUID]*sync.Mutex),
		campaigns: make(map[uuid.UUID]*campaign.Campaign),
	}
}

func (l *memLedger) addCampaign(c *campaign.Campaign) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.campaigns[c.ID] = c
	l.rowLocks[c.ID] = &sync.Mutex{}
}

func (l *memLedger) funding(id uuid.UUID) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.campaigns[id].CurrentFunding
}

func (l *memLedger) committed(id uuid.UUID) ([]*contribution.Contribution, []*outbox.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var cs []*contribution.Contribution
	for _, c := range l.contributions {
		if c.CampaignID == id {
			cs = append(cs, c)
		}
	}
	var ms []*outbox.Message
	for _, m := range l.messages {
		if m.CampaignID == id {
			ms = append(ms, m)
		}
	}
	return cs, ms
}

// ExecuteTx commits the staged writes only when fn succeeds and always
// releases the row locks taken inside it.
func (l *memLedger) ExecuteTx(_ context.Context, fn func(tx pgx.Tx) error) error {
	tx := &memTx{ledger: l, funding: make(map[uuid.UUID]decimal.Decimal)}
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

type memTx struct {
	pgx.Tx
	ledger        *memLedger
	held          []*sync.Mutex
	funding       map[uuid.UUID]decimal.Decimal
	contributions []*contribution.Contribution
	messages      []*outbox.Message
}

func (tx *memTx) commit() {
	l := tx.ledger
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, total := range tx.funding {
		l.campaigns[id].CurrentFunding = total
	}
	l.contributions = append(l.contributions, tx.contributions...)
	l.messages = append(l.messages, tx.messages...)
}

func (tx *memTx) release() {
	for i := len(tx.held) - 1; i >= 0; i-- {
		tx.held[i].Unlock()
	}
}

type memCampaigns struct {
	ledger *memLedger
	tx     *memTx
}

func (r memCampaigns) Create(context.Context, *campaign.Campaign) error { return errNotSupported }

func (r memCampaigns) GetByID(_ context.Context, id uuid.UUID) (*campaign.Campaign, error) {
	r.ledger.mu.Lock()
	defer r.ledger.mu.Unlock()
	c, ok := r.ledger.campaigns[id]
	if !ok {
		return nil, campaign.ErrCampaignNotFound{CampaignID: id}
	}
	cp := *c
	return &cp, nil
}

func (r memCampaigns) LockForUpdate(ctx context.Context, id uuid.UUID) (*campaign.Campaign, error) {
	r.ledger.mu.Lock()
	row, ok := r.ledger.rowLocks[id]
	r.ledger.mu.Unlock()
	if !ok {
		return nil, campaign.ErrCampaignNotFound{CampaignID: id}
	}
	row.Lock()
	r.tx.held = append(r.tx.held, row)
	return r.GetByID(ctx, id)
}

func (r memCampaigns) AddFunding(_ context.Context, id uuid.UUID, amount decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	r.ledger.mu.Lock()
	c := r.ledger.campaigns[id]
	open := c.Status == campaign.StatusOpen && c.Deadline.After(now)
	current := c.CurrentFunding
	r.ledger.mu.Unlock()
	if !open {
		return decimal.Zero, campaign.ErrCampaignNotOpen
	}

	if staged, ok := r.tx.funding[id]; ok {
		current = staged
	}
	total := current.Add(amount)
	r.tx.funding[id] = total
	return total, nil
}

func (r memCampaigns) BeginSettling(context.Context, uuid.UUID, time.Time) (bool, error) {
	return false, errNotSupported
}

func (r memCampaigns) TransitionStatus(context.Context, uuid.UUID, []campaign.Status, campaign.Status, time.Time) (bool, error) {
	return false, errNotSupported
}

func (r memCampaigns) CloseExpired(context.Context, time.Time, int) ([]uuid.UUID, error) {
	return nil, errNotSupported
}

func (r memCampaigns) ListByStatus(context.Context, campaign.Status, time.Time, int) ([]*campaign.Campaign, error) {
	return nil, errNotSupported
}

func (r memCampaigns) SummarizeCreator(context.Context, string, time.Time) (*campaign.CreatorSummary, error) {
	return nil, errNotSupported
}

func (r memCampaigns) WithTx(tx pgx.Tx) campaign.Repository {
	return memCampaigns{ledger: r.ledger, tx: tx.(*memTx)}
}

type memContributions struct {
	ledger *memLedger
	tx     *memTx
}

func (r memContributions) Create(_ context.Context, c *contribution.Contribution) error {
	r.ledger.mu.Lock()
	defer r.ledger.mu.Unlock()
	for _, set := range [][]*contribution.Contribution{r.ledger.contributions, r.tx.contributions} {
		for _, existing := range set {
			if existing.TransferRef == c.TransferRef {
				return contribution.ErrDuplicateContribution{TransferRef: c.TransferRef}
			}
		}
	}
	r.tx.contributions = append(r.tx.contributions, c)
	return nil
}

func (r memContributions) ListByCampaign(context.Context, uuid.UUID, contribution.Order) ([]*contribution.Contribution, error) {
	return nil, errNotSupported
}

func (r memContributions) TotalsByContributor(context.Context, uuid.UUID) ([]contribution.ContributorTotal, error) {
	return nil, errNotSupported
}

func (r memContributions) CampaignStats(context.Context, uuid.UUID) (*contribution.Stats, error) {
	return nil, errNotSupported
}

func (r memContributions) ListByContributor(context.Context, string, int, int) ([]*contribution.Contribution, error) {
	return nil, errNotSupported
}

func (r memContributions) ContributorSummary(context.Context, string) (int64, decimal.Decimal, error) {
	return 0, decimal.Zero, errNotSupported
}

func (r memContributions) WithTx(tx pgx.Tx) contribution.Repository {
	return memContributions{ledger: r.ledger, tx: tx.(*memTx)}
}

type memOutbox struct {
	tx *memTx
}

func (r memOutbox) Create(_ context.Context, m *outbox.Message) error {
	r.tx.messages = append(r.tx.messages, m)
	return nil
}

func (r memOutbox) GetPending(context.Context, int) ([]*outbox.Message, error) {
	return nil, errNotSupported
}

func (r memOutbox) UpdateStatus(context.Context, int64, shared.OutboxStatus) error {
	return errNotSupported
}

func (r memOutbox) IncrementAttempts(context.Context, int64) error { return errNotSupported }

func (r memOutbox) PurgeProcessed(context.Context, time.Time, int) (int64, error) {
	return 0, errNotSupported
}

func (r memOutbox) WithTx(tx pgx.Tx) outbox.Repository { return memOutbox{tx: tx.(*memTx)} }
