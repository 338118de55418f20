package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/crowdfund-ledger/internal/domain/campaign"
	"github.com/crowdfund-ledger/internal/domain/contribution"
	"github.com/crowdfund-ledger/internal/domain/settlement"
	"github.com/crowdfund-ledger/internal/domain/shared"
	"github.com/crowdfund-ledger/internal/metrics"
	"github.com/crowdfund-ledger/internal/platform/lock"
	"github.com/crowdfund-ledger/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

var (
	ErrDriverBusy  = errors.New("settlement is being driven by another worker")
	ErrNotSettling = errors.New("campaign is not settling")
)

const lockKeyPrefix = "settlement:lock:"

// DriveResult summarizes one pass over a campaign's unsettled attempts.
type DriveResult struct {
	CampaignID uuid.UUID       `json:"campaign_id"`
	Decision   settlement.Kind `json:"decision"`
	Status     campaign.Status `json:"status"`
	Attempted  int             `json:"attempted"`
	Succeeded  int             `json:"succeeded"`
	Failed     int             `json:"failed"`
}

type settlementStartedPayload struct {
	Decision        settlement.Kind `json:"decision"`
	FundingGoal     decimal.Decimal `json:"funding_goal"`
	FundingSnapshot decimal.Decimal `json:"funding_snapshot"`
	DecidedBy       string          `json:"decided_by"`
	Attempts        int             `json:"attempts"`
}

type attemptPayload struct {
	AttemptID    uuid.UUID       `json:"attempt_id"`
	RecipientRef string          `json:"recipient_ref"`
	Amount       decimal.Decimal `json:"amount"`
	Kind         settlement.Kind `json:"kind"`
	TransferRef  string          `json:"transfer_ref,omitempty"`
	Error        string          `json:"error,omitempty"`
}

type settlementFinishedPayload struct {
	Decision  settlement.Kind `json:"decision"`
	Total     int             `json:"attempts"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
}

// CoordinatorDeps groups the collaborators of SettlementCoordinatorImpl.
type CoordinatorDeps struct {
	TxManager        persistence.TxManager
	CampaignRepo     campaign.Repository
	ContributionRepo contribution.Repository
	SettlementRepo   settlement.Repository
	Events           EventRecorder
	Executor         AttemptExecutor
	Dispatcher       AttemptDispatcher
	Locker           lock.Locker
	Operators        *settlement.Operators
	Metrics          *metrics.Metrics
	Logger           *slog.Logger
	Now              func() time.Time
}

type SettlementCoordinatorImpl struct {
	txManager        persistence.TxManager
	campaignRepo     campaign.Repository
	contributionRepo contribution.Repository
	settlementRepo   settlement.Repository
	events           EventRecorder
	executor         AttemptExecutor
	dispatcher       AttemptDispatcher
	locker           lock.Locker
	operators        *settlement.Operators
	metrics          *metrics.Metrics
	logger           *slog.Logger
	now              func() time.Time
}

func NewSettlementCoordinator(deps CoordinatorDeps) *SettlementCoordinatorImpl {
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		dispatcher = InlineDispatcher{}
	}
	return &SettlementCoordinatorImpl{
		txManager:        deps.TxManager,
		campaignRepo:     deps.CampaignRepo,
		contributionRepo: deps.ContributionRepo,
		settlementRepo:   deps.SettlementRepo,
		events:           deps.Events,
		executor:         deps.Executor,
		dispatcher:       dispatcher,
		locker:           deps.Locker,
		operators:        deps.Operators,
		metrics:          deps.Metrics,
		logger:           deps.Logger,
		now:              now,
	}
}

// BeginSettlement moves a closed campaign to SETTLING, persists the decision
// and its attempts in the same transaction, and then drives the attempts.
func (s *SettlementCoordinatorImpl) BeginSettlement(ctx context.Context, campaignID uuid.UUID, operatorRef string) (*DriveResult, error) {
	if err := s.operators.Authorize(operatorRef); err != nil {
		return nil, err
	}

	logger := s.logger.With("campaign_id", campaignID.String(), "operator_ref", operatorRef)
	now := s.now()

	var record *settlement.Record
	err := s.txManager.ExecuteTx(ctx, func(tx pgx.Tx) error {
		campaigns := s.campaignRepo.WithTx(tx)

		won, err := campaigns.BeginSettling(ctx, campaignID, now)
		if err != nil {
			return err
		}
		if !won {
			return s.explainLostBegin(ctx, campaigns, campaignID, now)
		}

		c, err := campaigns.GetByID(ctx, campaignID)
		if err != nil {
			return err
		}

		record = settlement.NewRecord(c.ID, c.FundingGoal, c.CurrentFunding, operatorRef, now)
		if err := s.settlementRepo.WithTx(tx).CreateRecord(ctx, record); err != nil {
			return err
		}

		totals, err := s.contributionRepo.WithTx(tx).TotalsByContributor(ctx, campaignID)
		if err != nil {
			return err
		}

		attempts, err := settlement.Plan(record, c.CreatorRef, totals, now)
		if err != nil {
			return err
		}
		if err := s.settlementRepo.WithTx(tx).CreateAttempts(ctx, attempts); err != nil {
			return err
		}

		event, err := shared.NewEvent(campaignID, shared.EventSettlementStarted, settlementStartedPayload{
			Decision:        record.Decision,
			FundingGoal:     record.FundingGoal,
			FundingSnapshot: record.FundingSnapshot,
			DecidedBy:       operatorRef,
			Attempts:        len(attempts),
		}, now)
		if err != nil {
			return err
		}
		return s.events.Record(ctx, tx, event)
	})
	if err != nil {
		logger.Warn("Settlement could not begin", "error", err)
		return nil, err
	}

	s.metrics.SettlementDecided(string(record.Decision))
	logger.Info("Settlement decided",
		"decision", string(record.Decision),
		"funding_goal", record.FundingGoal.String(),
		"funding_snapshot", record.FundingSnapshot.String(),
	)

	return s.drive(ctx, campaignID)
}

// explainLostBegin turns a failed compare-and-swap into the reason it failed.
func (s *SettlementCoordinatorImpl) explainLostBegin(ctx context.Context, campaigns campaign.Repository, campaignID uuid.UUID, now time.Time) error {
	c, err := campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return err
	}
	if err := c.CanBeginSettlement(now); err != nil {
		return err
	}
	return campaign.ErrAlreadySettling
}

// ResumeSettlement re-drives every attempt that has not succeeded. The
// attempts keep their idempotency keys, so it is safe to call repeatedly.
func (s *SettlementCoordinatorImpl) ResumeSettlement(ctx context.Context, campaignID uuid.UUID, operatorRef string) (*DriveResult, error) {
	if err := s.operators.Authorize(operatorRef); err != nil {
		return nil, err
	}

	c, err := s.campaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if err := c.CanResumeSettlement(); err != nil {
		return nil, err
	}

	s.logger.Info("Resuming stalled settlement", "campaign_id", campaignID.String(), "operator_ref", operatorRef)
	return s.drive(ctx, campaignID)
}

func (s *SettlementCoordinatorImpl) RecoverSettlement(ctx context.Context, campaignID uuid.UUID) (*DriveResult, error) {
	c, err := s.campaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c.Status != campaign.StatusSettling {
		return nil, ErrNotSettling
	}

	s.logger.Warn("Recovering interrupted settlement", "campaign_id", campaignID.String())
	return s.drive(ctx, campaignID)
}

// drive runs the unsettled attempts under the campaign lock and finalizes the
// campaign from what was persisted.
func (s *SettlementCoordinatorImpl) drive(ctx context.Context, campaignID uuid.UUID) (*DriveResult, error) {
	logger := s.logger.With("campaign_id", campaignID.String())

	key := lockKeyPrefix + campaignID.String()
	token, acquired, err := s.locker.TryLock(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire settlement lock: %w", err)
	}
	if !acquired {
		logger.Info("Settlement lock held elsewhere, skipping drive")
		return nil, ErrDriverBusy
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			logger.Warn("Failed to release settlement lock", "error", err)
		}
	}()

	// The drive stops as soon as the lock can no longer be extended, so a
	// second driver never overlaps with this one.
	ctx, cancel := context.WithCancelCause(ctx)
	kept := make(chan struct{})
	go func() {
		defer close(kept)
		lock.Keep(ctx, s.locker, key, token, s.locker.RefreshInterval(), func(err error) {
			logger.Error("Lost settlement lock, stopping drive", "error", err)
			cancel(fmt.Errorf("%w: %w", lock.ErrLockLost, err))
		})
	}()
	defer func() {
		cancel(nil)
		<-kept
	}()

	record, err := s.settlementRepo.GetRecord(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	attempts, err := s.settlementRepo.ListAttempts(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	pending := settlement.Unsettled(attempts)
	result := &DriveResult{
		CampaignID: campaignID,
		Decision:   record.Decision,
		Attempted:  len(pending),
	}

	succeeded := make([]bool, len(pending))
	if len(pending) > 0 {
		logger.Info("Driving settlement attempts", "pending", len(pending), "total", len(attempts))
		err := s.dispatcher.Dispatch(ctx, len(pending), func(ctx context.Context, i int) {
			succeeded[i] = s.runAttempt(ctx, pending[i])
		})
		if err != nil {
			return nil, err
		}
	}
	for _, ok := range succeeded {
		if ok {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}

	if ctx.Err() != nil {
		return nil, context.Cause(ctx)
	}

	// Finalize from storage, not from the in-memory outcomes.
	attempts, err = s.settlementRepo.ListAttempts(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	status, err := s.finalize(ctx, record, attempts)
	if err != nil {
		return nil, err
	}
	result.Status = status

	logger.Info("Settlement drive finished",
		"status", string(status),
		"attempted", result.Attempted,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
	)
	return result, nil
}

// runAttempt reports whether the attempt succeeded and its outcome was stored.
func (s *SettlementCoordinatorImpl) runAttempt(ctx context.Context, attempt *settlement.Attempt) bool {
	logger := s.logger.With(
		"campaign_id", attempt.CampaignID.String(),
		"attempt_id", attempt.ID.String(),
		"recipient_ref", attempt.RecipientRef,
	)

	transferRef, sendErr := s.executor.Execute(ctx, attempt)
	now := s.now()

	payload := attemptPayload{
		AttemptID:    attempt.ID,
		RecipientRef: attempt.RecipientRef,
		Amount:       attempt.Amount,
		Kind:         attempt.Kind,
		TransferRef:  transferRef,
	}

	if sendErr == nil {
		err := s.txManager.ExecuteTx(ctx, func(tx pgx.Tx) error {
			if err := s.settlementRepo.WithTx(tx).MarkAttemptSucceeded(ctx, attempt.ID, transferRef, now); err != nil {
				return err
			}
			return s.recordEvent(ctx, tx, attempt.CampaignID, shared.EventSettlementAttemptSucceeded, payload, now)
		})
		if err != nil {
			// The transfer went through but the outcome is not stored. A later
			// drive resends with the same idempotency key.
			logger.Error("Failed to record successful attempt", "transfer_ref", transferRef, "error", err)
			return false
		}
		s.metrics.AttemptFinished(string(attempt.Kind), string(settlement.OutcomeSucceeded))
		logger.Info("Settlement attempt succeeded", "transfer_ref", transferRef)
		return true
	}

	if ctx.Err() != nil {
		// The drive was stopped mid-call. The outcome is unknown, so the
		// attempt stays pending for the next driver.
		logger.Warn("Settlement attempt interrupted", "error", sendErr)
		return false
	}

	payload.Error = sendErr.Error()
	err := s.txManager.ExecuteTx(ctx, func(tx pgx.Tx) error {
		if err := s.settlementRepo.WithTx(tx).MarkAttemptFailed(ctx, attempt.ID, sendErr.Error(), now); err != nil {
			return err
		}
		return s.recordEvent(ctx, tx, attempt.CampaignID, shared.EventSettlementAttemptFailed, payload, now)
	})
	if err != nil {
		logger.Error("Failed to record failed attempt", "send_error", sendErr, "error", err)
	}
	s.metrics.AttemptFinished(string(attempt.Kind), string(settlement.OutcomeFailed))
	logger.Warn("Settlement attempt failed", "error", sendErr)
	return false
}

// finalize settles the campaign when every attempt succeeded and stalls it
// otherwise.
func (s *SettlementCoordinatorImpl) finalize(ctx context.Context, record *settlement.Record, attempts []*settlement.Attempt) (campaign.Status, error) {
	campaignID := record.CampaignID
	now := s.now()
	allSucceeded := settlement.AllSucceeded(attempts)

	payload := settlementFinishedPayload{
		Decision: record.Decision,
		Total:    len(attempts),
	}
	for _, a := range attempts {
		if a.Succeeded() {
			payload.Succeeded++
		} else {
			payload.Failed++
		}
	}

	if allSucceeded {
		err := s.txManager.ExecuteTx(ctx, func(tx pgx.Tx) error {
			moved, err := s.campaignRepo.WithTx(tx).TransitionStatus(ctx, campaignID,
				[]campaign.Status{campaign.StatusSettling, campaign.StatusSettlementStalled},
				campaign.StatusSettled, now)
			if err != nil {
				return err
			}
			if !moved {
				return fmt.Errorf("%w: campaign %s cannot be settled", campaign.ErrInvalidTransition, campaignID)
			}
			if err := s.settlementRepo.WithTx(tx).FinalizeRecord(ctx, campaignID, true, now); err != nil {
				return err
			}
			return s.recordEvent(ctx, tx, campaignID, shared.EventSettlementCompleted, payload, now)
		})
		if err != nil {
			return "", err
		}
		s.metrics.SettlementCompleted()
		return campaign.StatusSettled, nil
	}

	err := s.txManager.ExecuteTx(ctx, func(tx pgx.Tx) error {
		if _, err := s.campaignRepo.WithTx(tx).TransitionStatus(ctx, campaignID,
			[]campaign.Status{campaign.StatusSettling},
			campaign.StatusSettlementStalled, now); err != nil {
			return err
		}
		if err := s.settlementRepo.WithTx(tx).FinalizeRecord(ctx, campaignID, false, now); err != nil {
			return err
		}
		return s.recordEvent(ctx, tx, campaignID, shared.EventSettlementStalled, payload, now)
	})
	if err != nil {
		return "", err
	}
	s.metrics.SettlementStalled()
	return campaign.StatusSettlementStalled, nil
}

func (s *SettlementCoordinatorImpl) recordEvent(ctx context.Context, tx pgx.Tx, campaignID uuid.UUID, kind shared.EventKind, payload any, now time.Time) error {
	event, err := shared.NewEvent(campaignID, kind, payload, now)
	if err != nil {
		return err
	}
	return s.events.Record(ctx, tx, event)
}
