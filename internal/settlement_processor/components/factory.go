package components

import (
	"log/slog"

	"github.com/crowdfund-ledger/internal/config"
	"github.com/crowdfund-ledger/internal/domain/campaign"
	"github.com/crowdfund-ledger/internal/domain/contribution"
	"github.com/crowdfund-ledger/internal/domain/outbox"
	"github.com/crowdfund-ledger/internal/domain/settlement"
	"github.com/crowdfund-ledger/internal/metrics"
	"github.com/crowdfund-ledger/internal/platform/lock"
	"github.com/crowdfund-ledger/internal/platform/persistence"
	"github.com/crowdfund-ledger/internal/platform/transfer"
	"github.com/crowdfund-ledger/internal/settlement_processor/service"
)

// Repositories bundles the stores the settlement processor writes to.
type Repositories struct {
	Campaigns     campaign.Repository
	Contributions contribution.Repository
	Settlements   settlement.Repository
	Outbox        outbox.Repository
}

// CreateSettlementCoordinator wires the coordinator with its executor,
// dispatcher and outbox recorder. The returned dispatcher is nil when the
// coordinator runs attempts inline; callers shut it down on exit.
func CreateSettlementCoordinator(
	txManager persistence.TxManager,
	repos Repositories,
	gateway transfer.Gateway,
	locker lock.Locker,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg *config.Config,
) (*service.SettlementCoordinatorImpl, *service.WorkerPoolDispatcher) {
	executor := NewAttemptExecutor(gateway, repos.Settlements, m, logger.With("component", "attempt_executor"), &cfg.Settlement)
	recorder := NewOutboxRecorder(repos.Outbox, logger.With("component", "outbox_recorder"))

	var (
		dispatcher service.AttemptDispatcher = service.InlineDispatcher{}
		pool       *service.WorkerPoolDispatcher
	)
	if cfg.WorkerPool.Size > 0 {
		p, err := service.NewWorkerPoolDispatcher(
			service.WorkerPoolConfig{Size: cfg.WorkerPool.Size},
			logger.With("component", "worker_pool"),
		)
		if err != nil {
			logger.Error("Failed to create worker pool, running attempts inline", "error", err)
		} else {
			logger.Info("Created settlement worker pool", "pool_size", cfg.WorkerPool.Size)
			dispatcher = p
			pool = p
		}
	}

	operators := settlement.NewOperators(operatorRefs(&cfg.Settlement))
	if operators.Len() == 0 {
		logger.Warn("No settlement operators configured, begin and resume commands will be refused")
	} else {
		logger.Info("Loaded settlement operators", "count", operators.Len())
	}

	coordinator := service.NewSettlementCoordinator(service.CoordinatorDeps{
		TxManager:        txManager,
		CampaignRepo:     repos.Campaigns,
		ContributionRepo: repos.Contributions,
		SettlementRepo:   repos.Settlements,
		Events:           recorder,
		Executor:         executor,
		Dispatcher:       dispatcher,
		Locker:           locker,
		Operators:        operators,
		Metrics:          m,
		Logger:           logger.With("component", "settlement_coordinator"),
	})

	return coordinator, pool
}

// operatorRefs adds the scheduler identity to the allow list when the sweeper
// is allowed to begin settlement on its own.
func operatorRefs(cfg *config.SettlementConfig) []string {
	refs := make([]string, 0, len(cfg.Operators)+1)
	refs = append(refs, cfg.Operators...)
	if cfg.AutoBegin && cfg.SchedulerOperator != "" {
		refs = append(refs, cfg.SchedulerOperator)
	}
	return refs
}
