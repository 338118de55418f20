package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/crowdfund-ledger/internal/api_gateway"
	"github.com/crowdfund-ledger/internal/api_gateway/service"
	"github.com/crowdfund-ledger/internal/config"
	"github.com/crowdfund-ledger/internal/data/mongo"
	"github.com/crowdfund-ledger/internal/data/postgres"
	"github.com/crowdfund-ledger/internal/domain/settlement"
	"github.com/crowdfund-ledger/internal/logger"
	"github.com/crowdfund-ledger/internal/metrics"
	"github.com/crowdfund-ledger/internal/platform/messaging/producers"
	"github.com/crowdfund-ledger/internal/platform/persistence"
)

func main() {
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("api_gateway")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)
	m := metrics.New("api_gateway")

	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	// Settlement requests are handed to the settlement processor
	commandProducer, err := producers.NewSettlementCommandProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize settlement command producer", "error", err)
		os.Exit(1)
	}

	campaignRepo := postgres.NewCampaignRepository(log, postgresDB)
	contributionRepo := postgres.NewContributionRepository(log, postgresDB)
	settlementRepo := postgres.NewSettlementRepository(log, postgresDB)
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB)
	auditRepo := mongo.NewAuditRepository(log, mongoDB.Database())

	services := api_gateway.Services{
		Campaigns:     service.NewCampaignService(log.With("component", "campaign_service"), campaignRepo),
		Contributions: service.NewContributionService(log.With("component", "contribution_service"), postgresDB, campaignRepo, contributionRepo, outboxRepo, m),
		Queries:       service.NewQueryService(log.With("component", "query_service"), postgresDB, campaignRepo, contributionRepo, settlementRepo, auditRepo),
		Settlements: service.NewSettlementCommandService(
			log.With("component", "settlement_command_service"),
			campaignRepo,
			settlement.NewOperators(cfg.Settlement.Operators),
			commandProducer,
		),
	}

	server := api_gateway.NewServer(log, cfg, services, m,
		api_gateway.ReadinessCheck{Name: "postgres", Check: postgresDB.Ping},
		api_gateway.ReadinessCheck{Name: "mongodb", Check: mongoDB.Ping},
	)
	log.Info("REST server initialized")

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	cancelAppCtx()

	log.Info("Starting graceful shutdown...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	// Stop accepting requests before the stores go away.
	var shutdownFailed bool
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
		shutdownFailed = true
	}

	if err := commandProducer.Close(); err != nil {
		log.Error("Error closing settlement command producer", "error", err)
		shutdownFailed = true
	}

	postgresDB.Close()

	if err := mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
		shutdownFailed = true
	}

	if serverErr != nil || shutdownFailed {
		log.Error("API gateway shutdown completed with errors", "error", serverErr)
		os.Exit(1)
	}
	log.Info("API gateway shutdown completed successfully")
}
