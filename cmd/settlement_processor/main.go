package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/crowdfund-ledger/internal/config"
	"github.com/crowdfund-ledger/internal/data/mongo"
	"github.com/crowdfund-ledger/internal/data/postgres"
	"github.com/crowdfund-ledger/internal/logger"
	"github.com/crowdfund-ledger/internal/metrics"
	"github.com/crowdfund-ledger/internal/platform/lock"
	"github.com/crowdfund-ledger/internal/platform/messaging/consumers"
	"github.com/crowdfund-ledger/internal/platform/messaging/producers"
	"github.com/crowdfund-ledger/internal/platform/persistence"
	"github.com/crowdfund-ledger/internal/platform/transfer"
	"github.com/crowdfund-ledger/internal/settlement_processor/components"
	"github.com/crowdfund-ledger/internal/settlement_processor/consumer"
	"github.com/crowdfund-ledger/internal/settlement_processor/outbox_poller"
	"github.com/crowdfund-ledger/internal/settlement_processor/sweeper"
)

func main() {
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("settlement_processor")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)
	m := metrics.New("settlement_processor")

	log.Info("Starting Settlement Processor",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

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

	redisClient, err := persistence.NewRedisClient(appCtx, log, &cfg.Redis)
	if err != nil {
		log.Error("Failed to initialize Redis", "error", err)
		os.Exit(1)
	}

	repos := components.Repositories{
		Campaigns:     postgres.NewCampaignRepository(log, postgresDB),
		Contributions: postgres.NewContributionRepository(log, postgresDB),
		Settlements:   postgres.NewSettlementRepository(log, postgresDB),
		Outbox:        postgres.NewOutboxRepository(log, postgresDB),
	}
	auditRepo := mongo.NewAuditRepository(log, mongoDB.Database())
	if err := auditRepo.EnsureIndexes(appCtx); err != nil {
		log.Error("Failed to create audit indexes", "error", err)
		os.Exit(1)
	}

	gateway := transfer.NewHTTPGateway(log.With("component", "transfer_gateway"), &cfg.TransferGateway, &http.Client{
		Timeout: cfg.Settlement.TransferTimeout,
	})
	locker := lock.New(redisClient, cfg.Redis.LockTTL)

	coordinator, pool := components.CreateSettlementCoordinator(postgresDB, repos, gateway, locker, m, log, cfg)

	dlqProducer, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize DLQ Kafka producer", "error", err)
		os.Exit(1)
	}
	// A nil *DLQProducer must not reach the consumer as a non-nil interface.
	var dlq consumers.DeadLetterSink
	if dlqProducer != nil {
		dlq = dlqProducer
	}

	eventProducer, err := producers.NewEventProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize event producer", "error", err)
		os.Exit(1)
	}

	kafkaConsumer := consumers.NewKafkaConsumer(appCtx, log, &cfg.Kafka, dlq)
	commandHandler := consumer.NewSettlementCommandHandler(log.With("component", "command_handler"), coordinator, m)

	publisher := outbox_poller.NewEventPublisher(repos.Outbox, eventProducer, auditRepo, log.With("component", "event_publisher"))
	poller := outbox_poller.NewPoller(&cfg.Outbox, repos.Outbox, publisher, m, log.With("component", "outbox_poller"))

	deadlineSweeper := sweeper.NewSweeper(
		&cfg.Settlement,
		postgresDB,
		repos.Campaigns,
		components.NewOutboxRecorder(repos.Outbox, log.With("component", "outbox_recorder")),
		coordinator,
		m,
		log.With("component", "sweeper"),
	)

	errChan := make(chan error, 1)
	var wg sync.WaitGroup

	kafkaConsumer.Subscribe(appCtx, commandHandler.HandleMessage)

	wg.Add(2)
	go func() {
		defer wg.Done()
		poller.Start(appCtx)
	}()
	go func() {
		defer wg.Done()
		deadlineSweeper.Start(appCtx)
	}()

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsServer = newMetricsServer(cfg.Metrics.Port, m)
		go func() {
			log.Info("Starting metrics server", "port", cfg.Metrics.Port)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var serviceErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Service error occurred", "error", err)
		serviceErr = err
	}

	cancelAppCtx()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	if pool != nil {
		log.Info("Shutting down worker pool", "running_workers", pool.Running())
		pool.Shutdown()
	}

	waitForGroup(shutdownCtx, &wg, log)

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error("Error stopping metrics server", "error", err)
		}
	}
	if err := kafkaConsumer.Close(); err != nil {
		log.Error("Error closing Kafka consumer", "error", err)
	}
	if err := eventProducer.Close(); err != nil {
		log.Error("Error closing event producer", "error", err)
	}
	if dlqProducer != nil {
		if err := dlqProducer.Close(); err != nil {
			log.Error("Error closing DLQ Kafka producer", "error", err)
		}
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Error("Error closing Redis client", "error", err)
		}
	}

	postgresDB.Close()

	if err := mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	if serviceErr != nil {
		log.Error("Settlement Processor shutdown with errors", "error", serviceErr)
		os.Exit(1)
	}
	log.Info("Settlement Processor shutdown completed successfully")
}

func newMetricsServer(port int, m *metrics.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func waitForGroup(ctx context.Context, wg *sync.WaitGroup, log *slog.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("All services stopped successfully")
	case <-ctx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}
}
